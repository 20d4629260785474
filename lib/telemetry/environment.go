/*
Copyright 2018 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package telemetry

import (
	"sort"
	"strings"

	"github.com/gravitational/nodestrap/lib/constants"
)

// Resource describes the telemetry source
type Resource struct {
	// ServiceName is the telemetry service name
	ServiceName string
	// Environment is the deployment environment
	Environment string
	// InstanceID is the ID of the node
	InstanceID string
}

// Attributes returns the resource attributes in the key=value,... form
func (r Resource) Attributes() string {
	attrs := map[string]string{
		"service.name":           r.ServiceName,
		"deployment.environment": r.Environment,
	}
	if r.InstanceID != "" {
		attrs["host.id"] = r.InstanceID
	}
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+attrs[key])
	}
	return strings.Join(pairs, ",")
}

// AppEnvironment returns the exporter environment of an instrumented service.
// The endpoint and protocol are taken from the collector configuration
// the service reports to
func AppEnvironment(config *CollectorConfig, resource Resource) map[string]string {
	return map[string]string{
		constants.EnvOTLPEndpoint:           "http://" + config.Receivers.OTLP.Protocols.GRPC.Endpoint,
		constants.EnvOTLPProtocol:           constants.ProtocolGRPC,
		constants.EnvOTELServiceName:        resource.ServiceName,
		constants.EnvOTELResourceAttributes: resource.Attributes(),
		constants.EnvOTELMetricsExporter:    "otlp",
		constants.EnvOTELTracesExporter:     "otlp",
		constants.EnvOTELLogsExporter:       "none",
	}
}

// HTTPEndpoint returns the address of the OTLP HTTP receiver
func HTTPEndpoint(config *CollectorConfig) string {
	return config.Receivers.OTLP.Protocols.HTTP.Endpoint
}
