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


package constants

import "github.com/gravitational/trace"

const (
	// ComponentProvision is the logging component of the boot orchestrator
	ComponentProvision = "provision"
	// ComponentIdentity is the logging component of the node identity resolver
	ComponentIdentity = "identity"
	// ComponentSecrets is the logging component of the credential resolver
	ComponentSecrets = "secrets"
	// ComponentArtifact is the logging component of the artifact fetcher
	ComponentArtifact = "artifact"
	// ComponentTelemetry is the logging component of the telemetry configurator
	ComponentTelemetry = "telemetry"
	// ComponentSystemd is the logging component of the service manager
	ComponentSystemd = "systemd"
	// ComponentHealth is the logging component of the readiness gate
	ComponentHealth = "health"
	// ComponentPool is the logging component of the pool registrar
	ComponentPool = "pool"
	// ComponentLoadgen is the logging component of the traffic generator
	ComponentLoadgen = "loadgen"
	// ComponentCLI is the logging component of the command line tool
	ComponentCLI = "cli"

	// FieldBootID is the log field with the unique identifier of a boot run
	FieldBootID = "boot_id"
	// FieldInstance is the log field with the node's instance ID
	FieldInstance = "instance"
	// FieldStep is the log field naming an orchestrator step
	FieldStep = "step"
	// FieldCommandError specifies whether the command has failed
	FieldCommandError = "cmderr"
	// FieldCommandErrorReport specifies the error report of a failed command
	FieldCommandErrorReport = "errmsg"
	// FieldCommandStderr specifies the stderr output of a command
	FieldCommandStderr = "stderr"
	// FieldCommandStdout specifies the stdout output of a command
	FieldCommandStdout = "stdout"

	// EnvOTLPEndpoint is the OpenTelemetry exporter endpoint variable
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	// EnvOTLPProtocol is the OpenTelemetry exporter protocol variable
	EnvOTLPProtocol = "OTEL_EXPORTER_OTLP_PROTOCOL"
	// EnvOTELServiceName is the OpenTelemetry service name variable
	EnvOTELServiceName = "OTEL_SERVICE_NAME"
	// EnvOTELResourceAttributes is the OpenTelemetry resource attributes variable
	EnvOTELResourceAttributes = "OTEL_RESOURCE_ATTRIBUTES"
	// EnvOTELMetricsExporter selects the OpenTelemetry metrics exporter
	EnvOTELMetricsExporter = "OTEL_METRICS_EXPORTER"
	// EnvOTELTracesExporter selects the OpenTelemetry traces exporter
	EnvOTELTracesExporter = "OTEL_TRACES_EXPORTER"
	// EnvOTELLogsExporter selects the OpenTelemetry logs exporter
	EnvOTELLogsExporter = "OTEL_LOGS_EXPORTER"
	// EnvDataBucket names the bucket the application keeps its own data in
	EnvDataBucket = "DATA_BUCKET_NAME"
	// EnvLoggingFileName overrides the application log file
	EnvLoggingFileName = "LOGGING_FILE_NAME"
	// EnvLogPath overrides the application log directory
	EnvLogPath = "LOG_PATH"

	// ProtocolGRPC is the OTLP protocol name for gRPC transport
	ProtocolGRPC = "grpc"

	// RestartAlways restarts the service regardless of how it exited
	RestartAlways = "always"
	// RestartOnFailure restarts the service only after an unclean exit
	RestartOnFailure = "on-failure"

	// Redacted is shown in place of secret values
	Redacted = "**********"

	// ProductsPath is the root of the application product API
	ProductsPath = "/api/products"
	// HealthPath is the application health endpoint
	HealthPath = ProductsPath + "/health"
)

// Format is the output format of a command
type Format string

// Set sets the format from s
func (f *Format) Set(s string) error {
	switch Format(s) {
	case EncodingText, EncodingJSON, EncodingYAML:
		*f = Format(s)
		return nil
	}
	return trace.BadParameter("unsupported format %q, supported are: %v", s, OutputFormats)
}

// String returns the format as a string
func (f *Format) String() string {
	return string(*f)
}

const (
	// EncodingText is the human readable output format
	EncodingText Format = "text"
	// EncodingJSON is the JSON output format
	EncodingJSON Format = "json"
	// EncodingYAML is the YAML output format
	EncodingYAML Format = "yaml"
)

// OutputFormats lists the supported output formats
var OutputFormats = []Format{EncodingText, EncodingJSON, EncodingYAML}
