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
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gravitational/nodestrap/lib/defaults"

	"github.com/gravitational/trace"
	"gopkg.in/yaml.v2"
)

// Names of the pipeline components
const (
	ReceiverOTLP        = "otlp"
	ProcessorBatch      = "batch"
	ProcessorMemory     = "memory_limiter"
	ProcessorStrip      = "attributes/strip"
	ConnectorSpanMetric = "spanmetrics"
	ExporterXRay        = "awsxray"
	ExporterEMF         = "awsemf"
	PipelineTraces      = "traces"
	PipelineMetrics     = "metrics"
)

const cumulativeTemporality = "AGGREGATION_TEMPORALITY_CUMULATIVE"

// StrippedAttributes lists the diagnostic attributes removed from exported metrics
var StrippedAttributes = []string{
	"process.command_line",
	"process.command_args",
	"thread.id",
	"thread.name",
}

// SpanMetricDimensions lists the span attributes latency metrics are broken down by
var SpanMetricDimensions = []string{
	"http.route",
	"http.response.status_code",
	"http.request.method",
}

// Params defines the inputs of the collector configuration
type Params struct {
	// Region is the region telemetry is exported to
	Region string
	// Namespace is the metrics namespace
	Namespace string
	// LogGroup is the log group embedded metric records are written to
	LogGroup string
	// ServiceName is the telemetry service name of the application
	ServiceName string
	// Environment is the deployment environment
	Environment string
	// GRPCPort is the loopback port of the OTLP gRPC receiver
	GRPCPort int
	// HTTPPort is the loopback port of the OTLP HTTP receiver
	HTTPPort int
}

// CheckAndSetDefaults validates the parameters and sets default values
func (r *Params) CheckAndSetDefaults() error {
	if r.Region == "" {
		r.Region = defaults.AWSRegion
	}
	if r.Namespace == "" {
		r.Namespace = defaults.MetricsNamespace
	}
	if r.LogGroup == "" {
		r.LogGroup = "/metrics/" + r.Namespace
	}
	if r.ServiceName == "" {
		r.ServiceName = defaults.ServiceName
	}
	if r.Environment == "" {
		r.Environment = defaults.DeploymentEnvironment
	}
	if r.GRPCPort == 0 {
		r.GRPCPort = defaults.OTLPGRPCPort
	}
	if r.HTTPPort == 0 {
		r.HTTPPort = defaults.OTLPHTTPPort
	}
	if r.GRPCPort == r.HTTPPort {
		return trace.BadParameter("OTLP gRPC and HTTP receivers need distinct ports, got %v", r.GRPCPort)
	}
	for _, port := range []int{r.GRPCPort, r.HTTPPort} {
		if port <= 0 || port > 65535 {
			return trace.BadParameter("invalid receiver port %v", port)
		}
	}
	return nil
}

// GRPCEndpoint returns the loopback address of the OTLP gRPC receiver
func (r Params) GRPCEndpoint() string {
	return net.JoinHostPort(defaults.LoopbackAddr, strconv.Itoa(r.GRPCPort))
}

// HTTPEndpoint returns the loopback address of the OTLP HTTP receiver
func (r Params) HTTPEndpoint() string {
	return net.JoinHostPort(defaults.LoopbackAddr, strconv.Itoa(r.HTTPPort))
}

// CollectorConfig is the telemetry collector configuration document
type CollectorConfig struct {
	Receivers  Receivers  `yaml:"receivers"`
	Processors Processors `yaml:"processors"`
	Connectors Connectors `yaml:"connectors"`
	Exporters  Exporters  `yaml:"exporters"`
	Service    Service    `yaml:"service"`
}

// Receivers defines the telemetry receivers
type Receivers struct {
	OTLP OTLPReceiver `yaml:"otlp"`
}

// OTLPReceiver defines the OTLP receiver
type OTLPReceiver struct {
	Protocols OTLPProtocols `yaml:"protocols"`
}

// OTLPProtocols defines the OTLP receiver transports
type OTLPProtocols struct {
	GRPC Endpoint `yaml:"grpc"`
	HTTP Endpoint `yaml:"http"`
}

// Endpoint is a listen address
type Endpoint struct {
	Endpoint string `yaml:"endpoint"`
}

// Processors defines the telemetry processors
type Processors struct {
	Batch         BatchProcessor      `yaml:"batch"`
	MemoryLimiter MemoryLimiter       `yaml:"memory_limiter"`
	Strip         AttributesProcessor `yaml:"attributes/strip"`
}

// BatchProcessor batches telemetry before export
type BatchProcessor struct {
	Timeout       Duration `yaml:"timeout"`
	SendBatchSize int      `yaml:"send_batch_size"`
}

// MemoryLimiter bounds collector memory usage
type MemoryLimiter struct {
	CheckInterval Duration `yaml:"check_interval"`
	LimitMiB      int      `yaml:"limit_mib"`
}

// AttributesProcessor modifies telemetry attributes
type AttributesProcessor struct {
	Actions []AttributeAction `yaml:"actions"`
}

// AttributeAction is a single attribute modification
type AttributeAction struct {
	Key    string `yaml:"key"`
	Action string `yaml:"action"`
}

// Connectors defines the pipeline connectors
type Connectors struct {
	SpanMetrics SpanMetricsConnector `yaml:"spanmetrics"`
}

// SpanMetricsConnector derives request metrics from spans
type SpanMetricsConnector struct {
	Histogram              Histogram   `yaml:"histogram"`
	Dimensions             []Dimension `yaml:"dimensions"`
	AggregationTemporality string      `yaml:"aggregation_temporality"`
}

// Histogram defines latency histogram buckets
type Histogram struct {
	Explicit ExplicitBuckets `yaml:"explicit"`
}

// ExplicitBuckets lists explicit histogram bucket boundaries
type ExplicitBuckets struct {
	Buckets []Duration `yaml:"buckets"`
}

// Dimension is a span attribute metrics are broken down by
type Dimension struct {
	Name string `yaml:"name"`
}

// Exporters defines the telemetry exporters
type Exporters struct {
	XRay XRayExporter `yaml:"awsxray"`
	EMF  EMFExporter  `yaml:"awsemf"`
}

// XRayExporter exports traces to the tracing backend
type XRayExporter struct {
	Region string `yaml:"region"`
}

// EMFExporter exports metrics as embedded metric format log records
type EMFExporter struct {
	Region       string `yaml:"region"`
	Namespace    string `yaml:"namespace"`
	LogGroupName string `yaml:"log_group_name"`
}

// Service wires the components into pipelines
type Service struct {
	Pipelines Pipelines `yaml:"pipelines"`
}

// Pipelines defines the collector pipelines
type Pipelines struct {
	Traces  Pipeline `yaml:"traces"`
	Metrics Pipeline `yaml:"metrics"`
}

// Pipeline is an ordered chain of components
type Pipeline struct {
	Receivers  []string `yaml:"receivers"`
	Processors []string `yaml:"processors"`
	Exporters  []string `yaml:"exporters"`
}

// Duration is a time.Duration encoded in its string form
type Duration time.Duration

// MarshalYAML encodes the duration as a string, e.g. 2.5s
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML decodes the duration from its string form
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return trace.Wrap(err)
	}
	value, err := time.ParseDuration(s)
	if err != nil {
		return trace.BadParameter("invalid duration %q", s)
	}
	*d = Duration(value)
	return nil
}

// NewCollectorConfig returns the collector configuration for the specified parameters
func NewCollectorConfig(params Params) (*CollectorConfig, error) {
	if err := params.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	var actions []AttributeAction
	for _, key := range StrippedAttributes {
		actions = append(actions, AttributeAction{Key: key, Action: "delete"})
	}
	var dimensions []Dimension
	for _, name := range SpanMetricDimensions {
		dimensions = append(dimensions, Dimension{Name: name})
	}
	var buckets []Duration
	for _, bucket := range defaults.LatencyBuckets {
		buckets = append(buckets, Duration(bucket))
	}
	return &CollectorConfig{
		Receivers: Receivers{
			OTLP: OTLPReceiver{
				Protocols: OTLPProtocols{
					GRPC: Endpoint{Endpoint: params.GRPCEndpoint()},
					HTTP: Endpoint{Endpoint: params.HTTPEndpoint()},
				},
			},
		},
		Processors: Processors{
			Batch: BatchProcessor{
				Timeout:       Duration(defaults.BatchTimeout),
				SendBatchSize: defaults.BatchSize,
			},
			MemoryLimiter: MemoryLimiter{
				CheckInterval: Duration(defaults.MemoryCheckInterval),
				LimitMiB:      defaults.MemoryLimitMiB,
			},
			Strip: AttributesProcessor{Actions: actions},
		},
		Connectors: Connectors{
			SpanMetrics: SpanMetricsConnector{
				Histogram:              Histogram{Explicit: ExplicitBuckets{Buckets: buckets}},
				Dimensions:             dimensions,
				AggregationTemporality: cumulativeTemporality,
			},
		},
		Exporters: Exporters{
			XRay: XRayExporter{Region: params.Region},
			EMF: EMFExporter{
				Region:       params.Region,
				Namespace:    params.Namespace,
				LogGroupName: params.LogGroup,
			},
		},
		Service: Service{
			Pipelines: Pipelines{
				Traces: Pipeline{
					Receivers:  []string{ReceiverOTLP},
					Processors: []string{ProcessorMemory, ProcessorBatch},
					Exporters:  []string{ExporterXRay, ConnectorSpanMetric},
				},
				Metrics: Pipeline{
					Receivers:  []string{ReceiverOTLP, ConnectorSpanMetric},
					Processors: []string{ProcessorStrip, ProcessorMemory, ProcessorBatch},
					Exporters:  []string{ExporterEMF},
				},
			},
		},
	}, nil
}

// Render encodes the configuration as YAML
func (r *CollectorConfig) Render() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return data, nil
}

// ParseCollectorConfig decodes the configuration from YAML
func ParseCollectorConfig(data []byte) (*CollectorConfig, error) {
	var config CollectorConfig
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return nil, trace.BadParameter("invalid collector configuration: %v", err)
	}
	return &config, nil
}

// Validate checks that every pipeline references defined components
// and that receivers listen on distinct loopback endpoints
func (r *CollectorConfig) Validate() error {
	defined := map[string]bool{
		ReceiverOTLP:        true,
		ProcessorBatch:      true,
		ProcessorMemory:     true,
		ProcessorStrip:      true,
		ConnectorSpanMetric: true,
		ExporterXRay:        true,
		ExporterEMF:         true,
	}
	for name, pipeline := range map[string]Pipeline{
		PipelineTraces:  r.Service.Pipelines.Traces,
		PipelineMetrics: r.Service.Pipelines.Metrics,
	} {
		if len(pipeline.Receivers) == 0 || len(pipeline.Exporters) == 0 {
			return trace.BadParameter("pipeline %v needs at least one receiver and exporter", name)
		}
		for _, components := range [][]string{pipeline.Receivers, pipeline.Processors, pipeline.Exporters} {
			for _, component := range components {
				if !defined[component] {
					return trace.BadParameter("pipeline %v references undefined component %v", name, component)
				}
			}
		}
	}
	protocols := r.Receivers.OTLP.Protocols
	if protocols.GRPC.Endpoint == protocols.HTTP.Endpoint {
		return trace.BadParameter("receivers share endpoint %v", protocols.GRPC.Endpoint)
	}
	for _, endpoint := range []string{protocols.GRPC.Endpoint, protocols.HTTP.Endpoint} {
		host, _, err := net.SplitHostPort(endpoint)
		if err != nil {
			return trace.BadParameter("invalid receiver endpoint %v", endpoint)
		}
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			return trace.BadParameter("receiver endpoint %v is not a loopback address", endpoint)
		}
	}
	return nil
}

// String returns a short description of the configuration
func (r *CollectorConfig) String() string {
	return fmt.Sprintf("CollectorConfig(grpc=%v, http=%v, region=%v, namespace=%v)",
		r.Receivers.OTLP.Protocols.GRPC.Endpoint, r.Receivers.OTLP.Protocols.HTTP.Endpoint,
		r.Exporters.XRay.Region, r.Exporters.EMF.Namespace)
}
