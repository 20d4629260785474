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


package defaults

import (
	"path/filepath"
	"time"
)

const (
	// MetadataEndpoint is the base URL of the EC2 instance metadata service
	MetadataEndpoint = "http://169.254.169.254"

	// AWSRegion is the region used when neither configuration nor instance
	// metadata provide one
	AWSRegion = "us-east-1"

	// DatabasePort is the default MySQL port of the Aurora cluster
	DatabasePort = 3306
	// DatabaseName is the default schema created with the cluster
	DatabaseName = "products_db"

	// AppDir is the working directory of the application service
	AppDir = "/opt/app"
	// PackageSuffix identifies deployable application packages in the artifact bucket
	PackageSuffix = ".jar"
	// AgentPrefix is the artifact bucket prefix holding instrumentation agents
	AgentPrefix = "agent/"
	// AgentFilename is the file name of the instrumentation agent
	AgentFilename = "aws-opentelemetry-agent.jar"
	// AgentFallbackURL is the public release the agent is downloaded from
	// when the artifact bucket does not carry one
	AgentFallbackURL = "https://github.com/aws-observability/aws-otel-java-instrumentation/releases/latest/download/aws-opentelemetry-agent.jar"
	// DownloadTimeout bounds a single artifact download attempt
	DownloadTimeout = 5 * time.Minute
	// DownloadRetryTimeout bounds all attempts of a single artifact source
	DownloadRetryTimeout = 2 * time.Minute

	// AppPort is the port the application listens on and the target group forwards to
	AppPort = 8080
	// AppServiceName is the name of the application systemd unit
	AppServiceName = "demo-app.service"
	// AppRestartSec is the delay before the application is restarted after a failure
	AppRestartSec = 10
	// AppLogDir is the directory for application log files
	AppLogDir = "/var/log/demo-app"
	// JavaPath is the java launcher used to start the application
	JavaPath = "/usr/bin/java"

	// LoadgenServiceName is the name of the traffic generator systemd unit
	LoadgenServiceName = "demo-loadgen.service"
	// LoadgenRestartSec is the delay before the traffic generator is restarted
	LoadgenRestartSec = 5
	// LoadgenLogDir is the directory for the traffic generator log file
	LoadgenLogDir = "/var/log/demo-loadgen"
	// LoadgenInterval is the pause between traffic generator iterations
	LoadgenInterval = 2 * time.Second
	// LoadgenRequestTimeout bounds a single request issued by the traffic generator
	LoadgenRequestTimeout = 10 * time.Second
	// LoadgenRefreshEvery is the number of iterations between id cache refreshes
	LoadgenRefreshEvery = 5
	// LoadgenWriteOneIn sets the write probability to 1/LoadgenWriteOneIn per iteration
	LoadgenWriteOneIn = 10

	// CollectorServiceName is the name of the telemetry collector systemd unit
	CollectorServiceName = "otel-collector.service"
	// CollectorBinary is the path to the telemetry collector executable
	CollectorBinary = "/opt/aws/aws-otel-collector/bin/aws-otel-collector"
	// CollectorConfigDir is the directory holding the rendered collector configuration
	CollectorConfigDir = "/opt/aws/aws-otel-collector/etc"
	// CollectorRestartSec is the delay before the collector is restarted
	CollectorRestartSec = 5
	// CollectorLogDir is the directory for the collector log file
	CollectorLogDir = "/var/log/otel-collector"
	// OTLPGRPCPort is the loopback port of the OTLP gRPC receiver
	OTLPGRPCPort = 4317
	// OTLPHTTPPort is the loopback port of the OTLP HTTP receiver
	OTLPHTTPPort = 4318
	// LoopbackAddr is the only address telemetry receivers bind to
	LoopbackAddr = "127.0.0.1"
	// MetricsNamespace is the default namespace of exported metrics
	MetricsNamespace = "demo-metrics"
	// ServiceName is the telemetry service name of the application
	ServiceName = "demo-app"
	// DeploymentEnvironment is the deployment.environment resource attribute
	DeploymentEnvironment = "demo"
	// LoadgenTelemetryName is the telemetry service name of the traffic generator
	LoadgenTelemetryName = "demo-loadgen"
	// BatchTimeout is the collector batch processor timeout
	BatchTimeout = 10 * time.Second
	// BatchSize is the collector batch processor batch size
	BatchSize = 1024
	// MemoryCheckInterval is the collector memory limiter check interval
	MemoryCheckInterval = time.Second
	// MemoryLimitMiB is the collector memory limit
	MemoryLimitMiB = 512

	// ReadinessTimeout bounds the wait for the application health endpoint
	ReadinessTimeout = 5 * time.Minute
	// ReadinessRequestTimeout bounds a single health check
	ReadinessRequestTimeout = 5 * time.Second

	// RegistrationTimeout bounds all target registration attempts
	RegistrationTimeout = time.Minute

	// ReportPrefix is the artifact bucket prefix boot reports are uploaded under
	ReportPrefix = "bootstrap-reports/"

	// SystemUnitDir specifies the location of system service units
	SystemUnitDir = "/etc/systemd/system"
	// SystemServiceWantedBy sets default target for installed system services
	SystemServiceWantedBy = "multi-user.target"
	// SystemServiceRestartSec is a default restart period for installed system services
	SystemServiceRestartSec = 5
	// PathEnv is a name for standard linux path environment variable
	PathEnv = "PATH"
	// PathEnvVal is a default value for PATH environment variable
	PathEnvVal = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

	// BinaryPath is where this tool is installed on the node
	BinaryPath = "/usr/local/bin/nodestrap"
	// LogDir is the directory for the orchestrator log file
	LogDir = "/var/log/nodestrap"
	// ConfigFile is the default location of the orchestrator configuration file
	ConfigFile = "/etc/nodestrap/config.yaml"

	// SharedReadMask is a mask for a file readable by everyone
	SharedReadMask = 0644
	// PrivateFileMask is a mask for a file readable only by its owner
	PrivateFileMask = 0600
	// SharedDirMask is a mask for a directory traversable by everyone
	SharedDirMask = 0755

	// DialTimeout is the default TCP dial timeout
	DialTimeout = 30 * time.Second
	// ConnectionIdleTimeout is the default idle timeout of pooled connections
	ConnectionIdleTimeout = 2 * time.Minute
	// MaxIdleConnsPerHost specifies the max amount of idle HTTP connections to keep
	MaxIdleConnsPerHost = 16
)

var (
	// AppPath is where the application package is downloaded to
	AppPath = filepath.Join(AppDir, "app.jar")
	// AgentPath is where the instrumentation agent is downloaded to
	AgentPath = filepath.Join(AppDir, "agent", AgentFilename)
	// AgentKey is the artifact bucket key of the instrumentation agent
	AgentKey = AgentPrefix + AgentFilename
	// CollectorConfigPath is the location of the rendered collector configuration
	CollectorConfigPath = filepath.Join(CollectorConfigDir, "config.yaml")
	// LogFile is the orchestrator log file
	LogFile = filepath.Join(LogDir, "nodestrap.log")
	// AppLogFile is the application log file
	AppLogFile = filepath.Join(AppLogDir, "application.log")
	// AppServiceLogFile receives stdout/stderr of the application unit
	AppServiceLogFile = filepath.Join(AppLogDir, "service.log")
	// LoadgenLogFile receives one line per request issued by the traffic generator
	LoadgenLogFile = filepath.Join(LoadgenLogDir, "traffic.log")
	// LoadgenServiceLogFile receives stdout/stderr of the traffic generator unit
	LoadgenServiceLogFile = filepath.Join(LoadgenLogDir, "service.log")
	// CollectorLogFile receives stdout/stderr of the collector unit
	CollectorLogFile = filepath.Join(CollectorLogDir, "collector.log")

	// LatencyBuckets are the histogram boundaries of span-derived latency metrics
	LatencyBuckets = []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2500 * time.Millisecond,
		5 * time.Second,
	}
)

