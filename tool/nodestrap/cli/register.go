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

package cli

import (
	"fmt"

	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/defaults"
	"github.com/gravitational/nodestrap/tool/common"

	"gopkg.in/alecthomas/kingpin.v2"
)

// RegisterCommands registers all nodestrap flags, arguments and subcommands
func RegisterCommands(app *kingpin.Application) Application {
	g := Application{
		Application: app,
	}

	g.Debug = app.Flag("debug", "Enable debug mode.").Envar("NODESTRAP_DEBUG").Bool()
	g.LogFile = app.Flag("log-file", "Path to the log file.").Envar("NODESTRAP_LOG_FILE").Default(defaults.LogFile).String()

	g.VersionCmd.CmdClause = app.Command("version", "Print version information and exit.")
	g.VersionCmd.Output = common.Format(g.VersionCmd.Flag("output", "Output format: text or json.").Short('o').Default(string(constants.EncodingText)))

	g.ProvisionCmd.CmdClause = app.Command("provision", "Provision this node: fetch artifacts, configure telemetry, start services and join the pool.")
	g.ProvisionCmd.ConfigFile = g.ProvisionCmd.Flag("config", "Path to the configuration file, flags take precedence.").Envar("NODESTRAP_CONFIG").Default(defaults.ConfigFile).String()
	g.ProvisionCmd.SecretARN = g.ProvisionCmd.Flag("secret-arn", "ARN of the secret with the database credential.").Envar("NODESTRAP_SECRET_ARN").String()
	g.ProvisionCmd.Bucket = g.ProvisionCmd.Flag("bucket", "Artifact bucket with the application package.").Envar("NODESTRAP_BUCKET").String()
	g.ProvisionCmd.DataBucket = g.ProvisionCmd.Flag("data-bucket", "Bucket the application keeps its data in.").Envar("NODESTRAP_DATA_BUCKET").String()
	g.ProvisionCmd.TargetGroupARN = g.ProvisionCmd.Flag("target-group-arn", "Target group to register this node with.").Envar("NODESTRAP_TARGET_GROUP_ARN").String()
	g.ProvisionCmd.Region = g.ProvisionCmd.Flag("region", "AWS region, defaults to the region of this node.").Envar("NODESTRAP_REGION").String()
	g.ProvisionCmd.AppPort = g.ProvisionCmd.Flag("app-port", fmt.Sprintf("Application port, defaults to %v.", defaults.AppPort)).Envar("NODESTRAP_APP_PORT").Int()
	g.ProvisionCmd.ServiceName = g.ProvisionCmd.Flag("service-name", fmt.Sprintf("Telemetry service name of the application, defaults to %v.", defaults.ServiceName)).Envar("NODESTRAP_SERVICE_NAME").String()
	g.ProvisionCmd.Environment = g.ProvisionCmd.Flag("environment", fmt.Sprintf("Deployment environment, defaults to %v.", defaults.DeploymentEnvironment)).Envar("NODESTRAP_ENVIRONMENT").String()
	g.ProvisionCmd.Namespace = g.ProvisionCmd.Flag("namespace", fmt.Sprintf("Metrics namespace, defaults to %v.", defaults.MetricsNamespace)).Envar("NODESTRAP_NAMESPACE").String()
	g.ProvisionCmd.ReadinessTimeout = g.ProvisionCmd.Flag("readiness-timeout", fmt.Sprintf("How long to wait for the application to become healthy, defaults to %v.", defaults.ReadinessTimeout)).Envar("NODESTRAP_READINESS_TIMEOUT").Duration()
	g.ProvisionCmd.ReportPrefix = g.ProvisionCmd.Flag("report-prefix", fmt.Sprintf("Artifact bucket prefix of boot reports, defaults to %v.", defaults.ReportPrefix)).Envar("NODESTRAP_REPORT_PREFIX").String()
	g.ProvisionCmd.MetadataEndpoint = g.ProvisionCmd.Flag("metadata-endpoint", "Instance metadata service URL.").Envar("NODESTRAP_METADATA_ENDPOINT").Default(defaults.MetadataEndpoint).Hidden().String()
	g.ProvisionCmd.UnitDir = g.ProvisionCmd.Flag("unit-dir", "Directory for systemd unit files.").Envar("NODESTRAP_UNIT_DIR").Default(defaults.SystemUnitDir).Hidden().String()
	g.ProvisionCmd.CollectorBinary = g.ProvisionCmd.Flag("collector-binary", "Path to the telemetry collector executable.").Envar("NODESTRAP_COLLECTOR_BINARY").Default(defaults.CollectorBinary).String()
	g.ProvisionCmd.LoadgenInterval = g.ProvisionCmd.Flag("loadgen-interval", fmt.Sprintf("Pause between traffic generator iterations, defaults to %v.", defaults.LoadgenInterval)).Envar("NODESTRAP_LOADGEN_INTERVAL").Duration()
	g.ProvisionCmd.LoadgenMetricsAddr = g.ProvisionCmd.Flag("loadgen-metrics-addr", "Listen address of the traffic generator metrics endpoint.").Envar("NODESTRAP_LOADGEN_METRICS_ADDR").String()
	g.ProvisionCmd.Output = common.Format(g.ProvisionCmd.Flag("output", fmt.Sprintf("Report format: %v.", constants.OutputFormats)).Short('o').Default(string(constants.EncodingText)))

	g.LoadgenCmd.CmdClause = app.Command("loadgen", "Generate synthetic traffic against the application.")
	g.LoadgenCmd.Target = g.LoadgenCmd.Flag("target", "Application base URL.").Envar("NODESTRAP_LOADGEN_TARGET").Default(fmt.Sprintf("http://%v:%v", defaults.LoopbackAddr, defaults.AppPort)).String()
	g.LoadgenCmd.Interval = g.LoadgenCmd.Flag("interval", "Pause between iterations.").Envar("NODESTRAP_LOADGEN_INTERVAL").Default(defaults.LoadgenInterval.String()).Duration()
	g.LoadgenCmd.RequestTimeout = g.LoadgenCmd.Flag("request-timeout", "Timeout of a single request.").Envar("NODESTRAP_LOADGEN_REQUEST_TIMEOUT").Default(defaults.LoadgenRequestTimeout.String()).Duration()
	g.LoadgenCmd.TrafficLog = g.LoadgenCmd.Flag("traffic-log", "File that receives one line per request.").Envar("NODESTRAP_LOADGEN_TRAFFIC_LOG").Default(defaults.LoadgenLogFile).String()
	g.LoadgenCmd.OTLPEndpoint = g.LoadgenCmd.Flag("otlp-endpoint", "OTLP HTTP receiver for client spans, host:port.").Envar("NODESTRAP_LOADGEN_OTLP_ENDPOINT").String()
	g.LoadgenCmd.MetricsAddr = g.LoadgenCmd.Flag("metrics-addr", "Listen address of the metrics endpoint.").Envar("NODESTRAP_LOADGEN_METRICS_ADDR").String()
	g.LoadgenCmd.Seed = g.LoadgenCmd.Flag("seed", "Seed of the random choices, time based if unset.").Envar("NODESTRAP_LOADGEN_SEED").Int64()
	g.LoadgenCmd.Environment = g.LoadgenCmd.Flag("environment", "Deployment environment.").Envar("NODESTRAP_ENVIRONMENT").Default(defaults.DeploymentEnvironment).String()

	g.RenderCmd.CmdClause = app.Command("render", "Print the telemetry collector configuration.")
	g.RenderCmd.Region = g.RenderCmd.Flag("region", "Region telemetry is exported to.").Envar("NODESTRAP_REGION").Default(defaults.AWSRegion).String()
	g.RenderCmd.Namespace = g.RenderCmd.Flag("namespace", "Metrics namespace.").Envar("NODESTRAP_NAMESPACE").Default(defaults.MetricsNamespace).String()
	g.RenderCmd.ServiceName = g.RenderCmd.Flag("service-name", "Telemetry service name of the application.").Envar("NODESTRAP_SERVICE_NAME").Default(defaults.ServiceName).String()
	g.RenderCmd.Environment = g.RenderCmd.Flag("environment", "Deployment environment.").Envar("NODESTRAP_ENVIRONMENT").Default(defaults.DeploymentEnvironment).String()

	return g
}
