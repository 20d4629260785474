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
	"time"

	"github.com/gravitational/nodestrap/lib/constants"

	"gopkg.in/alecthomas/kingpin.v2"
)

// Application represents the command-line "nodestrap" application and contains
// definitions of all its flags, arguments and subcommands
type Application struct {
	*kingpin.Application
	// Debug allows to run the command in debug mode
	Debug *bool
	// LogFile is the path to the log file commands append to
	LogFile *string
	// VersionCmd outputs the binary version
	VersionCmd VersionCmd
	// ProvisionCmd runs the node boot sequence
	ProvisionCmd ProvisionCmd
	// LoadgenCmd runs the traffic generator
	LoadgenCmd LoadgenCmd
	// RenderCmd prints the collector configuration
	RenderCmd RenderCmd
}

// VersionCmd outputs the binary version
type VersionCmd struct {
	*kingpin.CmdClause
	// Output is output format
	Output *constants.Format
}

// ProvisionCmd runs the node boot sequence
type ProvisionCmd struct {
	*kingpin.CmdClause
	// ConfigFile is the optional configuration file
	ConfigFile *string
	// SecretARN references the database credential
	SecretARN *string
	// Bucket is the artifact bucket
	Bucket *string
	// DataBucket is the bucket the application keeps its data in
	DataBucket *string
	// TargetGroupARN is the target group the node joins
	TargetGroupARN *string
	// Region overrides the region from the instance metadata
	Region *string
	// AppPort is the application port
	AppPort *int
	// ServiceName is the telemetry service name of the application
	ServiceName *string
	// Environment is the deployment environment
	Environment *string
	// Namespace is the metrics namespace
	Namespace *string
	// ReadinessTimeout bounds the wait for the application
	ReadinessTimeout *time.Duration
	// ReportPrefix is the bucket prefix of boot reports
	ReportPrefix *string
	// MetadataEndpoint is the instance metadata service URL
	MetadataEndpoint *string
	// UnitDir is the systemd unit directory
	UnitDir *string
	// CollectorBinary is the telemetry collector executable
	CollectorBinary *string
	// LoadgenInterval is the pause between traffic generator iterations
	LoadgenInterval *time.Duration
	// LoadgenMetricsAddr is the traffic generator metrics listen address
	LoadgenMetricsAddr *string
	// Output is the report output format
	Output *constants.Format
}

// LoadgenCmd runs the traffic generator
type LoadgenCmd struct {
	*kingpin.CmdClause
	// Target is the application base URL
	Target *string
	// Interval is the pause between iterations
	Interval *time.Duration
	// RequestTimeout bounds a single request
	RequestTimeout *time.Duration
	// TrafficLog receives one entry per request
	TrafficLog *string
	// OTLPEndpoint is the OTLP HTTP receiver for client spans
	OTLPEndpoint *string
	// MetricsAddr is the metrics listen address
	MetricsAddr *string
	// Seed seeds the random choices, 0 for a time based seed
	Seed *int64
	// Environment is the deployment environment
	Environment *string
}

// RenderCmd prints the collector configuration
type RenderCmd struct {
	*kingpin.CmdClause
	// Region is the region telemetry is exported to
	Region *string
	// Namespace is the metrics namespace
	Namespace *string
	// ServiceName is the telemetry service name of the application
	ServiceName *string
	// Environment is the deployment environment
	Environment *string
}
