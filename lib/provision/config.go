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

package provision

import (
	"io/ioutil"
	"time"

	"github.com/gravitational/nodestrap/lib/defaults"

	"github.com/ghodss/yaml"
	"github.com/gravitational/trace"
)

// Params defines the inputs of the boot sequence
type Params struct {
	// SecretARN references the database credential
	SecretARN string
	// Bucket is the artifact bucket
	Bucket string
	// DataBucket is the bucket the application keeps its data in
	DataBucket string
	// TargetGroupARN is the target group the node joins, empty to skip registration
	TargetGroupARN string
	// Region overrides the region derived from the node identity
	Region string
	// AppPort is the port the application listens on
	AppPort int
	// ServiceName is the telemetry service name of the application
	ServiceName string
	// Environment is the deployment environment
	Environment string
	// Namespace is the metrics namespace
	Namespace string
	// ReadinessTimeout bounds the wait for the application to become healthy
	ReadinessTimeout time.Duration
	// ReportPrefix is the artifact bucket prefix boot reports are stored under
	ReportPrefix string
	// BinaryPath is the path to this tool, used by the traffic generator unit
	BinaryPath string
	// LoadgenInterval is the pause between traffic generator iterations
	LoadgenInterval time.Duration
	// LoadgenMetricsAddr is the listen address of the traffic generator metrics
	LoadgenMetricsAddr string
}

// CheckAndSetDefaults validates the parameters and sets default values
func (r *Params) CheckAndSetDefaults() error {
	if r.SecretARN == "" {
		return trace.BadParameter("missing database secret ARN")
	}
	if r.Bucket == "" {
		return trace.BadParameter("missing artifact bucket")
	}
	if r.AppPort == 0 {
		r.AppPort = defaults.AppPort
	}
	if r.AppPort < 0 || r.AppPort > 65535 {
		return trace.BadParameter("invalid application port %v", r.AppPort)
	}
	if r.ServiceName == "" {
		r.ServiceName = defaults.ServiceName
	}
	if r.Environment == "" {
		r.Environment = defaults.DeploymentEnvironment
	}
	if r.Namespace == "" {
		r.Namespace = defaults.MetricsNamespace
	}
	if r.ReadinessTimeout == 0 {
		r.ReadinessTimeout = defaults.ReadinessTimeout
	}
	if r.ReportPrefix == "" {
		r.ReportPrefix = defaults.ReportPrefix
	}
	if r.BinaryPath == "" {
		r.BinaryPath = defaults.BinaryPath
	}
	if r.LoadgenInterval == 0 {
		r.LoadgenInterval = defaults.LoadgenInterval
	}
	return nil
}

// FileConfig is the on-disk configuration of the boot sequence.
// Values set on the command line take precedence
type FileConfig struct {
	// SecretARN references the database credential
	SecretARN string `json:"secretArn,omitempty"`
	// Bucket is the artifact bucket
	Bucket string `json:"bucket,omitempty"`
	// DataBucket is the bucket the application keeps its data in
	DataBucket string `json:"dataBucket,omitempty"`
	// TargetGroupARN is the target group the node joins
	TargetGroupARN string `json:"targetGroupArn,omitempty"`
	// Region overrides the region derived from the node identity
	Region string `json:"region,omitempty"`
	// AppPort is the port the application listens on
	AppPort int `json:"appPort,omitempty"`
	// ServiceName is the telemetry service name of the application
	ServiceName string `json:"serviceName,omitempty"`
	// Environment is the deployment environment
	Environment string `json:"environment,omitempty"`
	// Namespace is the metrics namespace
	Namespace string `json:"namespace,omitempty"`
	// ReadinessTimeout bounds the wait for the application, e.g. 5m
	ReadinessTimeout string `json:"readinessTimeout,omitempty"`
	// ReportPrefix is the artifact bucket prefix boot reports are stored under
	ReportPrefix string `json:"reportPrefix,omitempty"`
	// LoadgenInterval is the pause between traffic generator iterations, e.g. 2s
	LoadgenInterval string `json:"loadgenInterval,omitempty"`
	// LoadgenMetricsAddr is the listen address of the traffic generator metrics
	LoadgenMetricsAddr string `json:"loadgenMetricsAddr,omitempty"`
}

// ReadFileConfig reads the configuration file at path
func ReadFileConfig(path string) (*FileConfig, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	return ParseFileConfig(data)
}

// ParseFileConfig parses the configuration from YAML or JSON data
func ParseFileConfig(data []byte) (*FileConfig, error) {
	var config FileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, trace.BadParameter("invalid configuration: %v", err)
	}
	return &config, nil
}

// Apply sets the parameters that are not set in params from the file
func (r FileConfig) Apply(params *Params) error {
	setString(&params.SecretARN, r.SecretARN)
	setString(&params.Bucket, r.Bucket)
	setString(&params.DataBucket, r.DataBucket)
	setString(&params.TargetGroupARN, r.TargetGroupARN)
	setString(&params.Region, r.Region)
	setString(&params.ServiceName, r.ServiceName)
	setString(&params.Environment, r.Environment)
	setString(&params.Namespace, r.Namespace)
	setString(&params.ReportPrefix, r.ReportPrefix)
	setString(&params.LoadgenMetricsAddr, r.LoadgenMetricsAddr)
	if params.AppPort == 0 {
		params.AppPort = r.AppPort
	}
	if err := setDuration(&params.ReadinessTimeout, r.ReadinessTimeout); err != nil {
		return trace.Wrap(err, "invalid readinessTimeout")
	}
	if err := setDuration(&params.LoadgenInterval, r.LoadgenInterval); err != nil {
		return trace.Wrap(err, "invalid loadgenInterval")
	}
	return nil
}

func setString(target *string, value string) {
	if *target == "" {
		*target = value
	}
}

func setDuration(target *time.Duration, value string) error {
	if *target != 0 || value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return trace.BadParameter(err.Error())
	}
	*target = d
	return nil
}
