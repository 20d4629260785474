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
	"fmt"
	"strings"
	"time"

	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/defaults"
	"github.com/gravitational/nodestrap/lib/secrets"
	"github.com/gravitational/nodestrap/lib/systemservice"
)

const networkOnlineTarget = "network-online.target"

// AppServiceParams defines the application service
type AppServiceParams struct {
	// Name is the unit name
	Name string
	// JavaPath is the java launcher
	JavaPath string
	// AppPath is the application package
	AppPath string
	// AgentPath is the instrumentation agent, empty to run without it
	AgentPath string
	// WorkingDir is the working directory of the service
	WorkingDir string
	// Port is the port the application listens on
	Port int
	// Credential is the database credential
	Credential secrets.DatabaseCredential
	// Telemetry is the exporter environment of the application
	Telemetry map[string]string
	// DataBucket is the bucket the application keeps its data in
	DataBucket string
	// LogFile is the application log file
	LogFile string
	// LogDir is the application log directory
	LogDir string
	// ServiceLogFile receives the service output
	ServiceLogFile string
	// After lists units the application starts after and wants
	After []string
}

// AppService returns the application service definition.
// The unit file carries the database password and is only readable by root
func AppService(p AppServiceParams) systemservice.NewServiceRequest {
	args := []string{p.JavaPath}
	if p.AgentPath != "" {
		args = append(args, "-javaagent:"+p.AgentPath)
	}
	args = append(args,
		"-jar", p.AppPath,
		fmt.Sprintf("--server.port=%v", p.Port),
		"--spring.datasource.url="+p.Credential.JDBCURL(),
		"--spring.datasource.username="+p.Credential.Username,
		"--spring.datasource.password="+p.Credential.Password,
	)
	env := make(map[string]string, len(p.Telemetry)+3)
	for name, value := range p.Telemetry {
		env[name] = value
	}
	env[constants.EnvLoggingFileName] = p.LogFile
	env[constants.EnvLogPath] = p.LogDir
	if p.DataBucket != "" {
		env[constants.EnvDataBucket] = p.DataBucket
	}
	return systemservice.NewServiceRequest{
		Name:        p.Name,
		Description: "Demo product service",
		FileMode:    defaults.PrivateFileMask,
		NoBlock:     true,
		ServiceSpec: systemservice.ServiceSpec{
			Dependencies: systemservice.Dependencies{
				After: strings.Join(append([]string{networkOnlineTarget}, p.After...), " "),
				Wants: strings.Join(append([]string{networkOnlineTarget}, p.After...), " "),
			},
			StartCommand:     systemservice.QuoteCommand(args...),
			Restart:          constants.RestartOnFailure,
			RestartSec:       defaults.AppRestartSec,
			WorkingDirectory: p.WorkingDir,
			Environment:      env,
			StandardOutput:   systemservice.AppendTo(p.ServiceLogFile),
			StandardError:    systemservice.AppendTo(p.ServiceLogFile),
		},
	}
}

// LoadgenServiceParams defines the traffic generator service
type LoadgenServiceParams struct {
	// Name is the unit name
	Name string
	// BinaryPath is the path to this tool
	BinaryPath string
	// AppService is the application unit the generator starts after
	AppService string
	// TargetURL is the application base URL
	TargetURL string
	// Interval is the pause between iterations
	Interval time.Duration
	// TrafficLogFile receives one entry per request
	TrafficLogFile string
	// ServiceLogFile receives the service output
	ServiceLogFile string
	// OTLPEndpoint is the loopback OTLP HTTP receiver, empty to disable tracing
	OTLPEndpoint string
	// MetricsAddr is the listen address of the metrics endpoint, empty to disable
	MetricsAddr string
}

// LoadgenService returns the traffic generator service definition
func LoadgenService(p LoadgenServiceParams) systemservice.NewServiceRequest {
	args := []string{
		p.BinaryPath, "loadgen",
		"--target", p.TargetURL,
		"--interval", p.Interval.String(),
		"--traffic-log", p.TrafficLogFile,
	}
	if p.OTLPEndpoint != "" {
		args = append(args, "--otlp-endpoint", p.OTLPEndpoint)
	}
	if p.MetricsAddr != "" {
		args = append(args, "--metrics-addr", p.MetricsAddr)
	}
	return systemservice.NewServiceRequest{
		Name:        p.Name,
		Description: "Synthetic traffic generator for the demo product service",
		NoBlock:     true,
		ServiceSpec: systemservice.ServiceSpec{
			Dependencies: systemservice.Dependencies{
				After: p.AppService,
				Wants: p.AppService,
			},
			StartCommand:   systemservice.QuoteCommand(args...),
			Restart:        constants.RestartAlways,
			RestartSec:     defaults.LoadgenRestartSec,
			StandardOutput: systemservice.AppendTo(p.ServiceLogFile),
			StandardError:  systemservice.AppendTo(p.ServiceLogFile),
		},
	}
}
