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
	"context"
	"path/filepath"

	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/defaults"
	"github.com/gravitational/nodestrap/lib/systemservice"
	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// ConfiguratorConfig defines the collector configurator configuration
type ConfiguratorConfig struct {
	// Services installs the collector service
	Services systemservice.ServiceManager
	// ConfigPath is where the collector configuration is written to
	ConfigPath string
	// BinaryPath is the path to the collector executable
	BinaryPath string
	// LogFile receives the collector output
	LogFile string
	// FieldLogger is the logger
	logrus.FieldLogger
}

// CheckAndSetDefaults validates the config and sets default values
func (r *ConfiguratorConfig) CheckAndSetDefaults() error {
	if r.Services == nil {
		return trace.BadParameter("missing service manager")
	}
	if r.ConfigPath == "" {
		r.ConfigPath = defaults.CollectorConfigPath
	}
	if r.BinaryPath == "" {
		r.BinaryPath = defaults.CollectorBinary
	}
	if r.LogFile == "" {
		r.LogFile = defaults.CollectorLogFile
	}
	if r.FieldLogger == nil {
		r.FieldLogger = logrus.WithField(trace.Component, constants.ComponentTelemetry)
	}
	return nil
}

// NewConfigurator returns a new collector configurator
func NewConfigurator(config ConfiguratorConfig) (*Configurator, error) {
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Configurator{ConfiguratorConfig: config}, nil
}

// Configurator writes the collector configuration and runs the collector
// as a supervised service
type Configurator struct {
	ConfiguratorConfig
}

// Configure writes config to the configuration path and installs the
// collector service that is restarted whenever it exits
func (r *Configurator) Configure(ctx context.Context, config *CollectorConfig) error {
	if err := config.Validate(); err != nil {
		return trace.Wrap(err)
	}
	data, err := config.Render()
	if err != nil {
		return trace.Wrap(err)
	}
	if err := utils.WriteFileAtomic(r.ConfigPath, data, defaults.SharedReadMask); err != nil {
		return trace.Wrap(err, "failed to write collector configuration")
	}
	r.WithField("path", r.ConfigPath).Infof("Wrote %v.", config)

	exists, err := utils.FileExists(r.BinaryPath)
	if err != nil {
		return trace.Wrap(err)
	}
	if !exists {
		return trace.NotFound("collector binary %v is not installed", r.BinaryPath)
	}
	if err := utils.MkdirAll(filepath.Dir(r.LogFile), defaults.SharedDirMask); err != nil {
		return trace.Wrap(err)
	}
	err = r.Services.InstallService(ctx, CollectorService(r.BinaryPath, r.ConfigPath, r.LogFile))
	if err != nil {
		return trace.Wrap(err, "failed to install collector service")
	}
	return nil
}

// CollectorService returns the service definition of the collector
func CollectorService(binaryPath, configPath, logFile string) systemservice.NewServiceRequest {
	return systemservice.NewServiceRequest{
		Name:        defaults.CollectorServiceName,
		Description: "Telemetry collector",
		ServiceSpec: systemservice.ServiceSpec{
			Dependencies: systemservice.Dependencies{
				Wants: "network-online.target",
				After: "network-online.target",
			},
			StartCommand:   systemservice.QuoteCommand(binaryPath, "--config", configPath),
			Restart:        constants.RestartAlways,
			RestartSec:     defaults.CollectorRestartSec,
			StandardOutput: systemservice.AppendTo(logFile),
			StandardError:  systemservice.AppendTo(logFile),
		},
	}
}
