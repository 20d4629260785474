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

package systemservice

import (
	"bytes"
	"context"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/defaults"
	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// Config defines the systemd manager configuration
type Config struct {
	// UnitDir is the directory unit files are written to
	UnitDir string
	// Runner executes systemctl
	Runner utils.CommandRunner
	// FieldLogger is the logger
	logrus.FieldLogger
}

// CheckAndSetDefaults validates the config and sets default values
func (r *Config) CheckAndSetDefaults() error {
	if r.UnitDir == "" {
		r.UnitDir = defaults.SystemUnitDir
	}
	if r.Runner == nil {
		r.Runner = utils.Runner
	}
	if r.FieldLogger == nil {
		r.FieldLogger = logrus.WithField(trace.Component, constants.ComponentSystemd)
	}
	return nil
}

// New returns a new systemd service manager
func New(config Config) (*SystemdManager, error) {
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &SystemdManager{Config: config}, nil
}

// SystemdManager manages services with systemctl
type SystemdManager struct {
	Config
}

const systemdUnitFileTemplate = `[Unit]
Description={{.Description}}
{{with .Dependencies}}{{if .Requires}}Requires={{.Requires}}
{{end}}{{if .Wants}}Wants={{.Wants}}
{{end}}{{if .After}}After={{.After}}
{{end}}{{end}}
[Service]
{{if .Type}}Type={{.Type}}
{{end}}{{if .User}}User={{.User}}
{{end}}{{if .WorkingDirectory}}WorkingDirectory={{.WorkingDirectory}}
{{end}}ExecStart={{.StartCommand}}
{{if .Restart}}Restart={{.Restart}}
{{end}}{{if .RestartSec}}RestartSec={{.RestartSec}}
{{end}}{{if .TimeoutStartSec}}TimeoutStartSec={{.TimeoutStartSec}}
{{end}}{{range .EnvironmentLines}}Environment={{.}}
{{end}}{{if .StandardOutput}}StandardOutput={{.StandardOutput}}
{{end}}{{if .StandardError}}StandardError={{.StandardError}}
{{end}}{{if .WantedBy}}
[Install]
WantedBy={{.WantedBy}}
{{end}}`

var serviceUnitTemplate = template.Must(template.New("unit").Parse(systemdUnitFileTemplate))

type serviceTemplate struct {
	ServiceSpec
	Description string
}

// EnvironmentLines returns the quoted environment assignments sorted by name
func (r serviceTemplate) EnvironmentLines() []string {
	names := make([]string, 0, len(r.Environment))
	for name := range r.Environment {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, QuoteEnvironment(name, r.Environment[name]))
	}
	return lines
}

// RenderUnit returns the unit file contents for the specified request
func RenderUnit(req NewServiceRequest) ([]byte, error) {
	if req.StartCommand == "" {
		return nil, trace.BadParameter("missing start command for %v", req.Name)
	}
	spec := req.ServiceSpec
	env := make(map[string]string, len(spec.Environment)+1)
	for k, v := range spec.Environment {
		env[k] = v
	}
	if _, ok := env[defaults.PathEnv]; !ok {
		env[defaults.PathEnv] = defaults.PathEnvVal
	}
	spec.Environment = env
	if spec.WantedBy == "" {
		spec.WantedBy = defaults.SystemServiceWantedBy
	}
	if spec.Restart != "" && spec.RestartSec == 0 {
		spec.RestartSec = defaults.SystemServiceRestartSec
	}
	description := req.Description
	if description == "" {
		description = "Auto-generated service for " + req.Name
	}
	var buf bytes.Buffer
	err := serviceUnitTemplate.Execute(&buf, serviceTemplate{
		ServiceSpec: spec,
		Description: description,
	})
	if err != nil {
		return nil, trace.Wrap(err, "error rendering template")
	}
	return buf.Bytes(), nil
}

// InstallService installs a new service as described by req.
// The unit file is replaced atomically, the manager configuration is reloaded
// and the service is enabled. A service that is already running is restarted
// so that the new unit, the files it refers to and its configuration take effect
func (r *SystemdManager) InstallService(ctx context.Context, req NewServiceRequest) error {
	if req.Name == "" {
		return trace.BadParameter("missing service name")
	}
	req.Name = FullServiceName(req.Name)
	unit, err := RenderUnit(req)
	if err != nil {
		return trace.Wrap(err)
	}
	mode := req.FileMode
	if mode == 0 {
		mode = defaults.SharedReadMask
	}
	path := r.unitPath(req.Name)
	existed, err := utils.FileExists(path)
	if err != nil {
		return trace.Wrap(err)
	}
	if err := utils.WriteFileAtomic(path, unit, mode); err != nil {
		return trace.Wrap(err, "error creating systemd unit file at %v", path)
	}
	r.WithField("path", path).Info("Wrote unit file.")

	if _, err := r.invokeSystemctl(ctx, "daemon-reload"); err != nil {
		return trace.Wrap(err, "failed to reload manager's configuration")
	}
	if err := r.EnableService(ctx, req.Name); err != nil {
		return trace.Wrap(err, "error enabling the service")
	}
	if existed {
		status, err := r.StatusService(ctx, req.Name)
		if err != nil {
			r.WithError(err).Warnf("Failed to query status of %v.", req.Name)
		}
		if status == ServiceStatusActive || status == ServiceStatusActivating {
			r.WithField("service", req.Name).Info("Restarting running service.")
			if err := r.RestartService(ctx, req.Name, req.NoBlock); err != nil {
				return trace.Wrap(err, "error restarting the service")
			}
			return nil
		}
	}
	if err := r.StartService(ctx, req.Name, req.NoBlock); err != nil {
		return trace.Wrap(err, "error starting the service")
	}
	return nil
}

// EnableService enables the service with the specified name
func (r *SystemdManager) EnableService(ctx context.Context, name string) error {
	_, err := r.invokeSystemctl(ctx, "enable", name)
	return trace.Wrap(err)
}

// StartService starts the service with the specified name
func (r *SystemdManager) StartService(ctx context.Context, name string, noBlock bool) error {
	args := []string{"start", name}
	if noBlock {
		args = append(args, "--no-block")
	}
	_, err := r.invokeSystemctl(ctx, args...)
	return trace.Wrap(err)
}

// RestartService restarts the service with the specified name
func (r *SystemdManager) RestartService(ctx context.Context, name string, noBlock bool) error {
	args := []string{"restart", name}
	if noBlock {
		args = append(args, "--no-block")
	}
	_, err := r.invokeSystemctl(ctx, args...)
	return trace.Wrap(err)
}

// StatusService returns the activation state of the service with the specified name.
// systemctl is-active exits with non-zero for any state other than active
// so the output is examined regardless of the exit status
func (r *SystemdManager) StatusService(ctx context.Context, name string) (string, error) {
	out, err := r.invokeSystemctl(ctx, "is-active", name)
	status := strings.TrimSpace(out)
	if IsKnownStatus(status) {
		return status, nil
	}
	if err != nil {
		return ServiceStatusUnknown, trace.Wrap(err)
	}
	return ServiceStatusUnknown, nil
}

func (r *SystemdManager) invokeSystemctl(ctx context.Context, args ...string) (string, error) {
	out, err := utils.ExecL(ctx, r.Runner, r.FieldLogger, append([]string{"systemctl"}, args...)...)
	return string(out), trace.Wrap(err)
}

// unitPath returns the path of the unit file for the service with the given name
func (r *SystemdManager) unitPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(r.UnitDir, SystemdNameEscape(name))
}
