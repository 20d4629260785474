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
	"context"
	"fmt"
	"path/filepath"

	"github.com/gravitational/nodestrap/lib/artifact"
	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/defaults"
	"github.com/gravitational/nodestrap/lib/identity"
	"github.com/gravitational/nodestrap/lib/pool"
	"github.com/gravitational/nodestrap/lib/secrets"
	"github.com/gravitational/nodestrap/lib/systemservice"
	"github.com/gravitational/nodestrap/lib/telemetry"
	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Boot step names in execution order
const (
	StepIdentity       = "identity"
	StepConnect        = "connect"
	StepCredential     = "credential"
	StepListArtifacts  = "list-artifacts"
	StepApplication    = "fetch-application"
	StepAgent          = "fetch-agent"
	StepTelemetry      = "telemetry"
	StepAppService     = "app-service"
	StepReadiness      = "readiness"
	StepLoadgenService = "loadgen-service"
	StepRegister       = "register"
	StepUploadReport   = "upload-report"
)

var stepOrder = []string{
	StepIdentity,
	StepConnect,
	StepCredential,
	StepListArtifacts,
	StepApplication,
	StepAgent,
	StepTelemetry,
	StepAppService,
	StepReadiness,
	StepLoadgenService,
	StepRegister,
	StepUploadReport,
}

// IdentityResolver returns the identity of the node
type IdentityResolver interface {
	// Resolve returns the node identity
	Resolve(ctx context.Context) (*identity.Instance, error)
}

// CredentialResolver returns the database credential
type CredentialResolver interface {
	// Resolve returns the credential stored in the specified secret
	Resolve(ctx context.Context, secretARN string) (*secrets.DatabaseCredential, error)
}

// ArtifactFetcher downloads the application artifacts
type ArtifactFetcher interface {
	// List returns the keys in the artifact bucket
	List(ctx context.Context) ([]string, error)
	// FetchApplication downloads the application package selected from keys
	FetchApplication(ctx context.Context, keys []string) (*artifact.Result, error)
	// FetchAgent downloads the instrumentation agent
	FetchAgent(ctx context.Context, keys []string) (*artifact.Result, error)
}

// TelemetryConfigurator installs the telemetry collector
type TelemetryConfigurator interface {
	// Configure writes the collector configuration and starts the collector
	Configure(ctx context.Context, config *telemetry.CollectorConfig) error
}

// ReadinessGate blocks until the application is healthy
type ReadinessGate interface {
	// Wait blocks until the application is healthy or the wait times out
	Wait(ctx context.Context) error
}

// PoolRegistrar adds the node to the load balancer pool
type PoolRegistrar interface {
	// Register adds the target to the target group
	Register(ctx context.Context, req pool.RegistrationRequest) error
}

// Backend groups the collaborators that need the node identity to be created,
// e.g. API clients bound to the node region
type Backend struct {
	// Credentials resolves the database credential
	Credentials CredentialResolver
	// Artifacts downloads the application artifacts
	Artifacts ArtifactFetcher
	// Registrar adds the node to the pool
	Registrar PoolRegistrar
	// Uploader stores the boot report, optional
	Uploader ReportUploader
}

// ConnectFunc creates the backend for the node with the specified identity
type ConnectFunc func(ctx context.Context, instance identity.Instance) (*Backend, error)

// Paths defines the local file layout of the node
type Paths struct {
	// AppDir is the working directory of the application
	AppDir string
	// AppPath is the application package
	AppPath string
	// AgentPath is the instrumentation agent
	AgentPath string
	// AppLogFile is the application log file
	AppLogFile string
	// AppServiceLogFile receives the application service output
	AppServiceLogFile string
	// TrafficLogFile receives one entry per traffic generator request
	TrafficLogFile string
	// LoadgenServiceLogFile receives the traffic generator service output
	LoadgenServiceLogFile string
}

func (r *Paths) setDefaults() {
	if r.AppDir == "" {
		r.AppDir = defaults.AppDir
	}
	if r.AppPath == "" {
		r.AppPath = defaults.AppPath
	}
	if r.AgentPath == "" {
		r.AgentPath = defaults.AgentPath
	}
	if r.AppLogFile == "" {
		r.AppLogFile = defaults.AppLogFile
	}
	if r.AppServiceLogFile == "" {
		r.AppServiceLogFile = defaults.AppServiceLogFile
	}
	if r.TrafficLogFile == "" {
		r.TrafficLogFile = defaults.LoadgenLogFile
	}
	if r.LoadgenServiceLogFile == "" {
		r.LoadgenServiceLogFile = defaults.LoadgenServiceLogFile
	}
}

// Config defines the boot sequence configuration
type Config struct {
	// Params are the boot sequence inputs
	Params
	// Paths is the local file layout
	Paths Paths
	// Identity resolves the node identity
	Identity IdentityResolver
	// Connect creates the backend once the node identity is known
	Connect ConnectFunc
	// Telemetry installs the telemetry collector
	Telemetry TelemetryConfigurator
	// Services installs the application and traffic generator services
	Services systemservice.ServiceManager
	// Gate waits for the application to become healthy
	Gate ReadinessGate
	// Clock measures step durations
	Clock clockwork.Clock
	// BootID identifies this run in logs and the report
	BootID string
	// FieldLogger is the logger
	logrus.FieldLogger
}

// CheckAndSetDefaults validates the config and sets default values
func (r *Config) CheckAndSetDefaults() error {
	if err := r.Params.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	if r.Identity == nil {
		return trace.BadParameter("missing identity resolver")
	}
	if r.Connect == nil {
		return trace.BadParameter("missing backend constructor")
	}
	if r.Telemetry == nil {
		return trace.BadParameter("missing telemetry configurator")
	}
	if r.Services == nil {
		return trace.BadParameter("missing service manager")
	}
	if r.Gate == nil {
		return trace.BadParameter("missing readiness gate")
	}
	r.Paths.setDefaults()
	if r.Clock == nil {
		r.Clock = clockwork.NewRealClock()
	}
	if r.BootID == "" {
		r.BootID = uuid.New().String()
	}
	if r.FieldLogger == nil {
		r.FieldLogger = logrus.WithField(trace.Component, constants.ComponentProvision)
	}
	r.FieldLogger = r.FieldLogger.WithField(constants.FieldBootID, r.BootID)
	return nil
}

// New returns a new orchestrator
func New(config Config) (*Orchestrator, error) {
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Orchestrator{Config: config}, nil
}

// Orchestrator runs the node boot sequence
type Orchestrator struct {
	Config
}

// Run executes the boot sequence and returns its report.
// Failure to resolve the node identity or the database credential aborts
// the sequence and is returned as an error, all other failures are
// recorded in the report as degraded steps
func (r *Orchestrator) Run(ctx context.Context) (*Report, error) {
	b := &boot{
		Orchestrator: r,
		logger:       r.FieldLogger,
		report:       &Report{BootID: r.BootID, StartedAt: r.Clock.Now().UTC()},
	}
	r.Info("Starting boot sequence.")
	err := b.run(ctx)
	if err != nil {
		b.skipRemaining("boot aborted")
	}
	b.report.CompletedAt = r.Clock.Now().UTC()
	b.upload(ctx)
	b.logger.WithField("outcome", b.report.Outcome()).Info("Boot sequence completed.")
	return b.report, trace.Wrap(err)
}

// boot is the state of a single boot sequence run
type boot struct {
	*Orchestrator
	logger     logrus.FieldLogger
	report     *Report
	instance   identity.Instance
	backend    *Backend
	credential *secrets.DatabaseCredential
	keys       []string
	app        *artifact.Result
	agent      *artifact.Result
	collector  *telemetry.CollectorConfig
}

func (b *boot) run(ctx context.Context) error {
	err := b.step(ctx, StepIdentity, OutcomeFatal, func(ctx context.Context) error {
		instance, err := b.Identity.Resolve(ctx)
		if err != nil {
			return trace.Wrap(err, "failed to resolve node identity")
		}
		b.instance = *instance
		if b.Region == "" {
			b.Region = instance.Region
		}
		return nil
	})
	if err != nil {
		return trace.Wrap(err)
	}
	b.report.InstanceID = b.instance.ID
	b.report.Region = b.Region
	b.logger = b.logger.WithField(constants.FieldInstance, b.instance.ID)

	err = b.step(ctx, StepConnect, OutcomeFatal, func(ctx context.Context) (err error) {
		instance := b.instance
		instance.Region = b.Region
		b.backend, err = b.Connect(ctx, instance)
		return trace.Wrap(err)
	})
	if err != nil {
		return trace.Wrap(err)
	}

	err = b.step(ctx, StepCredential, OutcomeFatal, func(ctx context.Context) (err error) {
		b.credential, err = b.backend.Credentials.Resolve(ctx, b.SecretARN)
		return trace.Wrap(err)
	})
	if err != nil {
		return trace.Wrap(err)
	}

	b.fetchArtifacts(ctx)

	b.step(ctx, StepTelemetry, OutcomeDegraded, func(ctx context.Context) (err error) {
		b.collector, err = telemetry.NewCollectorConfig(telemetry.Params{
			Region:      b.Region,
			Namespace:   b.Namespace,
			ServiceName: b.ServiceName,
			Environment: b.Environment,
		})
		if err != nil {
			return trace.Wrap(err)
		}
		return trace.Wrap(b.Telemetry.Configure(ctx, b.collector))
	})

	err = b.step(ctx, StepAppService, OutcomeDegraded, b.installApplication)
	if err != nil {
		b.skip(StepReadiness, "application service is not installed")
	} else {
		b.step(ctx, StepReadiness, OutcomeDegraded, b.Gate.Wait)
	}

	b.step(ctx, StepLoadgenService, OutcomeDegraded, b.installLoadgen)

	if b.TargetGroupARN == "" {
		b.skip(StepRegister, "no target group configured")
		return nil
	}
	b.step(ctx, StepRegister, OutcomeDegraded, func(ctx context.Context) error {
		return trace.Wrap(b.backend.Registrar.Register(ctx, pool.RegistrationRequest{
			TargetGroupARN: b.TargetGroupARN,
			InstanceID:     b.instance.ID,
			Port:           b.AppPort,
		}))
	})
	return nil
}

// fetchArtifacts downloads the application package and the agent.
// Failures are not fatal: a missing package surfaces as a failing
// application service and a missing agent disables application telemetry
func (b *boot) fetchArtifacts(ctx context.Context) {
	err := b.step(ctx, StepListArtifacts, OutcomeDegraded, func(ctx context.Context) (err error) {
		b.keys, err = b.backend.Artifacts.List(ctx)
		return trace.Wrap(err)
	})
	if err != nil {
		b.keys = nil
		b.skip(StepApplication, "artifact bucket listing is unavailable")
	} else {
		b.step(ctx, StepApplication, OutcomeDegraded, func(ctx context.Context) (err error) {
			b.app, err = b.backend.Artifacts.FetchApplication(ctx, b.keys)
			return trace.Wrap(err)
		})
	}
	b.step(ctx, StepAgent, OutcomeDegraded, func(ctx context.Context) (err error) {
		b.agent, err = b.backend.Artifacts.FetchAgent(ctx, b.keys)
		return trace.Wrap(err)
	})
	for _, result := range []*artifact.Result{b.app, b.agent} {
		if result != nil {
			b.report.Artifacts = append(b.report.Artifacts, *result)
		}
	}
}

func (b *boot) installApplication(ctx context.Context) error {
	if err := utils.MkdirAll(filepath.Dir(b.Paths.AppLogFile), defaults.SharedDirMask); err != nil {
		return trace.Wrap(err)
	}
	if err := utils.MkdirAll(filepath.Dir(b.Paths.AppServiceLogFile), defaults.SharedDirMask); err != nil {
		return trace.Wrap(err)
	}
	appPath := b.Paths.AppPath
	if b.app != nil {
		appPath = b.app.Path
	}
	var agentPath string
	if b.agent != nil {
		agentPath = b.agent.Path
	}
	var env map[string]string
	var after []string
	if b.collector != nil {
		env = telemetry.AppEnvironment(b.collector, telemetry.Resource{
			ServiceName: b.ServiceName,
			Environment: b.Environment,
			InstanceID:  b.instance.ID,
		})
		after = append(after, defaults.CollectorServiceName)
	}
	req := AppService(AppServiceParams{
		Name:           defaults.AppServiceName,
		JavaPath:       defaults.JavaPath,
		AppPath:        appPath,
		AgentPath:      agentPath,
		WorkingDir:     b.Paths.AppDir,
		Port:           b.AppPort,
		Credential:     *b.credential,
		Telemetry:      env,
		DataBucket:     b.DataBucket,
		LogFile:        b.Paths.AppLogFile,
		LogDir:         filepath.Dir(b.Paths.AppLogFile),
		ServiceLogFile: b.Paths.AppServiceLogFile,
		After:          after,
	})
	return trace.Wrap(b.Services.InstallService(ctx, req))
}

func (b *boot) installLoadgen(ctx context.Context) error {
	for _, path := range []string{b.Paths.TrafficLogFile, b.Paths.LoadgenServiceLogFile} {
		if err := utils.MkdirAll(filepath.Dir(path), defaults.SharedDirMask); err != nil {
			return trace.Wrap(err)
		}
	}
	var endpoint string
	if b.collector != nil {
		endpoint = telemetry.HTTPEndpoint(b.collector)
	}
	req := LoadgenService(LoadgenServiceParams{
		Name:           defaults.LoadgenServiceName,
		BinaryPath:     b.BinaryPath,
		AppService:     defaults.AppServiceName,
		TargetURL:      AppURL(b.AppPort),
		Interval:       b.LoadgenInterval,
		TrafficLogFile: b.Paths.TrafficLogFile,
		ServiceLogFile: b.Paths.LoadgenServiceLogFile,
		OTLPEndpoint:   endpoint,
		MetricsAddr:    b.LoadgenMetricsAddr,
	})
	return trace.Wrap(b.Services.InstallService(ctx, req))
}

// upload stores a copy of the report that ends with the last boot step
func (b *boot) upload(ctx context.Context) {
	if b.backend == nil || b.backend.Uploader == nil {
		if _, ok := b.report.Step(StepUploadReport); !ok {
			b.skip(StepUploadReport, "no report destination")
		}
		return
	}
	report := *b.report
	report.Steps = append([]StepResult(nil), b.report.Steps...)
	b.step(ctx, StepUploadReport, OutcomeDegraded, func(ctx context.Context) error {
		return trace.Wrap(b.backend.Uploader.Upload(ctx, report))
	})
}

// step runs fn and records its outcome in the report.
// If fn fails, the step is recorded with the failure outcome
func (b *boot) step(ctx context.Context, name string, failure Outcome, fn func(context.Context) error) error {
	logger := b.logger.WithField(constants.FieldStep, name)
	logger.Debug("Running step.")
	start := b.Clock.Now()
	err := fn(ctx)
	result := StepResult{
		Name:     name,
		Outcome:  OutcomeOK,
		Duration: b.Clock.Since(start),
	}
	logger = logger.WithField("duration", result.Duration)
	switch {
	case err == nil:
		logger.Info("Step completed.")
	case failure == OutcomeFatal:
		result.Outcome = failure
		result.Message = trace.UserMessage(err)
		logger.WithError(err).Error("Step failed, aborting boot.")
		logger.Debug(trace.DebugReport(err))
	default:
		result.Outcome = failure
		result.Message = trace.UserMessage(err)
		logger.WithError(err).Warn("Step failed, continuing.")
		logger.Debug(trace.DebugReport(err))
	}
	b.report.Add(result)
	return err
}

func (b *boot) skip(name, reason string) {
	b.logger.WithField(constants.FieldStep, name).Infof("Skipping step: %v.", reason)
	b.report.Add(StepResult{Name: name, Outcome: OutcomeSkipped, Message: reason})
}

// skipRemaining records all steps that did not run as skipped
func (b *boot) skipRemaining(reason string) {
	for _, name := range stepOrder {
		if name == StepUploadReport {
			continue
		}
		if _, ok := b.report.Step(name); !ok {
			b.report.Add(StepResult{Name: name, Outcome: OutcomeSkipped, Message: reason})
		}
	}
}

// AppURL returns the loopback base URL of the application
func AppURL(port int) string {
	return fmt.Sprintf("http://%v:%v", defaults.LoopbackAddr, port)
}
