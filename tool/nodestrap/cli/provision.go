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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gravitational/nodestrap/lib/artifact"
	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/defaults"
	"github.com/gravitational/nodestrap/lib/health"
	"github.com/gravitational/nodestrap/lib/identity"
	"github.com/gravitational/nodestrap/lib/pool"
	"github.com/gravitational/nodestrap/lib/provision"
	"github.com/gravitational/nodestrap/lib/secrets"
	"github.com/gravitational/nodestrap/lib/systemservice"
	"github.com/gravitational/nodestrap/lib/telemetry"
	"github.com/gravitational/nodestrap/tool/common"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/elbv2"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/dustin/go-humanize"
	"github.com/ghodss/yaml"
	"github.com/gravitational/trace"
)

func provisionNode(ctx context.Context, cmd ProvisionCmd) error {
	params, err := provisionParams(cmd)
	if err != nil {
		return trace.Wrap(err)
	}
	services, err := systemservice.New(systemservice.Config{UnitDir: *cmd.UnitDir})
	if err != nil {
		return trace.Wrap(err)
	}
	configurator, err := telemetry.NewConfigurator(telemetry.ConfiguratorConfig{
		Services:   services,
		BinaryPath: *cmd.CollectorBinary,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	gate, err := health.NewGate(health.Config{
		URL:     provision.AppURL(params.AppPort) + constants.HealthPath,
		Timeout: params.ReadinessTimeout,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	identityClient, err := identity.NewClient(identity.Config{
		Endpoint: *cmd.MetadataEndpoint,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	orchestrator, err := provision.New(provision.Config{
		Params:    *params,
		Identity:  identityClient,
		Connect:   connectAWS(*params),
		Telemetry: configurator,
		Services:  services,
		Gate:      gate,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	report, runErr := orchestrator.Run(ctx)
	if err := printReport(os.Stdout, report, *cmd.Output); err != nil {
		log.WithError(err).Warn("Failed to print boot report.")
	}
	if runErr == nil && report.Outcome() == provision.OutcomeDegraded {
		common.PrintWarn("Node is provisioned in degraded mode, see %v for details.", defaults.LogFile)
	}
	return trace.Wrap(runErr)
}

// provisionParams returns the boot parameters from the command line
// completed with values from the configuration file
func provisionParams(cmd ProvisionCmd) (*provision.Params, error) {
	params := provision.Params{
		SecretARN:          *cmd.SecretARN,
		Bucket:             *cmd.Bucket,
		DataBucket:         *cmd.DataBucket,
		TargetGroupARN:     *cmd.TargetGroupARN,
		Region:             *cmd.Region,
		AppPort:            *cmd.AppPort,
		ServiceName:        *cmd.ServiceName,
		Environment:        *cmd.Environment,
		Namespace:          *cmd.Namespace,
		ReadinessTimeout:   *cmd.ReadinessTimeout,
		ReportPrefix:       *cmd.ReportPrefix,
		LoadgenInterval:    *cmd.LoadgenInterval,
		LoadgenMetricsAddr: *cmd.LoadgenMetricsAddr,
	}
	if executable, err := os.Executable(); err == nil {
		params.BinaryPath = executable
	}
	if path := *cmd.ConfigFile; path != "" {
		config, err := provision.ReadFileConfig(path)
		switch {
		case err == nil:
			if err := config.Apply(&params); err != nil {
				return nil, trace.Wrap(err, "invalid configuration file %v", path)
			}
		case trace.IsNotFound(err) && path == defaults.ConfigFile:
			log.Debugf("No configuration file at %v.", path)
		default:
			return nil, trace.Wrap(err)
		}
	}
	if err := params.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &params, nil
}

// connectAWS returns the constructor of AWS API clients bound to the node region
func connectAWS(params provision.Params) provision.ConnectFunc {
	return func(ctx context.Context, instance identity.Instance) (*provision.Backend, error) {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(instance.Region),
		})
		if err != nil {
			return nil, trace.Wrap(err)
		}
		credentials, err := secrets.NewResolver(secrets.Config{
			Client: secretsmanager.New(sess),
		})
		if err != nil {
			return nil, trace.Wrap(err)
		}
		s3Client := s3.New(sess)
		fetcher, err := artifact.NewFetcher(artifact.Config{
			S3:     s3Client,
			Bucket: params.Bucket,
		})
		if err != nil {
			return nil, trace.Wrap(err)
		}
		registrar, err := pool.NewRegistrar(pool.Config{
			Client: elbv2.New(sess),
		})
		if err != nil {
			return nil, trace.Wrap(err)
		}
		return &provision.Backend{
			Credentials: credentials,
			Artifacts:   fetcher,
			Registrar:   registrar,
			Uploader:    provision.NewS3Uploader(s3Client, params.Bucket, params.ReportPrefix),
		}, nil
	}
}

func printReport(w io.Writer, report *provision.Report, format constants.Format) error {
	switch format {
	case constants.EncodingJSON:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return trace.Wrap(err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return trace.Wrap(err)
	case constants.EncodingYAML:
		data, err := yaml.Marshal(report)
		if err != nil {
			return trace.Wrap(err)
		}
		_, err = w.Write(data)
		return trace.Wrap(err)
	}
	instance := report.InstanceID
	if instance == "" {
		instance = "<unknown>"
	}
	common.PrintHeader(w, fmt.Sprintf("Boot %v on %v: %v", report.BootID, instance, report.Outcome()))
	t := tabwriter.NewWriter(w, 0, 8, 1, '\t', 0)
	common.PrintTableHeader(t, []string{"Step", "Outcome", "Duration", "Message"})
	for _, step := range report.Steps {
		fmt.Fprintf(t, "%v\t%v\t%v\t%v\n", step.Name, step.Outcome,
			step.Duration.Round(time.Millisecond), step.Message)
	}
	if len(report.Artifacts) != 0 {
		fmt.Fprintln(t)
		common.PrintTableHeader(t, []string{"Artifact", "Size", "Source"})
		for _, result := range report.Artifacts {
			fmt.Fprintf(t, "%v\t%v\t%v\n", result.Path, humanize.Bytes(uint64(result.Size)), result.Source)
		}
	}
	return trace.Wrap(t.Flush())
}
