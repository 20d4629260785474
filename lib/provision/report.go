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
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/gravitational/nodestrap/lib/artifact"
	"github.com/gravitational/nodestrap/lib/defaults"
	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/gravitational/trace"
)

// Outcome is the result class of a boot step
type Outcome string

const (
	// OutcomeOK means the step completed
	OutcomeOK Outcome = "ok"
	// OutcomeDegraded means the step failed and the boot sequence continued
	OutcomeDegraded Outcome = "degraded"
	// OutcomeFatal means the step failed and the boot sequence was aborted
	OutcomeFatal Outcome = "fatal"
	// OutcomeSkipped means the step did not run
	OutcomeSkipped Outcome = "skipped"
)

func (r Outcome) severity() int {
	switch r {
	case OutcomeFatal:
		return 2
	case OutcomeDegraded:
		return 1
	default:
		return 0
	}
}

// StepResult describes the outcome of a single boot step
type StepResult struct {
	// Name is the step name
	Name string `json:"name"`
	// Outcome is the step outcome
	Outcome Outcome `json:"outcome"`
	// Message describes the failure or the skip reason
	Message string `json:"message,omitempty"`
	// Duration is how long the step took
	Duration time.Duration `json:"duration"`
}

// Report describes a single run of the boot sequence
type Report struct {
	// BootID identifies the run
	BootID string `json:"boot_id"`
	// InstanceID is the ID of the node, empty if identity resolution failed
	InstanceID string `json:"instance_id,omitempty"`
	// Region is the region of the node
	Region string `json:"region,omitempty"`
	// StartedAt is when the run started
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the run completed
	CompletedAt time.Time `json:"completed_at"`
	// Steps lists step results in execution order
	Steps []StepResult `json:"steps"`
	// Artifacts lists the downloaded artifacts
	Artifacts []artifact.Result `json:"artifacts,omitempty"`
}

// Add appends the result of a step
func (r *Report) Add(result StepResult) {
	r.Steps = append(r.Steps, result)
}

// Step returns the result of the step with the given name
func (r *Report) Step(name string) (*StepResult, bool) {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i], true
		}
	}
	return nil, false
}

// Outcome returns the most severe outcome among the steps
func (r *Report) Outcome() Outcome {
	outcome := OutcomeOK
	for _, step := range r.Steps {
		if step.Outcome.severity() > outcome.severity() {
			outcome = step.Outcome
		}
	}
	return outcome
}

// ReportUploader stores boot reports
type ReportUploader interface {
	// Upload stores the report
	Upload(ctx context.Context, report Report) error
}

// NewS3Uploader returns an uploader that stores reports in the specified bucket
// under prefix
func NewS3Uploader(client s3iface.S3API, bucket, prefix string) *S3Uploader {
	if prefix == "" {
		prefix = defaults.ReportPrefix
	}
	return &S3Uploader{client: client, bucket: bucket, prefix: prefix}
}

// S3Uploader stores boot reports as JSON objects
type S3Uploader struct {
	client s3iface.S3API
	bucket string
	prefix string
}

// Upload stores the report under <prefix><instance-id>.json
func (r *S3Uploader) Upload(ctx context.Context, report Report) error {
	if report.InstanceID == "" {
		return trace.BadParameter("report has no instance ID")
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = r.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.Key(report.InstanceID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return trace.Wrap(utils.ConvertS3Error(err), "failed to upload boot report")
	}
	return nil
}

// Key returns the object key of the report of the specified instance
func (r *S3Uploader) Key(instanceID string) string {
	return r.prefix + instanceID + ".json"
}
