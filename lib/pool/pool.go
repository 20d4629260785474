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

package pool

import (
	"context"
	"time"

	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/defaults"
	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/elbv2"
	"github.com/cenkalti/backoff"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// ELBV2 is an interface representing AWS Elastic Load Balancing
type ELBV2 interface {
	RegisterTargetsWithContext(aws.Context, *elbv2.RegisterTargetsInput, ...request.Option) (*elbv2.RegisterTargetsOutput, error)
}

// RegistrationRequest describes the node to add to the serving pool
type RegistrationRequest struct {
	// TargetGroupARN identifies the pool
	TargetGroupARN string
	// InstanceID is the node instance ID
	InstanceID string
	// Port is the port traffic is forwarded to
	Port int
}

// Check validates the request
func (r RegistrationRequest) Check() error {
	if r.TargetGroupARN == "" {
		return trace.BadParameter("missing target group ARN")
	}
	if r.InstanceID == "" {
		return trace.BadParameter("missing instance ID")
	}
	if r.Port <= 0 || r.Port > 65535 {
		return trace.BadParameter("invalid port %v", r.Port)
	}
	return nil
}

// Config defines the pool registrar configuration
type Config struct {
	// Client is the load balancing API client
	Client ELBV2
	// Timeout bounds the registration retries
	Timeout time.Duration
	// Backoff returns the retry interval for transient failures
	Backoff func() backoff.BackOff
	// FieldLogger is the logger
	logrus.FieldLogger
}

// CheckAndSetDefaults validates the config and sets default values
func (r *Config) CheckAndSetDefaults() error {
	if r.Client == nil {
		return trace.BadParameter("missing load balancing client")
	}
	if r.Timeout == 0 {
		r.Timeout = defaults.RegistrationTimeout
	}
	if r.Backoff == nil {
		timeout := r.Timeout
		r.Backoff = func() backoff.BackOff {
			return utils.NewExponentialBackOff(timeout)
		}
	}
	if r.FieldLogger == nil {
		r.FieldLogger = logrus.WithField(trace.Component, constants.ComponentPool)
	}
	return nil
}

// NewRegistrar returns a new pool registrar
func NewRegistrar(config Config) (*Registrar, error) {
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Registrar{Config: config}, nil
}

// Registrar adds nodes to the load balancer target group
type Registrar struct {
	Config
}

// Register adds the node to the target group.
// Registering an already registered node does not change the pool
func (r *Registrar) Register(ctx context.Context, req RegistrationRequest) error {
	if err := req.Check(); err != nil {
		return trace.Wrap(err)
	}
	logger := r.WithFields(logrus.Fields{
		constants.FieldInstance: req.InstanceID,
		"target-group":          req.TargetGroupARN,
		"port":                  req.Port,
	})
	err := utils.RetryTransient(ctx, r.Backoff(), func() error {
		_, err := r.Client.RegisterTargetsWithContext(ctx, &elbv2.RegisterTargetsInput{
			TargetGroupArn: aws.String(req.TargetGroupARN),
			Targets: []*elbv2.TargetDescription{{
				Id:   aws.String(req.InstanceID),
				Port: aws.Int64(int64(req.Port)),
			}},
		})
		return trace.Wrap(ConvertError(err))
	})
	if err != nil {
		return trace.Wrap(err, "failed to register %v with %v", req.InstanceID, req.TargetGroupARN)
	}
	logger.Info("Registered with target group.")
	return nil
}

// ConvertError converts an error from AWS Elastic Load Balancing API to an appropriate trace error
func ConvertError(err error) error {
	if err == nil {
		return nil
	}
	awsErr, ok := err.(awserr.Error)
	if !ok {
		return err
	}
	switch awsErr.Code() {
	case elbv2.ErrCodeTargetGroupNotFoundException:
		return trace.NotFound(awsErr.Message())
	case elbv2.ErrCodeInvalidTargetException:
		return trace.BadParameter(awsErr.Message())
	case elbv2.ErrCodeTooManyTargetsException, elbv2.ErrCodeTooManyRegistrationsForTargetIdException:
		return trace.LimitExceeded(awsErr.Message())
	case "AccessDenied":
		return trace.AccessDenied(awsErr.Message())
	}
	if utils.IsTransientError(awsErr) {
		return trace.ConnectionProblem(awsErr, awsErr.Message())
	}
	return err
}
