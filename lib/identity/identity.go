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

package identity

import (
	"context"
	"strings"

	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/defaults"
	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

const (
	instanceIDKey       = "instance-id"
	availabilityZoneKey = "placement/availability-zone"
)

// Instance describes the node the process is running on
type Instance struct {
	// ID is the instance ID
	ID string `json:"id"`
	// AvailabilityZone is the availability zone of the instance
	AvailabilityZone string `json:"availability_zone"`
	// Region is the region of the instance derived from its availability zone
	Region string `json:"region"`
}

// Config defines the metadata client configuration
type Config struct {
	// Endpoint is the base URL of the instance metadata service
	Endpoint string
	// FieldLogger is the logger
	logrus.FieldLogger
}

// CheckAndSetDefaults validates the config and sets default values
func (r *Config) CheckAndSetDefaults() error {
	if r.Endpoint == "" {
		r.Endpoint = defaults.MetadataEndpoint
	}
	if r.FieldLogger == nil {
		r.FieldLogger = logrus.WithField(trace.Component, constants.ComponentIdentity)
	}
	return nil
}

// NewClient returns a new instance metadata client.
// The client uses session tokens exclusively and never falls back
// to unauthenticated metadata requests
func NewClient(config Config) (*Client, error) {
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	session, err := session.NewSession()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	metadata := ec2metadata.New(session, &aws.Config{
		Endpoint:                  aws.String(config.Endpoint),
		EC2MetadataEnableFallback: aws.Bool(false),
	})
	return &Client{
		Config:   config,
		metadata: metadata,
	}, nil
}

// Client queries the instance metadata service
type Client struct {
	Config
	metadata *ec2metadata.EC2Metadata
}

// Resolve returns the identity of the local instance
func (r *Client) Resolve(ctx context.Context) (*Instance, error) {
	id, err := r.GetMetadata(ctx, instanceIDKey)
	if err != nil {
		return nil, trace.Wrap(err, "failed to fetch instance-id from instance metadata")
	}
	zone, err := r.GetMetadata(ctx, availabilityZoneKey)
	if err != nil {
		return nil, trace.Wrap(err, "failed to fetch availability zone from instance metadata")
	}
	region, err := RegionFromZone(zone)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	instance := &Instance{
		ID:               id,
		AvailabilityZone: zone,
		Region:           region,
	}
	r.WithFields(logrus.Fields{
		constants.FieldInstance: instance.ID,
		"zone":                  instance.AvailabilityZone,
	}).Info("Resolved node identity.")
	return instance, nil
}

// GetMetadata returns the value of the metadata key.
// The session token is requested and refreshed by the metadata client
func (r *Client) GetMetadata(ctx context.Context, key string) (string, error) {
	value, err := r.metadata.GetMetadataWithContext(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return "", trace.Wrap(ctx.Err())
		}
		return "", ConvertError(err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", trace.NotFound("empty value for metadata key %v", key)
	}
	return value, nil
}

// ConvertError converts an error from the metadata client to an appropriate
// trace error using the status of the innermost failed request
func ConvertError(err error) error {
	if err == nil {
		return nil
	}
	for e := err; e != nil; {
		if failure, ok := e.(awserr.RequestFailure); ok {
			if failure.StatusCode() != 0 {
				return trace.Wrap(utils.ConvertHTTPStatus(failure.StatusCode(), err.Error()))
			}
		}
		awsErr, ok := e.(awserr.Error)
		if !ok {
			break
		}
		if awsErr.Code() == request.ErrCodeRequestError {
			return trace.ConnectionProblem(err, "failed to query instance metadata")
		}
		e = awsErr.OrigErr()
	}
	return trace.Wrap(err)
}

// RegionFromZone derives the region name from the availability zone
// by dropping the trailing zone letter
func RegionFromZone(zone string) (string, error) {
	zone = strings.TrimSpace(zone)
	if len(zone) < 2 {
		return "", trace.BadParameter("invalid availability zone %q", zone)
	}
	last := zone[len(zone)-1]
	if last < 'a' || last > 'z' {
		return "", trace.BadParameter("invalid availability zone %q", zone)
	}
	return zone[:len(zone)-1], nil
}
