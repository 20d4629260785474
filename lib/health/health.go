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

package health

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/defaults"
	"github.com/gravitational/nodestrap/lib/httplib"
	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/cenkalti/backoff"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// Result is the outcome of a single health check
type Result struct {
	// Healthy is true if the endpoint responded with an acceptable status
	Healthy bool
	// Message describes the outcome
	Message string
	// CheckedAt is the check start time
	CheckedAt time.Time
	// Duration is the check duration
	Duration time.Duration
}

// Config defines the readiness gate configuration
type Config struct {
	// URL is the health endpoint URL
	URL string
	// Timeout bounds the total wait
	Timeout time.Duration
	// Client is the HTTP client used for health checks
	Client *http.Client
	// Backoff returns the interval between checks
	Backoff func() backoff.BackOff
	// FieldLogger is the logger
	logrus.FieldLogger
}

// CheckAndSetDefaults validates the config and sets default values
func (r *Config) CheckAndSetDefaults() error {
	if r.URL == "" {
		return trace.BadParameter("missing health endpoint URL")
	}
	if r.Timeout == 0 {
		r.Timeout = defaults.ReadinessTimeout
	}
	if r.Client == nil {
		r.Client = httplib.NewClient(
			httplib.WithTimeout(defaults.ReadinessRequestTimeout),
			httplib.WithDialTimeout(defaults.ReadinessRequestTimeout),
			httplib.WithNoProxy(),
		)
	}
	if r.Backoff == nil {
		timeout := r.Timeout
		r.Backoff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = 15 * time.Second
			b.MaxElapsedTime = timeout
			return b
		}
	}
	if r.FieldLogger == nil {
		r.FieldLogger = logrus.WithField(trace.Component, constants.ComponentHealth)
	}
	return nil
}

// NewGate returns a new readiness gate
func NewGate(config Config) (*Gate, error) {
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Gate{Config: config}, nil
}

// Gate blocks until a service reports healthy
type Gate struct {
	Config
}

// Check performs a single check of the health endpoint.
// Any 2xx response is healthy
func (r *Gate) Check(ctx context.Context) Result {
	start := time.Now()
	req, err := http.NewRequest(http.MethodGet, r.URL, nil)
	if err != nil {
		return Result{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	resp, err := r.Client.Do(req.WithContext(ctx))
	if err != nil {
		return Result{
			Message:   fmt.Sprintf("request failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	io.Copy(ioutil.Discard, resp.Body)
	resp.Body.Close()
	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300
	return Result{
		Healthy:   healthy,
		Message:   fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Wait polls the health endpoint until it reports healthy or the timeout expires.
// Returns trace.LimitExceeded on timeout
func (r *Gate) Wait(ctx context.Context) error {
	logger := r.WithField("url", r.URL)
	logger.Info("Waiting for service to become ready.")
	var attempts int
	var last Result
	err := utils.RetryWithInterval(ctx, r.Backoff(), func() error {
		attempts++
		last = r.Check(ctx)
		if !last.Healthy {
			return trace.ConnectionProblem(nil, last.Message)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return trace.Wrap(ctx.Err())
		}
		return trace.LimitExceeded("service at %v is not ready after %v attempts: %v",
			r.URL, attempts, last.Message)
	}
	logger.WithField("attempts", attempts).Info("Service is ready.")
	return nil
}
