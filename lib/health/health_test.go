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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/cenkalti/backoff"
	"github.com/gravitational/trace"
	. "gopkg.in/check.v1"
)

func TestHealth(t *testing.T) { TestingT(t) }

type HealthSuite struct{}

var _ = Suite(&HealthSuite{})

func (s *HealthSuite) TestWaitUntilHealthy(c *C) {
	var checks int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&checks, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	gate := newTestGate(c, server.URL+"/api/products/health", time.Second)
	c.Assert(gate.Wait(context.TODO()), IsNil)
	c.Assert(atomic.LoadInt32(&checks), Equals, int32(3))
}

func (s *HealthSuite) TestWaitTimesOut(c *C) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	gate := newTestGate(c, server.URL, 50*time.Millisecond)
	err := gate.Wait(context.TODO())
	c.Assert(trace.IsLimitExceeded(err), Equals, true)
	c.Assert(err.Error(), Matches, "(?s).*500.*")
}

func (s *HealthSuite) TestCheckUnreachable(c *C) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	gate := newTestGate(c, url, time.Second)
	result := gate.Check(context.TODO())
	c.Assert(result.Healthy, Equals, false)
	c.Assert(result.Message, Matches, "request failed.*")
}

func newTestGate(c *C, url string, timeout time.Duration) *Gate {
	gate, err := NewGate(Config{
		URL:     url,
		Timeout: timeout,
		Backoff: func() backoff.BackOff {
			return utils.NewConstantBackOff(5*time.Millisecond, timeout)
		},
	})
	c.Assert(err, IsNil)
	return gate
}
