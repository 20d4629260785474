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
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gravitational/trace"
	. "gopkg.in/check.v1"
)

func TestIdentity(t *testing.T) { TestingT(t) }

type IdentitySuite struct{}

var _ = Suite(&IdentitySuite{})

func (s *IdentitySuite) TestResolvesWithSessionToken(c *C) {
	imds := newFakeMetadata()
	server := httptest.NewServer(imds)
	defer server.Close()

	client := newTestClient(c, server.URL)
	instance, err := client.Resolve(context.TODO())
	c.Assert(err, IsNil)
	c.Assert(*instance, DeepEquals, Instance{
		ID:               "i-0123456789abcdef0",
		AvailabilityZone: "us-east-1b",
		Region:           "us-east-1",
	})
	c.Assert(imds.ttl, Equals, "21600")
	c.Assert(imds.tokenRequests, Equals, 1)
	c.Assert(imds.metadataRequests, Equals, 2)
	c.Assert(imds.unauthenticated, Equals, 0)
}

func (s *IdentitySuite) TestFailsWithoutToken(c *C) {
	imds := newFakeMetadata()
	imds.tokenStatus = http.StatusForbidden
	server := httptest.NewServer(imds)
	defer server.Close()

	client := newTestClient(c, server.URL)
	_, err := client.Resolve(context.TODO())
	c.Assert(err, NotNil)
	c.Assert(trace.IsAccessDenied(err), Equals, true, Commentf("%v", err))
	// No unauthenticated metadata fallback
	c.Assert(imds.unauthenticated, Equals, 0)
	c.Assert(imds.metadataRequests, Equals, 0)
}

func (s *IdentitySuite) TestRetriesTransientFailures(c *C) {
	imds := newFakeMetadata()
	imds.failTokenTimes = 2
	server := httptest.NewServer(imds)
	defer server.Close()

	client := newTestClient(c, server.URL)
	instance, err := client.Resolve(context.TODO())
	c.Assert(err, IsNil)
	c.Assert(instance.ID, Equals, "i-0123456789abcdef0")
	c.Assert(imds.tokenRequests, Equals, 3)
}

func (s *IdentitySuite) TestMissingZone(c *C) {
	imds := newFakeMetadata()
	delete(imds.values, "/latest/meta-data/placement/availability-zone")
	server := httptest.NewServer(imds)
	defer server.Close()

	client := newTestClient(c, server.URL)
	_, err := client.Resolve(context.TODO())
	c.Assert(trace.IsNotFound(err), Equals, true, Commentf("%v", err))
}

func (s *IdentitySuite) TestUnreachableService(c *C) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := newTestClient(c, server.URL)
	_, err := client.Resolve(context.TODO())
	c.Assert(trace.IsConnectionProblem(err), Equals, true, Commentf("%v", err))
}

func (s *IdentitySuite) TestRegionFromZone(c *C) {
	tcs := []struct {
		zone   string
		region string
		err    bool
	}{
		{zone: "us-east-1a", region: "us-east-1"},
		{zone: "eu-central-1c", region: "eu-central-1"},
		{zone: "us-west-2-lax-1a", region: "us-west-2-lax-1"},
		{zone: "", err: true},
		{zone: "us-east-1", err: true},
	}
	for _, tc := range tcs {
		region, err := RegionFromZone(tc.zone)
		if tc.err {
			c.Assert(err, NotNil, Commentf(tc.zone))
			continue
		}
		c.Assert(err, IsNil, Commentf(tc.zone))
		c.Assert(region, Equals, tc.region)
	}
}

func newTestClient(c *C, endpoint string) *Client {
	client, err := NewClient(Config{Endpoint: endpoint})
	c.Assert(err, IsNil)
	return client
}

const (
	testToken      = "AQAEAFTNrA4eEGx0AQgJ1arIq_Cc"
	tokenPath      = "/latest/api/token"
	tokenTTLHeader = "X-aws-ec2-metadata-token-ttl-seconds"
	tokenHeader    = "X-aws-ec2-metadata-token"
)

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{
		tokenStatus: http.StatusOK,
		values: map[string]string{
			"/latest/meta-data/instance-id":                 "i-0123456789abcdef0",
			"/latest/meta-data/placement/availability-zone": "us-east-1b",
		},
	}
}

// fakeMetadata serves the token-protected subset of the instance metadata API
type fakeMetadata struct {
	sync.Mutex
	tokenStatus      int
	failTokenTimes   int
	values           map[string]string
	ttl              string
	tokenRequests    int
	metadataRequests int
	unauthenticated  int
}

func (r *fakeMetadata) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Lock()
	defer r.Unlock()
	if req.URL.Path == tokenPath {
		r.tokenRequests++
		if req.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.failTokenTimes > 0 {
			r.failTokenTimes--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		r.ttl = req.Header.Get(tokenTTLHeader)
		if r.tokenStatus != http.StatusOK {
			w.WriteHeader(r.tokenStatus)
			return
		}
		w.Header().Set(tokenTTLHeader, r.ttl)
		w.Write([]byte(testToken))
		return
	}
	token := req.Header.Get(tokenHeader)
	if token == "" {
		r.unauthenticated++
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	r.metadataRequests++
	if token != testToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	value, ok := r.values[req.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Write([]byte(value))
}
