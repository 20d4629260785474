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

package artifact

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gravitational/nodestrap/lib/testutils"
	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/cenkalti/backoff"
	"github.com/gravitational/trace"
	. "gopkg.in/check.v1"
)

func TestArtifact(t *testing.T) { TestingT(t) }

type ArtifactSuite struct {
	s3     *testutils.S3
	server *httptest.Server
	hits   int32
	dir    string
}

var _ = Suite(&ArtifactSuite{})

func (s *ArtifactSuite) SetUpTest(c *C) {
	s.s3 = testutils.NewS3()
	s.dir = c.MkDir()
	atomic.StoreInt32(&s.hits, 0)
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.hits, 1)
		if r.URL.Path != "/agent.jar" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("public agent"))
	}))
}

func (s *ArtifactSuite) TearDownTest(c *C) {
	s.server.Close()
}

func (s *ArtifactSuite) newFetcher(c *C, agentURL string) *Fetcher {
	fetcher, err := NewFetcher(Config{
		S3:        s.s3,
		Bucket:    "demo-artifacts",
		AppPath:   filepath.Join(s.dir, "app", "app.jar"),
		AgentPath: filepath.Join(s.dir, "app", "agent", "aws-opentelemetry-agent.jar"),
		AgentURL:  agentURL,
		Backoff: func() backoff.BackOff {
			return utils.NewConstantBackOff(time.Millisecond, 100*time.Millisecond)
		},
	})
	c.Assert(err, IsNil)
	return fetcher
}

func (s *ArtifactSuite) TestSelectApplication(c *C) {
	tcs := []struct {
		comment string
		keys    []string
		key     string
	}{
		{
			comment: "lexicographic order wins over version order",
			keys:    []string{"v1.jar", "v10.jar", "v2.jar"},
			key:     "v2.jar",
		},
		{
			comment: "agent prefix and other suffixes are ignored",
			keys:    []string{"agent/aws-opentelemetry-agent.jar", "app-1.0.jar", "readme.txt", "scripts/user-data.sh"},
			key:     "app-1.0.jar",
		},
		{
			comment: "nested keys are candidates",
			keys:    []string{"builds/app-2.jar", "app-1.jar"},
			key:     "builds/app-2.jar",
		},
	}
	for _, tc := range tcs {
		key, err := SelectApplication(tc.keys)
		c.Assert(err, IsNil, Commentf(tc.comment))
		c.Assert(key, Equals, tc.key, Commentf(tc.comment))
	}
}

func (s *ArtifactSuite) TestSelectApplicationNoPackage(c *C) {
	_, err := SelectApplication([]string{"agent/aws-opentelemetry-agent.jar", "readme.txt"})
	c.Assert(trace.IsNotFound(err), Equals, true)
	_, err = SelectApplication(nil)
	c.Assert(trace.IsNotFound(err), Equals, true)
}

func (s *ArtifactSuite) TestFetchApplication(c *C) {
	s.s3.PageSize = 1
	s.s3.Add("app-1.0.jar", []byte("old"))
	s.s3.Add("app-1.1.jar", []byte("new"))
	s.s3.Add("agent/aws-opentelemetry-agent.jar", []byte("agent"))
	fetcher := s.newFetcher(c, s.server.URL+"/agent.jar")

	keys, err := fetcher.List(context.TODO())
	c.Assert(err, IsNil)
	c.Assert(keys, HasLen, 3)

	result, err := fetcher.FetchApplication(context.TODO(), keys)
	c.Assert(err, IsNil)
	c.Assert(result.Source, Equals, "s3://demo-artifacts/app-1.1.jar")
	c.Assert(result.Size, Equals, int64(3))
	data, err := ioutil.ReadFile(fetcher.AppPath)
	c.Assert(err, IsNil)
	c.Assert(string(data), Equals, "new")
}

func (s *ArtifactSuite) TestFetchApplicationMissing(c *C) {
	s.s3.Add("readme.txt", []byte("nothing to deploy"))
	fetcher := s.newFetcher(c, s.server.URL+"/agent.jar")

	keys, err := fetcher.List(context.TODO())
	c.Assert(err, IsNil)
	_, err = fetcher.FetchApplication(context.TODO(), keys)
	c.Assert(trace.IsNotFound(err), Equals, true)
	_, err = os.Stat(fetcher.AppPath)
	c.Assert(os.IsNotExist(err), Equals, true)
}

func (s *ArtifactSuite) TestEmptyBucket(c *C) {
	fetcher := s.newFetcher(c, s.server.URL+"/agent.jar")

	keys, err := fetcher.List(context.TODO())
	c.Assert(err, IsNil)
	c.Assert(keys, NotNil)
	c.Assert(keys, HasLen, 0)
	_, err = fetcher.FetchApplication(context.TODO(), keys)
	c.Assert(trace.IsNotFound(err), Equals, true)

	// An empty listing goes straight to the public release
	result, err := fetcher.FetchAgent(context.TODO(), keys)
	c.Assert(err, IsNil)
	c.Assert(result.Source, Equals, s.server.URL+"/agent.jar")
	c.Assert(s.s3.Calls, Equals, 1)
}

func (s *ArtifactSuite) TestFetchAgentFromBucket(c *C) {
	s.s3.Add("agent/aws-opentelemetry-agent.jar", []byte("bucket agent"))
	fetcher := s.newFetcher(c, s.server.URL+"/agent.jar")

	keys, err := fetcher.List(context.TODO())
	c.Assert(err, IsNil)
	result, err := fetcher.FetchAgent(context.TODO(), keys)
	c.Assert(err, IsNil)
	c.Assert(result.Source, Equals, "s3://demo-artifacts/agent/aws-opentelemetry-agent.jar")
	c.Assert(atomic.LoadInt32(&s.hits), Equals, int32(0))
	data, err := ioutil.ReadFile(fetcher.AgentPath)
	c.Assert(err, IsNil)
	c.Assert(string(data), Equals, "bucket agent")
}

func (s *ArtifactSuite) TestFetchAgentFallsBackToPublicRelease(c *C) {
	s.s3.Add("app.jar", []byte("app"))
	fetcher := s.newFetcher(c, s.server.URL+"/agent.jar")

	keys, err := fetcher.List(context.TODO())
	c.Assert(err, IsNil)
	result, err := fetcher.FetchAgent(context.TODO(), keys)
	c.Assert(err, IsNil)
	c.Assert(result.Source, Equals, s.server.URL+"/agent.jar")
	data, err := ioutil.ReadFile(fetcher.AgentPath)
	c.Assert(err, IsNil)
	c.Assert(string(data), Equals, "public agent")
}

func (s *ArtifactSuite) TestFetchAgentWithoutListing(c *C) {
	fetcher := s.newFetcher(c, s.server.URL+"/agent.jar")

	// The bucket is consulted first and reports a missing key
	result, err := fetcher.FetchAgent(context.TODO(), nil)
	c.Assert(err, IsNil)
	c.Assert(result.Source, Equals, s.server.URL+"/agent.jar")
	c.Assert(s.s3.Calls, Equals, 1)
}

func (s *ArtifactSuite) TestFetchAgentFallbackFailure(c *C) {
	fetcher := s.newFetcher(c, s.server.URL+"/missing.jar")

	_, err := fetcher.FetchAgent(context.TODO(), []string{})
	c.Assert(trace.IsNotFound(err), Equals, true)
	_, err = os.Stat(fetcher.AgentPath)
	c.Assert(os.IsNotExist(err), Equals, true)
}

func (s *ArtifactSuite) TestDownloadRetriesTransientErrors(c *C) {
	fetcher := s.newFetcher(c, s.server.URL+"/agent.jar")
	var attempts int
	flaky := SourceFunc{
		Name: "flaky",
		Func: func(ctx context.Context, f *os.File) (int64, error) {
			attempts++
			f.Write([]byte("partial"))
			if attempts < 3 {
				return 7, trace.ConnectionProblem(nil, "connection reset by peer")
			}
			n, err := f.Write([]byte("!"))
			return int64(7 + n), err
		},
	}
	path := filepath.Join(s.dir, "flaky")
	result, err := fetcher.Download(context.TODO(), KindAgent, Chain{flaky}, path)
	c.Assert(err, IsNil)
	c.Assert(attempts, Equals, 3)
	c.Assert(result.Size, Equals, int64(8))
	data, err := ioutil.ReadFile(path)
	c.Assert(err, IsNil)
	c.Assert(string(data), Equals, "partial!")
}

func (s *ArtifactSuite) TestDownloadMovesOnAfterPermanentError(c *C) {
	fetcher := s.newFetcher(c, s.server.URL+"/agent.jar")
	var attempts int
	denied := SourceFunc{
		Name: "denied",
		Func: func(ctx context.Context, f *os.File) (int64, error) {
			attempts++
			return 0, trace.AccessDenied("access denied")
		},
	}
	path := filepath.Join(s.dir, "agent.jar")
	result, err := fetcher.Download(context.TODO(), KindAgent,
		Chain{denied, NewURLSource(fetcher.HTTPClient, s.server.URL+"/agent.jar")}, path)
	c.Assert(err, IsNil)
	c.Assert(attempts, Equals, 1)
	c.Assert(result.Source, Equals, s.server.URL+"/agent.jar")

	_, err = fetcher.Download(context.TODO(), KindAgent, Chain{denied}, path)
	c.Assert(trace.IsNotFound(err), Equals, false)
	c.Assert(err, NotNil)
}
