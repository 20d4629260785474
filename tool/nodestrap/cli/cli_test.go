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
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gravitational/nodestrap/lib/artifact"
	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/defaults"
	"github.com/gravitational/nodestrap/lib/provision"

	"github.com/gravitational/trace"
	"gopkg.in/alecthomas/kingpin.v2"
	. "gopkg.in/check.v1"
)

func TestCLI(t *testing.T) { TestingT(t) }

type CLISuite struct{}

var _ = Suite(&CLISuite{})

func (s *CLISuite) TestFlagsOverrideConfigFile(c *C) {
	path := filepath.Join(c.MkDir(), "config.yaml")
	c.Assert(ioutil.WriteFile(path, []byte(`
secretArn: arn:file
bucket: file-bucket
appPort: 9090
loadgenInterval: 1s
`), 0600), IsNil)

	app := RegisterCommands(kingpin.New("nodestrap", ""))
	cmd, err := app.Parse([]string{"provision", "--config", path, "--bucket", "flag-bucket", "--readiness-timeout", "30s"})
	c.Assert(err, IsNil)
	c.Assert(cmd, Equals, app.ProvisionCmd.FullCommand())

	params, err := provisionParams(app.ProvisionCmd)
	c.Assert(err, IsNil)
	c.Assert(params.SecretARN, Equals, "arn:file")
	c.Assert(params.Bucket, Equals, "flag-bucket")
	c.Assert(params.AppPort, Equals, 9090)
	c.Assert(params.ReadinessTimeout, Equals, 30*time.Second)
	c.Assert(params.LoadgenInterval, Equals, time.Second)
	c.Assert(params.ReportPrefix, Equals, defaults.ReportPrefix)
}

func (s *CLISuite) TestMissingConfigFile(c *C) {
	app := RegisterCommands(kingpin.New("nodestrap", ""))
	_, err := app.Parse([]string{"provision", "--config", filepath.Join(c.MkDir(), "missing.yaml"),
		"--secret-arn", "arn:flag", "--bucket", "flag-bucket"})
	c.Assert(err, IsNil)
	_, err = provisionParams(app.ProvisionCmd)
	c.Assert(trace.IsNotFound(err), Equals, true, Commentf("%v", err))
}

func (s *CLISuite) TestRequiredParams(c *C) {
	app := RegisterCommands(kingpin.New("nodestrap", ""))
	_, err := app.Parse([]string{"provision", "--config", "", "--bucket", "flag-bucket"})
	c.Assert(err, IsNil)
	_, err = provisionParams(app.ProvisionCmd)
	c.Assert(trace.IsBadParameter(err), Equals, true, Commentf("%v", err))
}

func (s *CLISuite) TestOutputFormat(c *C) {
	app := RegisterCommands(kingpin.New("nodestrap", ""))
	_, err := app.Parse([]string{"version", "--output", "xml"})
	c.Assert(err, NotNil)
	_, err = app.Parse([]string{"version", "-o", "json"})
	c.Assert(err, IsNil)
	c.Assert(*app.VersionCmd.Output, Equals, constants.EncodingJSON)
}

func (s *CLISuite) TestPrintReport(c *C) {
	report := &provision.Report{
		BootID:     "boot-1",
		InstanceID: "i-123",
		Steps: []provision.StepResult{
			{Name: provision.StepIdentity, Outcome: provision.OutcomeOK, Duration: 15 * time.Millisecond},
			{Name: provision.StepAgent, Outcome: provision.OutcomeDegraded, Message: "agent not found"},
		},
		Artifacts: []artifact.Result{
			{Kind: artifact.KindApplication, Source: "s3://demo/app.jar", Path: "/opt/app/app.jar", Size: 2048},
		},
	}
	var out bytes.Buffer
	c.Assert(printReport(&out, report, constants.EncodingText), IsNil)
	text := out.String()
	c.Assert(strings.Contains(text, "[Boot boot-1 on i-123: degraded]"), Equals, true, Commentf(text))
	c.Assert(strings.Contains(text, "agent not found"), Equals, true, Commentf(text))
	c.Assert(strings.Contains(text, "2.0 kB"), Equals, true, Commentf(text))

	out.Reset()
	c.Assert(printReport(&out, report, constants.EncodingJSON), IsNil)
	var decoded provision.Report
	c.Assert(json.Unmarshal(out.Bytes(), &decoded), IsNil)
	c.Assert(decoded.Steps, DeepEquals, report.Steps)
}

func (s *CLISuite) TestLoadgenRunsUntilCancelled(c *C) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) > 1 {
			cancel()
		}
		w.Write([]byte(`[{"id": 1}]`))
	}))
	defer server.Close()

	path := filepath.Join(c.MkDir(), "loadgen", "traffic.log")
	app := RegisterCommands(kingpin.New("nodestrap", ""))
	_, err := app.Parse([]string{"loadgen", "--target", server.URL, "--traffic-log", path, "--seed", "1"})
	c.Assert(err, IsNil)

	c.Assert(runLoadgen(ctx, app.LoadgenCmd), IsNil)
	c.Assert(atomic.LoadInt32(&requests) >= 2, Equals, true)
	data, err := ioutil.ReadFile(path)
	c.Assert(err, IsNil)
	c.Assert(string(data), Matches, "(?s).*endpoint=/api/products.*status=200.*")
}
