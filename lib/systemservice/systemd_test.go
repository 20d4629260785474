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

package systemservice

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gravitational/trace"
	. "gopkg.in/check.v1"
)

func TestSystemd(t *testing.T) { TestingT(t) }

type SystemdSuite struct {
}

var _ = Suite(&SystemdSuite{})

func (s *SystemdSuite) TestServiceTemplate(c *C) {
	tt := []struct {
		in          NewServiceRequest
		out         string
		description string
	}{
		{
			description: "Full service",
			in: NewServiceRequest{
				Name:        "demo-app.service",
				Description: "Demo application",
				ServiceSpec: ServiceSpec{
					Dependencies: Dependencies{
						Wants: "network-online.target",
						After: "network-online.target otel-collector.service",
					},
					StartCommand:     QuoteCommand("/usr/bin/java", "-jar", "/opt/app/app.jar", "--spring.datasource.password=p@ss w%rd$"),
					WorkingDirectory: "/opt/app",
					Restart:          "on-failure",
					RestartSec:       10,
					Environment: map[string]string{
						"OTEL_SERVICE_NAME":        "demo-app",
						"OTEL_RESOURCE_ATTRIBUTES": "service.name=demo-app,deployment.environment=demo",
					},
					StandardOutput: AppendTo("/var/log/demo-app/service.log"),
					StandardError:  AppendTo("/var/log/demo-app/service.log"),
				},
			},
			out: `[Unit]
Description=Demo application
Wants=network-online.target
After=network-online.target otel-collector.service

[Service]
WorkingDirectory=/opt/app
ExecStart=/usr/bin/java -jar /opt/app/app.jar "--spring.datasource.password=p@ss w%%rd$$"
Restart=on-failure
RestartSec=10
Environment=OTEL_RESOURCE_ATTRIBUTES=service.name=demo-app,deployment.environment=demo
Environment=OTEL_SERVICE_NAME=demo-app
Environment=PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin
StandardOutput=append:/var/log/demo-app/service.log
StandardError=append:/var/log/demo-app/service.log

[Install]
WantedBy=multi-user.target
`,
		},
		{
			description: "Minimal service",
			in: NewServiceRequest{
				Name: "minimal.service",
				ServiceSpec: ServiceSpec{
					StartCommand: "/bin/true",
					Restart:      "always",
					WantedBy:     "default.target",
				},
			},
			out: `[Unit]
Description=Auto-generated service for minimal.service

[Service]
ExecStart=/bin/true
Restart=always
RestartSec=5
Environment=PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin

[Install]
WantedBy=default.target
`,
		},
	}
	for _, tc := range tt {
		comment := Commentf(tc.description)
		out, err := RenderUnit(tc.in)
		c.Assert(err, IsNil, comment)
		c.Assert(string(out), Equals, tc.out, comment)
	}
}

func (s *SystemdSuite) TestRenderRequiresStartCommand(c *C) {
	_, err := RenderUnit(NewServiceRequest{Name: "empty.service"})
	c.Assert(trace.IsBadParameter(err), Equals, true)
}

func (s *SystemdSuite) TestQuoting(c *C) {
	c.Assert(QuoteCommand("/bin/app", "plain", "with space", `quo"te`, "100%", "$HOME", ""),
		Equals, `/bin/app plain "with space" "quo\"te" 100%% $$HOME ""`)
	c.Assert(QuoteEnvironment("LOG_PATH", "/var/log/demo app"), Equals, `"LOG_PATH=/var/log/demo app"`)
	c.Assert(QuoteEnvironment("PRICE", "$5"), Equals, `PRICE=$5`)
	c.Assert(SystemdNameEscape("demo app.service"), Equals, `demo\x20app.service`)
	c.Assert(FullServiceName("demo-app"), Equals, "demo-app.service")
	c.Assert(FullServiceName("demo-app.service"), Equals, "demo-app.service")
}

func (s *SystemdSuite) TestInstallService(c *C) {
	runner := &recordingRunner{}
	dir := c.MkDir()
	manager, err := New(Config{UnitDir: dir, Runner: runner})
	c.Assert(err, IsNil)

	err = manager.InstallService(context.TODO(), NewServiceRequest{
		Name:     "demo-app",
		FileMode: 0600,
		NoBlock:  true,
		ServiceSpec: ServiceSpec{
			StartCommand: QuoteCommand("/usr/bin/java", "--spring.datasource.password=secret"),
			Restart:      "on-failure",
		},
	})
	c.Assert(err, IsNil)

	path := filepath.Join(dir, "demo-app.service")
	fi, err := os.Stat(path)
	c.Assert(err, IsNil)
	c.Assert(fi.Mode().Perm(), Equals, os.FileMode(0600))
	data, err := ioutil.ReadFile(path)
	c.Assert(err, IsNil)
	c.Assert(string(data), Matches, "(?s).*ExecStart=/usr/bin/java --spring.datasource.password=secret\n.*")

	c.Assert(runner.commands, DeepEquals, []string{
		"systemctl daemon-reload",
		"systemctl enable demo-app.service",
		"systemctl start demo-app.service --no-block",
	})
}

func (s *SystemdSuite) TestInstallServiceFailsOnSystemctlError(c *C) {
	runner := &recordingRunner{fail: "enable"}
	manager, err := New(Config{UnitDir: c.MkDir(), Runner: runner})
	c.Assert(err, IsNil)

	err = manager.InstallService(context.TODO(), NewServiceRequest{
		Name:        "demo-loadgen.service",
		ServiceSpec: ServiceSpec{StartCommand: "/usr/local/bin/nodestrap loadgen"},
	})
	c.Assert(err, NotNil)
	c.Assert(runner.commands, DeepEquals, []string{
		"systemctl daemon-reload",
		"systemctl enable demo-loadgen.service",
	})
}

func (s *SystemdSuite) TestReinstallRestartsRunningService(c *C) {
	runner := &recordingRunner{outputs: map[string]string{"is-active": "active\n"}}
	dir := c.MkDir()
	manager, err := New(Config{UnitDir: dir, Runner: runner})
	c.Assert(err, IsNil)
	req := NewServiceRequest{
		Name:    "demo-app.service",
		NoBlock: true,
		ServiceSpec: ServiceSpec{
			StartCommand: QuoteCommand("/usr/bin/java", "-jar", "/opt/app/app.jar"),
		},
	}
	c.Assert(manager.InstallService(context.TODO(), req), IsNil)

	runner.commands = nil
	req.StartCommand = QuoteCommand("/usr/bin/java", "-jar", "/opt/app/app-2.0.jar")
	c.Assert(manager.InstallService(context.TODO(), req), IsNil)
	c.Assert(runner.commands, DeepEquals, []string{
		"systemctl daemon-reload",
		"systemctl enable demo-app.service",
		"systemctl is-active demo-app.service",
		"systemctl restart demo-app.service --no-block",
	})
	data, err := ioutil.ReadFile(filepath.Join(dir, "demo-app.service"))
	c.Assert(err, IsNil)
	c.Assert(string(data), Matches, "(?s).*ExecStart=/usr/bin/java -jar /opt/app/app-2.0.jar\n.*")
}

func (s *SystemdSuite) TestReinstallStartsStoppedService(c *C) {
	runner := &recordingRunner{
		outputs: map[string]string{"is-active": "failed\n"},
		fail:    "is-active",
	}
	dir := c.MkDir()
	manager, err := New(Config{UnitDir: dir, Runner: runner})
	c.Assert(err, IsNil)
	req := NewServiceRequest{
		Name:        "demo-loadgen.service",
		ServiceSpec: ServiceSpec{StartCommand: "/usr/local/bin/nodestrap loadgen"},
	}
	c.Assert(manager.InstallService(context.TODO(), req), IsNil)
	c.Assert(manager.InstallService(context.TODO(), req), IsNil)
	c.Assert(runner.commands, DeepEquals, []string{
		"systemctl daemon-reload",
		"systemctl enable demo-loadgen.service",
		"systemctl start demo-loadgen.service",
		"systemctl daemon-reload",
		"systemctl enable demo-loadgen.service",
		"systemctl is-active demo-loadgen.service",
		"systemctl start demo-loadgen.service",
	})
}

func (s *SystemdSuite) TestStatusService(c *C) {
	runner := &recordingRunner{
		outputs: map[string]string{"is-active": "inactive\n"},
		fail:    "is-active",
	}
	manager, err := New(Config{UnitDir: c.MkDir(), Runner: runner})
	c.Assert(err, IsNil)

	status, err := manager.StatusService(context.TODO(), "demo-app.service")
	c.Assert(err, IsNil)
	c.Assert(status, Equals, ServiceStatusInactive)
}

// recordingRunner records systemctl invocations.
// outputs maps a systemctl subcommand to its output
type recordingRunner struct {
	commands []string
	outputs  map[string]string
	fail     string
}

func (r *recordingRunner) RunStream(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	r.commands = append(r.commands, strings.Join(args, " "))
	if len(args) < 2 {
		return nil
	}
	if output, ok := r.outputs[args[1]]; ok {
		stdout.Write([]byte(output))
	}
	if args[1] == r.fail {
		return trace.BadParameter("exit status 1")
	}
	return nil
}
