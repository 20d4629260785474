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

package utils

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/gravitational/nodestrap/lib/constants"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// CommandRunner abstracts command execution.
// The command is given with args
type CommandRunner interface {
	// RunStream executes a command specified with args and streams
	// output to stdout and stderr using ctx for cancellation
	RunStream(ctx context.Context, stdout, stderr io.Writer, args ...string) error
}

// CommandRunnerFunc is the wrapper that allows standalone functions
// to act as CommandRunners
type CommandRunnerFunc func(ctx context.Context, stdout, stderr io.Writer, args ...string) error

// RunStream invokes r with the specified arguments.
// Implements CommandRunner
func (r CommandRunnerFunc) RunStream(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	return r(ctx, stdout, stderr, args...)
}

// Runner is the default CommandRunner
var Runner CommandRunner = CommandRunnerFunc(RunStream)

// RunStream executes a command specified with args and streams output to stdout and stderr
func RunStream(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	if len(args) == 0 {
		return trace.BadParameter("missing command")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return trace.ConvertSystemError(err)
	}
	return trace.Wrap(cmd.Wait())
}

// ExecL executes the command given with args using runner and logs
// its captured output with the specified logger
func ExecL(ctx context.Context, runner CommandRunner, logger log.FieldLogger, args ...string) ([]byte, error) {
	var stderr, stdout bytes.Buffer
	// Both streams are also captured in order into out
	var out syncBuffer
	err := runner.RunStream(ctx,
		io.MultiWriter(&out, &stdout),
		io.MultiWriter(&out, &stderr),
		args...)
	fields := log.Fields{
		constants.FieldCommandError:       (err != nil),
		constants.FieldCommandErrorReport: trace.UserMessage(err),
		constants.FieldCommandStderr:      stderr.String(),
		constants.FieldCommandStdout:      stdout.String(),
	}
	logger.WithFields(fields).Info(strings.Join(args, " "))
	if err != nil {
		return out.Bytes(), trace.Wrap(err, "%v: %s", strings.Join(args, " "), bytes.TrimSpace(out.Bytes()))
	}
	return out.Bytes(), nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (r *syncBuffer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *syncBuffer) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Bytes()
}
