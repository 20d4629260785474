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

package common

import (
	"context"
	"os"

	"github.com/gravitational/nodestrap/lib/constants"

	"github.com/gravitational/trace"
	"gopkg.in/alecthomas/kingpin.v2"
)

// ProcessRunError looks at the error that happened during a CLI command
// execution and converts it to a user-friendly format
func ProcessRunError(runErr error) error {
	if runErr == nil {
		return nil
	}
	if trace.Unwrap(runErr) == context.Canceled {
		// interrupted by a signal
		return nil
	}
	if trace.IsAccessDenied(runErr) && os.Geteuid() != 0 {
		return trace.AccessDenied("%v, this command is expected to run as root",
			trace.UserMessage(runErr))
	}
	return runErr
}

// Format is the CLI parser for output format flag
func Format(s kingpin.Settings) *constants.Format {
	var f constants.Format
	s.SetValue(&f)
	return &f
}
