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
	"os"

	"github.com/gravitational/nodestrap/lib/telemetry"

	"github.com/gravitational/trace"
)

func renderCollectorConfig(cmd RenderCmd) error {
	config, err := telemetry.NewCollectorConfig(telemetry.Params{
		Region:      *cmd.Region,
		Namespace:   *cmd.Namespace,
		ServiceName: *cmd.ServiceName,
		Environment: *cmd.Environment,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	if err := config.Validate(); err != nil {
		return trace.Wrap(err)
	}
	data, err := config.Render()
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = os.Stdout.Write(data)
	return trace.Wrap(err)
}
