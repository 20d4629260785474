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
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField(trace.Component, constants.ComponentCLI)

// Run parses CLI arguments and executes an appropriate nodestrap command
func Run(g Application) error {
	cmd, err := g.Parse(os.Args[1:])
	if err != nil {
		return trace.Wrap(err)
	}

	trace.SetDebug(*g.Debug)
	level := logrus.InfoLevel
	if *g.Debug {
		level = logrus.DebugLevel
	}
	switch cmd {
	case g.ProvisionCmd.FullCommand():
		utils.InitLogging(level, *g.LogFile)
	default:
		// the traffic generator runs under systemd which captures stderr
		utils.InitConsoleLogging(level)
	}
	log.Debugf("Executing: %v.", os.Args)

	ctx, cancel := signalContext()
	defer cancel()

	switch cmd {
	case g.VersionCmd.FullCommand():
		return printVersion(*g.VersionCmd.Output)
	case g.ProvisionCmd.FullCommand():
		return provisionNode(ctx, g.ProvisionCmd)
	case g.LoadgenCmd.FullCommand():
		return runLoadgen(ctx, g.LoadgenCmd)
	case g.RenderCmd.FullCommand():
		return renderCollectorConfig(g.RenderCmd)
	}
	return trace.NotFound("unknown command %v", cmd)
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(signals)
		select {
		case sig := <-signals:
			log.Infof("Received %v, shutting down.", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
