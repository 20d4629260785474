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
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/gravitational/nodestrap/lib/defaults"
	"github.com/gravitational/nodestrap/lib/httplib"
	"github.com/gravitational/nodestrap/lib/loadgen"
	"github.com/gravitational/nodestrap/lib/telemetry"
	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/gravitational/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func runLoadgen(ctx context.Context, cmd LoadgenCmd) error {
	trafficLog, closeLog, err := utils.NewFileLogger(*cmd.TrafficLog)
	if err != nil {
		return trace.Wrap(err)
	}
	defer closeLog()

	var options []httplib.ClientOption
	options = append(options, httplib.WithNoProxy())
	if *cmd.OTLPEndpoint != "" {
		provider, err := telemetry.NewTracerProvider(ctx, telemetry.TracerConfig{
			Endpoint: *cmd.OTLPEndpoint,
			Resource: telemetry.Resource{
				ServiceName: defaults.LoadgenTelemetryName,
				Environment: *cmd.Environment,
			},
		})
		if err != nil {
			log.WithError(err).Warn("Failed to set up tracing, continuing without it.")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := provider.Shutdown(ctx); err != nil {
					log.WithError(err).Warn("Failed to flush spans.")
				}
			}()
			options = append(options, httplib.WithTransportWrapper(telemetry.InstrumentTransport))
		}
	}
	requester, err := loadgen.NewHTTPRequester(*cmd.Target, httplib.NewClient(options...), *cmd.RequestTimeout)
	if err != nil {
		return trace.Wrap(err)
	}

	var metrics *loadgen.Metrics
	if *cmd.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		metrics, err = loadgen.NewMetrics(registry)
		if err != nil {
			return trace.Wrap(err)
		}
		go serveMetrics(ctx, *cmd.MetricsAddr, registry)
	}

	seed := *cmd.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	generator, err := loadgen.New(loadgen.Config{
		Requester:  requester,
		Rand:       rand.New(rand.NewSource(seed)),
		Interval:   *cmd.Interval,
		TrafficLog: trafficLog,
		Metrics:    metrics,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	log.WithField("target", *cmd.Target).WithField("seed", seed).Info("Generating traffic.")
	state := generator.Run(ctx, loadgen.State{})
	fmt.Printf("Stopped after %v iterations: %+v.\n", state.Iteration, state.Stats)
	return nil
}

// serveMetrics serves the registry on addr until ctx is cancelled
func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	log.WithField("addr", addr).Info("Serving metrics.")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Warn("Metrics server failed.")
	}
}
