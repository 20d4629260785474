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

package telemetry

import (
	"context"
	"net/http"

	"github.com/gravitational/trace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracerConfig defines the trace exporter of a process
type TracerConfig struct {
	// Endpoint is the host:port of the OTLP HTTP receiver
	Endpoint string
	// Resource describes the process
	Resource Resource
}

// NewTracerProvider returns a tracer provider exporting spans over OTLP/HTTP
// and installs it as the global provider.
// The caller is expected to shut it down to flush pending spans
func NewTracerProvider(ctx context.Context, config TracerConfig) (*sdktrace.TracerProvider, error) {
	if config.Endpoint == "" {
		return nil, trace.BadParameter("missing OTLP endpoint")
	}
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(config.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	attrs := []attribute.KeyValue{
		attribute.String("service.name", config.Resource.ServiceName),
		attribute.String("deployment.environment", config.Resource.Environment),
	}
	if config.Resource.InstanceID != "" {
		attrs = append(attrs, attribute.String("host.id", config.Resource.InstanceID))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))
	return provider, nil
}

// InstrumentTransport wraps transport so every request is recorded as a
// client span and carries the trace context
func InstrumentTransport(transport http.RoundTripper) http.RoundTripper {
	return otelhttp.NewTransport(transport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
