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
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedTransportPropagatesTraceContext(t *testing.T) {
	receiver := &otlpReceiver{}
	collector := httptest.NewServer(receiver)
	defer collector.Close()

	provider, err := NewTracerProvider(context.Background(), TracerConfig{
		Endpoint: strings.TrimPrefix(collector.URL, "http://"),
		Resource: Resource{ServiceName: "demo-loadgen", Environment: "test"},
	})
	require.NoError(t, err)

	headers := make(chan string, 1)
	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get("traceparent")
		w.Write([]byte("[]"))
	}))
	defer app.Close()

	client := &http.Client{Transport: InstrumentTransport(http.DefaultTransport)}
	resp, err := client.Get(app.URL + "/api/products")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Regexp(t, `^00-[0-9a-f]{32}-[0-9a-f]{16}-01$`, <-headers)

	require.NoError(t, provider.Shutdown(context.Background()))
	assert.Equal(t, []string{"/v1/traces"}, receiver.paths())
}

func TestTracerProviderRequiresEndpoint(t *testing.T) {
	_, err := NewTracerProvider(context.Background(), TracerConfig{})
	assert.True(t, trace.IsBadParameter(err))
}

// otlpReceiver accepts OTLP/HTTP exports and records the request paths
type otlpReceiver struct {
	sync.Mutex
	requests []string
}

func (r *otlpReceiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Lock()
	r.requests = append(r.requests, req.URL.Path)
	r.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (r *otlpReceiver) paths() []string {
	r.Lock()
	defer r.Unlock()
	return append([]string(nil), r.requests...)
}
