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

package loadgen

import (
	"strconv"
	"time"

	"github.com/gravitational/trace"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the traffic generator metrics
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	cached   prometheus.Gauge
}

// NewMetrics creates the traffic generator metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nodestrap_loadgen_requests_total",
				Help: "Total number of requests issued by the traffic generator",
			},
			[]string{"method", "endpoint", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nodestrap_loadgen_request_duration_seconds",
				Help:    "Duration of requests issued by the traffic generator",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		cached: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nodestrap_loadgen_cached_ids",
				Help: "Number of product IDs in the traffic generator cache",
			},
		),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration, m.cached} {
		if err := reg.Register(c); err != nil {
			return nil, trace.Wrap(err)
		}
	}
	return m, nil
}

// observe records a finished request. status is 0 for failed requests
func (r *Metrics) observe(method, endpoint string, status int, d time.Duration) {
	if r == nil {
		return
	}
	label := "error"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	r.requests.WithLabelValues(method, endpoint, label).Inc()
	r.duration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

func (r *Metrics) setCached(n int) {
	if r == nil {
		return
	}
	r.cached.Set(float64(n))
}
