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
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/defaults"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	productsPath   = constants.ProductsPath
	productPath    = productsPath + "/{id}"
	healthPath     = constants.HealthPath
	inStockPath    = productsPath + "/in-stock"
	searchPath     = productsPath + "/search"
	priceRangePath = productsPath + "/price-range"
)

// Config defines the traffic generator configuration
type Config struct {
	// Requester issues requests against the application
	Requester Requester
	// Rand is the source of all random choices
	Rand *rand.Rand
	// Clock paces the iterations
	Clock clockwork.Clock
	// Interval is the pause between iterations
	Interval time.Duration
	// RefreshEvery is the number of iterations between product ID cache refreshes
	RefreshEvery int
	// WriteOneIn sets the write probability to 1/WriteOneIn per iteration
	WriteOneIn int
	// TrafficLog receives one entry per request
	TrafficLog logrus.FieldLogger
	// Metrics collects request metrics, optional
	Metrics *Metrics
	// FieldLogger is the logger
	logrus.FieldLogger
}

// CheckAndSetDefaults validates the config and sets default values
func (r *Config) CheckAndSetDefaults() error {
	if r.Requester == nil {
		return trace.BadParameter("missing requester")
	}
	if r.Rand == nil {
		r.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if r.Clock == nil {
		r.Clock = clockwork.NewRealClock()
	}
	if r.Interval == 0 {
		r.Interval = defaults.LoadgenInterval
	}
	if r.RefreshEvery == 0 {
		r.RefreshEvery = defaults.LoadgenRefreshEvery
	}
	if r.WriteOneIn == 0 {
		r.WriteOneIn = defaults.LoadgenWriteOneIn
	}
	if r.RefreshEvery < 0 || r.WriteOneIn < 0 || r.Interval < 0 {
		return trace.BadParameter("refresh cadence, write ratio and interval should be positive")
	}
	if r.FieldLogger == nil {
		r.FieldLogger = logrus.WithField(trace.Component, constants.ComponentLoadgen)
	}
	if r.TrafficLog == nil {
		r.TrafficLog = r.FieldLogger
	}
	return nil
}

// New returns a new traffic generator
func New(config Config) (*Generator, error) {
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Generator{Config: config}, nil
}

// Generator exercises the application API with synthetic traffic
type Generator struct {
	Config
}

// Run executes iterations starting from state until ctx is cancelled
// and returns the last state
func (g *Generator) Run(ctx context.Context, state State) State {
	g.WithField("interval", g.Interval).Info("Starting traffic generator.")
	for {
		state = g.Step(ctx, state)
		select {
		case <-ctx.Done():
			g.WithFields(logrus.Fields{
				"iterations": state.Iteration,
				"stats":      fmt.Sprintf("%+v", state.Stats),
			}).Info("Traffic generator stopped.")
			return state
		case <-g.Clock.After(g.Interval):
		}
	}
}

// Step executes a single iteration and returns the next state.
// The product ID cache is refreshed every RefreshEvery iterations,
// one read is issued and with probability 1/WriteOneIn a write follows
func (g *Generator) Step(ctx context.Context, state State) State {
	if state.Iteration%int64(g.RefreshEvery) == 0 {
		state = g.refresh(ctx, state)
	}
	state = g.read(ctx, state)
	if g.Rand.Intn(g.WriteOneIn) == 0 {
		state = g.write(ctx, state)
	}
	state.Iteration++
	g.Metrics.setCached(len(state.ProductIDs))
	return state
}

func (g *Generator) refresh(ctx context.Context, state State) State {
	state.Stats.Refreshes++
	resp, err := g.do(ctx, &state, Request{Method: http.MethodGet, Path: productsPath, Endpoint: productsPath})
	if err != nil {
		return state
	}
	state.ProductIDs = ExtractProductIDs(resp.Body)
	g.WithField("count", len(state.ProductIDs)).Debug("Refreshed product cache.")
	return state
}

func (g *Generator) read(ctx context.Context, state State) State {
	var req Request
	switch g.Rand.Intn(5) {
	case 0:
		req = Request{Path: productsPath, Endpoint: productsPath}
	case 1:
		req = Request{Path: healthPath, Endpoint: healthPath}
	case 2:
		req = Request{Path: randomSearchPath(g.Rand), Endpoint: searchPath}
	case 3:
		req = Request{Path: randomPriceRangePath(g.Rand), Endpoint: priceRangePath}
	default:
		req = Request{Path: inStockPath, Endpoint: inStockPath}
	}
	req.Method = http.MethodGet
	state.Stats.Reads++
	g.do(ctx, &state, req)
	return state
}

func (g *Generator) write(ctx context.Context, state State) State {
	switch g.Rand.Intn(3) {
	case 0:
		state.Stats.Creates++
		g.do(ctx, &state, Request{
			Method:   http.MethodPost,
			Path:     productsPath,
			Endpoint: productsPath,
			Body:     encodeProduct(RandomProduct(g.Rand)),
		})
	case 1:
		if len(state.ProductIDs) == 0 {
			return state
		}
		id := state.ProductIDs[g.Rand.Intn(len(state.ProductIDs))]
		state.Stats.Updates++
		g.do(ctx, &state, Request{
			Method:   http.MethodPut,
			Path:     fmt.Sprintf("%v/%v", productsPath, id),
			Endpoint: productPath,
			Body:     encodeProduct(RandomProduct(g.Rand)),
		})
	default:
		if len(state.ProductIDs) == 0 {
			return state
		}
		id := state.ProductIDs[g.Rand.Intn(len(state.ProductIDs))]
		state.Stats.Deletes++
		g.do(ctx, &state, Request{
			Method:   http.MethodDelete,
			Path:     fmt.Sprintf("%v/%v", productsPath, id),
			Endpoint: productPath,
		})
		state = state.withoutProduct(id)
	}
	return state
}

// do issues the request and records it in the traffic log and metrics.
// Failed requests and error responses count as errors
func (g *Generator) do(ctx context.Context, state *State, req Request) (*Response, error) {
	start := g.Clock.Now()
	resp, err := g.Requester.Do(ctx, req)
	elapsed := g.Clock.Since(start)
	fields := logrus.Fields{
		"method":   req.Method,
		"endpoint": req.Path,
		"duration": elapsed.String(),
	}
	var status int
	if err == nil {
		status = resp.StatusCode
		fields["status"] = status
	}
	g.Metrics.observe(req.Method, req.Endpoint, status, elapsed)
	if err != nil {
		state.Stats.Errors++
		g.TrafficLog.WithFields(fields).WithError(err).Warn("Request failed.")
		return nil, trace.Wrap(err)
	}
	if status >= http.StatusBadRequest {
		state.Stats.Errors++
		g.TrafficLog.WithFields(fields).Warn("Request returned error.")
		return nil, trace.BadParameter("%v %v returned %v", req.Method, req.Path, status)
	}
	g.TrafficLog.WithFields(fields).Info("Request completed.")
	return resp, nil
}
