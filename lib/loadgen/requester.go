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
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gravitational/trace"
)

const maxResponseSize = 4 << 20

// Request is a request against the application API
type Request struct {
	// Method is the HTTP method
	Method string
	// Path is the request path with the query string
	Path string
	// Endpoint is the route template used in logs and metrics
	Endpoint string
	// Body is the JSON request body
	Body []byte
}

// Response is the application response
type Response struct {
	// StatusCode is the HTTP status code
	StatusCode int
	// Body is the response body
	Body []byte
}

// Requester issues requests against the application API
type Requester interface {
	// Do issues the request and returns the response
	Do(ctx context.Context, req Request) (*Response, error)
}

// NewHTTPRequester returns a requester sending requests to baseURL with client.
// Every request is bounded by timeout
func NewHTTPRequester(baseURL string, client *http.Client, timeout time.Duration) (*HTTPRequester, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, trace.BadParameter("invalid application URL %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, trace.BadParameter("unsupported application URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, trace.BadParameter("application URL %q has no host", baseURL)
	}
	return &HTTPRequester{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		timeout: timeout,
	}, nil
}

// HTTPRequester sends requests over HTTP
type HTTPRequester struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// Do issues the request and reads the response body
func (r *HTTPRequester) Do(ctx context.Context, req Request) (*Response, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequest(req.Method, r.baseURL+req.Path, body)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(httpReq.WithContext(ctx))
	if err != nil {
		return nil, trace.ConnectionProblem(err, "%v %v failed", req.Method, req.Path)
	}
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, trace.ConnectionProblem(err, "failed to read response to %v %v", req.Method, req.Path)
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
