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

package httplib

import (
	"net"
	"net/http"
	"time"

	"github.com/gravitational/nodestrap/lib/defaults"
)

// ClientOption sets custom HTTP client option
type ClientOption func(*http.Client)

// WithTimeout sets timeout
func WithTimeout(t time.Duration) ClientOption {
	return func(c *http.Client) {
		c.Timeout = t
	}
}

// WithDialTimeout sets dial timeout
func WithDialTimeout(t time.Duration) ClientOption {
	return func(c *http.Client) {
		c.Transport.(*http.Transport).DialContext = (&net.Dialer{Timeout: t}).DialContext
	}
}

// WithNoProxy disables use of the environment proxy.
// Link-local and loopback endpoints must never be reached through a proxy
func WithNoProxy() ClientOption {
	return func(c *http.Client) {
		c.Transport.(*http.Transport).Proxy = nil
	}
}

// WithTransportWrapper wraps the client transport with fn.
// It must be the last option since other options expect *http.Transport
func WithTransportWrapper(fn func(http.RoundTripper) http.RoundTripper) ClientOption {
	return func(c *http.Client) {
		c.Transport = fn(c.Transport)
	}
}

// NewClient creates a new HTTP client with the specified list of configuration
// options
func NewClient(options ...ClientOption) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: defaults.DialTimeout}).DialContext,
		IdleConnTimeout:     defaults.ConnectionIdleTimeout,
		MaxIdleConnsPerHost: defaults.MaxIdleConnsPerHost,
	}
	client := &http.Client{Transport: transport}
	for _, o := range options {
		o(client)
	}
	return client
}
