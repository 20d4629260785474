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

package artifact

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/defaults"
	"github.com/gravitational/nodestrap/lib/httplib"
	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/cenkalti/backoff"
	"github.com/dustin/go-humanize"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// Config defines the artifact fetcher configuration
type Config struct {
	// S3 is the S3 API client
	S3 s3iface.S3API
	// Bucket is the artifact bucket name
	Bucket string
	// HTTPClient is used to download artifacts from public URLs
	HTTPClient *http.Client
	// AppPath is where the application package is written to
	AppPath string
	// AgentPath is where the instrumentation agent is written to
	AgentPath string
	// AgentKey is the artifact bucket key of the instrumentation agent
	AgentKey string
	// AgentURL is the public URL the agent is downloaded from
	// when the bucket does not have it
	AgentURL string
	// Backoff returns the retry interval for transient download failures
	Backoff func() backoff.BackOff
	// FieldLogger is the logger
	logrus.FieldLogger
}

// CheckAndSetDefaults validates the config and sets default values
func (r *Config) CheckAndSetDefaults() error {
	if r.S3 == nil {
		return trace.BadParameter("missing S3 client")
	}
	if r.Bucket == "" {
		return trace.BadParameter("missing artifact bucket")
	}
	if r.HTTPClient == nil {
		r.HTTPClient = httplib.NewClient(httplib.WithTimeout(defaults.DownloadTimeout))
	}
	if r.AppPath == "" {
		r.AppPath = defaults.AppPath
	}
	if r.AgentPath == "" {
		r.AgentPath = defaults.AgentPath
	}
	if r.AgentKey == "" {
		r.AgentKey = defaults.AgentKey
	}
	if r.AgentURL == "" {
		r.AgentURL = defaults.AgentFallbackURL
	}
	if r.Backoff == nil {
		r.Backoff = func() backoff.BackOff {
			return utils.NewExponentialBackOff(defaults.DownloadRetryTimeout)
		}
	}
	if r.FieldLogger == nil {
		r.FieldLogger = logrus.WithField(trace.Component, constants.ComponentArtifact)
	}
	return nil
}

// NewFetcher returns a new artifact fetcher
func NewFetcher(config Config) (*Fetcher, error) {
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Fetcher{Config: config}, nil
}

// Fetcher retrieves the application package and the instrumentation agent
type Fetcher struct {
	Config
}

// Result describes a downloaded artifact
type Result struct {
	// Kind is the artifact role
	Kind Kind `json:"kind"`
	// Source describes where the artifact was downloaded from
	Source string `json:"source"`
	// Path is the local path of the artifact
	Path string `json:"path"`
	// Size is the artifact size in bytes
	Size int64 `json:"size"`
}

// List returns the keys of all objects in the artifact bucket.
// An empty bucket yields an empty non-nil list
func (r *Fetcher) List(ctx context.Context) ([]string, error) {
	keys := []string{}
	err := r.S3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.Bucket),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, object := range page.Contents {
			keys = append(keys, aws.StringValue(object.Key))
		}
		return true
	})
	if err != nil {
		return nil, trace.Wrap(utils.ConvertS3Error(err), "failed to list bucket %v", r.Bucket)
	}
	r.WithField("bucket", r.Bucket).Debugf("Listed %v objects.", len(keys))
	return keys, nil
}

// FetchApplication downloads the application package selected from keys
func (r *Fetcher) FetchApplication(ctx context.Context, keys []string) (*Result, error) {
	key, err := SelectApplication(keys)
	if err != nil {
		return nil, trace.Wrap(err, "no application package in bucket %v", r.Bucket)
	}
	ref := Reference{Bucket: r.Bucket, Key: key, Kind: KindApplication}
	return r.Download(ctx, ref.Kind, Chain{NewS3Source(r.S3, ref)}, r.AppPath)
}

// FetchAgent downloads the instrumentation agent from the artifact bucket
// falling back to the public release.
// keys is the bucket listing, nil if the listing is unavailable
func (r *Fetcher) FetchAgent(ctx context.Context, keys []string) (*Result, error) {
	var sources Chain
	if keys == nil || contains(keys, r.AgentKey) {
		sources = append(sources, NewS3Source(r.S3, Reference{Bucket: r.Bucket, Key: r.AgentKey, Kind: KindAgent}))
	} else {
		r.WithField("key", r.AgentKey).Info("Agent is not in the artifact bucket, will use public release.")
	}
	sources = append(sources, NewURLSource(r.HTTPClient, r.AgentURL))
	return r.Download(ctx, KindAgent, sources, r.AgentPath)
}

// Download writes the artifact to path from the first source in sources that has it.
// Each source is retried on transient errors before moving to the next one.
// The file at path is replaced atomically
func (r *Fetcher) Download(ctx context.Context, kind Kind, sources Chain, path string) (*Result, error) {
	if len(sources) == 0 {
		return nil, trace.BadParameter("no sources for %v", kind)
	}
	var errors []error
	notFound := true
	for _, source := range sources {
		logger := r.WithField("source", source.String())
		logger.Infof("Downloading %v.", kind)
		var n int64
		err := utils.RetryTransient(ctx, r.Backoff(), func() error {
			return trace.Wrap(utils.CopyFileAtomic(path, defaults.SharedReadMask, func(f *os.File) (err error) {
				n, err = source.Fetch(ctx, f)
				return trace.Wrap(err)
			}))
		})
		if err == nil {
			logger.Infof("Download complete: %v %v.", path, humanize.Bytes(uint64(n)))
			return &Result{
				Kind:   kind,
				Source: source.String(),
				Path:   path,
				Size:   n,
			}, nil
		}
		if ctx.Err() != nil {
			return nil, trace.Wrap(ctx.Err())
		}
		logger.WithError(err).Warnf("Failed to download %v.", kind)
		errors = append(errors, err)
		notFound = notFound && trace.IsNotFound(err)
	}
	if notFound {
		return nil, trace.NotFound("%v not found in %v", kind, sources)
	}
	return nil, trace.NewAggregate(errors...)
}

// SelectApplication returns the application package key among keys:
// the lexicographically last key with the package suffix outside of
// the agent prefix
func SelectApplication(keys []string) (string, error) {
	var candidates []string
	for _, key := range keys {
		if IsApplicationPackage(key) {
			candidates = append(candidates, key)
		}
	}
	if len(candidates) == 0 {
		return "", trace.NotFound("no keys with suffix %v", defaults.PackageSuffix)
	}
	sort.Strings(candidates)
	return candidates[len(candidates)-1], nil
}

// IsApplicationPackage returns true if key names an application package
func IsApplicationPackage(key string) bool {
	return strings.HasSuffix(key, defaults.PackageSuffix) &&
		!strings.HasPrefix(key, defaults.AgentPrefix)
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
