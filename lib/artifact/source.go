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
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/gravitational/trace"
)

// Kind identifies the role of an artifact
type Kind string

const (
	// KindApplication is the deployable application package
	KindApplication Kind = "application"
	// KindAgent is the instrumentation agent attached to the application
	KindAgent Kind = "agent"
)

// Reference identifies an artifact in the artifact bucket
type Reference struct {
	// Bucket is the bucket name
	Bucket string `json:"bucket"`
	// Key is the object key
	Key string `json:"key"`
	// Kind is the artifact role
	Kind Kind `json:"kind"`
}

// String returns the s3:// URL of the artifact
func (r Reference) String() string {
	return fmt.Sprintf("s3://%v/%v", r.Bucket, r.Key)
}

// Source is a location an artifact can be downloaded from
type Source interface {
	// Fetch writes the artifact into f and returns the number of bytes written.
	// f is positioned at the beginning and empty.
	// Returns trace.NotFound if the source does not have the artifact
	Fetch(ctx context.Context, f *os.File) (int64, error)
	// String describes the source
	String() string
}

// NewS3Source returns a source downloading the referenced object with client
func NewS3Source(client s3iface.S3API, ref Reference) *S3Source {
	return &S3Source{
		Reference:  ref,
		downloader: s3manager.NewDownloaderWithClient(client),
	}
}

// S3Source downloads an object from the artifact bucket
type S3Source struct {
	Reference
	downloader *s3manager.Downloader
}

// Fetch downloads the object into f
func (r *S3Source) Fetch(ctx context.Context, f *os.File) (int64, error) {
	n, err := r.downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(r.Key),
	})
	if err != nil {
		return n, trace.Wrap(utils.ConvertS3Error(err))
	}
	return n, nil
}

// NewURLSource returns a source downloading the artifact from url with client
func NewURLSource(client *http.Client, url string) *URLSource {
	return &URLSource{
		client: client,
		url:    url,
	}
}

// URLSource downloads an artifact over HTTP(S)
type URLSource struct {
	client *http.Client
	url    string
}

// Fetch downloads the artifact into f
func (r *URLSource) Fetch(ctx context.Context, f *os.File) (int64, error) {
	req, err := http.NewRequest(http.MethodGet, r.url, nil)
	if err != nil {
		return 0, trace.Wrap(err)
	}
	resp, err := r.client.Do(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return 0, trace.Wrap(ctx.Err())
		}
		return 0, trace.ConnectionProblem(err, "failed to download %v", r.url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, trace.Wrap(utils.ConvertHTTPStatus(resp.StatusCode,
			fmt.Sprintf("download of %v failed: %v", r.url, resp.Status)))
	}
	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return n, trace.ConnectionProblem(err, "failed to download %v", r.url)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, trace.ConnectionProblem(nil, "short download of %v: %v of %v bytes",
			r.url, n, resp.ContentLength)
	}
	return n, nil
}

// String returns the source URL
func (r *URLSource) String() string {
	return r.url
}

// SourceFunc wraps a function as a Source
type SourceFunc struct {
	// Name describes the source
	Name string
	// Func fetches the artifact
	Func func(ctx context.Context, f *os.File) (int64, error)
}

// Fetch invokes r.Func
func (r SourceFunc) Fetch(ctx context.Context, f *os.File) (int64, error) {
	return r.Func(ctx, f)
}

// String returns the source name
func (r SourceFunc) String() string {
	return r.Name
}

// Chain is an ordered list of sources tried in turn
type Chain []Source

// String lists the sources in the chain
func (r Chain) String() string {
	names := make([]string, 0, len(r))
	for _, source := range r {
		names = append(names, source.String())
	}
	return strings.Join(names, " -> ")
}
