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

package testutils

import (
	"bytes"
	"io/ioutil"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3 is the mocked S3 API client
type S3 struct {
	s3iface.S3API
	sync.Mutex
	// Objects is the objects stored in the fake S3
	Objects map[string]S3Object
	// PageSize limits the number of keys returned per listing page
	PageSize int
	// Err is returned from every call when set
	Err error
	// Calls counts the API calls made
	Calls int
}

// S3Object represents a file object stored in the fake S3
type S3Object struct {
	// Data is the file data
	Data []byte
	// Created is the file creation timestamp
	Created time.Time
	// ContentType is the object content type
	ContentType string
}

// NewS3 returns a new fake S3 implementation
func NewS3() *S3 {
	return &S3{
		Objects: make(map[string]S3Object),
	}
}

// Add stores data under key
func (s *S3) Add(key string, data []byte) {
	s.Lock()
	defer s.Unlock()
	s.Objects[key] = S3Object{Data: data, Created: time.Now()}
}

// Object returns the object stored under key
func (s *S3) Object(key string) (S3Object, bool) {
	s.Lock()
	defer s.Unlock()
	object, ok := s.Objects[key]
	return object, ok
}

// ListObjectsV2PagesWithContext lists the objects in key order, PageSize keys per page
func (s *S3) ListObjectsV2PagesWithContext(ctx aws.Context, input *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, options ...request.Option) error {
	s.Lock()
	s.Calls++
	if s.Err != nil {
		s.Unlock()
		return s.Err
	}
	var keys []string
	for key := range s.Objects {
		if prefix := aws.StringValue(input.Prefix); prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var objects []*s3.Object
	for _, key := range keys {
		object := s.Objects[key]
		objects = append(objects, &s3.Object{
			Key:          aws.String(key),
			LastModified: aws.Time(object.Created),
			Size:         aws.Int64(int64(len(object.Data))),
		})
	}
	s.Unlock()

	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	for start := 0; ; start += pageSize {
		end := start + pageSize
		if end > len(objects) {
			end = len(objects)
		}
		page := objects[start:end]
		lastPage := end == len(objects)
		out := &s3.ListObjectsV2Output{
			Contents:    page,
			KeyCount:    aws.Int64(int64(len(page))),
			Name:        input.Bucket,
			Prefix:      input.Prefix,
			IsTruncated: aws.Bool(!lastPage),
		}
		if !fn(out, lastPage) || lastPage {
			return nil
		}
	}
}

// GetObjectWithContext returns the object stored under the input key
func (s *S3) GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, options ...request.Option) (*s3.GetObjectOutput, error) {
	s.Lock()
	defer s.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	object, ok := s.Objects[aws.StringValue(input.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{
		Body:          ioutil.NopCloser(bytes.NewReader(object.Data)),
		ContentLength: aws.Int64(int64(len(object.Data))),
	}, nil
}

// PutObjectWithContext stores the input body under the input key
func (s *S3) PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, options ...request.Option) (*s3.PutObjectOutput, error) {
	s.Lock()
	defer s.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	data, err := ioutil.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	s.Objects[aws.StringValue(input.Key)] = S3Object{
		Data:        data,
		Created:     time.Now(),
		ContentType: aws.StringValue(input.ContentType),
	}
	return &s3.PutObjectOutput{}, nil
}
