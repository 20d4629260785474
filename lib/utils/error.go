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

package utils

import (
	"context"
	"net"
	"net/url"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/gravitational/trace"
)

// IsTransientError returns true if the specified error is worth
// retrying: network failures, throttling and server-side AWS errors
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if trace.IsConnectionProblem(err) || trace.IsRetryError(err) {
		return true
	}
	origErr := trace.Unwrap(err)
	if origErr == context.Canceled {
		return false
	}
	if reqErr, ok := origErr.(awserr.RequestFailure); ok {
		if reqErr.StatusCode() >= 500 {
			return true
		}
	}
	if awsErr, ok := origErr.(awserr.Error); ok {
		if request.IsErrorThrottle(awsErr) || request.IsErrorRetryable(awsErr) {
			return true
		}
		return awsErr.Code() == request.ErrCodeRequestError
	}
	switch origErr.(type) {
	case net.Error, *url.Error:
		return true
	}
	return false
}

// ConvertS3Error converts an error from AWS S3 API to an appropriate trace error
func ConvertS3Error(err error) error {
	if err == nil {
		return nil
	}
	awsErr, ok := trace.Unwrap(err).(awserr.Error)
	if !ok {
		return err
	}
	switch awsErr.Code() {
	case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
		return trace.NotFound(awsErr.Message())
	case "AccessDenied", "Forbidden":
		return trace.AccessDenied(awsErr.Message())
	}
	if IsTransientError(awsErr) {
		return trace.ConnectionProblem(awsErr, awsErr.Message())
	}
	return err
}

// ConvertHTTPStatus maps a non-successful HTTP status to a trace error
func ConvertHTTPStatus(code int, message string) error {
	switch {
	case code == 404:
		return trace.NotFound(message)
	case code == 401 || code == 403:
		return trace.AccessDenied(message)
	case code == 429 || code >= 500:
		return trace.ConnectionProblem(nil, message)
	case code >= 400:
		return trace.BadParameter(message)
	}
	return nil
}
