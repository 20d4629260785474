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
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/elbv2"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
)

// SecretsManager is the mocked Secrets Manager API client
type SecretsManager struct {
	sync.Mutex
	// Secrets maps secret ARNs to secret strings
	Secrets map[string]string
	// Err is returned from every call when set
	Err error
	// Calls counts the API calls made
	Calls int
}

// NewSecretsManager returns a new fake Secrets Manager
func NewSecretsManager() *SecretsManager {
	return &SecretsManager{
		Secrets: make(map[string]string),
	}
}

// GetSecretValueWithContext returns the secret string stored under the input secret ID
func (s *SecretsManager) GetSecretValueWithContext(ctx aws.Context, input *secretsmanager.GetSecretValueInput, options ...request.Option) (*secretsmanager.GetSecretValueOutput, error) {
	s.Lock()
	defer s.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	secret, ok := s.Secrets[aws.StringValue(input.SecretId)]
	if !ok {
		return nil, awserr.New(secretsmanager.ErrCodeResourceNotFoundException,
			"Secrets Manager can't find the specified secret.", nil)
	}
	return &secretsmanager.GetSecretValueOutput{
		ARN:          input.SecretId,
		SecretString: aws.String(secret),
	}, nil
}

// ELBV2 is the mocked Elastic Load Balancing API client
type ELBV2 struct {
	sync.Mutex
	// Targets maps target group ARNs to registered targets keyed by target ID
	Targets map[string]map[string]int64
	// Errs are returned from the consecutive calls before the calls succeed
	Errs []error
	// Calls counts the API calls made
	Calls int
}

// NewELBV2 returns a new fake Elastic Load Balancing API
func NewELBV2() *ELBV2 {
	return &ELBV2{
		Targets: make(map[string]map[string]int64),
	}
}

// RegisterTargetsWithContext adds the input targets to the target group.
// Registering an already registered target is a no-op
func (s *ELBV2) RegisterTargetsWithContext(ctx aws.Context, input *elbv2.RegisterTargetsInput, options ...request.Option) (*elbv2.RegisterTargetsOutput, error) {
	s.Lock()
	defer s.Unlock()
	s.Calls++
	if len(s.Errs) != 0 {
		err := s.Errs[0]
		s.Errs = s.Errs[1:]
		return nil, err
	}
	arn := aws.StringValue(input.TargetGroupArn)
	if _, ok := s.Targets[arn]; !ok {
		return nil, awserr.New(elbv2.ErrCodeTargetGroupNotFoundException, "One or more target groups not found", nil)
	}
	for _, target := range input.Targets {
		s.Targets[arn][aws.StringValue(target.Id)] = aws.Int64Value(target.Port)
	}
	return &elbv2.RegisterTargetsOutput{}, nil
}
