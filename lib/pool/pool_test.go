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

package pool

import (
	"context"
	"testing"
	"time"

	"github.com/gravitational/nodestrap/lib/testutils"
	"github.com/gravitational/nodestrap/lib/utils"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/elbv2"
	"github.com/cenkalti/backoff"
	"github.com/gravitational/trace"
	. "gopkg.in/check.v1"
)

func TestPool(t *testing.T) { TestingT(t) }

type PoolSuite struct {
	elb       *testutils.ELBV2
	registrar *Registrar
}

var _ = Suite(&PoolSuite{})

const targetGroupARN = "arn:aws:elasticloadbalancing:us-east-1:123456789012:targetgroup/demo/0123456789abcdef"

func (s *PoolSuite) SetUpTest(c *C) {
	s.elb = testutils.NewELBV2()
	s.elb.Targets[targetGroupARN] = make(map[string]int64)
	var err error
	s.registrar, err = NewRegistrar(Config{
		Client: s.elb,
		Backoff: func() backoff.BackOff {
			return utils.NewConstantBackOff(time.Millisecond, 100*time.Millisecond)
		},
	})
	c.Assert(err, IsNil)
}

func (s *PoolSuite) TestRegisterIsIdempotent(c *C) {
	req := RegistrationRequest{
		TargetGroupARN: targetGroupARN,
		InstanceID:     "i-0123456789abcdef0",
		Port:           8080,
	}
	c.Assert(s.registrar.Register(context.TODO(), req), IsNil)
	c.Assert(s.registrar.Register(context.TODO(), req), IsNil)
	c.Assert(s.elb.Targets[targetGroupARN], DeepEquals, map[string]int64{
		"i-0123456789abcdef0": 8080,
	})
	c.Assert(s.elb.Calls, Equals, 2)
}

func (s *PoolSuite) TestRegisterRetriesThrottling(c *C) {
	s.elb.Errs = []error{
		awserr.New("Throttling", "Rate exceeded", nil),
		awserr.NewRequestFailure(awserr.New("ServiceUnavailable", "unavailable", nil), 503, "req-1"),
	}
	err := s.registrar.Register(context.TODO(), RegistrationRequest{
		TargetGroupARN: targetGroupARN,
		InstanceID:     "i-0123456789abcdef0",
		Port:           8080,
	})
	c.Assert(err, IsNil)
	c.Assert(s.elb.Calls, Equals, 3)
}

func (s *PoolSuite) TestRegisterMissingTargetGroup(c *C) {
	err := s.registrar.Register(context.TODO(), RegistrationRequest{
		TargetGroupARN: targetGroupARN + "-missing",
		InstanceID:     "i-0123456789abcdef0",
		Port:           8080,
	})
	c.Assert(trace.IsNotFound(err), Equals, true)
	c.Assert(s.elb.Calls, Equals, 1)
}

func (s *PoolSuite) TestRegisterValidatesRequest(c *C) {
	err := s.registrar.Register(context.TODO(), RegistrationRequest{TargetGroupARN: targetGroupARN, Port: 8080})
	c.Assert(trace.IsBadParameter(err), Equals, true)
	c.Assert(s.elb.Calls, Equals, 0)
}

func (s *PoolSuite) TestConvertError(c *C) {
	c.Assert(ConvertError(nil), IsNil)
	c.Assert(trace.IsBadParameter(ConvertError(awserr.New(elbv2.ErrCodeInvalidTargetException, "bad target", nil))), Equals, true)
	c.Assert(trace.IsLimitExceeded(ConvertError(awserr.New(elbv2.ErrCodeTooManyTargetsException, "too many", nil))), Equals, true)
}
