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

package secrets

import (
	"context"
	"fmt"
	"testing"

	"github.com/gravitational/nodestrap/lib/testutils"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/gravitational/trace"
	. "gopkg.in/check.v1"
)

func TestSecrets(t *testing.T) { TestingT(t) }

type SecretsSuite struct{}

var _ = Suite(&SecretsSuite{})

const secretARN = "arn:aws:secretsmanager:us-east-1:123456789012:secret:demo-db-AbCdEf"

func (s *SecretsSuite) TestResolve(c *C) {
	client := testutils.NewSecretsManager()
	client.Secrets[secretARN] = `{
  "dbClusterIdentifier": "demo-cluster",
  "engine": "mysql",
  "host": "demo-cluster.cluster-abc.us-east-1.rds.amazonaws.com",
  "port": 3306,
  "username": "admin",
  "password": "s3cr%t pa$$"
}`
	resolver, err := NewResolver(Config{Client: client})
	c.Assert(err, IsNil)

	cred, err := resolver.Resolve(context.TODO(), secretARN)
	c.Assert(err, IsNil)
	c.Assert(*cred, DeepEquals, DatabaseCredential{
		Host:     "demo-cluster.cluster-abc.us-east-1.rds.amazonaws.com",
		Port:     3306,
		DBName:   "products_db",
		Username: "admin",
		Password: "s3cr%t pa$$",
	})
	c.Assert(cred.JDBCURL(), Equals, "jdbc:mysql://demo-cluster.cluster-abc.us-east-1.rds.amazonaws.com:3306/products_db")
}

func (s *SecretsSuite) TestResolveMissingSecret(c *C) {
	resolver, err := NewResolver(Config{Client: testutils.NewSecretsManager()})
	c.Assert(err, IsNil)

	_, err = resolver.Resolve(context.TODO(), secretARN)
	c.Assert(trace.IsNotFound(err), Equals, true)

	_, err = resolver.Resolve(context.TODO(), "")
	c.Assert(trace.IsBadParameter(err), Equals, true)
}

func (s *SecretsSuite) TestResolveAccessDenied(c *C) {
	client := testutils.NewSecretsManager()
	client.Err = awserr.New("AccessDeniedException", "not authorized", nil)
	resolver, err := NewResolver(Config{Client: client})
	c.Assert(err, IsNil)

	_, err = resolver.Resolve(context.TODO(), secretARN)
	c.Assert(trace.IsAccessDenied(err), Equals, true)
	c.Assert(client.Calls, Equals, 1)
}

func (s *SecretsSuite) TestParseCredential(c *C) {
	tcs := []struct {
		comment string
		doc     string
		port    int
		dbName  string
		err     bool
	}{
		{comment: "string port", doc: `{"host":"db","username":"u","password":"p","port":"3307","dbname":"other"}`, port: 3307, dbName: "other"},
		{comment: "no port", doc: `{"host":"db","username":"u","password":"p"}`, port: 3306, dbName: "products_db"},
		{comment: "missing host", doc: `{"username":"u","password":"p"}`, err: true},
		{comment: "missing password", doc: `{"host":"db","username":"u"}`, err: true},
		{comment: "invalid port", doc: `{"host":"db","username":"u","password":"p","port":"db"}`, err: true},
		{comment: "not json", doc: `host=db`, err: true},
	}
	for _, tc := range tcs {
		comment := Commentf(tc.comment)
		cred, err := ParseCredential([]byte(tc.doc))
		if tc.err {
			c.Assert(trace.IsBadParameter(err), Equals, true, comment)
			continue
		}
		c.Assert(err, IsNil, comment)
		c.Assert(cred.Port, Equals, tc.port, comment)
		c.Assert(cred.DBName, Equals, tc.dbName, comment)
	}
}

func (s *SecretsSuite) TestCredentialIsRedacted(c *C) {
	cred := DatabaseCredential{Host: "db", Port: 3306, DBName: "products_db", Username: "admin", Password: "hunter2"}
	for _, out := range []string{
		cred.String(),
		fmt.Sprintf("%v", cred),
		fmt.Sprintf("%+v", cred),
		fmt.Sprintf("%#v", cred),
		fmt.Sprintf("%v", &cred),
	} {
		c.Assert(out, Not(Matches), ".*hunter2.*")
		c.Assert(out, Matches, ".*admin.*")
	}
}
