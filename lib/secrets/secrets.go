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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gravitational/nodestrap/lib/constants"
	"github.com/gravitational/nodestrap/lib/defaults"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// SecretsManager is an interface representing AWS Secrets Manager
type SecretsManager interface {
	GetSecretValueWithContext(aws.Context, *secretsmanager.GetSecretValueInput, ...request.Option) (*secretsmanager.GetSecretValueOutput, error)
}

// DatabaseCredential is the database connection credential.
// It is only kept in memory
type DatabaseCredential struct {
	// Host is the database endpoint host name
	Host string
	// Port is the database port
	Port int
	// DBName is the database schema name
	DBName string
	// Username is the database user
	Username string
	// Password is the database password
	Password string
}

// String returns the credential with the password redacted
func (r DatabaseCredential) String() string {
	return fmt.Sprintf("DatabaseCredential(user=%v, host=%v, port=%v, db=%v, password=%v)",
		r.Username, r.Host, r.Port, r.DBName, constants.Redacted)
}

// GoString redacts the password from %#v output
func (r DatabaseCredential) GoString() string {
	return r.String()
}

// JDBCURL returns the MySQL JDBC connection URL for the credential
func (r DatabaseCredential) JDBCURL() string {
	return fmt.Sprintf("jdbc:mysql://%v:%v/%v", r.Host, r.Port, r.DBName)
}

// Config defines the credential resolver configuration
type Config struct {
	// Client is the Secrets Manager client
	Client SecretsManager
	// FieldLogger is the logger
	logrus.FieldLogger
}

// CheckAndSetDefaults validates the config and sets default values
func (r *Config) CheckAndSetDefaults() error {
	if r.Client == nil {
		return trace.BadParameter("missing Secrets Manager client")
	}
	if r.FieldLogger == nil {
		r.FieldLogger = logrus.WithField(trace.Component, constants.ComponentSecrets)
	}
	return nil
}

// NewResolver returns a new database credential resolver
func NewResolver(config Config) (*Resolver, error) {
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Resolver{Config: config}, nil
}

// Resolver retrieves database credentials from Secrets Manager
type Resolver struct {
	Config
}

// Resolve fetches the secret identified with secretARN and decodes
// the database credential from it
func (r *Resolver) Resolve(ctx context.Context, secretARN string) (*DatabaseCredential, error) {
	if secretARN == "" {
		return nil, trace.BadParameter("missing database secret ARN")
	}
	out, err := r.Client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return nil, trace.Wrap(ConvertError(err), "failed to retrieve secret %v", secretARN)
	}
	if out.SecretString == nil {
		return nil, trace.BadParameter("secret %v has no string value", secretARN)
	}
	cred, err := ParseCredential([]byte(aws.StringValue(out.SecretString)))
	if err != nil {
		return nil, trace.Wrap(err, "failed to decode secret %v", secretARN)
	}
	r.WithFields(logrus.Fields{
		"user": cred.Username,
		"host": cred.Host,
	}).Info("Resolved database credential.")
	return cred, nil
}

type secretDocument struct {
	Host     string          `json:"host"`
	Port     json.RawMessage `json:"port,omitempty"`
	DBName   string          `json:"dbname,omitempty"`
	Username string          `json:"username"`
	Password string          `json:"password"`
}

// ParseCredential decodes the credential from the JSON secret document.
// host, username and password are mandatory while port and dbname
// default to the MySQL port and the application schema
func ParseCredential(data []byte) (*DatabaseCredential, error) {
	var doc secretDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, trace.BadParameter("secret is not a valid JSON document")
	}
	var missing []string
	if doc.Host == "" {
		missing = append(missing, "host")
	}
	if doc.Username == "" {
		missing = append(missing, "username")
	}
	if doc.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) != 0 {
		return nil, trace.BadParameter("secret is missing required fields: %v", strings.Join(missing, ", "))
	}
	port, err := parsePort(doc.Port)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	cred := &DatabaseCredential{
		Host:     doc.Host,
		Port:     port,
		DBName:   doc.DBName,
		Username: doc.Username,
		Password: doc.Password,
	}
	if cred.DBName == "" {
		cred.DBName = defaults.DatabaseName
	}
	return cred, nil
}

// parsePort accepts the port either as a JSON number or a string
func parsePort(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return defaults.DatabasePort, nil
	}
	value := strings.Trim(string(raw), `"`)
	port, err := strconv.Atoi(value)
	if err != nil || port <= 0 || port > 65535 {
		return 0, trace.BadParameter("invalid database port %v", string(raw))
	}
	return port, nil
}

// ConvertError converts an error from AWS Secrets Manager API to an appropriate trace error
func ConvertError(err error) error {
	if err == nil {
		return nil
	}
	awsErr, ok := err.(awserr.Error)
	if !ok {
		return err
	}
	switch awsErr.Code() {
	case secretsmanager.ErrCodeResourceNotFoundException:
		return trace.NotFound(awsErr.Message())
	case secretsmanager.ErrCodeDecryptionFailure, "AccessDeniedException":
		return trace.AccessDenied(awsErr.Message())
	case secretsmanager.ErrCodeInvalidParameterException, secretsmanager.ErrCodeInvalidRequestException:
		return trace.BadParameter(awsErr.Message())
	case secretsmanager.ErrCodeInternalServiceError:
		return trace.ConnectionProblem(awsErr, awsErr.Message())
	}
	return err
}
