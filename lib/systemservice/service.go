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

package systemservice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ServiceStatusActivating indicates that service is activating
	ServiceStatusActivating = "activating"
	// ServiceStatusFailed means that service has failed
	ServiceStatusFailed = "failed"
	// ServiceStatusActive means that service is active
	ServiceStatusActive = "active"
	// ServiceStatusInactive indicates that service is not running
	// Corresponds to exit code 3
	ServiceStatusInactive = "inactive"
	// ServiceStatusUnknown indicates that service does not exist or the status
	// could not be determined - depending on the command
	ServiceStatusUnknown = "unknown"
)

// ServiceSuffix specifies the suffix of the systemd service file
const ServiceSuffix = ".service"

// FullServiceName returns the full service name (incl. the suffix).
// It will append the service suffix if necessary
func FullServiceName(serviceName string) (nameWithSuffix string) {
	if filepath.Ext(serviceName) != ServiceSuffix {
		return fmt.Sprint(serviceName, ServiceSuffix)
	}
	return serviceName
}

// IsKnownStatus returns whether passed service status is a known status
func IsKnownStatus(s string) bool {
	switch s {
	case ServiceStatusActivating, ServiceStatusFailed, ServiceStatusActive, ServiceStatusInactive:
		return true
	}
	return false
}

// ServiceManager installs supervised services
type ServiceManager interface {
	// InstallService writes the unit file described by req, reloads the
	// manager configuration and enables the service. A stopped service is
	// started, a running one is restarted to pick up the new configuration
	InstallService(ctx context.Context, req NewServiceRequest) error
}

// NewServiceRequest describes a request to create a systemd service
type NewServiceRequest struct {
	// ServiceSpec defines the service
	ServiceSpec
	// Name is the service name, e.g. demo-app.service
	Name string `json:"Name"`
	// Description is a human-readable description of the service
	Description string `json:"Description"`
	// FileMode is the permission mask of the unit file.
	// Units carrying credentials should be private to root
	FileMode os.FileMode `json:"-"`
	// NoBlock means we won't block and wait until service starts
	NoBlock bool `json:"-"`
}

// Dependencies defines dependencies to other services
type Dependencies struct {
	// Requires sets hard dependency on other units
	Requires string `json:"Requires"`
	// Wants sets soft dependency on other units
	Wants string `json:"Wants"`
	// After orders the startup after other units
	After string `json:"After"`
}

// ServiceSpec is a generic service specification
type ServiceSpec struct {
	// Dependencies defines dependencies to other services
	Dependencies Dependencies `json:"Dependencies"`
	// StartCommand defines the command to execute when the service starts.
	// Use QuoteCommand to build it from an argument list
	StartCommand string `json:"StartCommand"`
	// Type is a service type
	Type string `json:"Type"`
	// User is a user name owning the process
	User string `json:"User"`
	// Restart sets restart policy
	Restart string `json:"Restart"`
	// RestartSec is a period between restarts
	RestartSec int `json:"RestartSec"`
	// TimeoutStartSec bounds the service startup in seconds
	TimeoutStartSec int `json:"TimeoutStartSec"`
	// WantedBy sets up basic target this service is wanted by,
	// changes install section
	WantedBy string `json:"WantedBy"`
	// Environment is environment variables to set for the service
	Environment map[string]string `json:"Environment"`
	// WorkingDirectory sets the working directory for executed processes.
	// See https://www.freedesktop.org/software/systemd/man/systemd.exec.html#Paths
	WorkingDirectory string `json:"WorkingDirectory"`
	// StandardOutput specifies where the service stdout is connected to,
	// e.g. append:/var/log/service.log
	StandardOutput string `json:"StandardOutput"`
	// StandardError specifies where the service stderr is connected to
	StandardError string `json:"StandardError"`
}

// AppendTo returns the output specification that appends to the file at path
func AppendTo(path string) string {
	return "append:" + path
}
