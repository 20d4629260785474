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
	"context"
	"sync"

	"github.com/gravitational/nodestrap/lib/systemservice"
)

// ServiceManager is the fake service manager that records installed services
type ServiceManager struct {
	sync.Mutex
	// Installed lists the install requests in order
	Installed []systemservice.NewServiceRequest
	// Errs maps service names to errors returned on install
	Errs map[string]error
}

// NewServiceManager returns a new fake service manager
func NewServiceManager() *ServiceManager {
	return &ServiceManager{
		Errs: make(map[string]error),
	}
}

// InstallService records the request
func (r *ServiceManager) InstallService(ctx context.Context, req systemservice.NewServiceRequest) error {
	r.Lock()
	defer r.Unlock()
	if err := r.Errs[req.Name]; err != nil {
		return err
	}
	r.Installed = append(r.Installed, req)
	return nil
}

// Service returns the install request of the service with the specified name
func (r *ServiceManager) Service(name string) (systemservice.NewServiceRequest, bool) {
	r.Lock()
	defer r.Unlock()
	for _, req := range r.Installed {
		if req.Name == name {
			return req, true
		}
	}
	return systemservice.NewServiceRequest{}, false
}
