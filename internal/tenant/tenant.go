// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tenant

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrInvalidName     = errors.New("organization name is required")
	ErrAlreadyAttached = errors.New("profile already belongs to a tenant")
	ErrForbidden       = errors.New("only tenant admins may change the tenant")
)

// Status constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// MaxNameLength bounds the organization name
const MaxNameLength = 200

// Tenant is a workspace that profiles join
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	LogoURL   string    `json:"logo_url,omitempty"`
	Status    string    `json:"status"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
