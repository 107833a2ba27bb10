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
	"context"
	"time"
)

// Repository defines the interface for tenant storage
type Repository interface {
	// CreateWithAdmin inserts the tenant and attaches adminActorID's profile as
	// its admin in one transaction. Returns ErrAlreadyAttached and writes
	// nothing if that profile already has a tenant.
	CreateWithAdmin(ctx context.Context, t *Tenant, adminActorID string, joinedAt time.Time) error

	GetByID(ctx context.Context, id string) (*Tenant, error)

	// Update writes name and logo
	Update(ctx context.Context, t *Tenant) error
}
