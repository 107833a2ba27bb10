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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/tenantgate/internal/profile"
	"github.com/opentrusty/tenantgate/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// CreateWithAdmin inserts the tenant and attaches the admin's profile.
// The profile update only matches while tenant_id is still NULL, so two
// concurrent step 2 submissions cannot both attach.
func (r *TenantRepository) CreateWithAdmin(ctx context.Context, t *tenant.Tenant, adminActorID string, joinedAt time.Time) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tenants (id, name, logo_url, status, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, t.ID, t.Name, t.LogoURL, t.Status, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert tenant: %w", err)
		}

		result, err := tx.Exec(ctx, `
			UPDATE profiles SET
				tenant_id = $2,
				role = $3,
				joined_at = $4,
				revoked_at = NULL,
				active = TRUE,
				updated_at = $4,
				updated_by = $1
			WHERE actor_id = $1 AND tenant_id IS NULL
		`, adminActorID, t.ID, string(profile.RoleAdmin), joinedAt)
		if err != nil {
			return fmt.Errorf("failed to attach tenant admin: %w", err)
		}
		if result.RowsAffected() == 0 {
			return tenant.ErrAlreadyAttached
		}
		return nil
	})
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	var createdBy *string
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, logo_url, status, created_by, created_at, updated_at
		FROM tenants WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.LogoURL, &t.Status, &createdBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	if createdBy != nil {
		t.CreatedBy = *createdBy
	}
	return &t, nil
}

// Update writes name and logo
func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE tenants SET name = $2, logo_url = $3, updated_at = $4 WHERE id = $1
	`, t.ID, t.Name, t.LogoURL, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}
