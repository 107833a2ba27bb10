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
	"errors"
	"fmt"
	"time"

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/id"
	"github.com/opentrusty/tenantgate/internal/profile"
	"github.com/opentrusty/tenantgate/internal/sanitize"
)

// Service provides tenant management business logic
type Service struct {
	repo        Repository
	auditLogger audit.Logger
	now         func() time.Time
}

// NewService creates a new tenant service
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// CleanName sanitises and bounds an organization name
func CleanName(name string) (string, error) {
	clean := sanitize.Name(name, MaxNameLength)
	if clean == "" {
		return "", ErrInvalidName
	}
	return clean, nil
}

// CreateForAdmin creates a tenant and makes actorID its sole admin
func (s *Service) CreateForAdmin(ctx context.Context, actorID, name string) (*Tenant, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}

	now := s.now()
	t := &Tenant{
		ID:        id.NewUUIDv7(),
		Name:      clean,
		Status:    StatusActive,
		CreatedBy: actorID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateWithAdmin(ctx, t, actorID, now); err != nil {
		if errors.Is(err, ErrAlreadyAttached) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: t.ID,
		ActorID:  actorID,
		Resource: "tenant",
		Metadata: map[string]any{"name": t.Name},
	})

	return t, nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateDetails renames the acting admin's tenant and sets its logo
func (s *Service) UpdateDetails(ctx context.Context, acting *profile.Profile, name, logoURL string) (*Tenant, error) {
	if acting == nil || !acting.IsAdmin() || !acting.Active {
		return nil, ErrForbidden
	}

	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}

	t, err := s.repo.GetByID(ctx, acting.Tenant())
	if err != nil {
		return nil, err
	}

	t.Name = clean
	t.LogoURL = logoURL
	t.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantUpdated,
		TenantID: t.ID,
		ActorID:  acting.ActorID,
		Resource: "tenant",
		Metadata: map[string]any{"name": t.Name},
	})

	return t, nil
}
