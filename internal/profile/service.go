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

package profile

import (
	"context"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/locale"
	"github.com/opentrusty/tenantgate/internal/sanitize"
)

// MaxDisplayName bounds the stored display name
const MaxDisplayName = 150

var ErrInvalidTimezone = errors.New("invalid timezone")

// Settings are the self-service profile preferences
type Settings struct {
	DisplayName      string
	Locale           string
	Timezone         string
	Country          string
	Theme            Theme
	MarketingConsent bool
}

// Service provides self-service profile operations
type Service struct {
	repo        Repository
	auditLogger audit.Logger
}

// NewService creates a new profile service
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{repo: repo, auditLogger: auditLogger}
}

// Get retrieves the profile of an actor
func (s *Service) Get(ctx context.Context, actorID string) (*Profile, error) {
	return s.repo.GetByActorID(ctx, actorID)
}

// UpdateSettings applies the settings form. Membership fields are never touched.
func (s *Service) UpdateSettings(ctx context.Context, actorID string, in Settings) (*Profile, error) {
	p, err := s.repo.GetByActorID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if _, err := ParseTheme(string(in.Theme)); err != nil {
		return nil, err
	}
	tz, err := NormalizeTimezone(in.Timezone)
	if err != nil {
		return nil, err
	}

	if name := sanitize.Name(in.DisplayName, MaxDisplayName); name != "" {
		p.DisplayName = name
	}
	p.Locale = locale.Match(in.Locale)
	p.Timezone = tz
	p.Country = in.Country
	p.Theme = in.Theme
	p.MarketingConsent = in.MarketingConsent
	p.UpdatedBy = &actorID

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeProfileUpdated,
		TenantID: p.Tenant(),
		ActorID:  actorID,
		Resource: "profile",
	})

	return p, nil
}

// SetTheme persists the theme preference only
func (s *Service) SetTheme(ctx context.Context, actorID string, theme Theme) error {
	if _, err := ParseTheme(string(theme)); err != nil {
		return err
	}
	p, err := s.repo.GetByActorID(ctx, actorID)
	if err != nil {
		return err
	}
	if p.Theme == theme {
		return nil
	}
	p.Theme = theme
	return s.repo.Update(ctx, p)
}

// NormalizeTimezone validates an IANA zone name; empty means UTC.
func NormalizeTimezone(tz string) (string, error) {
	if tz == "" {
		return DefaultTimezone, nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	return tz, nil
}
