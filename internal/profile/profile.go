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

// Package profile holds per-actor onboarding and tenant membership state.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Domain errors
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidTheme    = errors.New("invalid theme")
	ErrAlreadyAttached = errors.New("profile already belongs to a tenant")
)

// Role is a profile's standing inside its tenant.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole converts a stored or submitted value into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleMember:
		return RoleMember, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Theme is the UI theme preference.
type Theme string

const (
	ThemeCorporate Theme = "corporate"
	ThemeNight     Theme = "night"
	ThemeSystem    Theme = "system"
)

// ParseTheme converts a submitted value into a Theme.
func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeCorporate, ThemeNight, ThemeSystem:
		return Theme(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTheme, s)
	}
}

// Defaults for a fresh profile
const (
	DefaultLocale   = "en"
	DefaultTimezone = "UTC"
)

// Profile is the one-to-one extension of an actor.
//
// TenantID, once set, is never cleared or reassigned. CompletedAt, once set,
// is never cleared. Role is only meaningful while TenantID is set.
type Profile struct {
	ActorID          string
	DisplayName      string
	Locale           string
	Timezone         string
	Country          string
	CompletedAt      *time.Time
	Theme            Theme
	MarketingConsent bool
	TenantID         *string
	Role             Role
	JoinedAt         *time.Time
	RevokedAt        *time.Time
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	UpdatedBy        *string
	DeletedAt        *time.Time
	DeletedBy        *string
}

// New returns the default profile created alongside an actor.
func New(actorID, displayName string) *Profile {
	return &Profile{
		ActorID:     actorID,
		DisplayName: displayName,
		Locale:      DefaultLocale,
		Timezone:    DefaultTimezone,
		Theme:       ThemeSystem,
		Role:        RoleMember,
		Active:      true,
	}
}

// HasTenant reports whether the profile is attached to a tenant.
func (p *Profile) HasTenant() bool {
	return p.TenantID != nil && *p.TenantID != ""
}

// Tenant returns the tenant ID or "".
func (p *Profile) Tenant() string {
	if p.TenantID == nil {
		return ""
	}
	return *p.TenantID
}

// IsCompleted reports whether onboarding step 1 was completed.
func (p *Profile) IsCompleted() bool {
	return p.CompletedAt != nil
}

// IsAdmin reports whether the profile administers its tenant.
func (p *Profile) IsAdmin() bool {
	return p.HasTenant() && p.Role == RoleAdmin
}

// SameTenant reports whether both profiles belong to the same tenant.
func (p *Profile) SameTenant(other *Profile) bool {
	return p.HasTenant() && other.HasTenant() && *p.TenantID == *other.TenantID
}

// MarkCompleted stamps CompletedAt if it is not set yet.
func (p *Profile) MarkCompleted(now time.Time) bool {
	if p.CompletedAt != nil {
		return false
	}
	t := now
	p.CompletedAt = &t
	return true
}

// Member is a profile listed together with its actor's email.
type Member struct {
	Profile
	Email string
}

// Repository defines profile persistence
type Repository interface {
	// GetByActorID retrieves the profile for an actor
	GetByActorID(ctx context.Context, actorID string) (*Profile, error)

	// Update writes every mutable field of the profile in a single statement
	Update(ctx context.Context, p *Profile) error

	// ListByTenant lists the tenant's profiles ordered by email
	ListByTenant(ctx context.Context, tenantID string) ([]*Member, error)

	// AttachMember writes the membership fields of p only while the stored
	// profile has no tenant. Returns ErrAlreadyAttached otherwise.
	AttachMember(ctx context.Context, p *Profile) error
}

// DeriveDisplayName builds a friendly name from the email's local part,
// using the segment before the first separator: peter.janssens@acme.com
// becomes "Peter".
func DeriveDisplayName(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if i := strings.IndexAny(local, "._-+"); i >= 0 {
		local = local[:i]
	}
	if local == "" {
		return ""
	}
	runes := []rune(strings.ToLower(local))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
