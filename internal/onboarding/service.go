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

package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/observability/metrics"
	"github.com/opentrusty/tenantgate/internal/profile"
	"github.com/opentrusty/tenantgate/internal/sanitize"
	"github.com/opentrusty/tenantgate/internal/tenant"
)

// ErrWorkspaceExists is returned when step 2 runs for a profile that
// already has a tenant.
var ErrWorkspaceExists = errors.New("workspace already exists for this profile")

var tracer = otel.Tracer("github.com/opentrusty/tenantgate/internal/onboarding")

// ProfileStore reads and writes the acting profile
type ProfileStore interface {
	GetByActorID(ctx context.Context, actorID string) (*profile.Profile, error)
	Update(ctx context.Context, p *profile.Profile) error
}

// WorkspaceCreator creates a tenant with actorID as its admin
type WorkspaceCreator interface {
	CreateForAdmin(ctx context.Context, actorID, name string) (*tenant.Tenant, error)
}

// ProfileInput is the step 1 form
type ProfileInput struct {
	DisplayName string
	Timezone    string
	Country     string
}

// Service drives the onboarding wizard
type Service struct {
	profiles    ProfileStore
	workspaces  WorkspaceCreator
	auditLogger audit.Logger
	metrics     *metrics.Domain
	now         func() time.Time
}

// NewService creates a new onboarding service
func NewService(profiles ProfileStore, workspaces WorkspaceCreator, auditLogger audit.Logger, m *metrics.Domain) *Service {
	return &Service{
		profiles:    profiles,
		workspaces:  workspaces,
		auditLogger: auditLogger,
		metrics:     m,
		now:         time.Now,
	}
}

// CompleteProfile saves step 1 and stamps CompletedAt on first completion.
// Empty fields keep their stored values.
func (s *Service) CompleteProfile(ctx context.Context, actorID string, in ProfileInput) (*profile.Profile, error) {
	ctx, span := tracer.Start(ctx, "onboarding.CompleteProfile")
	defer span.End()

	p, err := s.profiles.GetByActorID(ctx, actorID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if name := sanitize.Name(in.DisplayName, profile.MaxDisplayName); name != "" {
		p.DisplayName = name
	}
	if in.Timezone != "" {
		tz, err := profile.NormalizeTimezone(in.Timezone)
		if err != nil {
			return nil, err
		}
		p.Timezone = tz
	}
	if c := strings.ToUpper(strings.TrimSpace(in.Country)); c != "" {
		p.Country = c
	}
	first := p.MarkCompleted(s.now())
	p.UpdatedBy = &actorID

	if err := s.profiles.Update(ctx, p); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to complete profile: %w", err)
	}

	span.SetAttributes(attribute.Bool("first_completion", first))
	if first {
		s.metrics.OnboardingStep(ctx, "profile")
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeProfileComplete,
			TenantID: p.Tenant(),
			ActorID:  actorID,
			Resource: "profile",
		})
	}
	return p, nil
}

// RecordDeferral audits a "do this later" on step 1. The deferral itself
// lives in the browser session and never touches the profile.
func (s *Service) RecordDeferral(ctx context.Context, actorID string) {
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeProfileDeferred,
		ActorID:  actorID,
		Resource: "profile",
	})
}

// CreateWorkspace runs step 2: creates the tenant and makes the actor its admin.
func (s *Service) CreateWorkspace(ctx context.Context, actorID, organization string) (*tenant.Tenant, error) {
	ctx, span := tracer.Start(ctx, "onboarding.CreateWorkspace")
	defer span.End()

	p, err := s.profiles.GetByActorID(ctx, actorID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if p.HasTenant() {
		return nil, ErrWorkspaceExists
	}

	t, err := s.workspaces.CreateForAdmin(ctx, actorID, organization)
	if err != nil {
		if errors.Is(err, tenant.ErrAlreadyAttached) {
			return nil, ErrWorkspaceExists
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("tenant_id", t.ID))
	s.metrics.OnboardingStep(ctx, "workspace")
	return t, nil
}

// Hints are browser signals captured at registration
type Hints struct {
	Timezone string
	Language string
	Country  string
}

// Step1Form is the prefilled step 1 form
type Step1Form struct {
	DisplayName string `json:"display_name"`
	Timezone    string `json:"timezone"`
	Country     string `json:"country"`
	Suggested   bool   `json:"suggested"`
}

// Step1Defaults layers saved profile values over the registration hints.
func Step1Defaults(p *profile.Profile, h Hints) Step1Form {
	form := Step1Form{
		DisplayName: p.DisplayName,
		Timezone:    p.Timezone,
		Country:     p.Country,
	}

	if form.Timezone == "" || form.Timezone == profile.DefaultTimezone {
		if tz, err := profile.NormalizeTimezone(h.Timezone); err == nil && h.Timezone != "" {
			form.Timezone = tz
			form.Suggested = true
		}
	}
	if form.Country == "" {
		if c := strings.ToUpper(strings.TrimSpace(h.Country)); len(c) == 2 {
			form.Country = c
			form.Suggested = true
		}
	}
	if p.IsCompleted() {
		form.Suggested = false
	}
	return form
}

var webmailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"outlook.com":    true,
	"hotmail.com":    true,
	"live.com":       true,
	"msn.com":        true,
	"yahoo.com":      true,
	"icloud.com":     true,
	"me.com":         true,
	"aol.com":        true,
	"gmx.com":        true,
	"proton.me":      true,
	"protonmail.com": true,
	"telenet.be":     true,
	"skynet.be":      true,
}

// SuggestOrganization derives an organization name from an email domain:
// info@my-company.co.uk becomes "My Company". Webmail domains yield "".
func SuggestOrganization(email string) string {
	_, domain, ok := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	if !ok || domain == "" || webmailDomains[domain] {
		return ""
	}
	label, _, _ := strings.Cut(domain, ".")
	label = strings.NewReplacer("-", " ", "_", " ").Replace(label)

	words := strings.Fields(label)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
