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

// Package onboarding implements the two-step onboarding wizard and the
// per-request gate that steers actors through it.
package onboarding

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/opentrusty/tenantgate/internal/observability/metrics"
	"github.com/opentrusty/tenantgate/internal/profile"
)

// Outcome labels a gate decision
type Outcome string

const (
	OutcomeAllow     Outcome = "allow"
	OutcomeExempt    Outcome = "exempt"
	OutcomeAnonymous Outcome = "anonymous"
	OutcomeProfile   Outcome = "profile_incomplete"
	OutcomeWorkspace Outcome = "workspace_missing"
	OutcomeRevoked   Outcome = "revoked"
)

// Decision is the result of a gate evaluation: either pass through or
// redirect to Location.
type Decision struct {
	Outcome  Outcome
	Location string
}

// Allowed reports whether the request may be served as is.
func (d Decision) Allowed() bool {
	return d.Location == ""
}

func allow(o Outcome) Decision {
	return Decision{Outcome: o}
}

func redirect(o Outcome, location string) Decision {
	return Decision{Outcome: o, Location: location}
}

// URLs are the wizard destinations the gate redirects to.
type URLs struct {
	Profile      string
	ProfileDefer string
	Workspace    string
	Revoked      string
}

// DefaultURLs returns the API routes served by the HTTP transport.
func DefaultURLs() URLs {
	return URLs{
		Profile:      "/api/v1/onboarding/profile",
		ProfileDefer: "/api/v1/onboarding/profile/skip",
		Workspace:    "/api/v1/onboarding/workspace",
		Revoked:      "/api/v1/account/revoked",
	}
}

// AlwaysExempt are paths that stay reachable whatever the onboarding state.
var AlwaysExempt = []string{
	"/api/v1/auth/login",
	"/api/v1/auth/logout",
	"/api/v1/auth/register",
	"/api/v1/theme",
	"/invite/accept",
	"/health",
	"/metrics",
}

// Request is what the gate needs to know about one HTTP request.
// An empty ActorID means the request is anonymous.
type Request struct {
	ActorID  string
	Path     string
	RawQuery string
	Deferred bool
}

// destination is the original target carried in the next parameter
func (r Request) destination() string {
	if r.RawQuery == "" {
		return r.Path
	}
	return r.Path + "?" + r.RawQuery
}

// ProfileReader loads the profile the gate decides on
type ProfileReader interface {
	GetByActorID(ctx context.Context, actorID string) (*profile.Profile, error)
}

// Policy inspects a profile and returns a decision when it matches.
type Policy func(p *profile.Profile, req Request) (Decision, bool)

// Gate evaluates its policies in order; the first match wins.
type Gate struct {
	reader   ProfileReader
	urls     URLs
	exempt   []string
	policies []Policy
	metrics  *metrics.Domain
}

// NewGate builds the gate with the standard policy order:
// profile incomplete, then workspace missing, then membership revoked.
func NewGate(reader ProfileReader, urls URLs, extraExempt []string, m *metrics.Domain) *Gate {
	g := &Gate{
		reader:  reader,
		urls:    urls,
		metrics: m,
	}

	paths := []string{urls.Profile, urls.ProfileDefer, urls.Workspace, urls.Revoked}
	paths = append(paths, AlwaysExempt...)
	paths = append(paths, extraExempt...)
	for _, p := range paths {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p != "" {
			g.exempt = append(g.exempt, p)
		}
	}

	g.policies = []Policy{
		g.requireProfile,
		g.requireWorkspace,
		g.requireActiveMembership,
	}
	return g
}

// IsExempt reports whether path equals or lies beneath an exempt entry.
func (g *Gate) IsExempt(path string) bool {
	for _, e := range g.exempt {
		if path == e || strings.HasPrefix(path, e+"/") {
			return true
		}
	}
	return false
}

// Evaluate decides how to handle req. A profile read failure is returned
// as an error and must be treated as a denial.
func (g *Gate) Evaluate(ctx context.Context, req Request) (Decision, error) {
	if req.ActorID == "" {
		return g.record(ctx, allow(OutcomeAnonymous)), nil
	}
	if g.IsExempt(req.Path) {
		return g.record(ctx, allow(OutcomeExempt)), nil
	}

	p, err := g.reader.GetByActorID(ctx, req.ActorID)
	if err != nil {
		g.metrics.GateDecision(ctx, "error")
		return Decision{}, fmt.Errorf("failed to read profile for gate: %w", err)
	}

	for _, policy := range g.policies {
		if d, ok := policy(p, req); ok {
			return g.record(ctx, d), nil
		}
	}
	return g.record(ctx, allow(OutcomeAllow)), nil
}

func (g *Gate) record(ctx context.Context, d Decision) Decision {
	g.metrics.GateDecision(ctx, string(d.Outcome))
	return d
}

func (g *Gate) requireProfile(p *profile.Profile, req Request) (Decision, bool) {
	if p.IsCompleted() || req.Deferred {
		return Decision{}, false
	}
	return redirect(OutcomeProfile, withNext(g.urls.Profile, req.destination())), true
}

func (g *Gate) requireWorkspace(p *profile.Profile, req Request) (Decision, bool) {
	if p.HasTenant() {
		return Decision{}, false
	}
	return redirect(OutcomeWorkspace, withNext(g.urls.Workspace, req.destination())), true
}

func (g *Gate) requireActiveMembership(p *profile.Profile, _ Request) (Decision, bool) {
	if p.Active {
		return Decision{}, false
	}
	return redirect(OutcomeRevoked, g.urls.Revoked), true
}

func withNext(base, next string) string {
	return base + "?" + url.Values{"next": {next}}.Encode()
}

// SafeNext returns next when it is a local absolute path, otherwise fallback.
func SafeNext(next, fallback string) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.HasPrefix(next, "/\\") {
		return next
	}
	return fallback
}
