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

// Package http exposes tenantgate as a JSON API on a chi router.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/identity"
	"github.com/opentrusty/tenantgate/internal/membership"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/onboarding"
	"github.com/opentrusty/tenantgate/internal/profile"
	"github.com/opentrusty/tenantgate/internal/session"
	"github.com/opentrusty/tenantgate/internal/tenant"
)

// DashboardPath is where finished flows land
const DashboardPath = "/api/v1/dashboard"

// ProfileSettingsPath is where accepted invitees land
const ProfileSettingsPath = "/api/v1/profile"

// Pinger reports database reachability for the health check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService   *identity.Service
	sessionService    *session.Service
	profileService    *profile.Service
	tenantService     *tenant.Service
	onboardingService *onboarding.Service
	membershipService *membership.Service
	gate              *onboarding.Gate
	urls              onboarding.URLs
	flags             *FlagStore
	auditLogger       audit.Logger
	db                Pinger
	sessionConfig     SessionConfig
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
}

// Services groups the domain services the handlers call
type Services struct {
	Identity   *identity.Service
	Sessions   *session.Service
	Profiles   *profile.Service
	Tenants    *tenant.Service
	Onboarding *onboarding.Service
	Membership *membership.Service
	Gate       *onboarding.Gate
	URLs       onboarding.URLs
	Audit      audit.Logger
	DB         Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, flags *FlagStore, sessionConfig SessionConfig) *Handler {
	return &Handler{
		identityService:   svc.Identity,
		sessionService:    svc.Sessions,
		profileService:    svc.Profiles,
		tenantService:     svc.Tenants,
		onboardingService: svc.Onboarding,
		membershipService: svc.Membership,
		gate:              svc.Gate,
		urls:              svc.URLs,
		flags:             flags,
		auditLogger:       svc.Audit,
		db:                svc.DB,
		sessionConfig:     sessionConfig,
	}
}

// actingProfile loads the authenticated actor's profile
func (h *Handler) actingProfile(w http.ResponseWriter, r *http.Request) (*profile.Profile, bool) {
	p, err := h.profileService.Get(r.Context(), GetUserID(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load acting profile", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return p, true
}

// startSession creates a server session and sets its cookie
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, userID string) error {
	sess, err := h.sessionService.Create(r.Context(), userID, getIPAddress(r), r.UserAgent())
	if err != nil {
		return err
	}
	h.setSessionCookie(w, sess.ID)
	if err := h.flags.ResetDeferred(w, r); err != nil {
		slog.WarnContext(r.Context(), "failed to reset defer flag", logger.UserID(userID), logger.Error(err))
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLoginSuccess,
		ActorID:   userID,
		Resource:  "session",
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
	})
	return nil
}

// Helper functions
func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    sessionID,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   int(h.sessionService.Lifetime().Seconds()),
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// setPreferenceCookie sets a long-lived, script-readable preference cookie
func (h *Handler) setPreferenceCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   365 * 24 * 60 * 60,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// getIPAddress returns the client address; chi's RealIP has already
// folded proxy headers into RemoteAddr.
func getIPAddress(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
