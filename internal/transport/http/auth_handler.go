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

package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/identity"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/onboarding"
)

// RegisterRequest represents registration data plus browser hints
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
	Language string `json:"language" validate:"omitempty,max=35"`
	Country  string `json:"country" validate:"omitempty,iso3166_1_alpha2"`
}

// Register handles self-service sign-up and logs the new actor in
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, _, err := h.identityService.Register(r.Context(), identity.Registration{
		Email:    req.Email,
		Password: req.Password,
		Language: req.Language,
		Timezone: req.Timezone,
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, "user already exists")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet security requirements")
		default:
			slog.ErrorContext(r.Context(), "failed to register user", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	if err := h.flags.SetHints(w, r, onboarding.Hints{
		Timezone: req.Timezone,
		Language: req.Language,
		Country:  req.Country,
	}); err != nil {
		slog.WarnContext(r.Context(), "failed to store client hints", logger.Error(err))
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		slog.ErrorContext(r.Context(), "failed to create session", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
		"next":    h.urls.Profile,
	})
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Next     string `json:"next"`
}

// Login authenticates with email and password and creates a session
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidCredentials) &&
			!errors.Is(err, identity.ErrAccountInactive) &&
			!errors.Is(err, identity.ErrAccountLocked) {
			slog.ErrorContext(r.Context(), "login failed", logger.Error(err))
		}
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		slog.ErrorContext(r.Context(), "failed to create session", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
		"next":    onboarding.SafeNext(req.Next, DashboardPath),
	})
}

// Logout destroys the current session and expires both cookies
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := h.getSessionFromCookie(r)
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if userID := GetUserID(r.Context()); userID != "" {
		h.auditLogger.Log(r.Context(), audit.Event{
			Type:      audit.TypeLogout,
			ActorID:   userID,
			Resource:  "session",
			IPAddress: getIPAddress(r),
			UserAgent: r.UserAgent(),
		})
	}
	if err := h.sessionService.Destroy(r.Context(), sessionID); err != nil {
		slog.ErrorContext(r.Context(), "failed to destroy session", logger.Error(err))
	}

	h.clearSessionCookie(w)
	if err := h.flags.Clear(w, r); err != nil {
		slog.WarnContext(r.Context(), "failed to clear flag cookie", logger.Error(err))
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out successfully",
	})
}
