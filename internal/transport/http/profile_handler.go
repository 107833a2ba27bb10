package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/profile"
)

// ThemeCookie mirrors the theme choice for anonymous visitors
const ThemeCookie = "theme"

type profileResponse struct {
	ActorID          string     `json:"actor_id"`
	Email            string     `json:"email,omitempty"`
	DisplayName      string     `json:"display_name"`
	Locale           string     `json:"locale"`
	Timezone         string     `json:"timezone"`
	Country          string     `json:"country,omitempty"`
	Theme            string     `json:"theme"`
	MarketingConsent bool       `json:"marketing_consent"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	TenantID         string     `json:"tenant_id,omitempty"`
	Role             string     `json:"role,omitempty"`
	Active           bool       `json:"active"`
}

func newProfileResponse(p *profile.Profile, email string) profileResponse {
	resp := profileResponse{
		ActorID:          p.ActorID,
		Email:            email,
		DisplayName:      p.DisplayName,
		Locale:           p.Locale,
		Timezone:         p.Timezone,
		Country:          p.Country,
		Theme:            string(p.Theme),
		MarketingConsent: p.MarketingConsent,
		CompletedAt:      p.CompletedAt,
		TenantID:         p.Tenant(),
		Active:           p.Active,
	}
	if p.HasTenant() {
		resp.Role = string(p.Role)
	}
	return resp
}

// GetProfile returns the acting actor's profile settings
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.actingProfile(w, r)
	if !ok {
		return
	}
	email := ""
	if user, err := h.identityService.GetUser(r.Context(), p.ActorID); err == nil {
		email = user.Email
	}
	respondJSON(w, http.StatusOK, newProfileResponse(p, email))
}

// UpdateProfileRequest is the profile settings form. Empty locale, timezone
// and theme keep the stored values.
type UpdateProfileRequest struct {
	DisplayName      string `json:"display_name" validate:"max=150"`
	Locale           string `json:"locale" validate:"omitempty,bcp47_language_tag"`
	Timezone         string `json:"timezone" validate:"omitempty,timezone"`
	Country          string `json:"country" validate:"omitempty,iso3166_1_alpha2"`
	Theme            string `json:"theme" validate:"omitempty,oneof=corporate night system"`
	MarketingConsent bool   `json:"marketing_consent"`
}

// UpdateProfile saves the profile settings and syncs the lang cookie
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	current, ok := h.actingProfile(w, r)
	if !ok {
		return
	}
	settings := profile.Settings{
		DisplayName:      req.DisplayName,
		Locale:           req.Locale,
		Timezone:         req.Timezone,
		Country:          req.Country,
		Theme:            profile.Theme(req.Theme),
		MarketingConsent: req.MarketingConsent,
	}
	if settings.Locale == "" {
		settings.Locale = current.Locale
	}
	if settings.Timezone == "" {
		settings.Timezone = current.Timezone
	}
	if settings.Theme == "" {
		settings.Theme = current.Theme
	}

	p, err := h.profileService.UpdateSettings(r.Context(), current.ActorID, settings)
	if err != nil {
		switch {
		case errors.Is(err, profile.ErrInvalidTimezone), errors.Is(err, profile.ErrInvalidTheme):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			slog.ErrorContext(r.Context(), "failed to update profile", logger.UserID(current.ActorID), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to update profile")
		}
		return
	}

	h.setPreferenceCookie(w, LangCookie, p.Locale)
	respondJSON(w, http.StatusOK, newProfileResponse(p, ""))
}

// ThemeRequest switches the UI theme
type ThemeRequest struct {
	Theme string `json:"theme" validate:"required,oneof=corporate night system"`
}

// SetTheme sets the theme cookie and persists it for signed-in actors
func (h *Handler) SetTheme(w http.ResponseWriter, r *http.Request) {
	var req ThemeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if actorID := GetUserID(r.Context()); actorID != "" {
		if err := h.profileService.SetTheme(r.Context(), actorID, profile.Theme(req.Theme)); err != nil {
			slog.ErrorContext(r.Context(), "failed to persist theme", logger.UserID(actorID), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to save theme")
			return
		}
	}

	h.setPreferenceCookie(w, ThemeCookie, req.Theme)
	respondJSON(w, http.StatusOK, map[string]string{"theme": req.Theme})
}

// Dashboard returns the profile summary and the workspace name
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := h.actingProfile(w, r)
	if !ok {
		return
	}

	resp := map[string]any{
		"profile": newProfileResponse(p, ""),
		"locale":  GetLocale(r.Context()),
	}
	if p.HasTenant() {
		t, err := h.tenantService.GetTenant(r.Context(), p.Tenant())
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to load tenant", logger.TenantID(p.Tenant()), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		resp["tenant"] = map[string]string{"id": t.ID, "name": t.Name}
	}
	respondJSON(w, http.StatusOK, resp)
}

// Revoked explains that the actor's workspace access was revoked
func (h *Handler) Revoked(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"message": "Your access to this workspace has been revoked. Contact a workspace admin to restore it.",
	}
	if actorID := GetUserID(r.Context()); actorID != "" {
		if p, err := h.profileService.Get(r.Context(), actorID); err == nil && p.RevokedAt != nil {
			resp["revoked_at"] = p.RevokedAt
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
