package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/onboarding"
	"github.com/opentrusty/tenantgate/internal/profile"
	"github.com/opentrusty/tenantgate/internal/tenant"
)

// ProfileStepRequest is the step 1 form
type ProfileStepRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=150"`
	Timezone    string `json:"timezone" validate:"required,timezone"`
	Country     string `json:"country" validate:"omitempty,iso3166_1_alpha2"`
	Next        string `json:"next"`
}

// GetProfileStep returns the prefilled step 1 form
func (h *Handler) GetProfileStep(w http.ResponseWriter, r *http.Request) {
	p, ok := h.actingProfile(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"form":      onboarding.Step1Defaults(p, h.flags.Hints(r)),
		"completed": p.IsCompleted(),
		"skip_url":  h.urls.ProfileDefer,
		"next":      onboarding.SafeNext(r.URL.Query().Get("next"), ""),
	})
}

// SubmitProfileStep completes step 1 and clears any deferral
func (h *Handler) SubmitProfileStep(w http.ResponseWriter, r *http.Request) {
	var req ProfileStepRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	actorID := GetUserID(r.Context())
	p, err := h.onboardingService.CompleteProfile(r.Context(), actorID, onboarding.ProfileInput{
		DisplayName: req.DisplayName,
		Timezone:    req.Timezone,
		Country:     req.Country,
	})
	if err != nil {
		if errors.Is(err, profile.ErrInvalidTimezone) {
			respondError(w, http.StatusBadRequest, "timezone must be an IANA time zone")
			return
		}
		slog.ErrorContext(r.Context(), "failed to complete profile", logger.UserID(actorID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}

	if err := h.flags.SetDeferred(w, r, false); err != nil {
		slog.WarnContext(r.Context(), "failed to clear defer flag", logger.Error(err))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"profile": newProfileResponse(p, ""),
		"next":    onboarding.SafeNext(req.Next, DashboardPath),
	})
}

// SkipRequest carries the destination to resume after deferring
type SkipRequest struct {
	Next string `json:"next"`
}

// SkipProfileStep defers step 1 for the rest of the browser session
func (h *Handler) SkipProfileStep(w http.ResponseWriter, r *http.Request) {
	var req SkipRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	if err := h.flags.SetDeferred(w, r, true); err != nil {
		slog.ErrorContext(r.Context(), "failed to store defer flag", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to defer profile")
		return
	}
	h.onboardingService.RecordDeferral(r.Context(), GetUserID(r.Context()))

	respondJSON(w, http.StatusOK, map[string]any{
		"deferred": true,
		"next":     onboarding.SafeNext(req.Next, DashboardPath),
	})
}

// WorkspaceStepRequest is the step 2 form
type WorkspaceStepRequest struct {
	Organization string `json:"organization" validate:"required,max=200"`
	Next         string `json:"next"`
}

// GetWorkspaceStep returns the step 2 form with a suggested organization
func (h *Handler) GetWorkspaceStep(w http.ResponseWriter, r *http.Request) {
	p, ok := h.actingProfile(w, r)
	if !ok {
		return
	}
	if p.HasTenant() {
		respondJSON(w, http.StatusOK, map[string]any{
			"has_workspace": true,
			"next":          DashboardPath,
		})
		return
	}

	suggestion := ""
	if user, err := h.identityService.GetUser(r.Context(), p.ActorID); err == nil {
		suggestion = onboarding.SuggestOrganization(user.Email)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"has_workspace": false,
		"organization":  suggestion,
		"next":          onboarding.SafeNext(r.URL.Query().Get("next"), ""),
	})
}

// SubmitWorkspaceStep creates the tenant and makes the actor its admin
func (h *Handler) SubmitWorkspaceStep(w http.ResponseWriter, r *http.Request) {
	var req WorkspaceStepRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	actorID := GetUserID(r.Context())
	t, err := h.onboardingService.CreateWorkspace(r.Context(), actorID, req.Organization)
	if err != nil {
		switch {
		case errors.Is(err, onboarding.ErrWorkspaceExists):
			respondError(w, http.StatusConflict, "workspace already exists")
		case errors.Is(err, tenant.ErrInvalidName):
			respondError(w, http.StatusBadRequest, "organization name is required")
		default:
			slog.ErrorContext(r.Context(), "failed to create workspace", logger.UserID(actorID), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to create workspace")
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"tenant": t,
		"next":   onboarding.SafeNext(req.Next, DashboardPath),
	})
}
