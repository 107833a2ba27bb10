package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opentrusty/tenantgate/internal/id"
	"github.com/opentrusty/tenantgate/internal/identity"
	"github.com/opentrusty/tenantgate/internal/membership"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
)

// AcceptInviteRequest sets the invitee's first password
type AcceptInviteRequest struct {
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func inviteParams(r *http.Request) (string, string, bool) {
	actorID := chi.URLParam(r, "actorID")
	token := chi.URLParam(r, "token")
	return actorID, token, id.IsValid(actorID) && token != ""
}

// GetInvite reports whether an invitation link is pending or already used
func (h *Handler) GetInvite(w http.ResponseWriter, r *http.Request) {
	actorID, token, ok := inviteParams(r)
	if !ok {
		respondError(w, http.StatusBadRequest, membership.ErrInvalidInvite.Error())
		return
	}

	status, err := h.membershipService.InviteStatus(r.Context(), actorID, token)
	if err != nil {
		if errors.Is(err, membership.ErrInvalidInvite) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "failed to check invitation", logger.UserID(actorID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// AcceptInvite sets the password, logs the invitee in and points them at
// their profile settings
func (h *Handler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	actorID, token, ok := inviteParams(r)
	if !ok {
		respondError(w, http.StatusBadRequest, membership.ErrInvalidInvite.Error())
		return
	}
	var req AcceptInviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.membershipService.AcceptInvite(r.Context(), actorID, token, req.Password); err != nil {
		switch {
		case errors.Is(err, membership.ErrInvalidInvite):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, membership.ErrAlreadyAccepted):
			respondJSON(w, http.StatusConflict, map[string]string{
				"error":  err.Error(),
				"status": string(membership.InviteAccepted),
			})
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			slog.ErrorContext(r.Context(), "failed to accept invitation", logger.UserID(actorID), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if err := h.startSession(w, r, actorID); err != nil {
		slog.ErrorContext(r.Context(), "failed to create session", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"next": ProfileSettingsPath})
}
