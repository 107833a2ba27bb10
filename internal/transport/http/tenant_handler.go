package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/tenant"
)

// GetTenant returns the acting actor's workspace
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	p, ok := h.actingProfile(w, r)
	if !ok {
		return
	}
	if !p.HasTenant() {
		respondError(w, http.StatusNotFound, "tenant not found")
		return
	}

	t, err := h.tenantService.GetTenant(r.Context(), p.Tenant())
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load tenant", logger.TenantID(p.Tenant()), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// UpdateTenantRequest is the workspace settings form
type UpdateTenantRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	LogoURL string `json:"logo_url" validate:"omitempty,url,max=2048"`
}

// UpdateTenant lets an admin rename the workspace or change its logo
func (h *Handler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	p, ok := h.actingProfile(w, r)
	if !ok {
		return
	}
	var req UpdateTenantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.tenantService.UpdateDetails(r.Context(), p, req.Name, req.LogoURL)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrForbidden):
			respondError(w, http.StatusForbidden, "forbidden")
		case errors.Is(err, tenant.ErrInvalidName):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			slog.ErrorContext(r.Context(), "failed to update tenant", logger.TenantID(p.Tenant()), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to update tenant")
		}
		return
	}
	respondJSON(w, http.StatusOK, t)
}
