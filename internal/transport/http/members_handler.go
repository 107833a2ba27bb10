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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opentrusty/tenantgate/internal/id"
	"github.com/opentrusty/tenantgate/internal/identity"
	"github.com/opentrusty/tenantgate/internal/membership"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/profile"
)

type memberResponse struct {
	ActorID     string     `json:"actor_id"`
	Email       string     `json:"email,omitempty"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role"`
	Active      bool       `json:"active"`
	JoinedAt    *time.Time `json:"joined_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

func newMemberResponse(p *profile.Profile, email string) memberResponse {
	return memberResponse{
		ActorID:     p.ActorID,
		Email:       email,
		DisplayName: p.DisplayName,
		Role:        string(p.Role),
		Active:      p.Active,
		JoinedAt:    p.JoinedAt,
		RevokedAt:   p.RevokedAt,
	}
}

// respondMembershipError maps lifecycle errors to status codes
func respondMembershipError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, membership.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, membership.ErrCrossTenant):
		respondError(w, http.StatusNotFound, "member not found")
	case errors.Is(err, membership.ErrAlreadyMember):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, membership.ErrSelfRevoke), errors.Is(err, membership.ErrSelfDemote):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, profile.ErrInvalidRole):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "membership operation failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// ListMembers lists the members of the admin's workspace
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	acting, ok := h.actingProfile(w, r)
	if !ok {
		return
	}

	members, err := h.membershipService.ListMembers(r.Context(), acting)
	if err != nil {
		respondMembershipError(w, r, err)
		return
	}

	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, newMemberResponse(&m.Profile, m.Email))
	}
	respondJSON(w, http.StatusOK, map[string]any{"members": out})
}

// InviteRequest names the person to invite
type InviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// InviteMember invites an email address into the admin's workspace
func (h *Handler) InviteMember(w http.ResponseWriter, r *http.Request) {
	acting, ok := h.actingAdmin(w, r)
	if !ok {
		return
	}
	var req InviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.membershipService.Invite(r.Context(), acting, req.Email)
	if err != nil {
		respondMembershipError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newMemberResponse(p, identity.NormalizeEmail(req.Email)))
}

// RoleRequest sets a member's role
type RoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin member"`
}

// SetMemberRole changes a member's role
func (h *Handler) SetMemberRole(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actingAdmin(w, r); !ok {
		return
	}
	var req RoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.memberAction(w, r, func(ctx context.Context, acting *profile.Profile, target string) (*profile.Profile, error) {
		return h.membershipService.SetRole(ctx, acting, target, profile.Role(req.Role))
	})
}

// PromoteMember makes a member an admin
func (h *Handler) PromoteMember(w http.ResponseWriter, r *http.Request) {
	h.memberAction(w, r, h.membershipService.Promote)
}

// RevokeMember deactivates a membership
func (h *Handler) RevokeMember(w http.ResponseWriter, r *http.Request) {
	h.memberAction(w, r, h.membershipService.Revoke)
}

// ReengageMember restores a revoked membership
func (h *Handler) ReengageMember(w http.ResponseWriter, r *http.Request) {
	h.memberAction(w, r, h.membershipService.Reengage)
}

// actingAdmin loads the acting profile and answers 403 unless it may manage
// members. Runs before any body is decoded.
func (h *Handler) actingAdmin(w http.ResponseWriter, r *http.Request) (*profile.Profile, bool) {
	acting, ok := h.actingProfile(w, r)
	if !ok {
		return nil, false
	}
	if err := membership.Authorize(acting); err != nil {
		respondMembershipError(w, r, err)
		return nil, false
	}
	return acting, true
}

type memberOp func(ctx context.Context, acting *profile.Profile, targetActorID string) (*profile.Profile, error)

// memberAction runs op against the {actorID} URL parameter. Malformed IDs
// are reported like any other actor outside the workspace.
func (h *Handler) memberAction(w http.ResponseWriter, r *http.Request, op memberOp) {
	acting, ok := h.actingProfile(w, r)
	if !ok {
		return
	}

	target := chi.URLParam(r, "actorID")
	if !id.IsValid(target) {
		if err := membership.Authorize(acting); err != nil {
			respondMembershipError(w, r, err)
			return
		}
		respondMembershipError(w, r, membership.ErrCrossTenant)
		return
	}

	p, err := op(r.Context(), acting, target)
	if err != nil {
		respondMembershipError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newMemberResponse(p, ""))
}
