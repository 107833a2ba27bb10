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

// Package membership implements the tenant admin's member lifecycle:
// invite, promote, revoke, re-engage and role changes.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/identity"
	"github.com/opentrusty/tenantgate/internal/mail"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/observability/metrics"
	"github.com/opentrusty/tenantgate/internal/profile"
	"github.com/opentrusty/tenantgate/internal/tenant"
)

// Domain errors
var (
	ErrAlreadyMember = errors.New("this person already belongs to a workspace and must register a new account to join yours")
	ErrCrossTenant   = errors.New("member not found in this workspace")
	ErrSelfRevoke    = errors.New("you cannot revoke your own access")
	ErrSelfDemote    = errors.New("you cannot remove your own admin role")
	ErrUnauthorized  = errors.New("admin role required")
)

// InviteAcceptPath is the route prefix of invitation links
const InviteAcceptPath = "/invite/accept"

var tracer = otel.Tracer("github.com/opentrusty/tenantgate/internal/membership")

// Notifier delivers invitation notifications out of band
type Notifier interface {
	Notify(ctx context.Context, inv mail.Invitation) error
}

// Identities is the part of the identity service membership relies on
type Identities interface {
	ResolveOrProvision(ctx context.Context, email string) (*identity.User, bool, error)
	CredentialState(ctx context.Context, userID string) (identity.CredentialState, error)
	SetPassword(ctx context.Context, userID, password string) error
}

// TenantReader resolves the workspace name for invitations
type TenantReader interface {
	GetByID(ctx context.Context, id string) (*tenant.Tenant, error)
}

// Service provides membership lifecycle operations
type Service struct {
	identities  Identities
	profiles    profile.Repository
	tenants     TenantReader
	notifier    Notifier
	tokens      *InviteTokens
	baseURL     string
	auditLogger audit.Logger
	metrics     *metrics.Domain
	now         func() time.Time
}

// Options groups the collaborators of the service
type Options struct {
	Identities Identities
	Profiles   profile.Repository
	Tenants    TenantReader
	Notifier   Notifier
	Tokens     *InviteTokens
	BaseURL    string
	Audit      audit.Logger
	Metrics    *metrics.Domain
}

// NewService creates a new membership service
func NewService(opts Options) *Service {
	return &Service{
		identities:  opts.Identities,
		profiles:    opts.Profiles,
		tenants:     opts.Tenants,
		notifier:    opts.Notifier,
		tokens:      opts.Tokens,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		auditLogger: opts.Audit,
		metrics:     opts.Metrics,
		now:         time.Now,
	}
}

// Authorize is the precondition shared by every operation: acting must be
// an active admin of a tenant.
func Authorize(acting *profile.Profile) error {
	if acting == nil || !acting.IsAdmin() || !acting.Active || !acting.HasTenant() {
		return ErrUnauthorized
	}
	return nil
}

// ListMembers lists the acting admin's tenant ordered by email
func (s *Service) ListMembers(ctx context.Context, acting *profile.Profile) ([]*profile.Member, error) {
	if err := Authorize(acting); err != nil {
		return nil, err
	}
	return s.profiles.ListByTenant(ctx, acting.Tenant())
}

// Invite attaches the actor behind email to the admin's tenant as a member,
// provisioning a password-less actor when none exists.
func (s *Service) Invite(ctx context.Context, acting *profile.Profile, email string) (*profile.Profile, error) {
	ctx, span := tracer.Start(ctx, "membership.Invite")
	defer span.End()

	if err := Authorize(acting); err != nil {
		return nil, s.fail(ctx, span, "invite", err)
	}

	user, created, err := s.identities.ResolveOrProvision(ctx, email)
	if err != nil {
		return nil, s.fail(ctx, span, "invite", err)
	}
	span.SetAttributes(attribute.Bool("provisioned", created))

	target, err := s.profiles.GetByActorID(ctx, user.ID)
	if err != nil {
		return nil, s.fail(ctx, span, "invite", err)
	}
	if target.HasTenant() {
		return nil, s.fail(ctx, span, "invite", ErrAlreadyMember)
	}

	now := s.now()
	tid := acting.Tenant()
	target.TenantID = &tid
	target.Role = profile.RoleMember
	target.JoinedAt = &now
	target.RevokedAt = nil
	target.Active = true
	target.DeletedAt = nil
	target.DeletedBy = nil
	target.UpdatedBy = &acting.ActorID

	if err := s.profiles.AttachMember(ctx, target); err != nil {
		if errors.Is(err, profile.ErrAlreadyAttached) {
			return nil, s.fail(ctx, span, "invite", ErrAlreadyMember)
		}
		return nil, s.fail(ctx, span, "invite", fmt.Errorf("failed to attach member: %w", err))
	}

	s.succeed(ctx, acting, "invite", audit.TypeMemberInvited, target.ActorID,
		map[string]any{audit.AttrEmail: user.Email, "provisioned": created})

	s.notify(ctx, acting, user)
	return target, nil
}

// notify queues the invitation email. Failures are logged, never returned.
func (s *Service) notify(ctx context.Context, acting *profile.Profile, user *identity.User) {
	if s.notifier == nil || s.tokens == nil {
		return
	}

	err := func() error {
		state, err := s.identities.CredentialState(ctx, user.ID)
		if err != nil {
			return err
		}
		token, err := s.tokens.Issue(user.ID, state)
		if err != nil {
			return err
		}

		org := ""
		if s.tenants != nil {
			if t, err := s.tenants.GetByID(ctx, acting.Tenant()); err == nil {
				org = t.Name
			}
		}

		return s.notifier.Notify(ctx, mail.Invitation{
			To:           user.Email,
			Organization: org,
			InviterName:  acting.DisplayName,
			Link:         s.InviteLink(user.ID, token),
			ExpiresIn:    s.tokens.TTL(),
			TenantID:     acting.Tenant(),
			ActorID:      user.ID,
		})
	}()

	s.metrics.InviteQueued(ctx, err == nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to queue invitation",
			logger.Component("membership"),
			logger.TenantID(acting.Tenant()),
			logger.TargetID(user.ID),
			logger.Error(err),
		)
	}
}

// InviteLink builds the absolute accept URL
func (s *Service) InviteLink(actorID, token string) string {
	return s.baseURL + InviteAcceptPath + "/" + url.PathEscape(actorID) + "/" + url.PathEscape(token)
}

// Promote makes target an admin. Promoting an admin is a no-op.
func (s *Service) Promote(ctx context.Context, acting *profile.Profile, targetActorID string) (*profile.Profile, error) {
	ctx, span := tracer.Start(ctx, "membership.Promote")
	defer span.End()

	target, err := s.loadTarget(ctx, acting, targetActorID)
	if err != nil {
		return nil, s.fail(ctx, span, "promote", err)
	}
	if target.Role == profile.RoleAdmin {
		return target, nil
	}

	target.Role = profile.RoleAdmin
	target.UpdatedBy = &acting.ActorID
	if err := s.profiles.Update(ctx, target); err != nil {
		return nil, s.fail(ctx, span, "promote", fmt.Errorf("failed to promote member: %w", err))
	}

	s.succeed(ctx, acting, "promote", audit.TypeMemberPromoted, target.ActorID, nil)
	return target, nil
}

// SetRole sets target's role. An admin cannot demote themselves.
func (s *Service) SetRole(ctx context.Context, acting *profile.Profile, targetActorID string, role profile.Role) (*profile.Profile, error) {
	ctx, span := tracer.Start(ctx, "membership.SetRole")
	defer span.End()

	if _, err := profile.ParseRole(string(role)); err != nil {
		return nil, s.fail(ctx, span, "set_role", err)
	}
	target, err := s.loadTarget(ctx, acting, targetActorID)
	if err != nil {
		return nil, s.fail(ctx, span, "set_role", err)
	}
	if target.ActorID == acting.ActorID && role != profile.RoleAdmin {
		return nil, s.fail(ctx, span, "set_role", ErrSelfDemote)
	}
	if target.Role == role {
		return target, nil
	}

	target.Role = role
	target.UpdatedBy = &acting.ActorID
	if err := s.profiles.Update(ctx, target); err != nil {
		return nil, s.fail(ctx, span, "set_role", fmt.Errorf("failed to set role: %w", err))
	}

	s.succeed(ctx, acting, "set_role", audit.TypeMemberRole, target.ActorID,
		map[string]any{audit.AttrRole: string(role)})
	return target, nil
}

// Revoke deactivates target's membership. The tenant reference stays.
func (s *Service) Revoke(ctx context.Context, acting *profile.Profile, targetActorID string) (*profile.Profile, error) {
	ctx, span := tracer.Start(ctx, "membership.Revoke")
	defer span.End()

	if err := Authorize(acting); err != nil {
		return nil, s.fail(ctx, span, "revoke", err)
	}
	if targetActorID == acting.ActorID {
		return nil, s.fail(ctx, span, "revoke", ErrSelfRevoke)
	}
	target, err := s.loadTarget(ctx, acting, targetActorID)
	if err != nil {
		return nil, s.fail(ctx, span, "revoke", err)
	}

	now := s.now()
	target.Active = false
	target.RevokedAt = &now
	target.DeletedBy = &acting.ActorID
	target.UpdatedBy = &acting.ActorID
	if err := s.profiles.Update(ctx, target); err != nil {
		return nil, s.fail(ctx, span, "revoke", fmt.Errorf("failed to revoke member: %w", err))
	}

	s.succeed(ctx, acting, "revoke", audit.TypeMemberRevoked, target.ActorID, nil)
	return target, nil
}

// Reengage restores a revoked member and clears the soft-delete markers
func (s *Service) Reengage(ctx context.Context, acting *profile.Profile, targetActorID string) (*profile.Profile, error) {
	ctx, span := tracer.Start(ctx, "membership.Reengage")
	defer span.End()

	target, err := s.loadTarget(ctx, acting, targetActorID)
	if err != nil {
		return nil, s.fail(ctx, span, "reengage", err)
	}

	target.Active = true
	target.RevokedAt = nil
	target.DeletedAt = nil
	target.DeletedBy = nil
	target.UpdatedBy = &acting.ActorID
	if err := s.profiles.Update(ctx, target); err != nil {
		return nil, s.fail(ctx, span, "reengage", fmt.Errorf("failed to re-engage member: %w", err))
	}

	s.succeed(ctx, acting, "reengage", audit.TypeMemberReengaged, target.ActorID, nil)
	return target, nil
}

// loadTarget authorizes acting and fetches a profile of the same tenant.
// Unknown profiles are reported as cross-tenant so IDs cannot be probed.
func (s *Service) loadTarget(ctx context.Context, acting *profile.Profile, targetActorID string) (*profile.Profile, error) {
	if err := Authorize(acting); err != nil {
		return nil, err
	}
	target, err := s.profiles.GetByActorID(ctx, targetActorID)
	if err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			return nil, ErrCrossTenant
		}
		return nil, err
	}
	if !acting.SameTenant(target) {
		return nil, ErrCrossTenant
	}
	return target, nil
}

func (s *Service) succeed(ctx context.Context, acting *profile.Profile, op, eventType, targetID string, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta[audit.AttrTarget] = targetID

	s.metrics.MembershipOp(ctx, op, "ok")
	s.auditLogger.Log(ctx, audit.Event{
		Type:     eventType,
		TenantID: acting.Tenant(),
		ActorID:  acting.ActorID,
		Resource: "membership",
		Metadata: meta,
	})
}

func (s *Service) fail(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.metrics.MembershipOp(ctx, op, resultLabel(err))
	return err
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAlreadyMember):
		return "already_member"
	case errors.Is(err, ErrCrossTenant):
		return "cross_tenant"
	case errors.Is(err, ErrSelfRevoke), errors.Is(err, ErrSelfDemote):
		return "self_protection"
	default:
		return "error"
	}
}
