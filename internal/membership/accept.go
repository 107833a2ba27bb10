package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/identity"
	"github.com/opentrusty/tenantgate/internal/profile"
)

// ErrAlreadyAccepted is returned when the invitee already has a password
var ErrAlreadyAccepted = errors.New("invitation already accepted")

// InviteStatus describes an invitation link
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "already_accepted"
)

// InviteStatus reports whether the link can still be used
func (s *Service) InviteStatus(ctx context.Context, actorID, token string) (InviteStatus, error) {
	state, err := s.credentialState(ctx, actorID)
	if err != nil {
		return "", err
	}
	if state.PasswordHash != "" {
		if err := s.tokens.Peek(token, actorID); err != nil {
			return "", err
		}
		return InviteAccepted, nil
	}
	if err := s.tokens.Verify(token, actorID, state); err != nil {
		return "", err
	}
	return InvitePending, nil
}

// AcceptInvite sets the invitee's first password and marks their profile
// completed. The caller logs the actor in afterwards.
func (s *Service) AcceptInvite(ctx context.Context, actorID, token, password string) (*profile.Profile, error) {
	ctx, span := tracer.Start(ctx, "membership.AcceptInvite")
	defer span.End()

	state, err := s.credentialState(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if state.PasswordHash != "" {
		return nil, ErrAlreadyAccepted
	}
	if err := s.tokens.Verify(token, actorID, state); err != nil {
		return nil, err
	}

	if err := s.identities.SetPassword(ctx, actorID, password); err != nil {
		return nil, err
	}

	p, err := s.profiles.GetByActorID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if p.MarkCompleted(s.now()) {
		if err := s.profiles.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to complete invited profile: %w", err)
		}
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeInviteAccepted,
		TenantID: p.Tenant(),
		ActorID:  actorID,
		Resource: "membership",
	})
	return p, nil
}

func (s *Service) credentialState(ctx context.Context, actorID string) (identity.CredentialState, error) {
	state, err := s.identities.CredentialState(ctx, actorID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return identity.CredentialState{}, ErrInvalidInvite
		}
		return identity.CredentialState{}, err
	}
	return state, nil
}
