package membership

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/tenantgate/internal/identity"
	"github.com/opentrusty/tenantgate/internal/mail"
)

// TestPurpose: Validates invite token binding.
// Scope: Unit Test
// Security: Single-use invitation links
// Expected: Tokens verify for the issuing state only; another subject, a changed credential, deactivation or expiry invalidate them.
// Test Case ID: TOK-01
func TestInviteTokens(t *testing.T) {
	tokens := NewInviteTokens(testSecret, time.Hour)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return base }

	fresh := identity.CredentialState{Active: true}
	tok, err := tokens.Issue("actor-1", fresh)
	require.NoError(t, err)

	assert.NoError(t, tokens.Verify(tok, "actor-1", fresh))
	assert.ErrorIs(t, tokens.Verify(tok, "actor-2", fresh), ErrInvalidInvite)
	assert.ErrorIs(t, tokens.Verify(tok, "actor-1", identity.CredentialState{Active: true, PasswordHash: "$argon2id$x"}), ErrInvalidInvite)
	assert.ErrorIs(t, tokens.Verify(tok, "actor-1", identity.CredentialState{Active: false}), ErrInvalidInvite)
	assert.NoError(t, tokens.Peek(tok, "actor-1"))

	other := NewInviteTokens("ffffffffffffffffffffffffffffffff", time.Hour)
	other.now = tokens.now
	assert.ErrorIs(t, other.Verify(tok, "actor-1", fresh), ErrInvalidInvite)

	tokens.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.ErrorIs(t, tokens.Verify(tok, "actor-1", fresh), ErrInvalidInvite)
	assert.ErrorIs(t, tokens.Peek("not-a-jwt", "actor-1"), ErrInvalidInvite)
}

// TestPurpose: Validates the invitation acceptance flow.
// Scope: Unit Test
// Security: Invitation links stop working once used
// Expected: Pending before acceptance, password set and profile completed on accept, already_accepted afterwards, and a second accept fails.
// Test Case ID: TOK-02
func TestService_AcceptInvite(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	admin := f.adminOf(ctx, "ann@acme.com", "Acme")

	var inv mail.Invitation
	f.notifier.On("Notify", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { inv = args.Get(1).(mail.Invitation) }).
		Return(nil)

	bob, err := f.svc.Invite(ctx, admin, "bob@example.com")
	require.NoError(t, err)
	token := inv.Link[len(f.svc.InviteLink(bob.ActorID, "")):]

	status, err := f.svc.InviteStatus(ctx, bob.ActorID, token)
	require.NoError(t, err)
	assert.Equal(t, InvitePending, status)

	_, err = f.svc.AcceptInvite(ctx, bob.ActorID, token, "short")
	assert.ErrorIs(t, err, identity.ErrWeakPassword)

	p, err := f.svc.AcceptInvite(ctx, bob.ActorID, token, "bobs-new-password")
	require.NoError(t, err)
	assert.True(t, p.IsCompleted())

	user, err := f.identities.Authenticate(ctx, "bob@example.com", "bobs-new-password")
	require.NoError(t, err)
	assert.Equal(t, bob.ActorID, user.ID)

	status, err = f.svc.InviteStatus(ctx, bob.ActorID, token)
	require.NoError(t, err)
	assert.Equal(t, InviteAccepted, status)

	_, err = f.svc.AcceptInvite(ctx, bob.ActorID, token, "another-password")
	assert.ErrorIs(t, err, ErrAlreadyAccepted)

	_, err = f.svc.InviteStatus(ctx, "nobody", token)
	assert.ErrorIs(t, err, ErrInvalidInvite)
}
