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

package membership

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/tenantgate/internal/identity"
	"github.com/opentrusty/tenantgate/internal/mail"
	"github.com/opentrusty/tenantgate/internal/profile"
)

// TestPurpose: Validates inviting an unknown email.
// Scope: Unit Test
// Expected: A password-less actor is provisioned and attached as an active member; the notification carries a signed accept link.
// Test Case ID: MEM-01
func TestService_Invite_ProvisionsMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	admin := f.adminOf(ctx, "ann@acme.com", "Acme")

	var sent mail.Invitation
	f.notifier.On("Notify", mock.Anything, mock.AnythingOfType("mail.Invitation")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(mail.Invitation) }).
		Return(nil).Once()

	p, err := f.svc.Invite(ctx, admin, "  Bob@Example.com ")
	require.NoError(t, err)

	assert.Equal(t, admin.Tenant(), p.Tenant())
	assert.Equal(t, profile.RoleMember, p.Role)
	assert.True(t, p.Active)
	assert.NotNil(t, p.JoinedAt)
	assert.Nil(t, p.RevokedAt)
	require.NotNil(t, p.UpdatedBy)
	assert.Equal(t, admin.ActorID, *p.UpdatedBy)

	bob, err := f.world.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	has, err := f.identities.HasPassword(ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, has)

	assert.Equal(t, "bob@example.com", sent.To)
	assert.Equal(t, "Acme", sent.Organization)
	assert.True(t, strings.HasPrefix(sent.Link, "https://app.example.com/invite/accept/"+bob.ID+"/"))
	f.notifier.AssertExpectations(t)
}

// TestPurpose: Validates that any existing tenant blocks an invite.
// Scope: Unit Test
// Security: Single tenant per profile
// Expected: ErrAlreadyMember for members of another workspace and of the same workspace; the profile is untouched and no mail goes out.
// Test Case ID: MEM-02
func TestService_Invite_AlreadyMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	admin := f.adminOf(ctx, "ann@acme.com", "Acme")
	other := f.adminOf(ctx, "carol@globex.com", "Globex")

	before := f.world.snapshot(other.ActorID)
	_, err := f.svc.Invite(ctx, admin, "carol@globex.com")
	assert.ErrorIs(t, err, ErrAlreadyMember)
	assert.Equal(t, before, f.world.snapshot(other.ActorID))

	_, err = f.svc.Invite(ctx, admin, "ann@acme.com")
	assert.ErrorIs(t, err, ErrAlreadyMember)

	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

// TestPurpose: Validates that notification failures do not fail the invite.
// Scope: Unit Test
// Expected: The member is attached even when the notifier errors.
// Test Case ID: MEM-03
func TestService_Invite_NotifierFailureIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	admin := f.adminOf(ctx, "ann@acme.com", "Acme")
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	p, err := f.svc.Invite(ctx, admin, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, admin.Tenant(), p.Tenant())
}

// TestPurpose: Validates the admin precondition.
// Scope: Unit Test
// Security: Authorization before any state access
// Expected: Members, revoked admins and tenant-less profiles get ErrUnauthorized from every operation.
// Test Case ID: MEM-04
func TestService_RequiresActiveAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	admin := f.adminOf(ctx, "ann@acme.com", "Acme")

	member := *admin
	member.Role = profile.RoleMember
	revoked := *admin
	revoked.Active = false
	loose := profile.New("x", "X")
	loose.Role = profile.RoleAdmin

	for _, acting := range []*profile.Profile{&member, &revoked, loose, nil} {
		_, err := f.svc.Invite(ctx, acting, "bob@example.com")
		assert.ErrorIs(t, err, ErrUnauthorized)
		_, err = f.svc.Promote(ctx, acting, admin.ActorID)
		assert.ErrorIs(t, err, ErrUnauthorized)
		_, err = f.svc.Revoke(ctx, acting, admin.ActorID)
		assert.ErrorIs(t, err, ErrUnauthorized)
		_, err = f.svc.Reengage(ctx, acting, admin.ActorID)
		assert.ErrorIs(t, err, ErrUnauthorized)
		_, err = f.svc.SetRole(ctx, acting, admin.ActorID, profile.RoleMember)
		assert.ErrorIs(t, err, ErrUnauthorized)
		_, err = f.svc.ListMembers(ctx, acting)
		assert.ErrorIs(t, err, ErrUnauthorized)
	}
	_, err := f.world.GetByEmail(ctx, "bob@example.com")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

// TestPurpose: Validates that an admin cannot revoke themselves.
// Scope: Unit Test
// Security: Tenant must keep a manager
// Expected: ErrSelfRevoke and no write.
// Test Case ID: MEM-05
func TestService_Revoke_Self(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	admin := f.adminOf(ctx, "ann@acme.com", "Acme")
	writes := f.world.updates

	_, err := f.svc.Revoke(ctx, admin, admin.ActorID)
	assert.ErrorIs(t, err, ErrSelfRevoke)
	assert.True(t, f.world.snapshot(admin.ActorID).Active)
	assert.Equal(t, writes, f.world.updates)
}

// TestPurpose: Validates cross-tenant isolation for every targeted operation.
// Scope: Unit Test
// Security: Tenant isolation
// Expected: ErrCrossTenant and an unchanged target profile, also for unknown IDs.
// Test Case ID: MEM-06
func TestService_CrossTenant(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	admin := f.adminOf(ctx, "ann@acme.com", "Acme")
	other := f.adminOf(ctx, "carol@globex.com", "Globex")
	before := f.world.snapshot(other.ActorID)

	ops := map[string]func() error{
		"promote":  func() error { _, err := f.svc.Promote(ctx, admin, other.ActorID); return err },
		"revoke":   func() error { _, err := f.svc.Revoke(ctx, admin, other.ActorID); return err },
		"reengage": func() error { _, err := f.svc.Reengage(ctx, admin, other.ActorID); return err },
		"set_role": func() error {
			_, err := f.svc.SetRole(ctx, admin, other.ActorID, profile.RoleMember)
			return err
		},
		"unknown": func() error { _, err := f.svc.Promote(ctx, admin, "does-not-exist"); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), ErrCrossTenant)
			assert.Equal(t, before, f.world.snapshot(other.ActorID))
		})
	}
}

// TestPurpose: Validates promote idempotence and role changes.
// Scope: Unit Test
// Expected: Promoting twice equals promoting once; SetRole demotes others but refuses self-demotion.
// Test Case ID: MEM-07
func TestService_PromoteAndSetRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	admin := f.adminOf(ctx, "ann@acme.com", "Acme")
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	bob, err := f.svc.Invite(ctx, admin, "bob@example.com")
	require.NoError(t, err)

	_, err = f.svc.Promote(ctx, admin, bob.ActorID)
	require.NoError(t, err)
	once := f.world.snapshot(bob.ActorID)
	writes := f.world.updates

	_, err = f.svc.Promote(ctx, admin, bob.ActorID)
	require.NoError(t, err)
	assert.Equal(t, once, f.world.snapshot(bob.ActorID))
	assert.Equal(t, writes, f.world.updates)
	assert.Equal(t, profile.RoleAdmin, once.Role)

	p, err := f.svc.SetRole(ctx, admin, bob.ActorID, profile.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, profile.RoleMember, p.Role)

	_, err = f.svc.SetRole(ctx, admin, admin.ActorID, profile.RoleMember)
	assert.ErrorIs(t, err, ErrSelfDemote)

	_, err = f.svc.SetRole(ctx, admin, bob.ActorID, profile.Role("owner"))
	assert.ErrorIs(t, err, profile.ErrInvalidRole)
}

// TestPurpose: Validates the revoke and re-engage state transitions.
// Scope: Unit Test
// Expected: Revoke sets inactive, revoked_at and deleted_by; re-engage clears them; the tenant never changes.
// Test Case ID: MEM-08
func TestService_RevokeReengage(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	admin := f.adminOf(ctx, "ann@acme.com", "Acme")
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	bob, err := f.svc.Invite(ctx, admin, "bob@example.com")
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	p, err := f.svc.Revoke(ctx, admin, bob.ActorID)
	require.NoError(t, err)
	assert.False(t, p.Active)
	require.NotNil(t, p.RevokedAt)
	assert.Equal(t, now, *p.RevokedAt)
	require.NotNil(t, p.DeletedBy)
	assert.Equal(t, admin.ActorID, *p.DeletedBy)
	assert.Equal(t, admin.Tenant(), p.Tenant())

	p, err = f.svc.Reengage(ctx, admin, bob.ActorID)
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.Nil(t, p.RevokedAt)
	assert.Nil(t, p.DeletedBy)
	assert.Nil(t, p.DeletedAt)
	bobSnap := f.world.snapshot(bob.ActorID)
	assert.Equal(t, admin.Tenant(), bobSnap.Tenant())
}

// TestPurpose: Validates the member listing.
// Scope: Unit Test
// Expected: Only the admin's tenant, ordered by email, revoked members included.
// Test Case ID: MEM-09
func TestService_ListMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	admin := f.adminOf(ctx, "mia@acme.com", "Acme")
	f.adminOf(ctx, "carol@globex.com", "Globex")
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	zed, err := f.svc.Invite(ctx, admin, "zed@acme.com")
	require.NoError(t, err)
	_, err = f.svc.Invite(ctx, admin, "abe@acme.com")
	require.NoError(t, err)
	_, err = f.svc.Revoke(ctx, admin, zed.ActorID)
	require.NoError(t, err)

	members, err := f.svc.ListMembers(ctx, admin)
	require.NoError(t, err)
	var emails []string
	for _, m := range members {
		emails = append(emails, m.Email)
	}
	assert.Equal(t, []string{"abe@acme.com", "mia@acme.com", "zed@acme.com"}, emails)
}

// TestPurpose: Validates that no sequence of lifecycle operations clears the
// tenant reference or the completion stamp.
// Scope: Unit Test
// Expected: After every operation in a long mixed sequence both fields stay set.
// Test Case ID: MEM-10
func TestService_TenantAndCompletionAreSticky(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	admin := f.adminOf(ctx, "ann@acme.com", "Acme")
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	bob, err := f.svc.Invite(ctx, admin, "bob@example.com")
	require.NoError(t, err)

	stored := f.world.profiles[bob.ActorID]
	stored.MarkCompleted(time.Now())
	completedAt := *stored.CompletedAt

	ops := []func(){
		func() { _, _ = f.svc.Revoke(ctx, admin, bob.ActorID) },
		func() { _, _ = f.svc.Promote(ctx, admin, bob.ActorID) },
		func() { _, _ = f.svc.Reengage(ctx, admin, bob.ActorID) },
		func() { _, _ = f.svc.SetRole(ctx, admin, bob.ActorID, profile.RoleMember) },
		func() { _, _ = f.svc.Invite(ctx, admin, "bob@example.com") },
		func() { _, _ = f.svc.Revoke(ctx, admin, bob.ActorID) },
		func() { _, _ = f.svc.Revoke(ctx, admin, bob.ActorID) },
		func() { _, _ = f.svc.Reengage(ctx, admin, bob.ActorID) },
	}
	for i := 0; i < 3; i++ {
		for _, op := range ops {
			op()
			snap := f.world.snapshot(bob.ActorID)
			require.Equal(t, admin.Tenant(), snap.Tenant())
			require.NotNil(t, snap.CompletedAt)
			require.Equal(t, completedAt, *snap.CompletedAt)
		}
	}
}

// TestPurpose: Validates that an invite loses cleanly to a workspace created concurrently by the invitee.
// Scope: Unit Test
// Security: A tenant can never be left without its admin
// Expected: ErrAlreadyMember; the invitee stays admin of their own tenant and no invitation is sent.
// Test Case ID: MEM-11
func TestService_Invite_LosesToConcurrentWorkspace(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	admin := f.adminOf(ctx, "ann@acme.com", "Acme")

	carol, _, err := f.identities.Register(ctx, identity.Registration{Email: "carol@globex.com", Password: "correct-horse"})
	require.NoError(t, err)

	var own string
	f.world.beforeAttach = func() {
		ten, err := f.tenants.CreateForAdmin(ctx, carol.ID, "Globex")
		require.NoError(t, err)
		own = ten.ID
	}

	_, err = f.svc.Invite(ctx, admin, "carol@globex.com")
	assert.ErrorIs(t, err, ErrAlreadyMember)

	snap := f.world.snapshot(carol.ID)
	assert.Equal(t, own, snap.Tenant())
	assert.Equal(t, profile.RoleAdmin, snap.Role)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}
