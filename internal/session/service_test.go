package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	sessions map[string]*Session
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: map[string]*Session{}}
}

func (m *memRepo) Create(_ context.Context, s *Session) error {
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memRepo) Get(_ context.Context, id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) Touch(_ context.Context, id string, t time.Time) error {
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.LastSeenAt = t
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func (m *memRepo) DeleteByUserID(_ context.Context, userID string) error {
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// TestPurpose: Validates session creation and lookup.
// Scope: Unit Test
// Security: Unpredictable session identifiers
// Expected: IDs are unique 43-character base64url strings and the session is retrievable.
// Test Case ID: SES-01
func TestService_CreateGet(t *testing.T) {
	repo := newMemRepo()
	s := NewService(repo, 24*time.Hour, 30*time.Minute)

	a, err := s.Create(context.Background(), "user-1", "10.0.0.1", "test")
	require.NoError(t, err)
	b, err := s.Create(context.Background(), "user-1", "10.0.0.1", "test")
	require.NoError(t, err)

	assert.Len(t, a.ID, 43)
	assert.NotEqual(t, a.ID, b.ID)

	got, err := s.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)

	_, err = s.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionInvalid)
	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// TestPurpose: Validates absolute and idle expiry.
// Scope: Unit Test
// Security: Session lifetime enforcement
// Expected: Idle and expired sessions are rejected and removed; refresh keeps an active session alive.
// Test Case ID: SES-02
func TestService_Expiry(t *testing.T) {
	repo := newMemRepo()
	s := NewService(repo, 2*time.Hour, 30*time.Minute)
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	sess, err := s.Create(context.Background(), "user-1", "", "")
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(20 * time.Minute) }
	require.NoError(t, s.Refresh(context.Background(), sess.ID))

	s.now = func() time.Time { return base.Add(45 * time.Minute) }
	_, err = s.Get(context.Background(), sess.ID)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(90 * time.Minute) }
	_, err = s.Get(context.Background(), sess.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Empty(t, repo.sessions)

	sess, err = s.Create(context.Background(), "user-1", "", "")
	require.NoError(t, err)
	s.now = func() time.Time { return base.Add(90*time.Minute + 3*time.Hour) }
	_, err = s.Get(context.Background(), sess.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

// TestPurpose: Validates bulk removal paths.
// Scope: Unit Test
// Expected: Cleanup removes only expired sessions; DestroyForUser removes all of one user's sessions.
// Test Case ID: SES-03
func TestService_Cleanup(t *testing.T) {
	repo := newMemRepo()
	s := NewService(repo, time.Hour, 0)
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	old, _ := s.Create(context.Background(), "user-1", "", "")
	s.now = func() time.Time { return base.Add(50 * time.Minute) }
	fresh, _ := s.Create(context.Background(), "user-2", "", "")
	_, _ = s.Create(context.Background(), "user-2", "", "")

	s.now = func() time.Time { return base.Add(70 * time.Minute) }
	n, err := s.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NotContains(t, repo.sessions, old.ID)
	assert.Contains(t, repo.sessions, fresh.ID)

	require.NoError(t, s.DestroyForUser(context.Background(), "user-2"))
	assert.Empty(t, repo.sessions)
}
