package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/opentrusty/tenantgate/internal/observability/logger"
)

const idBytes = 32

// Service creates, validates and expires sessions
type Service struct {
	repo        Repository
	lifetime    time.Duration
	idleTimeout time.Duration
	now         func() time.Time
}

// NewService creates a new session service
func NewService(repo Repository, lifetime, idleTimeout time.Duration) *Service {
	return &Service{
		repo:        repo,
		lifetime:    lifetime,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Lifetime is the absolute session lifetime, used for cookie Max-Age
func (s *Service) Lifetime() time.Duration {
	return s.lifetime
}

// NewID returns a random URL-safe session identifier
func NewID() (string, error) {
	key := securecookie.GenerateRandomKey(idBytes)
	if key == nil {
		return "", errors.New("failed to generate session id")
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}

// Create starts a session for userID
func (s *Service) Create(ctx context.Context, userID, ipAddress, userAgent string) (*Session, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &Session{
		ID:         id,
		UserID:     userID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		ExpiresAt:  now.Add(s.lifetime),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// Get returns a live session. Expired or idle sessions are deleted and
// reported as ErrSessionExpired.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionInvalid
	}
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if sess.IsExpired(now) || sess.IsIdle(now, s.idleTimeout) {
		if err := s.repo.Delete(ctx, sessionID); err != nil {
			slog.WarnContext(ctx, "failed to delete stale session", logger.Error(err))
		}
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Refresh records activity on the session
func (s *Service) Refresh(ctx context.Context, sessionID string) error {
	return s.repo.Touch(ctx, sessionID, s.now())
}

// Destroy ends one session
func (s *Service) Destroy(ctx context.Context, sessionID string) error {
	return s.repo.Delete(ctx, sessionID)
}

// DestroyForUser ends every session of a user
func (s *Service) DestroyForUser(ctx context.Context, userID string) error {
	return s.repo.DeleteByUserID(ctx, userID)
}

// CleanupExpired purges expired sessions
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

// RunCleanup purges expired sessions every interval until ctx is done.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.CleanupExpired(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "session cleanup failed", logger.Component("session"), logger.Error(err))
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "expired sessions purged", logger.Component("session"), slog.Int64("count", n))
			}
		}
	}
}
