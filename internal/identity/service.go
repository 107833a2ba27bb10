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

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/id"
	"github.com/opentrusty/tenantgate/internal/locale"
	"github.com/opentrusty/tenantgate/internal/profile"
)

const minPasswordLength = 8

var validate = validator.New()

// Registration carries self-service sign-up data and client hints
type Registration struct {
	Email    string
	Password string
	Language string // browser language hint
	Timezone string // browser timezone hint
}

// Service provides identity-related business logic
type Service struct {
	repo               UserRepository
	hasher             *PasswordHasher
	auditLogger        audit.Logger
	lockoutMaxAttempts int
	lockoutDuration    time.Duration
	now                func() time.Time
}

// NewService creates a new identity service
func NewService(
	repo UserRepository,
	hasher *PasswordHasher,
	auditLogger audit.Logger,
	lockoutMaxAttempts int,
	lockoutDuration time.Duration,
) *Service {
	return &Service{
		repo:               repo,
		hasher:             hasher,
		auditLogger:        auditLogger,
		lockoutMaxAttempts: lockoutMaxAttempts,
		lockoutDuration:    lockoutDuration,
		now:                time.Now,
	}
}

// NormalizeEmail trims and lower-cases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an actor with a password and its default profile.
func (s *Service) Register(ctx context.Context, reg Registration) (*User, *profile.Profile, error) {
	email := NormalizeEmail(reg.Email)
	if !isValidEmail(email) {
		return nil, nil, ErrInvalidEmail
	}
	if !isStrongPassword(reg.Password) {
		return nil, nil, ErrWeakPassword
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, nil, ErrUserAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, nil, fmt.Errorf("failed to look up email: %w", err)
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := s.newUser(email)
	p := profile.New(user.ID, profile.DeriveDisplayName(email))
	if reg.Language != "" {
		p.Locale = locale.Match(reg.Language)
	}
	if tz, err := profile.NormalizeTimezone(reg.Timezone); err == nil {
		p.Timezone = tz
	}

	creds := &Credentials{UserID: user.ID, PasswordHash: hash}
	if err := s.repo.Create(ctx, user, creds, p); err != nil {
		return nil, nil, fmt.Errorf("failed to create identity: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		ActorID:  user.ID,
		Resource: "user",
		Metadata: map[string]any{audit.AttrEmail: user.Email, "source": "registration"},
	})

	return user, p, nil
}

// ResolveOrProvision returns the actor for email, creating a password-less
// actor with a default profile when none exists.
func (s *Service) ResolveOrProvision(ctx context.Context, email string) (*User, bool, error) {
	email = NormalizeEmail(email)
	if !isValidEmail(email) {
		return nil, false, ErrInvalidEmail
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, fmt.Errorf("failed to look up email: %w", err)
	}

	user := s.newUser(email)
	p := profile.New(user.ID, profile.DeriveDisplayName(email))
	if err := s.repo.Create(ctx, user, nil, p); err != nil {
		return nil, false, fmt.Errorf("failed to provision identity: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		ActorID:  user.ID,
		Resource: "user",
		Metadata: map[string]any{audit.AttrEmail: user.Email, "source": "invitation"},
	})

	return user, true, nil
}

// Authenticate authenticates a user with email and password
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			Resource: email,
			Metadata: map[string]any{audit.AttrReason: "user_not_found"},
		})
		return nil, ErrInvalidCredentials
	}

	if !user.Active || user.DeletedAt != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "inactive"},
		})
		return nil, ErrAccountInactive
	}

	if user.IsLocked(s.now()) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "locked_out"},
		})
		return nil, ErrAccountLocked
	}

	credentials, err := s.repo.GetCredentials(ctx, user.ID)
	if err != nil {
		// invited actors have no password until they accept
		return nil, ErrInvalidCredentials
	}

	valid, err := s.hasher.Verify(password, credentials.PasswordHash)
	if err != nil || !valid {
		attempts := user.FailedLoginAttempts + 1
		var lockedUntil *time.Time

		if attempts >= s.lockoutMaxAttempts {
			until := s.now().Add(s.lockoutDuration)
			lockedUntil = &until
			s.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeUserLocked,
				ActorID:  user.ID,
				Resource: "login",
				Metadata: map[string]any{audit.AttrAttempts: attempts},
			})
		}

		_ = s.repo.UpdateLockout(ctx, user.ID, attempts, lockedUntil)

		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{
				audit.AttrReason:   "invalid_password",
				audit.AttrAttempts: attempts,
			},
		})

		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		_ = s.repo.UpdateLockout(ctx, user.ID, 0, nil)
	}

	return user, nil
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// HasPassword reports whether the actor can log in with a password
func (s *Service) HasPassword(ctx context.Context, userID string) (bool, error) {
	_, err := s.repo.GetCredentials(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNoCredentials):
		return false, nil
	default:
		return false, err
	}
}

// CredentialState returns the values invitation tokens are bound to
func (s *Service) CredentialState(ctx context.Context, userID string) (CredentialState, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return CredentialState{}, err
	}
	state := CredentialState{Active: user.Active && user.DeletedAt == nil}

	creds, err := s.repo.GetCredentials(ctx, userID)
	switch {
	case err == nil:
		state.PasswordHash = creds.PasswordHash
	case errors.Is(err, ErrNoCredentials):
	default:
		return CredentialState{}, err
	}
	return state, nil
}

// SetPassword sets or replaces a password without checking the old one.
// Used when an invited actor accepts.
func (s *Service) SetPassword(ctx context.Context, userID, password string) error {
	if !isStrongPassword(password) {
		return ErrWeakPassword
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.repo.SetPassword(ctx, userID, hash); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePasswordSet,
		ActorID:  userID,
		Resource: "user_credentials",
	})
	return nil
}

// ChangePassword changes user password
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	credentials, err := s.repo.GetCredentials(ctx, userID)
	if err != nil {
		return ErrInvalidCredentials
	}

	valid, err := s.hasher.Verify(oldPassword, credentials.PasswordHash)
	if err != nil || !valid {
		return ErrInvalidCredentials
	}

	return s.SetPassword(ctx, userID, newPassword)
}

func (s *Service) newUser(email string) *User {
	now := s.now()
	return &User{
		ID:        id.NewUUIDv7(),
		Email:     email,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func isValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return validate.Var(email, "required,email") == nil
}

func isStrongPassword(password string) bool {
	return len(password) >= minPasswordLength
}
