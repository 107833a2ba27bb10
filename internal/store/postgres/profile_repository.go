package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/tenantgate/internal/profile"
)

// ProfileRepository implements profile.Repository
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `p.actor_id, p.display_name, p.locale, p.timezone, p.country, p.completed_at,
	p.theme, p.marketing_consent, p.tenant_id, p.role, p.joined_at, p.revoked_at, p.active,
	p.created_at, p.updated_at, p.updated_by, p.deleted_at, p.deleted_by`

func insertProfile(ctx context.Context, tx pgx.Tx, p *profile.Profile, now time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO profiles (
			actor_id, display_name, locale, timezone, country, theme,
			marketing_consent, role, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`,
		p.ActorID, p.DisplayName, p.Locale, p.Timezone, p.Country, string(p.Theme),
		p.MarketingConsent, string(p.Role), p.Active, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// GetByActorID retrieves the profile for an actor
func (r *ProfileRepository) GetByActorID(ctx context.Context, actorID string) (*profile.Profile, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles p WHERE p.actor_id = $1`, actorID)

	var p profile.Profile
	if err := row.Scan(profileDest(&p)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, profile.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// Update writes the mutable fields in one statement. A stored tenant and
// completion stamp are kept even if the caller passes nil.
func (r *ProfileRepository) Update(ctx context.Context, p *profile.Profile) error {
	now := time.Now()
	result, err := r.db.pool.Exec(ctx, `
		UPDATE profiles SET
			display_name = $2,
			locale = $3,
			timezone = $4,
			country = $5,
			completed_at = COALESCE(completed_at, $6),
			theme = $7,
			marketing_consent = $8,
			tenant_id = COALESCE(tenant_id, $9),
			role = $10,
			joined_at = $11,
			revoked_at = $12,
			active = $13,
			updated_at = $14,
			updated_by = $15,
			deleted_at = $16,
			deleted_by = $17
		WHERE actor_id = $1
	`,
		p.ActorID, p.DisplayName, p.Locale, p.Timezone, p.Country,
		p.CompletedAt, string(p.Theme), p.MarketingConsent, p.TenantID, string(p.Role),
		p.JoinedAt, p.RevokedAt, p.Active, now, p.UpdatedBy, p.DeletedAt, p.DeletedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return profile.ErrProfileNotFound
	}
	p.UpdatedAt = now
	return nil
}

// AttachMember joins p to its tenant. The update only matches while
// tenant_id is still NULL, so a concurrent step 2 cannot be overwritten.
func (r *ProfileRepository) AttachMember(ctx context.Context, p *profile.Profile) error {
	now := time.Now()
	result, err := r.db.pool.Exec(ctx, `
		UPDATE profiles SET
			tenant_id = $2,
			role = $3,
			joined_at = $4,
			revoked_at = NULL,
			active = TRUE,
			deleted_at = NULL,
			deleted_by = NULL,
			updated_at = $5,
			updated_by = $6
		WHERE actor_id = $1 AND tenant_id IS NULL
	`, p.ActorID, p.TenantID, string(p.Role), p.JoinedAt, now, p.UpdatedBy)
	if err != nil {
		return fmt.Errorf("failed to attach member: %w", err)
	}
	if result.RowsAffected() == 0 {
		return profile.ErrAlreadyAttached
	}
	p.UpdatedAt = now
	return nil
}

// ListByTenant lists the tenant's profiles with their emails, ordered by email
func (r *ProfileRepository) ListByTenant(ctx context.Context, tenantID string) ([]*profile.Member, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+profileColumns+`, u.email
		FROM profiles p
		JOIN users u ON u.id = p.actor_id
		WHERE p.tenant_id = $1
		ORDER BY u.email
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*profile.Member
	for rows.Next() {
		var m profile.Member
		dest := append(profileDest(&m.Profile), &m.Email)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// profileDest returns scan targets in profileColumns order. Theme and role
// are declared as string kinds, so pgx scans them directly.
func profileDest(p *profile.Profile) []any {
	return []any{
		&p.ActorID, &p.DisplayName, &p.Locale, &p.Timezone, &p.Country, &p.CompletedAt,
		&p.Theme, &p.MarketingConsent, &p.TenantID, &p.Role, &p.JoinedAt, &p.RevokedAt, &p.Active,
		&p.CreatedAt, &p.UpdatedAt, &p.UpdatedBy, &p.DeletedAt, &p.DeletedBy,
	}
}
