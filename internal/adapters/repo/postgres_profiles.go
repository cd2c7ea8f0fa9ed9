package repo

import (
	"context"
	"time"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/metrics"
)

const profileColumns = `id, user_id, role, display_name, created_at, updated_at`

func scanProfile(row rowScanner) (domain.Profile, error) {
	var pr domain.Profile
	err := row.Scan(&pr.ID, &pr.UserID, &pr.Role, &pr.DisplayName, &pr.CreatedAt, &pr.UpdatedAt)
	return pr, err
}

func (p *Postgres) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	pr, err := scanProfile(p.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
	metrics.ObserveNetworkRequest("postgres", "get_profile", "profiles", start, ignoreNoRows(err))
	return pr, mapPgError(err)
}

// CreateProfile relies on the unique user_id constraint to reject a second profile.
func (p *Postgres) CreateProfile(ctx context.Context, userID string, role domain.Role, displayName *string) (domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	now := p.now()
	start := time.Now()
	pr, err := scanProfile(p.pool.QueryRow(ctx, `
INSERT INTO profiles (id, user_id, role, display_name, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
RETURNING `+profileColumns, newID(), userID, role, displayName, now))
	metrics.ObserveNetworkRequest("postgres", "create_profile", "profiles", start, err)
	return pr, mapPgError(err)
}

func (p *Postgres) UpdateDisplayName(ctx context.Context, userID string, displayName *string) (domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	pr, err := scanProfile(p.pool.QueryRow(ctx, `
UPDATE profiles SET display_name = $2, updated_at = $3
WHERE user_id = $1
RETURNING `+profileColumns, userID, displayName, p.now()))
	metrics.ObserveNetworkRequest("postgres", "update_profile", "profiles", start, ignoreNoRows(err))
	return pr, mapPgError(err)
}

// SetRole keeps an existing display name when displayName is nil.
func (p *Postgres) SetRole(ctx context.Context, userID string, role domain.Role, displayName *string) (domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	now := p.now()
	start := time.Now()
	pr, err := scanProfile(p.pool.QueryRow(ctx, `
INSERT INTO profiles (id, user_id, role, display_name, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (user_id) DO UPDATE
SET role = EXCLUDED.role,
    display_name = COALESCE(EXCLUDED.display_name, profiles.display_name),
    updated_at = EXCLUDED.updated_at
RETURNING `+profileColumns, newID(), userID, role, displayName, now))
	metrics.ObserveNetworkRequest("postgres", "set_role", "profiles", start, err)
	return pr, mapPgError(err)
}

func (p *Postgres) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at ASC`)
	metrics.ObserveNetworkRequest("postgres", "list_profiles", "profiles", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	profiles := make([]domain.Profile, 0)
	for rows.Next() {
		pr, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, pr)
	}
	return profiles, rows.Err()
}
