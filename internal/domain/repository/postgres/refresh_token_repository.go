// File: internal/domain/repository/postgres/refresh_token_repository.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
)

const refreshTokenColumns = `jti, session_id, user_id, tenant_id, token_hash, expires_at, created_at,
	used_at, replaced_by_jti, revoked_at, revoked_reason`

// RefreshTokenRepositoryPostgres implements repository.RefreshTokenRepository
type RefreshTokenRepositoryPostgres struct {
	pool *pgxpool.Pool
}

// NewRefreshTokenRepositoryPostgres creates a new RefreshTokenRepositoryPostgres.
func NewRefreshTokenRepositoryPostgres(pool *pgxpool.Pool) *RefreshTokenRepositoryPostgres {
	return &RefreshTokenRepositoryPostgres{pool: pool}
}

// Create persists a new refresh token.
func (r *RefreshTokenRepositoryPostgres) Create(ctx context.Context, t *models.RefreshToken) error {
	query := `INSERT INTO refresh_tokens (` + refreshTokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		t.JTI, t.SessionID, t.UserID, t.TenantID, t.TokenHash, t.ExpiresAt, t.CreatedAt,
		t.UsedAt, t.ReplacedByJTI, t.RevokedAt, t.RevokedReason,
	)
	return mapError(err, domainErrors.ErrNotFound, "failed to create refresh token")
}

// FindByJTIForUpdate takes a row lock that lives until the surrounding
// transaction ends. Outside a transaction the lock is released immediately.
func (r *RefreshTokenRepositoryPostgres) FindByJTIForUpdate(ctx context.Context, jti uuid.UUID) (*models.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE jti = $1 FOR UPDATE`
	t, err := scanRefreshToken(conn(ctx, r.pool).QueryRow(ctx, query, jti))
	if err != nil {
		return nil, mapError(err, domainErrors.ErrNotFound, "failed to find refresh token")
	}
	return t, nil
}

func (r *RefreshTokenRepositoryPostgres) MarkUsed(ctx context.Context, jti uuid.UUID, usedAt time.Time, replacedBy uuid.UUID) (bool, error) {
	query := `UPDATE refresh_tokens SET used_at = $1, replaced_by_jti = $2
		WHERE jti = $3 AND used_at IS NULL AND revoked_at IS NULL`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, usedAt, replacedBy, jti)
	if err != nil {
		return false, fmt.Errorf("failed to mark refresh token used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RefreshTokenRepositoryPostgres) Revoke(ctx context.Context, jti uuid.UUID, at time.Time, reason string) (bool, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $1, revoked_reason = $2
		WHERE jti = $3 AND revoked_at IS NULL`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, at, reason, jti)
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RefreshTokenRepositoryPostgres) RevokeBySession(ctx context.Context, tenantID, sessionID uuid.UUID, at time.Time, reason string) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $1, revoked_reason = $2
		WHERE tenant_id = $3 AND session_id = $4 AND revoked_at IS NULL`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, at, reason, tenantID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke session tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepositoryPostgres) RevokeByUser(ctx context.Context, tenantID, userID uuid.UUID, at time.Time, reason string) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $1, revoked_reason = $2
		WHERE tenant_id = $3 AND user_id = $4 AND revoked_at IS NULL`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, at, reason, tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepositoryPostgres) ListBySession(ctx context.Context, tenantID, sessionID uuid.UUID) ([]*models.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens
		WHERE tenant_id = $1 AND session_id = $2
		ORDER BY created_at, jti`
	rows, err := conn(ctx, r.pool).Query(ctx, query, tenantID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}
	defer rows.Close()

	var out []*models.RefreshToken
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refresh token: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate refresh tokens: %w", err)
	}
	return out, nil
}

func (r *RefreshTokenRepositoryPostgres) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRefreshToken(row pgx.Row) (*models.RefreshToken, error) {
	t := &models.RefreshToken{}
	err := row.Scan(
		&t.JTI, &t.SessionID, &t.UserID, &t.TenantID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt,
		&t.UsedAt, &t.ReplacedByJTI, &t.RevokedAt, &t.RevokedReason,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

var _ repository.RefreshTokenRepository = (*RefreshTokenRepositoryPostgres)(nil)
