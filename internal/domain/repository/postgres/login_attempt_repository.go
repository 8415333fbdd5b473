// File: internal/domain/repository/postgres/login_attempt_repository.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
)

// LoginAttemptRepositoryPostgres implements repository.LoginAttemptRepository
type LoginAttemptRepositoryPostgres struct {
	pool *pgxpool.Pool
}

// NewLoginAttemptRepositoryPostgres creates a new LoginAttemptRepositoryPostgres.
func NewLoginAttemptRepositoryPostgres(pool *pgxpool.Pool) *LoginAttemptRepositoryPostgres {
	return &LoginAttemptRepositoryPostgres{pool: pool}
}

func (r *LoginAttemptRepositoryPostgres) Create(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	query := `INSERT INTO login_attempts (id, email, tenant_id, success, kind, ip_address, challenge_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		attempt.ID, models.NormalizeEmail(attempt.Email), attempt.TenantID, attempt.Success,
		string(attempt.Kind), attempt.IPAddress, attempt.ChallengeID, attempt.CreatedAt,
	)
	return mapError(err, nil, "failed to record login attempt")
}

func (r *LoginAttemptRepositoryPostgres) ChallengeConsumed(ctx context.Context, tenantID, challengeID uuid.UUID) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM login_attempts WHERE tenant_id = $1 AND challenge_id = $2)`,
		tenantID, challengeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check mfa challenge: %w", err)
	}
	return exists, nil
}

func (r *LoginAttemptRepositoryPostgres) ListSince(ctx context.Context, tenantID uuid.UUID, email string, since time.Time, limit int) ([]*models.LoginAttempt, error) {
	// seq разрешает равные created_at в порядке вставки.
	query := `SELECT id, email, tenant_id, success, kind, ip_address, challenge_id, created_at
		FROM login_attempts
		WHERE tenant_id = $1 AND email = $2 AND created_at > $3
		ORDER BY created_at DESC, seq DESC
		LIMIT $4`
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := conn(ctx, r.pool).Query(ctx, query, tenantID, models.NormalizeEmail(email), since, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to list login attempts: %w", err)
	}
	defer rows.Close()

	var out []*models.LoginAttempt
	for rows.Next() {
		a := &models.LoginAttempt{}
		var kind string
		if err := rows.Scan(&a.ID, &a.Email, &a.TenantID, &a.Success, &kind, &a.IPAddress, &a.ChallengeID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		a.Kind = models.LoginAttemptKind(kind)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate login attempts: %w", err)
	}
	return out, nil
}

func (r *LoginAttemptRepositoryPostgres) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM login_attempts WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge login attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ repository.LoginAttemptRepository = (*LoginAttemptRepositoryPostgres)(nil)
