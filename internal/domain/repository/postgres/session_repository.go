// File: internal/domain/repository/postgres/session_repository.go
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

const sessionColumns = `id, user_id, tenant_id, ip_address, user_agent, created_at, last_seen_at,
	expires_at, revoked_at, revoked_reason`

// SessionRepositoryPostgres implements repository.SessionRepository
type SessionRepositoryPostgres struct {
	pool *pgxpool.Pool
}

// NewSessionRepositoryPostgres creates a new SessionRepositoryPostgres.
func NewSessionRepositoryPostgres(pool *pgxpool.Pool) *SessionRepositoryPostgres {
	return &SessionRepositoryPostgres{pool: pool}
}

func (r *SessionRepositoryPostgres) Create(ctx context.Context, s *models.Session) error {
	query := `INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		s.ID, s.UserID, s.TenantID, s.IPAddress, s.UserAgent, s.CreatedAt, s.LastSeenAt,
		s.ExpiresAt, s.RevokedAt, s.RevokedReason,
	)
	return mapError(err, domainErrors.ErrSessionNotFound, "failed to create session")
}

func (r *SessionRepositoryPostgres) FindByID(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE tenant_id = $1 AND id = $2`
	s, err := scanSession(conn(ctx, r.pool).QueryRow(ctx, query, tenantID, sessionID))
	if err != nil {
		return nil, mapError(err, domainErrors.ErrSessionNotFound, "failed to find session")
	}
	return s, nil
}

func (r *SessionRepositoryPostgres) ListByUser(ctx context.Context, tenantID, userID uuid.UUID, activeOnly bool, now time.Time) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE tenant_id = $1 AND user_id = $2
		  AND (NOT $3 OR (revoked_at IS NULL AND expires_at > $4))
		ORDER BY created_at DESC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, tenantID, userID, activeOnly, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

func (r *SessionRepositoryPostgres) CountActive(ctx context.Context, tenantID, userID uuid.UUID, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM sessions
		WHERE tenant_id = $1 AND user_id = $2 AND revoked_at IS NULL AND expires_at > $3`
	var n int
	if err := conn(ctx, r.pool).QueryRow(ctx, query, tenantID, userID, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return n, nil
}

func (r *SessionRepositoryPostgres) UpdateLastSeen(ctx context.Context, tenantID, sessionID uuid.UUID, at time.Time) error {
	query := `UPDATE sessions SET last_seen_at = $1
		WHERE tenant_id = $2 AND id = $3 AND revoked_at IS NULL`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, at, tenantID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session last_seen_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepositoryPostgres) Revoke(ctx context.Context, tenantID, sessionID uuid.UUID, at time.Time, reason string) (bool, error) {
	query := `UPDATE sessions SET revoked_at = $1, revoked_reason = $2
		WHERE tenant_id = $3 AND id = $4 AND revoked_at IS NULL`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, at, reason, tenantID, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SessionRepositoryPostgres) RevokeAllByUser(ctx context.Context, tenantID, userID uuid.UUID, except *uuid.UUID, at time.Time, reason string) ([]uuid.UUID, error) {
	query := `UPDATE sessions SET revoked_at = $1, revoked_reason = $2
		WHERE tenant_id = $3 AND user_id = $4 AND revoked_at IS NULL
		  AND ($5::uuid IS NULL OR id <> $5)
		RETURNING id`
	rows, err := conn(ctx, r.pool).Query(ctx, query, at, reason, tenantID, userID, except)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to collect revoked sessions: %w", err)
	}
	return ids, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	s := &models.Session{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.TenantID, &s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.LastSeenAt,
		&s.ExpiresAt, &s.RevokedAt, &s.RevokedReason,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

var _ repository.SessionRepository = (*SessionRepositoryPostgres)(nil)
