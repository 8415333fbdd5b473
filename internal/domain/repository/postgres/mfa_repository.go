// File: internal/domain/repository/postgres/mfa_repository.go
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

// MFASecretRepositoryPostgres implements repository.MFASecretRepository
type MFASecretRepositoryPostgres struct {
	pool *pgxpool.Pool
}

// NewMFASecretRepositoryPostgres creates a new MFASecretRepositoryPostgres.
func NewMFASecretRepositoryPostgres(pool *pgxpool.Pool) *MFASecretRepositoryPostgres {
	return &MFASecretRepositoryPostgres{pool: pool}
}

func (r *MFASecretRepositoryPostgres) FindByUserID(ctx context.Context, tenantID, userID uuid.UUID) (*models.MFASecret, error) {
	query := `SELECT user_id, tenant_id, encrypted_secret, enabled, enabled_at, created_at, updated_at
		FROM mfa_secrets WHERE tenant_id = $1 AND user_id = $2`
	s := &models.MFASecret{}
	err := conn(ctx, r.pool).QueryRow(ctx, query, tenantID, userID).Scan(
		&s.UserID, &s.TenantID, &s.EncryptedSecret, &s.Enabled, &s.EnabledAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, domainErrors.ErrNotFound, "failed to find mfa secret")
	}
	return s, nil
}

// UpsertPending replaces a pending secret in place. The conflict update is
// guarded so an enabled secret is never overwritten; zero affected rows
// then means the factor is already enabled.
func (r *MFASecretRepositoryPostgres) UpsertPending(ctx context.Context, s *models.MFASecret) error {
	query := `INSERT INTO mfa_secrets (user_id, tenant_id, encrypted_secret, enabled, enabled_at, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, NULL, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET encrypted_secret = EXCLUDED.encrypted_secret,
		    tenant_id = EXCLUDED.tenant_id,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE mfa_secrets.enabled = FALSE`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, s.UserID, s.TenantID, s.EncryptedSecret, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert mfa secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrMFAAlreadyEnabled
	}
	return nil
}

func (r *MFASecretRepositoryPostgres) Enable(ctx context.Context, tenantID, userID uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE mfa_secrets SET enabled = TRUE, enabled_at = $1, updated_at = $1
		WHERE tenant_id = $2 AND user_id = $3 AND enabled = FALSE`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, at, tenantID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to enable mfa secret: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *MFASecretRepositoryPostgres) Delete(ctx context.Context, tenantID, userID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM mfa_secrets WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete mfa secret: %w", err)
	}
	return nil
}

// RecoveryCodeRepositoryPostgres implements repository.RecoveryCodeRepository
type RecoveryCodeRepositoryPostgres struct {
	pool *pgxpool.Pool
}

// NewRecoveryCodeRepositoryPostgres creates a new RecoveryCodeRepositoryPostgres.
func NewRecoveryCodeRepositoryPostgres(pool *pgxpool.Pool) *RecoveryCodeRepositoryPostgres {
	return &RecoveryCodeRepositoryPostgres{pool: pool}
}

// CreateMultiple inserts the batch with COPY.
func (r *RecoveryCodeRepositoryPostgres) CreateMultiple(ctx context.Context, codes []*models.RecoveryCode) error {
	if len(codes) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(codes))
	for _, c := range codes {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		rows = append(rows, []any{c.ID, c.UserID, c.TenantID, c.CodeHash, c.CreatedAt, c.UsedAt})
	}
	var err error
	if tx, ok := GetTx(ctx); ok {
		_, err = tx.CopyFrom(ctx, recoveryCodeTable, recoveryCodeCopyColumns, pgx.CopyFromRows(rows))
	} else {
		_, err = r.pool.CopyFrom(ctx, recoveryCodeTable, recoveryCodeCopyColumns, pgx.CopyFromRows(rows))
	}
	return mapError(err, domainErrors.ErrNotFound, "failed to create recovery codes")
}

var (
	recoveryCodeTable       = pgx.Identifier{"mfa_recovery_codes"}
	recoveryCodeCopyColumns = []string{"id", "user_id", "tenant_id", "code_hash", "created_at", "used_at"}
)

func (r *RecoveryCodeRepositoryPostgres) ListUnused(ctx context.Context, tenantID, userID uuid.UUID) ([]*models.RecoveryCode, error) {
	query := `SELECT id, user_id, tenant_id, code_hash, created_at, used_at
		FROM mfa_recovery_codes
		WHERE tenant_id = $1 AND user_id = $2 AND used_at IS NULL`
	rows, err := conn(ctx, r.pool).Query(ctx, query, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recovery codes: %w", err)
	}
	defer rows.Close()

	var out []*models.RecoveryCode
	for rows.Next() {
		c := &models.RecoveryCode{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.TenantID, &c.CodeHash, &c.CreatedAt, &c.UsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recovery code: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recovery codes: %w", err)
	}
	return out, nil
}

func (r *RecoveryCodeRepositoryPostgres) MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE mfa_recovery_codes SET used_at = $1 WHERE id = $2 AND used_at IS NULL`, usedAt, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark recovery code used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RecoveryCodeRepositoryPostgres) DeleteByUserID(ctx context.Context, tenantID, userID uuid.UUID) (int64, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM mfa_recovery_codes WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete recovery codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

var (
	_ repository.MFASecretRepository    = (*MFASecretRepositoryPostgres)(nil)
	_ repository.RecoveryCodeRepository = (*RecoveryCodeRepositoryPostgres)(nil)
)
