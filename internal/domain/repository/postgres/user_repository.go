// File: internal/domain/repository/postgres/user_repository.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
)

const userColumns = `id, tenant_id, email, password_hash, is_active, is_verified, mfa_enabled,
	password_changed_at, created_at, updated_at`

// UserRepositoryPostgres implements repository.UserRepository
type UserRepositoryPostgres struct {
	pool *pgxpool.Pool
}

// NewUserRepositoryPostgres creates a new UserRepositoryPostgres.
func NewUserRepositoryPostgres(pool *pgxpool.Pool) *UserRepositoryPostgres {
	return &UserRepositoryPostgres{pool: pool}
}

// Create inserts a directory record. Only provisioning tools and tests use it.
func (r *UserRepositoryPostgres) Create(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		user.ID, user.TenantID, models.NormalizeEmail(user.Email), user.PasswordHash,
		user.IsActive, user.IsVerified, user.MFAEnabled, user.PasswordChangedAt,
		user.CreatedAt, user.UpdatedAt,
	)
	return mapError(err, domainErrors.ErrUserNotFound, "failed to create user")
}

func (r *UserRepositoryPostgres) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND email = $2`
	return r.scanOne(ctx, query, "failed to find user by email", tenantID, models.NormalizeEmail(email))
}

func (r *UserRepositoryPostgres) FindByID(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND id = $2`
	return r.scanOne(ctx, query, "failed to find user by ID", tenantID, userID)
}

func (r *UserRepositoryPostgres) UpdatePassword(ctx context.Context, tenantID, userID uuid.UUID, passwordHash string, changedAt time.Time) error {
	query := `UPDATE users
		SET password_hash = $1, password_changed_at = $2, updated_at = $2
		WHERE tenant_id = $3 AND id = $4`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, passwordHash, changedAt, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrUserNotFound
	}
	return nil
}

// RehashPassword is a compare-and-swap on password_hash; password_changed_at stays as is.
func (r *UserRepositoryPostgres) RehashPassword(ctx context.Context, tenantID, userID uuid.UUID, oldHash, newHash string, at time.Time) (bool, error) {
	query := `UPDATE users
		SET password_hash = $1, updated_at = $2
		WHERE tenant_id = $3 AND id = $4 AND password_hash = $5`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, newHash, at, tenantID, userID, oldHash)
	if err != nil {
		return false, fmt.Errorf("failed to rehash password: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepositoryPostgres) scanOne(ctx context.Context, query, op string, args ...any) (*models.User, error) {
	u := &models.User{}
	err := conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsVerified, &u.MFAEnabled,
		&u.PasswordChangedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, domainErrors.ErrUserNotFound, op)
	}
	return u, nil
}

var _ repository.UserRepository = (*UserRepositoryPostgres)(nil)
