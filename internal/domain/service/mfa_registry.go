// File: internal/domain/service/mfa_registry.go
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/metrics"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/random"
)

const (
	mfaMethodTOTP     = "totp"
	mfaMethodRecovery = "recovery_code"

	defaultRecoveryCodeCount = 10
)

// MFARegistryConfig holds dependencies for MFARegistry.
type MFARegistryConfig struct {
	Transactor    repository.Transactor
	Secrets       repository.MFASecretRepository
	RecoveryCodes repository.RecoveryCodeRepository
	TOTP          TOTPService
	Encryption    EncryptionService
	Hasher        PasswordService // recovery codes are hashed like passwords
	Audit         *AuditLogService
	Clock         Clock
	Logger        *zap.Logger

	EncryptionKey     string // hex, 32 bytes
	RecoveryCodeCount int
}

// MFARegistry manages the TOTP factor of each user:
// NOT_CONFIGURED → PENDING_ACTIVATION → ENABLED → NOT_CONFIGURED.
type MFARegistry struct {
	tx            repository.Transactor
	secrets       repository.MFASecretRepository
	recoveryCodes repository.RecoveryCodeRepository
	totp          TOTPService
	encryption    EncryptionService
	hasher        PasswordService
	audit         *AuditLogService
	clock         Clock
	logger        *zap.Logger

	key       string
	codeCount int
}

// NewMFARegistry validates the encryption key before anything is stored with it.
func NewMFARegistry(cfg MFARegistryConfig) (*MFARegistry, error) {
	if cfg.Transactor == nil || cfg.Secrets == nil || cfg.RecoveryCodes == nil || cfg.TOTP == nil ||
		cfg.Encryption == nil || cfg.Hasher == nil || cfg.Audit == nil {
		return nil, errors.New("mfa registry: transactor, repositories, crypto services and audit service are required")
	}
	if err := ValidateEncryptionKey(cfg.EncryptionKey); err != nil {
		return nil, fmt.Errorf("mfa registry: %w", err)
	}
	if cfg.RecoveryCodeCount <= 0 {
		cfg.RecoveryCodeCount = defaultRecoveryCodeCount
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &MFARegistry{
		tx:            cfg.Transactor,
		secrets:       cfg.Secrets,
		recoveryCodes: cfg.RecoveryCodes,
		totp:          cfg.TOTP,
		encryption:    cfg.Encryption,
		hasher:        cfg.Hasher,
		audit:         cfg.Audit,
		clock:         cfg.Clock,
		logger:        cfg.Logger.Named("mfa_registry"),
		key:           cfg.EncryptionKey,
		codeCount:     cfg.RecoveryCodeCount,
	}, nil
}

func (r *MFARegistry) findSecret(ctx context.Context, tenantID, userID uuid.UUID) (*models.MFASecret, error) {
	secret, err := r.secrets.FindByUserID(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load mfa secret: %w", err)
	}
	return secret, nil
}

// Status returns the factor state of the user.
func (r *MFARegistry) Status(ctx context.Context, tenantID, userID uuid.UUID) (models.MFAStatus, error) {
	secret, err := r.findSecret(ctx, tenantID, userID)
	if err != nil {
		return "", err
	}
	return secret.Status(), nil
}

// Setup generates a new secret in PENDING_ACTIVATION. The plaintext secret
// and QR code are returned here and never again.
func (r *MFARegistry) Setup(ctx context.Context, tenantID, userID uuid.UUID, accountName string) (*models.MFASetup, error) {
	key, err := r.totp.GenerateKey(accountName)
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp key: %w", err)
	}
	encrypted, err := r.encryption.Encrypt(key.Secret, r.key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt totp secret: %w", err)
	}

	now := r.clock.Now()
	err = r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		existing, err := r.findSecret(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		if existing.Status() == models.MFAStatusEnabled {
			return domainErrors.ErrMFAAlreadyEnabled
		}
		err = r.secrets.UpsertPending(ctx, &models.MFASecret{
			UserID:          userID,
			TenantID:        tenantID,
			EncryptedSecret: encrypted,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			return err
		}
		return r.audit.LogAction(ctx, r.event(models.AuditEventMFASetupInitiated, tenantID, userID, true, nil))
	})
	if err != nil {
		return nil, err
	}

	return &models.MFASetup{
		Secret:          key.Secret,
		ProvisioningURI: key.URL,
		QRCodePNG:       key.QRCodePNG,
	}, nil
}

// Enable activates a pending secret with a valid TOTP code and returns the
// first set of recovery codes.
func (r *MFARegistry) Enable(ctx context.Context, tenantID, userID uuid.UUID, code string) ([]string, error) {
	var codes []string
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		secret, err := r.findSecret(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		if secret.Status() != models.MFAStatusPendingActivation {
			return domainErrors.ErrMFANotPending
		}
		if err := r.checkTOTP(secret, code); err != nil {
			return err
		}
		enabled, err := r.secrets.Enable(ctx, tenantID, userID, r.clock.Now())
		if err != nil {
			return fmt.Errorf("failed to enable mfa: %w", err)
		}
		if !enabled {
			return domainErrors.ErrMFANotPending
		}
		if codes, err = r.replaceRecoveryCodes(ctx, tenantID, userID); err != nil {
			return err
		}
		return r.audit.LogAction(ctx, r.event(models.AuditEventMFAEnabled, tenantID, userID, true, nil))
	})
	if err != nil {
		return nil, r.auditFailure(ctx, tenantID, userID, mfaMethodTOTP, "enable", err)
	}
	return codes, nil
}

// Disable removes the factor. It takes a TOTP or a recovery code.
func (r *MFARegistry) Disable(ctx context.Context, tenantID, userID uuid.UUID, code string) error {
	method := methodFor(code)
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		secret, err := r.findSecret(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		if secret.Status() != models.MFAStatusEnabled {
			return domainErrors.ErrMFANotEnabled
		}
		if method == mfaMethodTOTP {
			err = r.checkTOTP(secret, code)
		} else {
			err = r.consumeRecoveryCode(ctx, tenantID, userID, code)
		}
		if err != nil {
			return err
		}
		if err := r.secrets.Delete(ctx, tenantID, userID); err != nil {
			return fmt.Errorf("failed to delete mfa secret: %w", err)
		}
		if _, err := r.recoveryCodes.DeleteByUserID(ctx, tenantID, userID); err != nil {
			return fmt.Errorf("failed to delete recovery codes: %w", err)
		}
		return r.audit.LogAction(ctx, r.event(models.AuditEventMFADisabled, tenantID, userID, true,
			map[string]interface{}{"method": method}))
	})
	if err != nil {
		return r.auditFailure(ctx, tenantID, userID, method, "disable", err)
	}
	return nil
}

// VerifyTOTP checks a code against the enabled secret.
func (r *MFARegistry) VerifyTOTP(ctx context.Context, tenantID, userID uuid.UUID, code string) error {
	secret, err := r.findSecret(ctx, tenantID, userID)
	if err == nil && secret.Status() != models.MFAStatusEnabled {
		err = domainErrors.ErrMFANotEnabled
	}
	if err == nil {
		err = r.checkTOTP(secret, code)
	}
	if err != nil {
		return r.auditFailure(ctx, tenantID, userID, mfaMethodTOTP, "verify", err)
	}
	metrics.MFAVerificationsTotal.WithLabelValues(mfaMethodTOTP, metrics.StatusSuccess).Inc()
	return nil
}

// VerifyRecoveryCode consumes a matching unused recovery code.
func (r *MFARegistry) VerifyRecoveryCode(ctx context.Context, tenantID, userID uuid.UUID, code string) error {
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		secret, err := r.findSecret(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		if secret.Status() != models.MFAStatusEnabled {
			return domainErrors.ErrMFANotEnabled
		}
		if err := r.consumeRecoveryCode(ctx, tenantID, userID, code); err != nil {
			return err
		}
		return r.audit.LogAction(ctx, r.event(models.AuditEventRecoveryCodeUsed, tenantID, userID, true, nil))
	})
	if err != nil {
		return r.auditFailure(ctx, tenantID, userID, mfaMethodRecovery, "verify", err)
	}
	metrics.MFAVerificationsTotal.WithLabelValues(mfaMethodRecovery, metrics.StatusSuccess).Inc()
	return nil
}

// RegenerateRecoveryCodes replaces the whole set after a valid TOTP code.
func (r *MFARegistry) RegenerateRecoveryCodes(ctx context.Context, tenantID, userID uuid.UUID, totpCode string) ([]string, error) {
	var codes []string
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		secret, err := r.findSecret(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		if secret.Status() != models.MFAStatusEnabled {
			return domainErrors.ErrMFANotEnabled
		}
		if err := r.checkTOTP(secret, totpCode); err != nil {
			return err
		}
		if codes, err = r.replaceRecoveryCodes(ctx, tenantID, userID); err != nil {
			return err
		}
		return r.audit.LogAction(ctx, r.event(models.AuditEventRecoveryCodesReset, tenantID, userID, true,
			map[string]interface{}{"count": len(codes)}))
	})
	if err != nil {
		return nil, r.auditFailure(ctx, tenantID, userID, mfaMethodTOTP, "regenerate", err)
	}
	return codes, nil
}

// RemainingRecoveryCodes counts unused recovery codes.
func (r *MFARegistry) RemainingRecoveryCodes(ctx context.Context, tenantID, userID uuid.UUID) (int, error) {
	codes, err := r.recoveryCodes.ListUnused(ctx, tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list recovery codes: %w", err)
	}
	return len(codes), nil
}

func (r *MFARegistry) checkTOTP(secret *models.MFASecret, code string) error {
	plain, err := r.encryption.Decrypt(secret.EncryptedSecret, r.key)
	if err != nil {
		return fmt.Errorf("failed to decrypt totp secret: %w", err)
	}
	ok, err := r.totp.ValidateCode(plain, code, r.clock.Now())
	if err != nil {
		r.logger.Debug("Malformed totp code", zap.Error(err))
		return domainErrors.ErrMFAInvalid
	}
	if !ok {
		return domainErrors.ErrMFAInvalid
	}
	return nil
}

func (r *MFARegistry) consumeRecoveryCode(ctx context.Context, tenantID, userID uuid.UUID, code string) error {
	normalized := random.NormalizeRecoveryCode(code)
	if normalized == "" {
		return domainErrors.ErrMFAInvalid
	}
	unused, err := r.recoveryCodes.ListUnused(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to list recovery codes: %w", err)
	}
	for _, candidate := range unused {
		match, err := r.hasher.CheckPasswordHash(normalized, candidate.CodeHash)
		if err != nil {
			r.logger.Error("Unreadable recovery code hash", zap.Error(err), zap.String("code_id", candidate.ID.String()))
			continue
		}
		if !match {
			continue
		}
		consumed, err := r.recoveryCodes.MarkUsed(ctx, candidate.ID, r.clock.Now())
		if err != nil {
			return fmt.Errorf("failed to consume recovery code: %w", err)
		}
		if !consumed {
			return domainErrors.ErrMFAInvalid
		}
		return nil
	}
	return domainErrors.ErrMFAInvalid
}

// replaceRecoveryCodes must run inside a transaction.
func (r *MFARegistry) replaceRecoveryCodes(ctx context.Context, tenantID, userID uuid.UUID) ([]string, error) {
	if _, err := r.recoveryCodes.DeleteByUserID(ctx, tenantID, userID); err != nil {
		return nil, fmt.Errorf("failed to delete recovery codes: %w", err)
	}

	now := r.clock.Now()
	plain := make([]string, 0, r.codeCount)
	rows := make([]*models.RecoveryCode, 0, r.codeCount)
	for i := 0; i < r.codeCount; i++ {
		code, err := random.GenerateRecoveryCode()
		if err != nil {
			return nil, err
		}
		hash, err := r.hasher.HashPassword(random.NormalizeRecoveryCode(code))
		if err != nil {
			return nil, fmt.Errorf("failed to hash recovery code: %w", err)
		}
		plain = append(plain, code)
		rows = append(rows, &models.RecoveryCode{
			ID:        uuid.New(),
			UserID:    userID,
			TenantID:  tenantID,
			CodeHash:  hash,
			CreatedAt: now,
		})
	}
	if err := r.recoveryCodes.CreateMultiple(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to store recovery codes: %w", err)
	}
	return plain, nil
}

// auditFailure records a rejected MFA operation after its transaction rolled back.
func (r *MFARegistry) auditFailure(ctx context.Context, tenantID, userID uuid.UUID, method, operation string, cause error) error {
	if !errors.Is(cause, domainErrors.ErrMFAInvalid) {
		return cause
	}
	metrics.MFAVerificationsTotal.WithLabelValues(method, metrics.StatusFailure).Inc()
	auditErr := r.audit.LogAction(ctx, r.event(models.AuditEventMFAVerifyFailed, tenantID, userID, false,
		map[string]interface{}{"method": method, "operation": operation}))
	if auditErr != nil {
		return fmt.Errorf("%w: %w", cause, auditErr)
	}
	return cause
}

func (r *MFARegistry) event(eventType string, tenantID, userID uuid.UUID, success bool, meta map[string]interface{}) *models.AuditEvent {
	severity := models.AuditSeverityInfo
	if !success {
		severity = models.AuditSeverityWarning
	}
	return &models.AuditEvent{
		EventType: eventType,
		Severity:  severity,
		UserID:    &userID,
		TenantID:  tenantID,
		Success:   success,
		Metadata:  auditMetadata(meta),
	}
}

// isTOTPCode reports whether code has the shape of a six-digit TOTP.
func isTOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func methodFor(code string) string {
	if isTOTPCode(code) {
		return mfaMethodTOTP
	}
	return mfaMethodRecovery
}
