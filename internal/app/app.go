// File: internal/app/app.go

// Package app wires configuration, storage and the domain services into one
// process-wide container used by the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ruther77/MassaCorp-sub001/internal/config"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository/memory"
	repoPostgres "github.com/ruther77/MassaCorp-sub001/internal/domain/repository/postgres"
	domainService "github.com/ruther77/MassaCorp-sub001/internal/domain/service"
	"github.com/ruther77/MassaCorp-sub001/internal/events/handlers"
	"github.com/ruther77/MassaCorp-sub001/internal/events/kafka"
	infraDbPostgres "github.com/ruther77/MassaCorp-sub001/internal/infrastructure/database/postgres"
	"github.com/ruther77/MassaCorp-sub001/internal/infrastructure/ratelimit"
	"github.com/ruther77/MassaCorp-sub001/internal/infrastructure/security"
	"github.com/ruther77/MassaCorp-sub001/internal/service"
	"github.com/ruther77/MassaCorp-sub001/migrations"
)

// Repositories is the set of store adapters the services run on.
type Repositories struct {
	Transactor    repository.Transactor
	Users         repository.UserRepository
	LoginAttempts repository.LoginAttemptRepository
	Sessions      repository.SessionRepository
	RefreshTokens repository.RefreshTokenRepository
	MFASecrets    repository.MFASecretRepository
	RecoveryCodes repository.RecoveryCodeRepository
	AuditLogs     repository.AuditLogRepository
}

// PostgresRepositories builds every adapter on one pool.
func PostgresRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Transactor:    repoPostgres.NewTransactionManager(pool),
		Users:         repoPostgres.NewUserRepositoryPostgres(pool),
		LoginAttempts: repoPostgres.NewLoginAttemptRepositoryPostgres(pool),
		Sessions:      repoPostgres.NewSessionRepositoryPostgres(pool),
		RefreshTokens: repoPostgres.NewRefreshTokenRepositoryPostgres(pool),
		MFASecrets:    repoPostgres.NewMFASecretRepositoryPostgres(pool),
		RecoveryCodes: repoPostgres.NewRecoveryCodeRepositoryPostgres(pool),
		AuditLogs:     repoPostgres.NewAuditLogRepositoryPostgres(pool),
	}
}

// MemoryRepositories builds every adapter on one in-process store.
func MemoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		Transactor:    store,
		Users:         store.Users(),
		LoginAttempts: store.LoginAttempts(),
		Sessions:      store.Sessions(),
		RefreshTokens: store.RefreshTokens(),
		MFASecrets:    store.MFASecrets(),
		RecoveryCodes: store.RecoveryCodes(),
		AuditLogs:     store.AuditLogs(),
	}
}

// App holds the wired services. Close releases everything New opened.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Clock  domainService.Clock
	Repos  Repositories

	Tokens        domainService.TokenManagementService
	Audit         *domainService.AuditLogService
	Sessions      *domainService.SessionRegistry
	Ledger        *domainService.TokenLedger
	MFA           *domainService.MFARegistry
	Authenticator *domainService.Authenticator
	Retention     *service.RetentionService
	// Directory is nil unless kafka.directory_topic is configured.
	Directory *kafka.ConsumerGroup

	pool    *pgxpool.Pool
	closers []func() error
}

// Options override parts of the wiring. Zero values mean "build from config".
type Options struct {
	Clock  domainService.Clock
	Repos  *Repositories
	Tokens domainService.TokenManagementService
}

// New builds the container from cfg. On error everything already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Clock: opts.Clock}
	if a.Clock == nil {
		a.Clock = domainService.SystemClock{}
	}
	if err := a.init(ctx, opts); err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	if err := a.initStore(ctx, opts.Repos); err != nil {
		return err
	}
	publisher, err := a.initPublisher()
	if err != nil {
		return err
	}
	if err := a.initServices(opts.Tokens, publisher); err != nil {
		return err
	}
	return a.initDirectoryConsumer()
}

func (a *App) initStore(ctx context.Context, repos *Repositories) error {
	if repos != nil {
		a.Repos = *repos
		return nil
	}
	switch a.Config.Database.Driver {
	case config.DatabaseDriverMemory:
		if a.Config.App.IsProduction() {
			return errors.New("the in-memory store cannot be used in production")
		}
		a.Logger.Warn("Using the in-memory store: state is lost on restart and not shared between instances")
		a.Repos = MemoryRepositories(memory.NewStore())
		return nil
	default:
		if a.Config.Database.AutoMigrate {
			if err := a.Migrate(func(m *migrations.Manager) error { return m.Up() }); err != nil {
				return err
			}
		}
		pool, err := infraDbPostgres.NewDBPool(ctx, a.Config.Database, a.Logger)
		if err != nil {
			return err
		}
		a.pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.Repos = PostgresRepositories(pool)
		return nil
	}
}

// Migrate opens a migration manager on the configured database and runs fn.
func (a *App) Migrate(fn func(*migrations.Manager) error) error {
	m, err := migrations.NewManager(a.Config.Database.DSN(), a.Logger)
	if err != nil {
		return err
	}
	return errors.Join(fn(m), m.Close())
}

// initPublisher returns a nil interface, not a typed nil, when kafka is off.
func (a *App) initPublisher() (domainService.EventPublisher, error) {
	if !a.Config.Kafka.Enabled {
		return nil, nil
	}
	producer, err := kafka.NewProducer(a.Config.Kafka, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Kafka producer: %w", err)
	}
	a.closers = append(a.closers, producer.Close)
	return producer, nil
}

func (a *App) initLimiter() (domainService.RateLimiter, error) {
	t := a.Config.Security.Throttle
	if !t.Enabled {
		return nil, nil
	}
	if t.Backend == config.ThrottleBackendLocal {
		return ratelimit.NewLocalRateLimiter(a.Clock), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	a.closers = append(a.closers, client.Close)
	return ratelimit.NewRedisRateLimiter(client, a.Config.App.Name, a.Logger), nil
}

func (a *App) initServices(tokens domainService.TokenManagementService, publisher domainService.EventPublisher) error {
	cfg := a.Config

	passwords, err := security.NewArgon2idPasswordService(cfg.Security.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to initialize password service: %w", err)
	}
	if tokens == nil {
		rsa, err := security.NewRSATokenManagementService(cfg.JWT, a.Clock)
		if err != nil {
			return fmt.Errorf("failed to initialize token service: %w", err)
		}
		tokens = rsa
	}
	a.Tokens = tokens

	a.Audit = domainService.NewAuditLogService(a.Repos.AuditLogs, publisher, a.Clock, a.Logger)

	a.Sessions, err = domainService.NewSessionRegistry(domainService.SessionRegistryConfig{
		Transactor:    a.Repos.Transactor,
		Sessions:      a.Repos.Sessions,
		RefreshTokens: a.Repos.RefreshTokens,
		LoginAttempts: a.Repos.LoginAttempts,
		Audit:         a.Audit,
		Clock:         a.Clock,
		Logger:        a.Logger,
		Lockout: domainService.LockoutPolicy{
			MaxFailedAttempts: cfg.Security.Lockout.MaxFailedAttempts,
			Window:            cfg.Security.Lockout.Window,
			RelaxedForTesting: cfg.Security.Lockout.RelaxedForTesting,
		},
		SessionTTL:       cfg.Security.Sessions.AbsoluteTTL,
		MaxActivePerUser: cfg.Security.Sessions.MaxActivePerUser,
	})
	if err != nil {
		return err
	}

	a.Ledger, err = domainService.NewTokenLedger(domainService.TokenLedgerConfig{
		Transactor:    a.Repos.Transactor,
		Sessions:      a.Repos.Sessions,
		RefreshTokens: a.Repos.RefreshTokens,
		Tokens:        tokens,
		Audit:         a.Audit,
		Clock:         a.Clock,
		Logger:        a.Logger,
	})
	if err != nil {
		return err
	}

	if cfg.MFA.Enabled {
		totp, err := security.NewPquernaTOTPService(cfg.MFA.TOTPIssuerName, cfg.MFA.TOTPSkew)
		if err != nil {
			return fmt.Errorf("failed to initialize TOTP service: %w", err)
		}
		a.MFA, err = domainService.NewMFARegistry(domainService.MFARegistryConfig{
			Transactor:        a.Repos.Transactor,
			Secrets:           a.Repos.MFASecrets,
			RecoveryCodes:     a.Repos.RecoveryCodes,
			TOTP:              totp,
			Encryption:        security.NewAESGCMEncryptionService(),
			Hasher:            passwords,
			Audit:             a.Audit,
			Clock:             a.Clock,
			Logger:            a.Logger,
			EncryptionKey:     cfg.MFA.TOTPEncryptionKey,
			RecoveryCodeCount: cfg.MFA.RecoveryCodeCount,
		})
		if err != nil {
			return err
		}
	}

	limiter, err := a.initLimiter()
	if err != nil {
		return err
	}

	a.Authenticator, err = domainService.NewAuthenticator(domainService.AuthenticatorConfig{
		Users:      a.Repos.Users,
		Transactor: a.Repos.Transactor,
		Sessions:   a.Sessions,
		Ledger:     a.Ledger,
		MFA:        a.MFA,
		Tokens:     tokens,
		Passwords:  passwords,
		Audit:      a.Audit,
		Throttle: domainService.ThrottlePolicy{
			Limiter: limiter,
			Limit:   cfg.Security.Throttle.Limit,
			Window:  cfg.Security.Throttle.Window,
		},
		Clock:                a.Clock,
		Logger:               a.Logger,
		Production:           cfg.App.IsProduction(),
		RequireVerifiedEmail: cfg.Security.RequireVerifiedEmail,
	})
	if err != nil {
		return err
	}

	a.Retention, err = service.NewRetentionService(a.Sessions, a.Ledger, cfg.Retention, a.Logger)
	return err
}

func (a *App) initDirectoryConsumer() error {
	if !a.Config.Kafka.ConsumesDirectory() {
		return nil
	}
	group, err := kafka.NewConsumerGroup(a.Config.Kafka, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize directory consumer: %w", err)
	}
	a.closers = append(a.closers, group.Close)
	handlers.NewDirectoryEventsHandler(a.Repos.Transactor, a.Sessions, a.Ledger, a.Audit, a.Logger).Register(group)
	a.Directory = group
	return nil
}

// Ping checks the relational store, when there is one.
func (a *App) Ping(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	return a.pool.Ping(ctx)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
