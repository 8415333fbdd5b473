// File: internal/config/config.go
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"

	DatabaseDriverPostgres = "postgres"
	DatabaseDriverMemory   = "memory"

	ThrottleBackendRedis = "redis"
	ThrottleBackendLocal = "local"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Security  SecurityConfig  `mapstructure:"security"`
	MFA       MFAConfig       `mapstructure:"mfa"`
	Retention RetentionConfig `mapstructure:"retention"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// IsProduction reports whether the deployment claims production behaviour.
func (c AppConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// DSN builds a postgres URL usable by pgx and golang-migrate.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Brokers    []string `mapstructure:"brokers"`
	AuditTopic string   `mapstructure:"audit_topic"`
	Source     string   `mapstructure:"source"`

	// DirectoryTopic включает потребителя событий каталога пользователей; пусто значит выключено.
	DirectoryTopic string `mapstructure:"directory_topic"`
	ConsumerGroup  string `mapstructure:"consumer_group"`
}

// ConsumesDirectory reports whether the directory event consumer should run.
func (c KafkaConfig) ConsumesDirectory() bool {
	return c.Enabled && c.DirectoryTopic != ""
}

type JWTConfig struct {
	RSAPrivateKeyPEMFile string        `mapstructure:"rsa_private_key_pem_file"`
	RSAPublicKeyPEMFile  string        `mapstructure:"rsa_public_key_pem_file"`
	JWKSKeyID            string        `mapstructure:"jwks_key_id"`
	Issuer               string        `mapstructure:"issuer"`
	Audience             string        `mapstructure:"audience"`
	AccessTokenTTL       time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `mapstructure:"refresh_token_ttl"`
	MFAChallengeTokenTTL time.Duration `mapstructure:"mfa_challenge_token_ttl"`
}

type SecurityConfig struct {
	Lockout              LockoutConfig      `mapstructure:"lockout"`
	PasswordHash         PasswordHashConfig `mapstructure:"password_hash"`
	Throttle             ThrottleConfig     `mapstructure:"throttle"`
	Sessions             SessionsConfig     `mapstructure:"sessions"`
	RequireVerifiedEmail bool               `mapstructure:"require_verified_email"`
}

type LockoutConfig struct {
	MaxFailedAttempts int           `mapstructure:"max_failed_attempts"`
	Window            time.Duration `mapstructure:"window"`
	// RelaxedForTesting disables lockout enforcement. Refused in production.
	RelaxedForTesting bool `mapstructure:"relaxed_for_testing"`
}

type PasswordHashConfig struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type ThrottleConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

type SessionsConfig struct {
	AbsoluteTTL      time.Duration `mapstructure:"absolute_ttl"`
	MaxActivePerUser int           `mapstructure:"max_active_per_user"`
}

type MFAConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	TOTPIssuerName    string `mapstructure:"totp_issuer_name"`
	TOTPEncryptionKey string `mapstructure:"totp_encryption_key"` // hex, 32 bytes
	TOTPSkew          uint   `mapstructure:"totp_skew"`
	RecoveryCodeCount int    `mapstructure:"recovery_code_count"`
}

type RetentionConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	LoginAttempts time.Duration `mapstructure:"login_attempts"`
	ExpiredTokens time.Duration `mapstructure:"expired_tokens"`
}

type LoggingConfig struct {
	Level string        `mapstructure:"level"`
	File  LogFileConfig `mapstructure:"file"`
}

type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type TelemetryConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Validate rejects combinations that would silently weaken security.
func (c *Config) Validate() error {
	var errs []error

	// Допустимы только три окружения.
	switch c.App.Environment {
	case EnvProduction, EnvDevelopment, EnvTest:
	default:
		errs = append(errs, fmt.Errorf("app.environment %q is not one of %s, %s, %s",
			c.App.Environment, EnvProduction, EnvDevelopment, EnvTest))
	}

	if c.Security.Lockout.MaxFailedAttempts <= 0 {
		errs = append(errs, errors.New("security.lockout.max_failed_attempts must be positive"))
	}
	if c.Security.Lockout.Window <= 0 {
		errs = append(errs, errors.New("security.lockout.window must be positive"))
	}
	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= 0 || c.JWT.MFAChallengeTokenTTL <= 0 {
		errs = append(errs, errors.New("jwt token TTLs must be positive"))
	}
	if c.MFA.RecoveryCodeCount <= 0 {
		errs = append(errs, errors.New("mfa.recovery_code_count must be positive"))
	}
	if c.MFA.Enabled {
		if key, err := hex.DecodeString(c.MFA.TOTPEncryptionKey); err != nil || len(key) != 32 {
			errs = append(errs, errors.New("mfa.totp_encryption_key must be 32 bytes, hex-encoded"))
		}
	}

	switch c.Database.Driver {
	case DatabaseDriverPostgres, DatabaseDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}

	if c.Security.Throttle.Enabled {
		switch c.Security.Throttle.Backend {
		case ThrottleBackendRedis:
			if c.Redis.Addr == "" {
				errs = append(errs, errors.New("redis.addr is required for the redis throttle backend"))
			}
		case ThrottleBackendLocal:
		default:
			errs = append(errs, fmt.Errorf("security.throttle.backend %q is not supported", c.Security.Throttle.Backend))
		}
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.AuditTopic == "") {
		errs = append(errs, errors.New("kafka.brokers and kafka.audit_topic are required when kafka is enabled"))
	}
	if c.Kafka.ConsumesDirectory() && c.Kafka.ConsumerGroup == "" {
		errs = append(errs, errors.New("kafka.consumer_group is required when kafka.directory_topic is set"))
	}

	if c.App.IsProduction() {
		if c.Security.Lockout.RelaxedForTesting {
			errs = append(errs, errors.New("security.lockout.relaxed_for_testing cannot be set in production"))
		}
		if !c.MFA.Enabled {
			errs = append(errs, errors.New("mfa.enabled cannot be false in production"))
		}
		if c.Database.Driver == DatabaseDriverMemory {
			errs = append(errs, errors.New("database.driver memory is not allowed in production"))
		}
	}

	return errors.Join(errs...)
}
