// File: internal/config/loader.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoadConfig reads config.<APP_ENV>.yaml (or the file at configPath, or
// CONFIG_PATH), applies AUTHCORE_* environment overrides and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	env := strings.ToLower(os.Getenv("APP_ENV"))
	if env == "" {
		env = EnvDevelopment
	}
	v.SetDefault("app.environment", env)

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/authcore")
	}

	v.SetEnvPrefix("AUTHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides are picked up by Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "authcore")

	v.SetDefault("database.driver", DatabaseDriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "authcore")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "authcore")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 10*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.audit_topic", "authcore.security-events")
	v.SetDefault("kafka.source", "/authcore")
	v.SetDefault("kafka.directory_topic", "")
	v.SetDefault("kafka.consumer_group", "authcore-directory")

	v.SetDefault("jwt.rsa_private_key_pem_file", "")
	v.SetDefault("jwt.rsa_public_key_pem_file", "")
	v.SetDefault("jwt.jwks_key_id", "authcore-1")
	v.SetDefault("jwt.issuer", "authcore")
	v.SetDefault("jwt.audience", "authcore-clients")
	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)
	v.SetDefault("jwt.refresh_token_ttl", 30*24*time.Hour)
	v.SetDefault("jwt.mfa_challenge_token_ttl", 5*time.Minute)

	v.SetDefault("security.lockout.max_failed_attempts", 5)
	v.SetDefault("security.lockout.window", 30*time.Minute)
	v.SetDefault("security.lockout.relaxed_for_testing", false)
	v.SetDefault("security.password_hash.memory", 64*1024)
	v.SetDefault("security.password_hash.iterations", 3)
	v.SetDefault("security.password_hash.parallelism", 2)
	v.SetDefault("security.password_hash.salt_length", 16)
	v.SetDefault("security.password_hash.key_length", 32)
	v.SetDefault("security.throttle.enabled", false)
	v.SetDefault("security.throttle.backend", ThrottleBackendLocal)
	v.SetDefault("security.throttle.limit", 50)
	v.SetDefault("security.throttle.window", 15*time.Minute)
	v.SetDefault("security.sessions.absolute_ttl", 30*24*time.Hour)
	v.SetDefault("security.sessions.max_active_per_user", 20)
	v.SetDefault("security.require_verified_email", true)

	v.SetDefault("mfa.enabled", true)
	v.SetDefault("mfa.totp_issuer_name", "AuthCore")
	v.SetDefault("mfa.totp_encryption_key", "")
	v.SetDefault("mfa.totp_skew", 1)
	v.SetDefault("mfa.recovery_code_count", 10)

	v.SetDefault("retention.interval", time.Hour)
	v.SetDefault("retention.login_attempts", 90*24*time.Hour)
	v.SetDefault("retention.expired_tokens", 7*24*time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("telemetry.tracing.enabled", false)
	v.SetDefault("telemetry.tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.tracing.insecure", true)
	v.SetDefault("telemetry.tracing.sample_ratio", 1.0)
	v.SetDefault("telemetry.metrics.addr", ":9090")
}
