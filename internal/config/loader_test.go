package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruther77/MassaCorp-sub001/internal/config"
)

const testKeyHex = "8f3c2a1b9e7d6c5f4a3b2c1d0e9f8a7b6c5d4e3f2a1b0c9d8e7f6a5b4c3d2e1f"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_DefaultsAreStrict(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("AUTHCORE_MFA_TOTP_ENCRYPTION_KEY", testKeyHex)

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Environment)
	assert.Equal(t, 5, cfg.Security.Lockout.MaxFailedAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Security.Lockout.Window)
	assert.False(t, cfg.Security.Lockout.RelaxedForTesting)
	assert.Equal(t, uint(1), cfg.MFA.TOTPSkew)
	assert.Equal(t, 10, cfg.MFA.RecoveryCodeCount)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.True(t, cfg.MFA.Enabled)
	assert.False(t, cfg.Security.Throttle.Enabled)
	assert.False(t, cfg.Kafka.ConsumesDirectory())
	assert.Equal(t, "authcore-directory", cfg.Kafka.ConsumerGroup)
}

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	path := writeConfig(t, `
database:
  driver: memory
security:
  lockout:
    max_failed_attempts: 3
    window: 10m
  throttle:
    enabled: true
    backend: local
mfa:
  totp_encryption_key: "`+testKeyHex+`"
`)
	t.Setenv("AUTHCORE_JWT_ACCESS_TOKEN_TTL", "5m")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, config.DatabaseDriverMemory, cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Security.Lockout.MaxFailedAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Security.Lockout.Window)
	assert.True(t, cfg.Security.Throttle.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessTokenTTL)
}

func TestLoadConfig_RejectsInsecureCombinations(t *testing.T) {
	tests := []struct {
		name string
		env  string
		body string
	}{
		{
			name: "relaxed lockout in production",
			env:  "production",
			body: "security:\n  lockout:\n    relaxed_for_testing: true\nmfa:\n  totp_encryption_key: \"" + testKeyHex + "\"\n",
		},
		{
			name: "mfa disabled in production",
			env:  "production",
			body: "mfa:\n  enabled: false\n",
		},
		{
			name: "memory store in production",
			env:  "production",
			body: "database:\n  driver: memory\nmfa:\n  totp_encryption_key: \"" + testKeyHex + "\"\n",
		},
		{
			name: "unknown environment alias",
			env:  "prod",
			body: "database:\n  driver: memory\nmfa:\n  totp_encryption_key: \"" + testKeyHex + "\"\n",
		},
		{
			name: "unknown environment in file",
			env:  "development",
			body: "app:\n  environment: staging\nmfa:\n  totp_encryption_key: \"" + testKeyHex + "\"\n",
		},
		{
			name: "missing encryption key",
			env:  "development",
			body: "app:\n  name: authcore\n",
		},
		{
			name: "redis throttle without address",
			env:  "development",
			body: "security:\n  throttle:\n    enabled: true\n    backend: redis\nmfa:\n  totp_encryption_key: \"" + testKeyHex + "\"\n",
		},
		{
			name: "directory topic without consumer group",
			env:  "development",
			body: "kafka:\n  enabled: true\n  brokers: [\"localhost:9092\"]\n  directory_topic: directory.users\n  consumer_group: \"\"\nmfa:\n  totp_encryption_key: \"" + testKeyHex + "\"\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENV", tt.env)
			_, err := config.LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestConfig_ValidateNamesUnknownEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	_, err := config.LoadConfig(writeConfig(t, "mfa:\n  totp_encryption_key: \""+testKeyHex+"\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `app.environment "prod"`)

	t.Setenv("APP_ENV", "PRODUCTION")
	cfg, err := config.LoadConfig(writeConfig(t, "mfa:\n  totp_encryption_key: \""+testKeyHex+"\"\n"))
	require.NoError(t, err)
	assert.True(t, cfg.App.IsProduction())
}

func TestLoadConfig_RelaxedLockoutAllowedOutsideProduction(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	path := writeConfig(t, "security:\n  lockout:\n    relaxed_for_testing: true\nmfa:\n  totp_encryption_key: \""+testKeyHex+"\"\n")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Security.Lockout.RelaxedForTesting)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	db := config.DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5433, DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5433/d?sslmode=disable", db.DSN())
}
