package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("AUTH_PASSWORD_RESET_TTL_MINUTES", "")
	t.Setenv("AUTH_LOGIN_RATE_LIMIT_PER_MINUTE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "account-service", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Minute, cfg.Auth.PasswordResetTTL())
	assert.True(t, cfg.Auth.ActivateOnRegister)
	assert.Equal(t, 20, cfg.Auth.LoginRateLimitPerMinute)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("AUTH_BCRYPT_COST", "4")
	t.Setenv("AUTH_RESET_THROTTLE_SECONDS", "0")
	t.Setenv("AUTH_ACTIVATE_ON_REGISTER", "false")
	t.Setenv("POSTGRES_MAX_CONNS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, 4, cfg.Auth.BcryptCost)
	assert.Zero(t, cfg.Auth.ResetThrottle())
	assert.False(t, cfg.Auth.ActivateOnRegister)
	assert.Equal(t, int32(10), cfg.Postgres.MaxConns)
}

func TestLoadRejectsDefaultSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "x")

	_, err := Load()
	assert.Error(t, err)
}
