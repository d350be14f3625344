package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, 4201, cfg.HTTP.Port)
	assert.Equal(t, 10*time.Minute, cfg.Token.CodeTTL)
	assert.Equal(t, time.Hour, cfg.Token.AccessTokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.SSO.TokenTTL)
	assert.Contains(t, cfg.SSO.AllowedApps, "wallet")
	assert.Equal(t, 5, cfg.Webhook.MaxAttempts)
	assert.Equal(t, 500, cfg.Reaper.BatchSize)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_ENV", "development")
	t.Setenv("AUTH_HTTP_PORT", "9999")
	t.Setenv("AUTH_TOKEN_CODE_TTL", "30s")
	t.Setenv("AUTH_SSO_ALLOWED_APPS", "alpha,beta")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.Token.CodeTTL)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.SSO.AllowedApps)
}

func TestLoadRequiresDatabaseOutsideDevelopment(t *testing.T) {
	t.Setenv("AUTH_ENV", "production")
	t.Setenv("AUTH_DB_URL", "")
	t.Setenv("AUTH_SSO_SERVICE_SECRET", "s3cret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_DB_URL")
}

func TestLoadRequiresServiceSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("AUTH_ENV", "production")
	t.Setenv("AUTH_DB_URL", "postgres://localhost/identity")
	t.Setenv("AUTH_SSO_SERVICE_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_SSO_SERVICE_SECRET")
}
