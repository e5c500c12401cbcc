package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves into an empty directory so no stray .env is loaded.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 5, cfg.Provisioning.MaxLoginIDAttempts)
	assert.Equal(t, 12, cfg.Provisioning.GeneratedPasswordLength)
	assert.Equal(t, MailProviderLog, cfg.Mail.Provider)
	assert.Equal(t, 2*time.Second, cfg.Notifications.RetryDelay)
	assert.False(t, cfg.TenantCache.Enabled)
	assert.Equal(t, 1, cfg.Provisioning.BulkConcurrency)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "sma-identity-api", cfg.Database.ApplicationName)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, 30*time.Second, cfg.JWT.Leeway)
}

func TestLoadReadsEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MAIL_PROVIDER", "SendGrid")
	t.Setenv("PROVISIONING_MAX_LOGIN_ID_ATTEMPTS", "9")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("TENANT_CACHE_TTL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, MailProviderSendgrid, cfg.Mail.Provider)
	assert.Equal(t, 9, cfg.Provisioning.MaxLoginIDAttempts)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 15*time.Minute, cfg.TenantCache.TTL)
}

func TestPositiveOr(t *testing.T) {
	assert.Equal(t, 3, positiveOr(0, 3))
	assert.Equal(t, 3, positiveOr(-1, 3))
	assert.Equal(t, 7, positiveOr(7, 3))
}
