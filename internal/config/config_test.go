package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "/auth", cfg.Server.AuthBasePath)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.EmailVerificationTTL)
	assert.Equal(t, time.Hour, cfg.Auth.PasswordResetTTL)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, TokenFormatJWT, cfg.Auth.TokenFormat)
	assert.Equal(t, 20, cfg.RateLimit.MaxRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, RateLimitBackendMemory, cfg.RateLimit.Backend)
	assert.Empty(t, cfg.Email.ProviderKey)
	assert.False(t, cfg.NeedsRedis())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("EMAIL_VERIFICATION_TTL", "3600")
	t.Setenv("PASSWORD_RESET_TTL", "15m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PUBLIC_APP_URL", "https://app.example/")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("STORE_DRIVER", "MEMORY")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, time.Hour, cfg.Auth.EmailVerificationTTL)
	assert.Equal(t, 15*time.Minute, cfg.Auth.PasswordResetTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "https://app.example", cfg.Email.PublicAppURL)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.True(t, cfg.NeedsRedis())
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SECRET")
}

func TestValidate_PasetoNeedsExactKey(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret+"extra")
	t.Setenv("SESSION_TOKEN_FORMAT", "paseto")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate_UnknownDriver(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("STORE_DRIVER", "mongo")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER")
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", c.ConnectionString())

	c.ChannelBinding = "require"
	assert.Contains(t, c.ConnectionString(), "channel_binding=require")

	c.URL = "postgres://u:p@db/n"
	assert.Equal(t, "postgres://u:p@db/n", c.ConnectionString())
}
