package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_EXPIRES_IN", "")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test ,")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "http://localhost:9090", cfg.PublicURL)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiresIn)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, FanoutLocal, cfg.RelayFanout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_EXPIRES_IN", "90m")
	t.Setenv("AUTH_RATE_LIMIT_RPS", "20")
	t.Setenv("RELAY_REQUIRE_AUTH", "true")
	t.Setenv("ADMIN_EMAILS", "root@x.com, ops@x.com")

	cfg := Load()

	assert.Equal(t, 90*time.Minute, cfg.JWTExpiresIn)
	assert.Equal(t, 20, cfg.AuthRateLimitRPS)
	assert.True(t, cfg.RelayRequireAuth)
	assert.Equal(t, []string{"root@x.com", "ops@x.com"}, cfg.AdminEmails)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Env:          "production",
			StoreDriver:  DriverMemory,
			RelayFanout:  FanoutLocal,
			JWTSecret:    "s3cret",
			JWTExpiresIn: time.Hour,
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.JWTSecret = ""
	assert.Error(t, c.Validate())

	c = base()
	c.StoreDriver = DriverPostgres
	assert.ErrorContains(t, c.Validate(), "POSTGRES_DSN")

	c = base()
	c.RelayFanout = "kafka"
	assert.ErrorContains(t, c.Validate(), "RELAY_FANOUT")

	c = base()
	c.Env = "development"
	c.JWTSecret = ""
	assert.NoError(t, c.Validate())
}
