package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("API_BASE_URL", "http://backend.local/api/")
	t.Setenv("APP_ENV", "")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "http://backend.local/api", cfg.APIBaseURL)
	require.Equal(t, 8*time.Hour, cfg.SessionTTL)
	require.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	require.Equal(t, 30*time.Second, cfg.RefreshTimeout)
	require.True(t, cfg.RefreshCoalesce)
	require.False(t, cfg.CookieSecure)
	require.False(t, cfg.TrustProxyHeaders)
	require.Equal(t, "pretty", cfg.LogFormat)
}

func TestLoadTrustProxyHeaders(t *testing.T) {
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("API_BASE_URL", "http://backend.local")
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.TrustProxyHeaders)
}

func TestLoadProductionDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("API_BASE_URL", "https://backend.example.com")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.True(t, cfg.CookieSecure)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{
			Env:             "development",
			ServerPort:      "3000",
			APIBaseURL:      "http://backend.local",
			SessionSecret:   "secret",
			SessionTTL:      time.Hour,
			AccessTokenTTL:  time.Minute,
			RefreshTokenTTL: time.Hour,
			RefreshTimeout:  time.Second,
			BackendTimeout:  time.Second,
			RequestTimeout:  time.Second,
			DBMaxConns:      4,
			DBMinConns:      1,
			LogFormat:       "pretty",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing session secret", mutate: func(c *Config) { c.SessionSecret = " " }},
		{name: "short secret in production", mutate: func(c *Config) { c.Env = "production" }},
		{name: "missing api base", mutate: func(c *Config) { c.APIBaseURL = "" }},
		{name: "relative api base", mutate: func(c *Config) { c.APIBaseURL = "/api" }},
		{name: "zero access ttl", mutate: func(c *Config) { c.AccessTokenTTL = 0 }},
		{name: "zero refresh timeout", mutate: func(c *Config) { c.RefreshTimeout = 0 }},
		{name: "min conns above max", mutate: func(c *Config) { c.DBMinConns = 10 }},
		{name: "unknown log format", mutate: func(c *Config) { c.LogFormat = "xml" }},
	}

	require.NoError(t, valid().Validate())

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
