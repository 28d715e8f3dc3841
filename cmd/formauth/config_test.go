package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parsedServeCmd returns the serve command with args parsed, the way cobra
// leaves it before RunE.
func parsedServeCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	root := NewRootCmd()
	cmd, rest, err := root.Find(append([]string{"serve"}, args...))
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(rest))
	return cmd
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "formauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadSettings_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")

	s, err := loadSettings(parsedServeCmd(t))
	require.NoError(t, err)

	want := defaultSettings()
	assert.Equal(t, want.Addr, s.Addr)
	assert.Equal(t, want.Auth.Session.CookieName, s.Auth.Session.CookieName)
	assert.Equal(t, want.Auth.Routes.PermitAll, s.Auth.Routes.PermitAll)
	assert.True(t, s.Auth.Security.CSRFProtection)
	assert.Equal(t, rememberMeRedis, s.RememberMeStore)
	assert.Equal(t, 10*time.Minute, s.ReapInterval)
	assert.Equal(t, "fl", s.Auth.Security.RateLimitPrefix)
	assert.Equal(t, 5*time.Second, s.Auth.Audit.FlushTimeout)
}

func TestLoadSettings_FileThenFlags(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	path := writeConfig(t, `
addr: ":9090"
redis_addr: "redis:6379"
log_format: text
auth:
  session:
    lifetime: 45m
    cookie_name: SID
  remember_me:
    token_validity: 336h
  security:
    rate_limit_prefix: tenant1
  challenge:
    enabled: false
  routes:
    permit_all:
      - /login.html
      - /assets/**
`)

	s, err := loadSettings(parsedServeCmd(t, "--config", path, "--addr", ":7070", "--csrf=false", "--reap-interval", "1m"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", s.Addr, "flags override the file")
	assert.Equal(t, "redis:6379", s.RedisAddr)
	assert.Equal(t, "text", s.LogFormat)
	assert.Equal(t, 45*time.Minute, s.Auth.Session.Lifetime)
	assert.Equal(t, "SID", s.Auth.Session.CookieName)
	assert.Equal(t, 336*time.Hour, s.Auth.RememberMe.TokenValidity)
	assert.Equal(t, "tenant1", s.Auth.Security.RateLimitPrefix)
	assert.Equal(t, time.Minute, s.ReapInterval)
	assert.False(t, s.Auth.Challenge.Enabled)
	assert.False(t, s.Auth.Security.CSRFProtection)
	assert.Equal(t, []string{"/login.html", "/assets/**"}, s.Auth.Routes.PermitAll, "lists are replaced, not merged")
	assert.Equal(t, "remember-me", s.Auth.RememberMe.CookieName, "unset keys keep their defaults")
}

func TestLoadSettings_EnvironmentFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_ADDR", "env:6379")

	s, err := loadSettings(parsedServeCmd(t))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", s.DatabaseURL)
	assert.Equal(t, "env:6379", s.RedisAddr)

	s, err = loadSettings(parsedServeCmd(t, "--redis-addr", "flag:6379"))
	require.NoError(t, err)
	assert.Equal(t, "flag:6379", s.RedisAddr)
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args func(t *testing.T) []string
	}{
		{"missing file", func(t *testing.T) []string {
			return []string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}
		}},
		{"unknown remember-me store", func(*testing.T) []string {
			return []string{"--remember-me-store", "disk"}
		}},
		{"production without secure cookies", func(*testing.T) []string {
			return []string{"--production"}
		}},
		{"invalid auth config", func(t *testing.T) []string {
			return []string{"--config", writeConfig(t, "auth:\n  password:\n    memory: 1024\n")}
		}},
		{"missing key file", func(t *testing.T) []string {
			return []string{"--jwt-private-key-file", filepath.Join(t.TempDir(), "absent.key")}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadSettings(parsedServeCmd(t, tt.args(t)...))
			require.Error(t, err)

			oopsErr, ok := oops.AsOops(err)
			require.True(t, ok)
			assert.Equal(t, "CONFIG_INVALID", oopsErr.Code())
		})
	}
}

func TestLoadSettings_ReadsKeyFiles(t *testing.T) {
	dir := t.TempDir()
	key := filepath.Join(dir, "jwt.key")
	require.NoError(t, os.WriteFile(key, []byte("0123456789abcdef0123456789abcdef"), 0o600))

	s, err := loadSettings(parsedServeCmd(t, "--jwt", "--jwt-private-key-file", key, "--config",
		writeConfig(t, "auth:\n  jwt:\n    signing_method: hs256\n")))
	require.NoError(t, err)
	assert.True(t, s.Auth.JWT.Enabled)
	assert.Equal(t, []byte("0123456789abcdef0123456789abcdef"), s.Auth.JWT.PrivateKey)
}

func TestLoadSettings_ExampleFile(t *testing.T) {
	s, err := loadSettings(parsedServeCmd(t, "--config", filepath.Join("..", "..", "formauth.example.yaml")))
	require.NoError(t, err)

	assert.True(t, s.Auth.Security.ProductionMode)
	assert.True(t, s.Auth.Session.CookieSecure)
	assert.Equal(t, rememberMeRedis, s.RememberMeStore)
	assert.Equal(t, 60*time.Second, s.Auth.Challenge.TTL)
	assert.Contains(t, s.Auth.Routes.PermitAll, "/static/**")
}
