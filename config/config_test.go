package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: file-secret-0123456789
negotiation:
  room_policy: largest_fit
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "file-secret-0123456789", cfg.Auth.JWTSecret)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, "largest_fit", cfg.Negotiation.RoomPolicy)
	assert.Equal(t, 3*time.Second, cfg.Negotiation.DependencyTimeout)
	assert.False(t, cfg.Negotiation.RequireNonEmptyProposal)
	assert.Equal(t, "Europe/Warsaw", cfg.Negotiation.Location().String())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: file-secret-0123456789
`)
	t.Setenv("RESCHED_AUTH_JWT_SECRET", "env-secret-0123456789")
	t.Setenv("RESCHED_NEGOTIATION_LOCK_WAIT", "750ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret-0123456789", cfg.Auth.JWTSecret)
	assert.Equal(t, 750*time.Millisecond, cfg.Negotiation.LockWait)
}

func TestLoad_MissingSecret(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{Port: 8080},
			Auth:   AuthConfig{JWTSecret: "0123456789abcdef"},
			Negotiation: NegotiationConfig{
				DependencyTimeout: time.Second,
				LockWait:          time.Second,
				LockTTL:           time.Second,
				Timezone:          "UTC",
				RoomPolicy:        "smallest_fit",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"合法配置", func(c *Config) {}, ""},
		{"密钥过短", func(c *Config) { c.Auth.JWTSecret = "short" }, "jwt_secret"},
		{"端口越界", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"超时为零", func(c *Config) { c.Negotiation.DependencyTimeout = 0 }, "dependency_timeout"},
		{"锁租期为零", func(c *Config) { c.Negotiation.LockTTL = 0 }, "lock_ttl"},
		{"未知策略", func(c *Config) { c.Negotiation.RoomPolicy = "random" }, "room_policy"},
		{"非法时区", func(c *Config) { c.Negotiation.Timezone = "Mars/Olympus" }, "timezone"},
		{"采样比例越界", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Sampling = 1.5
		}, "sampling"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNegotiationConfig_LocationFallback(t *testing.T) {
	c := &NegotiationConfig{Timezone: "Nowhere/Invalid"}
	assert.Equal(t, time.UTC, c.Location())
}
