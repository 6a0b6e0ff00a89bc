package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "passly.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 6, cfg.OTP.Length)
	assert.Equal(t, "passly", cfg.Store.RedisPrefix)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:9464", cfg.MetricsAddr)
	assert.True(t, cfg.Login.RequireVerifiedEmail)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
jwt:
  issuer: auth.example.com
  access_ttl: 5m
otp:
  length: 8
login:
  require_verified_email: false
log:
  format: text
smtp:
  host: smtp.example.com
`)

	cfg, err := loadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "auth.example.com", cfg.JWT.Issuer)
	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 8, cfg.OTP.Length)
	assert.False(t, cfg.Login.RequireVerifiedEmail)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
	// Untouched keys in a loaded section keep their defaults.
	assert.Equal(t, "passly", cfg.JWT.Audience)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
store:
  redis_addr: file:6379
`)
	t.Setenv("PASSLY_STORE__REDIS_ADDR", "env:6379")
	t.Setenv("PASSLY_OTP__EXPIRY", "10m")
	t.Setenv("PASSLY_METRICS_ADDR", ":9999")

	cfg, err := loadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "env:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 10*time.Minute, cfg.OTP.Expiry)
	assert.Equal(t, ":9999", cfg.MetricsAddr)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("PASSLY_STORE__REDIS_ADDR", "env:6379")
	t.Setenv("PASSLY_LOG__LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("redis-addr", "", "")
	flags.String("log-level", "", "")
	flags.Bool("once", false, "")
	require.NoError(t, flags.Parse([]string{"--redis-addr", "flag:6379", "--once"}))

	cfg, err := loadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, "flag:6379", cfg.Store.RedisAddr)
	// Unset flags do not clobber lower layers.
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assertErrorCode(t, err, "CONFIG_INVALID")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"PASSLY_JWT__SECRET":         "jwt.secret",
		"PASSLY_STORE__POSTGRES_DSN": "store.postgres_dsn",
		"PASSLY_METRICS_ADDR":        "metrics_addr",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
