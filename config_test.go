package passly

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigNeedsOnlySecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default config without secret to be invalid")
	}

	cfg.JWT.Secret = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("s", 32)))
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config with secret to be valid, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name: "jwt leeway valid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 45 * time.Second
			},
			wantValid: true,
		},
		{
			name: "jwt leeway invalid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "jwt audience blank invalid",
			mutate: func(c *Config) {
				c.JWT.Audience = "   "
			},
			wantValid: false,
		},
		{
			name: "jwt secret not base64",
			mutate: func(c *Config) {
				c.JWT.Secret = "not base64!"
			},
			wantValid: false,
		},
		{
			name: "jwt secret too short",
			mutate: func(c *Config) {
				c.JWT.Secret = base64.StdEncoding.EncodeToString([]byte("short"))
			},
			wantValid: false,
		},
		{
			name: "refresh ttl not longer than access ttl",
			mutate: func(c *Config) {
				c.Refresh.TTL = c.JWT.AccessTTL
			},
			wantValid: false,
		},
		{
			name: "password memory too low",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
			wantValid: false,
		},
		{
			name: "password max below min",
			mutate: func(c *Config) {
				c.Password.MinLength = 12
				c.Password.MaxLength = 10
			},
			wantValid: false,
		},
		{
			name: "otp length too short",
			mutate: func(c *Config) {
				c.OTP.Length = 3
			},
			wantValid: false,
		},
		{
			name: "otp length ten",
			mutate: func(c *Config) {
				c.OTP.Length = 10
			},
			wantValid: true,
		},
		{
			name: "otp attempts zero",
			mutate: func(c *Config) {
				c.OTP.MaxAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "latency histograms without metrics",
			mutate: func(c *Config) {
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
		{
			name: "latency histograms with metrics",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}
