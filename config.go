package passly

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/passly/jwt"
	"github.com/MrEthical07/passly/otp"
)

// Config is the complete engine configuration.
//
// Config values are built once during initialization and then treated as
// immutable. The koanf tags are the keys of the YAML file, environment and
// flag layers loaded by cmd/passly.
type Config struct {
	Password PasswordConfig `koanf:"password"`
	JWT      JWTConfig      `koanf:"jwt"`
	Refresh  RefreshConfig  `koanf:"refresh"`
	OTP      OTPConfig      `koanf:"otp"`
	Login    LoginConfig    `koanf:"login"`
	Store    StoreConfig    `koanf:"store"`
	Audit    AuditConfig    `koanf:"audit"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id parameters used for new hashes and the
// accepted password length in bytes.
type PasswordConfig struct {
	Memory      uint32 `koanf:"memory"` // in KB
	Time        uint32 `koanf:"time"`
	Parallelism uint8  `koanf:"parallelism"`
	SaltLength  uint32 `koanf:"salt_length"`
	KeyLength   uint32 `koanf:"key_length"`
	MinLength   int    `koanf:"min_length"`
	MaxLength   int    `koanf:"max_length"`
	// UpgradeOnLogin rehashes a password with the current parameters after a
	// successful login when the stored ones are weaker.
	UpgradeOnLogin bool `koanf:"upgrade_on_login"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access token signing. Secret is base64 (standard
// encoding) and must decode to at least jwt.MinSecretLength bytes.
type JWTConfig struct {
	Secret    string        `koanf:"secret"`
	Issuer    string        `koanf:"issuer"`
	Audience  string        `koanf:"audience"`
	AccessTTL time.Duration `koanf:"access_ttl"`
	Leeway    time.Duration `koanf:"leeway"`
	KeyID     string        `koanf:"key_id"`
}

// SecretBytes decodes Secret.
func (c JWTConfig) SecretBytes() ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.Secret))
	if err != nil {
		return nil, fmt.Errorf("JWT Secret is not valid base64: %w", err)
	}
	return secret, nil
}

// RefreshConfig configures refresh tokens.
type RefreshConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// OTPConfig configures one-time codes.
type OTPConfig struct {
	Length        int           `koanf:"length"`
	Expiry        time.Duration `koanf:"expiry"`
	MaxAttempts   int           `koanf:"max_attempts"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// LoginConfig holds login policy.
type LoginConfig struct {
	// RequireVerifiedEmail rejects a correct password for an account whose
	// email is not verified yet.
	RequireVerifiedEmail bool `koanf:"require_verified_email"`
}

// StoreConfig selects the persistence backend used when the Builder is given
// a Redis client or a PostgreSQL pool instead of explicit repositories.
type StoreConfig struct {
	RedisPrefix string `koanf:"redis_prefix"`
	PostgresDSN string `koanf:"postgres_dsn"`
	RedisAddr   string `koanf:"redis_addr"`
}

// AuditConfig configures security event dispatch.
type AuditConfig struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
	DropIfFull bool `koanf:"drop_if_full"`
}

// MetricsConfig configures in-process metrics.
type MetricsConfig struct {
	Enabled                 bool `koanf:"enabled"`
	EnableLatencyHistograms bool `koanf:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the default configuration. The JWT secret is empty
// and must be set before Validate passes.
func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			MaxLength:      1024,
			UpgradeOnLogin: true,
		},
		JWT: JWTConfig{
			Issuer:    "passly",
			Audience:  "passly",
			AccessTTL: 15 * time.Minute,
			Leeway:    30 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL: 7 * 24 * time.Hour,
		},
		OTP: OTPConfig{
			Length:        6,
			Expiry:        5 * time.Minute,
			MaxAttempts:   3,
			SweepInterval: otp.DefaultSweepInterval,
		},
		Login: LoginConfig{
			RequireVerifiedEmail: true,
		},
		Store: StoreConfig{
			RedisPrefix: "passly",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// JWT
	secret, err := c.JWT.SecretBytes()
	if err != nil {
		return err
	}
	if len(secret) < jwt.MinSecretLength {
		return fmt.Errorf("JWT Secret must decode to at least %d bytes", jwt.MinSecretLength)
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer is required")
	}
	if strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience is required")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must be longer than JWT AccessTTL")
	}

	// OTP
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		return errors.New("OTP Length must be between 4 and 10")
	}
	if c.OTP.Expiry <= 0 {
		return errors.New("OTP Expiry must be > 0")
	}
	if c.OTP.MaxAttempts < 1 {
		return errors.New("OTP MaxAttempts must be >= 1")
	}
	if c.OTP.SweepInterval < 0 {
		return errors.New("OTP SweepInterval must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
