package passly

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/passly/account"
	"github.com/MrEthical07/passly/internal/audit"
	"github.com/MrEthical07/passly/internal/postgres"
	"github.com/MrEthical07/passly/internal/stores"
	"github.com/MrEthical07/passly/jwt"
	"github.com/MrEthical07/passly/notify"
	"github.com/MrEthical07/passly/otp"
	"github.com/MrEthical07/passly/password"
	"github.com/MrEthical07/passly/refresh"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine.
//
// Builder instances are configured during initialization and used for
// exactly one Build call.
type Builder struct {
	config Config

	redis    redis.UniversalClient
	postgres *pgxpool.Pool

	accounts account.Repository
	otps     otp.Repository
	tokens   refresh.Repository

	notifier  otp.Notifier
	auditSink SecurityEventSink
	logger    *slog.Logger
	gate      *password.Gate
	now       func() time.Time
	rand      io.Reader

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis stores accounts, codes and refresh tokens in Redis. Explicit
// repositories set with the With*Repository methods take precedence.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres stores accounts, codes and refresh tokens in PostgreSQL. The
// schema must have been migrated. Redis wins when both are set.
func (b *Builder) WithPostgres(pool *pgxpool.Pool) *Builder {
	b.postgres = pool
	return b
}

// WithAccountRepository sets the account repository.
func (b *Builder) WithAccountRepository(repo account.Repository) *Builder {
	b.accounts = repo
	return b
}

// WithOTPRepository sets the one-time code repository.
func (b *Builder) WithOTPRepository(repo otp.Repository) *Builder {
	b.otps = repo
	return b
}

// WithTokenRepository sets the refresh token repository.
func (b *Builder) WithTokenRepository(repo refresh.Repository) *Builder {
	b.tokens = repo
	return b
}

// WithNotifier sets how one-time codes are delivered. Without one, codes
// are written to the logger at Debug level.
func (b *Builder) WithNotifier(n otp.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets where security events go when Config.Audit is enabled.
func (b *Builder) WithAuditSink(sink SecurityEventSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithPasswordGate replaces the process-wide hashing gate.
func (b *Builder) WithPasswordGate(gate *password.Gate) *Builder {
	b.gate = gate
	return b
}

// WithClock sets the time source used for every expiry decision.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRandom sets the source of salts, codes and refresh secrets. It must be
// cryptographically secure outside tests.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.rand = r
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the password hashing latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the lifecycles together.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- REPOSITORIES --------
	accounts, otps, tokens := b.accounts, b.otps, b.tokens
	switch {
	case b.redis != nil:
		if accounts == nil {
			accounts = stores.NewAccountStore(b.redis, cfg.Store.RedisPrefix)
		}
		if otps == nil {
			otps = stores.NewOTPStore(b.redis, cfg.Store.RedisPrefix)
		}
		if tokens == nil {
			tokens = stores.NewTokenStore(b.redis, cfg.Store.RedisPrefix)
		}
	case b.postgres != nil:
		pg := postgres.New(b.postgres)
		if accounts == nil {
			accounts = pg.Accounts()
		}
		if otps == nil {
			otps = pg.OTPs()
		}
		if tokens == nil {
			tokens = pg.Tokens()
		}
	}
	if accounts == nil || otps == nil || tokens == nil {
		return nil, errors.New("account, otp and refresh token repositories are required")
	}

	notifier := b.notifier
	if notifier == nil {
		logger.Warn("no otp notifier configured, codes are only logged at debug level")
		notifier = notify.NewLog(logger)
	}

	engine := &Engine{
		config:   cfg,
		accounts: accounts,
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger.With(slog.String("component", "engine")),
		now:      now,
		rand:     b.rand,
	}

	// -------- LIFECYCLES --------
	hasher, err := password.NewHasher(password.Config{
		Params: password.Params{
			Iterations:  cfg.Password.Time,
			MemoryKB:    cfg.Password.Memory,
			Parallelism: cfg.Password.Parallelism,
			KeyLength:   cfg.Password.KeyLength,
		},
		SaltLength: cfg.Password.SaltLength,
		Gate:       b.gate,
		Rand:       b.rand,
		Observe: func(d time.Duration) {
			engine.metrics.Observe(MetricPasswordHashLatency, d)
		},
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	secret, err := cfg.JWT.SecretBytes()
	if err != nil {
		return nil, err
	}
	issuer, err := jwt.NewIssuer(jwt.Config{
		Secret:    secret,
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		AccessTTL: cfg.JWT.AccessTTL,
		Leeway:    cfg.JWT.Leeway,
		KeyID:     cfg.JWT.KeyID,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}
	engine.issuer = issuer

	refreshes, err := refresh.NewManager(tokens, refresh.Config{
		TTL:     cfg.Refresh.TTL,
		Now:     now,
		Rand:    b.rand,
		Logger:  logger,
		OnReuse: engine.onTokenReuse,
	})
	if err != nil {
		return nil, err
	}
	engine.refresh = refreshes

	codes, err := otp.NewService(otps, notifier, otp.Config{
		Length:      cfg.OTP.Length,
		Expiry:      cfg.OTP.Expiry,
		MaxAttempts: cfg.OTP.MaxAttempts,
		Now:         now,
		Rand:        b.rand,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	engine.otp = codes

	// -------- SECURITY EVENTS --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewSlogSink(logger)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	b.built = true

	return engine, nil
}
