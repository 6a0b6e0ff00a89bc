package passly

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/passly/account"
	"github.com/MrEthical07/passly/internal/audit"
	"github.com/MrEthical07/passly/jwt"
	"github.com/MrEthical07/passly/otp"
	"github.com/MrEthical07/passly/password"
	"github.com/MrEthical07/passly/refresh"
)

// Engine orchestrates registration, login, email verification, password
// reset and refresh token rotation on top of the password, otp, jwt and
// refresh lifecycles.
//
// Engine instances are built once through Builder and are safe for
// concurrent use.
type Engine struct {
	config   Config
	accounts account.Repository
	hasher   *password.Hasher
	issuer   *jwt.Issuer
	refresh  *refresh.Manager
	otp      *otp.Service
	audit    *audit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
	rand     io.Reader
}

func (e *Engine) ready() bool {
	return e != nil && e.accounts != nil && e.hasher != nil && e.issuer != nil && e.refresh != nil && e.otp != nil
}

// Close flushes pending security events and stops the dispatcher. It does
// not close repositories the caller passed to the Builder.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// MetricsSnapshot returns a copy of the in-process metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// GeneratePassword returns a random password shaped by opts.
func (e *Engine) GeneratePassword(opts password.Options) (string, error) {
	var (
		pw  string
		err error
	)
	if e != nil && e.rand != nil {
		pw, err = password.GenerateFrom(e.rand, opts)
	} else {
		pw, err = password.Generate(opts)
	}
	if errors.Is(err, password.ErrInvalidLength) || errors.Is(err, password.ErrNoCharacterSets) {
		return "", errors.Join(ErrGeneratorOptions, err)
	}
	return pw, err
}

// SweepExpiredCodes deletes every expired one-time code and returns how many
// were removed.
func (e *Engine) SweepExpiredCodes(ctx context.Context) (int64, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	deleted, err := e.otp.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		e.metrics.Add(MetricOTPSwept, uint64(deleted))
	}
	return deleted, nil
}

// Sweeper returns a background sweeper for expired codes, ticking at
// Config.OTP.SweepInterval. The caller runs it with Sweeper.Run.
func (e *Engine) Sweeper() *otp.Sweeper {
	return &otp.Sweeper{
		Target:   otp.SweepFunc(e.SweepExpiredCodes),
		Interval: e.config.OTP.SweepInterval,
		Logger:   e.logger,
	}
}

// issuePair signs an access token for acct and issues a fresh refresh token,
// revoking the account's previous one.
func (e *Engine) issuePair(ctx context.Context, acct *account.Account) (*TokenPair, error) {
	access, accessExpires, err := e.issuer.Issue(jwt.Subject{AccountID: acct.ID, Email: acct.Email})
	if err != nil {
		return nil, err
	}
	plain, token, err := e.refresh.Issue(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExpires,
		RefreshToken:          plain,
		RefreshTokenExpiresAt: token.ExpiresAt,
	}, nil
}

func (e *Engine) checkPassword(pw string) error {
	if len(pw) < e.config.Password.MinLength || len(pw) > e.config.Password.MaxLength {
		return ErrPasswordInvalid
	}
	return nil
}

// verifyPassword checks pw against the hash stored on acct, using the
// parameters stored with it.
func (e *Engine) verifyPassword(ctx context.Context, acct *account.Account, pw string) (bool, error) {
	return e.hasher.Verify(ctx, storedParams(acct), acct.PasswordHash, acct.PasswordSalt, pw)
}

// newCredentials hashes pw with the current parameters.
func (e *Engine) newCredentials(ctx context.Context, pw string) (account.Credentials, error) {
	h, err := e.hasher.Hash(ctx, pw)
	if err != nil {
		return account.Credentials{}, err
	}
	return account.Credentials{
		Hash:        h.Key,
		Salt:        h.Salt,
		Iterations:  h.Params.Iterations,
		MemoryKB:    h.Params.MemoryKB,
		Parallelism: h.Params.Parallelism,
		KeyLength:   h.Params.KeyLength,
	}, nil
}

// lookupAccount returns the account for a normalized email, or nil when none
// exists.
func (e *Engine) lookupAccount(ctx context.Context, email string) (*account.Account, error) {
	acct, err := e.accounts.GetByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func storedParams(acct *account.Account) password.Params {
	return password.Params{
		Iterations:  acct.Iterations,
		MemoryKB:    acct.MemoryKB,
		Parallelism: acct.Parallelism,
		KeyLength:   acct.KeyLength,
	}
}
