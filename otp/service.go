package otp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrAccountRequired is returned by Generate when the purpose needs a
	// LinkedAccount target and got something else.
	ErrAccountRequired = errors.New("otp purpose requires an existing account")
	// ErrInvalidPurpose is returned for an unknown purpose.
	ErrInvalidPurpose = errors.New("invalid otp purpose")
	// ErrInvalidTarget is returned for a nil target or an empty address.
	ErrInvalidTarget = errors.New("invalid otp target")
)

// Config defines a Service. Zero values select the defaults: six digits,
// five minutes, three attempts.
type Config struct {
	Length      int
	Expiry      time.Duration
	MaxAttempts int
	Now         func() time.Time
	Rand        io.Reader
	Logger      *slog.Logger
}

// Service generates, delivers and verifies one-time codes.
type Service struct {
	repo        Repository
	notifier    Notifier
	length      int
	expiry      time.Duration
	maxAttempts int
	now         func() time.Time
	rand        io.Reader
	logger      *slog.Logger
}

// NewService returns a Service. repo and notifier are required.
func NewService(repo Repository, notifier Notifier, cfg Config) (*Service, error) {
	if repo == nil {
		return nil, errors.New("otp repository is required")
	}
	if notifier == nil {
		return nil, errors.New("otp notifier is required")
	}
	if cfg.Length == 0 {
		cfg.Length = 6
	}
	if cfg.Length < minCodeLength || cfg.Length > maxCodeLength {
		return nil, errCodeLength
	}
	if cfg.Expiry == 0 {
		cfg.Expiry = 5 * time.Minute
	}
	if cfg.Expiry < 0 {
		return nil, errors.New("otp expiry must be > 0")
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxAttempts < 0 {
		return nil, errors.New("otp max attempts must be > 0")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		repo:        repo,
		notifier:    notifier,
		length:      cfg.Length,
		expiry:      cfg.Expiry,
		maxAttempts: cfg.MaxAttempts,
		now:         cfg.Now,
		rand:        cfg.Rand,
		logger:      cfg.Logger.With(slog.String("component", "otp")),
	}, nil
}

// Expiry returns how long a generated code stays valid.
func (s *Service) Expiry() time.Duration {
	return s.expiry
}

// MaxAttempts returns the number of wrong guesses a code tolerates.
func (s *Service) MaxAttempts() int {
	return s.maxAttempts
}

// Generate creates a code for target and purpose, persists it and sends it
// through the notifier. It returns the plaintext code.
//
// Login and password-reset codes need a LinkedAccount target; email
// verification also accepts EmailOnly. A notifier failure is returned after
// the record was persisted; the code stays verifiable until it expires.
func (s *Service) Generate(ctx context.Context, target Target, purpose Purpose) (string, error) {
	if !purpose.Valid() {
		return "", ErrInvalidPurpose
	}
	if target == nil {
		return "", ErrInvalidTarget
	}
	email := normalizeEmail(target.Address())
	if email == "" {
		return "", ErrInvalidTarget
	}

	var accountID string
	if linked, ok := target.(LinkedAccount); ok {
		accountID = linked.AccountID
	}
	if purpose.RequiresAccount() && accountID == "" {
		s.logger.WarnContext(ctx, "otp requested without account", slog.String("purpose", purpose.String()))
		return "", ErrAccountRequired
	}

	code, err := newCode(s.rand, s.length)
	if err != nil {
		return "", err
	}
	now := s.now()
	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		return "", err
	}

	record := &Code{
		ID:        id.String(),
		AccountID: accountID,
		Email:     email,
		CodeHash:  HashCode(code),
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(s.expiry),
	}
	if err := s.repo.Insert(ctx, record); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "otp generated",
		slog.String("account_id", accountID),
		slog.String("purpose", purpose.String()))

	msg := NewMessage(email, code, purpose, s.expiryMinutes())
	if err := s.notifier.Send(ctx, msg); err != nil {
		return "", fmt.Errorf("send otp: %w", err)
	}

	return code, nil
}

// Verify checks code against the latest valid record for (email, purpose).
//
// The checks run in a fixed order: missing record, expiry, exhausted
// attempts, mismatch, match. Expiry and exhaustion burn the record, so it
// can never verify again, even with the right code. The boolean result never
// says which check failed; err is non-nil only for repository failures.
func (s *Service) Verify(ctx context.Context, email, code string, purpose Purpose) (bool, error) {
	email = normalizeEmail(email)

	record, err := s.repo.LatestValid(ctx, email, purpose, s.now())
	if errors.Is(err, ErrNotFound) {
		s.logger.WarnContext(ctx, "no valid otp", slog.String("purpose", purpose.String()))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if record.IsExpired(s.now()) {
		s.logger.InfoContext(ctx, "otp expired", slog.String("otp_id", record.ID))
		return false, s.burn(ctx, record)
	}

	if record.Attempts >= s.maxAttempts {
		s.logger.WarnContext(ctx, "otp attempts exhausted", slog.String("otp_id", record.ID))
		return false, s.burn(ctx, record)
	}

	if !matchCode(code, record.CodeHash) {
		attempts, err := s.repo.AddAttempt(ctx, record.ID, s.maxAttempts)
		if errors.Is(err, ErrNotFound) {
			// Consumed or exhausted by a concurrent call.
			return false, nil
		}
		if err != nil {
			return false, err
		}
		s.logger.WarnContext(ctx, "otp mismatch",
			slog.String("otp_id", record.ID),
			slog.Int("attempt", attempts),
			slog.Int("max_attempts", s.maxAttempts))
		return false, nil
	}

	consumed, err := s.repo.MarkUsed(ctx, record.ID, s.maxAttempts)
	if err != nil {
		return false, err
	}
	if !consumed {
		s.logger.WarnContext(ctx, "otp consumed concurrently", slog.String("otp_id", record.ID))
		return false, nil
	}
	s.logger.InfoContext(ctx, "otp verified", slog.String("otp_id", record.ID))
	return true, nil
}

func (s *Service) burn(ctx context.Context, record *Code) error {
	_, err := s.repo.MarkUsed(ctx, record.ID, 0)
	return err
}

// SweepExpired deletes every record past its expiry and returns how many
// were removed.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	expired, err := s.repo.ListExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(expired))
	for _, c := range expired {
		ids = append(ids, c.ID)
	}
	deleted, err := s.repo.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "cleaned expired otps", slog.Int64("count", deleted))
	return deleted, nil
}

func (s *Service) expiryMinutes() int {
	minutes := int(s.expiry / time.Minute)
	if minutes < 1 {
		return 1
	}
	return minutes
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
