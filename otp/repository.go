package otp

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Repository when no record matches.
var ErrNotFound = errors.New("otp record not found")

// Repository persists one-time codes. Each single-record write must be
// atomic.
type Repository interface {
	Insert(ctx context.Context, code *Code) error
	// AddAttempt increments the attempt count of code id when it is unused
	// and its count is below max, and returns the new count. A code that is
	// missing, used or already at max is left alone and yields ErrNotFound.
	AddAttempt(ctx context.Context, id string, max int) (int, error)
	// MarkUsed sets the used flag of code id unless it is already set. With
	// max > 0 the code must also have fewer than max attempts. It reports
	// whether this call set the flag, so one code is consumed at most once. A
	// missing code reports false.
	MarkUsed(ctx context.Context, id string, max int) (bool, error)
	// LatestValid returns the most recently created code for (email, purpose)
	// that is unused and unexpired at now, or ErrNotFound.
	LatestValid(ctx context.Context, email string, purpose Purpose, now time.Time) (*Code, error)
	// ListExpired returns every code whose expiry is at or before now,
	// regardless of its used flag or attempts.
	ListExpired(ctx context.Context, now time.Time) ([]*Code, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}
