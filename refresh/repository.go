package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Repository when no matching token exists.
	ErrNotFound = errors.New("refresh token not found")
	// ErrStale is returned by Rotate when the old token was revoked or
	// rotated concurrently, and by Insert on a hash collision.
	ErrStale = errors.New("refresh token changed concurrently")
)

// Repository persists refresh tokens.
//
// Every method must be atomic for the record(s) it touches. Rotate must make
// the revocation of old and the insertion of next visible together, or not at
// all, and must fail with ErrStale when old is no longer unrevoked.
type Repository interface {
	// Insert persists token and revokes any other unrevoked token of the
	// same account, so concurrent issues cannot leave two active tokens.
	Insert(ctx context.Context, token *Token) error
	// Revoke sets the revocation time of token only while it is unrevoked,
	// and never touches its replacement link. It fails with ErrStale when
	// token was already revoked or rotated, and ErrNotFound when it is gone.
	Revoke(ctx context.Context, token *Token, revokedAt time.Time) error
	GetByHash(ctx context.Context, hash string) (*Token, error)
	// GetActiveForAccount returns the token of accountID that is active at
	// now, or ErrNotFound.
	GetActiveForAccount(ctx context.Context, accountID string, now time.Time) (*Token, error)
	Rotate(ctx context.Context, old, next *Token) error
}
