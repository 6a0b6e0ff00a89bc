package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/passly/refresh"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

const tokenColumns = `id, account_id, token_hash, expires_at, created_at, revoked_at, replaced_by_hash`

// TokenRepository implements refresh.Repository using PostgreSQL.
type TokenRepository struct {
	pool poolIface
}

// NewTokenRepository creates a new PostgreSQL refresh token repository.
func NewTokenRepository(pool poolIface) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// Insert revokes any unrevoked token of the account and inserts t, in one
// transaction.
func (r *TokenRepository) Insert(ctx context.Context, t *refresh.Token) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET revoked_at = $2 WHERE account_id = $1 AND revoked_at IS NULL`,
			t.AccountID, t.CreatedAt)
		if err != nil {
			return oops.Code("TOKEN_REVOKE_FAILED").With("account_id", t.AccountID).Wrap(err)
		}
		return insertToken(ctx, tx, t)
	})
}

// Revoke sets the revocation time of a token that is still unrevoked.
func (r *TokenRepository) Revoke(ctx context.Context, t *refresh.Token, revokedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE token_hash = $1 AND revoked_at IS NULL`,
		t.Hash, revokedAt)
	if err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").With("id", t.ID).Wrap(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_hash = $1)`, t.Hash).Scan(&exists)
	if err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").With("id", t.ID).Wrap(err)
	}
	if !exists {
		return refresh.ErrNotFound
	}
	return refresh.ErrStale
}

// GetByHash retrieves a token by the hash of its secret.
func (r *TokenRepository) GetByHash(ctx context.Context, hash string) (*refresh.Token, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, hash)
	t, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, refresh.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").Wrap(err)
	}
	return t, nil
}

// GetActiveForAccount retrieves the unrevoked, unexpired token of an
// account at now.
func (r *TokenRepository) GetActiveForAccount(ctx context.Context, accountID string, now time.Time) (*refresh.Token, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+tokenColumns+` FROM refresh_tokens
		WHERE account_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1`,
		accountID, now)
	t, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, refresh.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").With("account_id", accountID).Wrap(err)
	}
	return t, nil
}

// Rotate retires old and inserts next in one transaction. The retire step
// only matches an unrevoked row, so concurrent rotations of the same token
// have one winner; the others get refresh.ErrStale.
func (r *TokenRepository) Rotate(ctx context.Context, old, next *refresh.Token) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE refresh_tokens SET revoked_at = $2, replaced_by_hash = $3
			WHERE token_hash = $1 AND revoked_at IS NULL`,
			old.Hash, old.RevokedAt, old.ReplacedByHash)
		if err != nil {
			return oops.Code("TOKEN_ROTATE_FAILED").With("id", old.ID).Wrap(err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_hash = $1)`,
				old.Hash).Scan(&exists)
			if err != nil {
				return oops.Code("TOKEN_ROTATE_FAILED").With("id", old.ID).Wrap(err)
			}
			if exists {
				return refresh.ErrStale
			}
			return refresh.ErrNotFound
		}
		return insertToken(ctx, tx, next)
	})
}

func insertToken(ctx context.Context, tx pgx.Tx, t *refresh.Token) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO refresh_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.AccountID, t.Hash, t.ExpiresAt, t.CreatedAt, t.RevokedAt, t.ReplacedByHash)
	if err != nil {
		// Either the hash collided or a concurrent insert won the
		// one-active-token index.
		if _, ok := uniqueViolation(err); ok {
			return refresh.ErrStale
		}
		return oops.Code("TOKEN_CREATE_FAILED").With("id", t.ID).Wrap(err)
	}
	return nil
}

func scanToken(row pgx.Row) (*refresh.Token, error) {
	var t refresh.Token
	err := row.Scan(&t.ID, &t.AccountID, &t.Hash, &t.ExpiresAt, &t.CreatedAt, &t.RevokedAt, &t.ReplacedByHash)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
