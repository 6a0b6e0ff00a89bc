package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/passly/otp"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

const otpColumns = `id, account_id, email, code_hash, purpose, created_at, expires_at, used, attempts`

// OTPRepository implements otp.Repository using PostgreSQL.
type OTPRepository struct {
	pool poolIface
}

// NewOTPRepository creates a new PostgreSQL one-time code repository.
func NewOTPRepository(pool poolIface) *OTPRepository {
	return &OTPRepository{pool: pool}
}

// Insert persists a new code.
func (r *OTPRepository) Insert(ctx context.Context, c *otp.Code) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO otp_codes (`+otpColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, nullString(c.AccountID), c.Email, c.CodeHash, int16(c.Purpose),
		c.CreatedAt, c.ExpiresAt, c.Used, c.Attempts)
	if err != nil {
		return oops.Code("OTP_CREATE_FAILED").With("id", c.ID).Wrap(err)
	}
	return nil
}

// AddAttempt increments the attempt count of an unused code below max and
// returns the new count.
func (r *OTPRepository) AddAttempt(ctx context.Context, id string, max int) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `
		UPDATE otp_codes SET attempts = attempts + 1
		WHERE id = $1 AND used = FALSE AND attempts < $2
		RETURNING attempts`,
		id, max).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, otp.ErrNotFound
	}
	if err != nil {
		return 0, oops.Code("OTP_UPDATE_FAILED").With("id", id).Wrap(err)
	}
	return attempts, nil
}

// MarkUsed consumes a code that is not used yet. With max > 0 the code must
// also have fewer than max attempts.
func (r *OTPRepository) MarkUsed(ctx context.Context, id string, max int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE otp_codes SET used = TRUE
		WHERE id = $1 AND used = FALSE AND ($2 = 0 OR attempts < $2)`,
		id, max)
	if err != nil {
		return false, oops.Code("OTP_UPDATE_FAILED").With("id", id).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// LatestValid retrieves the newest unused, unexpired code for email and
// purpose at now.
func (r *OTPRepository) LatestValid(ctx context.Context, email string, purpose otp.Purpose, now time.Time) (*otp.Code, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+otpColumns+` FROM otp_codes
		WHERE email = $1 AND purpose = $2 AND used = FALSE AND expires_at > $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		email, int16(purpose), now)
	c, err := scanCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, otp.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("OTP_GET_FAILED").With("purpose", purpose.String()).Wrap(err)
	}
	return c, nil
}

// ListExpired retrieves every code whose expiry is at or before now.
func (r *OTPRepository) ListExpired(ctx context.Context, now time.Time) ([]*otp.Code, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+otpColumns+` FROM otp_codes WHERE expires_at <= $1 ORDER BY expires_at`,
		now)
	if err != nil {
		return nil, oops.Code("OTP_LIST_FAILED").With("operation", "list expired").Wrap(err)
	}
	defer rows.Close()

	var codes []*otp.Code
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, oops.Code("OTP_LIST_FAILED").With("operation", "scan expired row").Wrap(err)
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("OTP_LIST_FAILED").With("operation", "iterate expired").Wrap(err)
	}
	return codes, nil
}

// DeleteByIDs removes the given codes and returns how many rows went.
func (r *OTPRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM otp_codes WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, oops.Code("OTP_DELETE_FAILED").With("count", len(ids)).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanCode(row pgx.Row) (*otp.Code, error) {
	var (
		c         otp.Code
		accountID *string
		purpose   int16
	)
	err := row.Scan(&c.ID, &accountID, &c.Email, &c.CodeHash, &purpose,
		&c.CreatedAt, &c.ExpiresAt, &c.Used, &c.Attempts)
	if err != nil {
		return nil, err
	}
	c.AccountID = derefString(accountID)
	c.Purpose = otp.Purpose(purpose)
	return &c, nil
}
