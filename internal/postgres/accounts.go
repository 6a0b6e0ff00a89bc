package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/passly/account"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

const accountColumns = `id, email, email_verified, password_hash, password_salt,
	iterations, memory_kb, parallelism, key_length,
	two_factor_enabled, lockout_enabled, access_failed_count,
	last_login_at, created_at, updated_at`

// AccountRepository implements account.Repository using PostgreSQL.
type AccountRepository struct {
	pool poolIface
}

// NewAccountRepository creates a new PostgreSQL account repository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").With("id", id).Wrap(err)
	}
	return a, nil
}

// GetByEmail retrieves an account by normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").With("email", email).Wrap(err)
	}
	return a, nil
}

// ExistsByEmail reports whether an account uses email.
func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, oops.Code("ACCOUNT_EXISTS_FAILED").With("email", email).Wrap(err)
	}
	return exists, nil
}

// Insert persists a new account. A taken email yields account.ErrEmailTaken.
func (r *AccountRepository) Insert(ctx context.Context, a *account.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.Email, a.EmailVerified, a.PasswordHash, a.PasswordSalt,
		int64(a.Iterations), int64(a.MemoryKB), int64(a.Parallelism), int64(a.KeyLength),
		a.TwoFactorEnabled, a.LockoutEnabled, a.AccessFailedCount,
		a.LastLoginAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if pgErr, ok := uniqueViolation(err); ok && pgErr.ConstraintName == "accounts_email_key" {
			return account.ErrEmailTaken
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").With("id", a.ID).Wrap(err)
	}
	return nil
}

// Update rewrites every mutable column of an existing account.
func (r *AccountRepository) Update(ctx context.Context, a *account.Account) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET
			email = $2, email_verified = $3, password_hash = $4, password_salt = $5,
			iterations = $6, memory_kb = $7, parallelism = $8, key_length = $9,
			two_factor_enabled = $10, lockout_enabled = $11, access_failed_count = $12,
			last_login_at = $13, updated_at = $14
		WHERE id = $1`,
		a.ID, a.Email, a.EmailVerified, a.PasswordHash, a.PasswordSalt,
		int64(a.Iterations), int64(a.MemoryKB), int64(a.Parallelism), int64(a.KeyLength),
		a.TwoFactorEnabled, a.LockoutEnabled, a.AccessFailedCount,
		a.LastLoginAt, a.UpdatedAt)
	if err != nil {
		if pgErr, ok := uniqueViolation(err); ok && pgErr.ConstraintName == "accounts_email_key" {
			return account.ErrEmailTaken
		}
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("id", a.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

// RecordFailedLogin increments the failed login count of an account.
func (r *AccountRepository) RecordFailedLogin(ctx context.Context, id string, at time.Time) error {
	return r.patch(ctx, "ACCOUNT_FAILED_LOGIN_FAILED", id,
		`UPDATE accounts SET access_failed_count = access_failed_count + 1, updated_at = $2 WHERE id = $1`, at)
}

// RecordLogin stamps a successful login and resets the failed login count.
func (r *AccountRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return r.patch(ctx, "ACCOUNT_LOGIN_FAILED", id,
		`UPDATE accounts SET last_login_at = $2, access_failed_count = 0, updated_at = $2 WHERE id = $1`, at)
}

// MarkEmailVerified sets the verified flag of an account.
func (r *AccountRepository) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return r.patch(ctx, "ACCOUNT_VERIFY_FAILED", id,
		`UPDATE accounts SET email_verified = TRUE, updated_at = $2 WHERE id = $1`, at)
}

// SetPassword replaces the credentials of an account. A non-nil expectedHash
// turns the write into a compare-and-set on the stored hash.
func (r *AccountRepository) SetPassword(ctx context.Context, id string, c account.Credentials, expectedHash []byte, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET
			password_hash = $2, password_salt = $3,
			iterations = $4, memory_kb = $5, parallelism = $6, key_length = $7,
			access_failed_count = 0, updated_at = $8
		WHERE id = $1 AND ($9::bytea IS NULL OR password_hash = $9)`,
		id, c.Hash, c.Salt,
		int64(c.Iterations), int64(c.MemoryKB), int64(c.Parallelism), int64(c.KeyLength),
		at, expectedHash)
	if err != nil {
		return oops.Code("ACCOUNT_PASSWORD_FAILED").With("id", id).Wrap(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if expectedHash == nil {
		return account.ErrNotFound
	}

	var exists bool
	err = r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return oops.Code("ACCOUNT_PASSWORD_FAILED").With("id", id).Wrap(err)
	}
	if !exists {
		return account.ErrNotFound
	}
	return account.ErrPasswordChanged
}

func (r *AccountRepository) patch(ctx context.Context, code, id, query string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return oops.Code(code).With("id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

// Delete removes an account. Its tokens and codes go with it.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").With("id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		a                                         account.Account
		iterations, memoryKB, parallelism, keyLen int64
		lastLogin                                 *time.Time
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.EmailVerified, &a.PasswordHash, &a.PasswordSalt,
		&iterations, &memoryKB, &parallelism, &keyLen,
		&a.TwoFactorEnabled, &a.LockoutEnabled, &a.AccessFailedCount,
		&lastLogin, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Iterations = uint32(iterations)
	a.MemoryKB = uint32(memoryKB)
	a.Parallelism = uint8(parallelism)
	a.KeyLength = uint32(keyLen)
	a.LastLoginAt = lastLogin
	return &a, nil
}
