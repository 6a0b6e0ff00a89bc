// Package postgres provides PostgreSQL implementations of the account,
// refresh token and one-time code repositories, plus embedded goose
// migrations for their schema.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	// Register the pgx database/sql driver used by goose.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// poolIface is the subset of *pgxpool.Pool the repositories use. It lets
// tests substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store bundles the repositories over one connection pool.
type Store struct {
	pool     *pgxpool.Pool
	accounts *AccountRepository
	tokens   *TokenRepository
	otps     *OTPRepository
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return New(pool), nil
}

// New wraps an existing pool. Close closes the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:     pool,
		accounts: NewAccountRepository(pool),
		tokens:   NewTokenRepository(pool),
		otps:     NewOTPRepository(pool),
	}
}

// Accounts returns the account repository.
func (s *Store) Accounts() *AccountRepository { return s.accounts }

// Tokens returns the refresh token repository.
func (s *Store) Tokens() *TokenRepository { return s.tokens }

// OTPs returns the one-time code repository.
func (s *Store) OTPs() *OTPRepository { return s.otps }

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("pgx"); err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	if err := gooseUpContext(ctx, db, "migrations"); err != nil {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// MigrateDSN opens dsn through the pgx database/sql driver, migrates it and
// closes the handle.
func MigrateDSN(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open sql db").Wrap(err)
	}
	defer db.Close()
	return Migrate(ctx, db)
}

// withTx runs fn in a transaction. The transaction is rolled back when fn
// fails and committed otherwise.
func withTx(ctx context.Context, pool poolIface, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return oops.Code("DB_TX_FAILED").With("operation", "begin").Wrap(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("DB_TX_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

func uniqueViolation(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr, true
	}
	return nil, false
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
