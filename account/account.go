// Package account holds the account record shared by the engine and its
// persistence adapters.
package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no account matches a lookup.
	ErrNotFound = errors.New("account not found")
	// ErrEmailTaken is returned by Insert when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrPasswordChanged is returned by SetPassword when the stored hash no
	// longer matches the expected one.
	ErrPasswordChanged = errors.New("account password changed concurrently")
)

// Account is a registered identity with its password material.
//
// Iterations, MemoryKB, Parallelism and KeyLength are the KDF parameters that
// produced PasswordHash. They are stored per account and never rewritten to
// the current defaults except together with a new hash.
type Account struct {
	ID            string
	Email         string
	EmailVerified bool

	PasswordHash []byte
	PasswordSalt []byte
	Iterations   uint32
	MemoryKB     uint32
	Parallelism  uint8
	KeyLength    uint32

	TwoFactorEnabled  bool
	LockoutEnabled    bool
	AccessFailedCount int

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Credentials is the password material of an account: a hash and the salt
// and KDF parameters that produced it.
type Credentials struct {
	Hash        []byte
	Salt        []byte
	Iterations  uint32
	MemoryKB    uint32
	Parallelism uint8
	KeyLength   uint32
}

// Credentials returns the password material of a.
func (a *Account) Credentials() Credentials {
	return Credentials{
		Hash:        a.PasswordHash,
		Salt:        a.PasswordSalt,
		Iterations:  a.Iterations,
		MemoryKB:    a.MemoryKB,
		Parallelism: a.Parallelism,
		KeyLength:   a.KeyLength,
	}
}

// SetCredentials replaces the password material of a.
func (a *Account) SetCredentials(c Credentials) {
	a.PasswordHash = c.Hash
	a.PasswordSalt = c.Salt
	a.Iterations = c.Iterations
	a.MemoryKB = c.MemoryKB
	a.Parallelism = c.Parallelism
	a.KeyLength = c.KeyLength
}

// Repository persists accounts. Emails are stored normalized.
//
// Update rewrites the whole record and suits callers that own it, such as
// administration tools. The engine changes fields only through the targeted
// methods, each atomic on the stored record.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, acct *Account) error
	Update(ctx context.Context, acct *Account) error
	Delete(ctx context.Context, id string) error

	// RecordFailedLogin increments the failed login count of id.
	RecordFailedLogin(ctx context.Context, id string, at time.Time) error
	// RecordLogin stamps a successful login at and resets the failed login
	// count of id.
	RecordLogin(ctx context.Context, id string, at time.Time) error
	// MarkEmailVerified sets the verified flag of id.
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	// SetPassword replaces the credentials of id and resets its failed login
	// count. With a non-nil expectedHash the write only happens while the
	// stored hash equals it, and ErrPasswordChanged is returned otherwise.
	SetPassword(ctx context.Context, id string, creds Credentials, expectedHash []byte, at time.Time) error
}

// NormalizeEmail trims surrounding whitespace and lowercases email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
