package otp

import (
	"fmt"
	"time"
)

// Purpose scopes a code to one flow. A code issued for one purpose never
// verifies for another.
type Purpose int

const (
	// PurposeEmailVerification confirms ownership of an email address.
	PurposeEmailVerification Purpose = iota + 1
	// PurposeLoginVerification is the second factor of a login.
	PurposeLoginVerification
	// PurposePasswordReset authorizes a password reset.
	PurposePasswordReset
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p >= PurposeEmailVerification && p <= PurposePasswordReset
}

// RequiresAccount reports whether codes of this purpose must be linked to an
// existing account.
func (p Purpose) RequiresAccount() bool {
	return p == PurposeLoginVerification || p == PurposePasswordReset
}

func (p Purpose) String() string {
	switch p {
	case PurposeEmailVerification:
		return "email_verification"
	case PurposeLoginVerification:
		return "login_verification"
	case PurposePasswordReset:
		return "password_reset"
	default:
		return fmt.Sprintf("purpose(%d)", int(p))
	}
}

// Target is who a code is issued for: a LinkedAccount or an EmailOnly
// address with no account behind it yet.
type Target interface {
	Address() string
	isTarget()
}

// LinkedAccount targets the email of an existing account.
type LinkedAccount struct {
	AccountID string
	Email     string
}

// Address returns the email the code is sent to.
func (t LinkedAccount) Address() string { return t.Email }
func (LinkedAccount) isTarget()         {}

// EmailOnly targets a bare address. Only email verification accepts it.
type EmailOnly struct {
	Email string
}

// Address returns the email the code is sent to.
func (t EmailOnly) Address() string { return t.Email }
func (EmailOnly) isTarget()         {}

// Code is a persisted one-time code. The code value itself is not stored,
// only its hash.
type Code struct {
	ID        string
	AccountID string
	Email     string
	CodeHash  string
	Purpose   Purpose
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	Attempts  int
}

// Target rebuilds the tagged target from the stored linkage.
func (c *Code) Target() Target {
	if c.AccountID == "" {
		return EmailOnly{Email: c.Email}
	}
	return LinkedAccount{AccountID: c.AccountID, Email: c.Email}
}

// IsExpired reports whether the code is past its expiry at now.
func (c *Code) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsValid reports whether the code is unused and unexpired at now.
func (c *Code) IsValid(now time.Time) bool {
	return !c.Used && !c.IsExpired(now)
}
