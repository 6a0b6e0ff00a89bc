package passly

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by an Engine operation that is not
// a context or backend failure matches exactly one of them with errors.Is.
var (
	// ErrConflict is returned when a request collides with existing state.
	ErrConflict = errors.New("conflict")
	// ErrUnauthenticated covers every credential, code and token failure.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound is returned when an account id no longer resolves.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for malformed request values.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEngineNotReady is returned by a nil or half-built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

var (
	// ErrEmailTaken is returned by Register for an email that is already registered.
	ErrEmailTaken = fmt.Errorf("%w: email already registered", ErrConflict)

	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	// ErrInvalidCode is returned for a wrong, expired, used or exhausted one-time code.
	ErrInvalidCode = fmt.Errorf("%w: invalid or expired code", ErrUnauthenticated)
	// ErrInvalidRefreshToken is returned for an unknown, expired, revoked or rotated refresh token.
	ErrInvalidRefreshToken = fmt.Errorf("%w: invalid refresh token", ErrUnauthenticated)
	// ErrEmailNotVerified is returned by Login when the verified-email gate is on.
	ErrEmailNotVerified = fmt.Errorf("%w: email not verified", ErrUnauthenticated)
	// ErrSecondFactorRequired is returned by Login after a correct password
	// for an account with two-factor enabled. A login code has been sent.
	ErrSecondFactorRequired = fmt.Errorf("%w: second factor required", ErrUnauthenticated)

	// ErrAccountNotFound is returned when an account id does not resolve.
	ErrAccountNotFound = fmt.Errorf("%w: account not found", ErrNotFound)

	// ErrPasswordInvalid is returned for a password outside the configured length bounds.
	ErrPasswordInvalid = fmt.Errorf("%w: password does not meet length requirements", ErrInvalidInput)
	// ErrEmailInvalid is returned for an empty or malformed email.
	ErrEmailInvalid = fmt.Errorf("%w: invalid email", ErrInvalidInput)
	// ErrGeneratorOptions is returned by GeneratePassword for unusable options.
	ErrGeneratorOptions = fmt.Errorf("%w: invalid password generator options", ErrInvalidInput)
)
