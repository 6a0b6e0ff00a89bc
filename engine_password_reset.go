package passly

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/passly/account"
	"github.com/MrEthical07/passly/otp"
)

// RequestPasswordReset sends a password reset code when email belongs to an
// account and silently does nothing otherwise.
//
// Code generation or delivery failures are logged and not returned, so the
// result is the same whether or not the email is registered.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	e.metricInc(MetricPasswordResetRequest)

	acct, err := e.lookupAccount(ctx, account.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if acct == nil {
		return nil
	}

	target := otp.LinkedAccount{AccountID: acct.ID, Email: acct.Email}
	if _, err := e.otp.Generate(ctx, target, otp.PurposePasswordReset); err != nil {
		e.logger.WarnContext(ctx, "password reset code not delivered",
			slog.String("account_id", acct.ID),
			slog.String("error", err.Error()))
		return nil
	}
	e.metricInc(MetricOTPIssued)
	return nil
}

// ResetPassword replaces the password of the account owning email after
// checking a password reset code, then revokes its active refresh token.
//
// An unknown email and a wrong code both run a dummy hash and fail with
// ErrInvalidCode, so the two take the same time.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.checkPassword(newPassword); err != nil {
		return err
	}

	email = account.NormalizeEmail(email)
	acct, err := e.lookupAccount(ctx, email)
	if err != nil {
		return err
	}
	if acct == nil {
		if err := e.hasher.DummyHash(ctx, newPassword); err != nil {
			return err
		}
		e.metricInc(MetricPasswordResetFailure)
		return ErrInvalidCode
	}

	ok, err := e.otp.Verify(ctx, email, code, otp.PurposePasswordReset)
	if err != nil {
		return err
	}
	if !ok {
		if err := e.hasher.DummyHash(ctx, newPassword); err != nil {
			return err
		}
		e.metricInc(MetricOTPFailed)
		e.metricInc(MetricPasswordResetFailure)
		return ErrInvalidCode
	}
	e.metricInc(MetricOTPVerified)

	creds, err := e.newCredentials(ctx, newPassword)
	if err != nil {
		return err
	}
	if err := e.accounts.SetPassword(ctx, acct.ID, creds, nil, e.now()); err != nil {
		return err
	}

	active, err := e.refresh.ActiveFor(ctx, acct.ID)
	if err != nil {
		return err
	}
	if err := e.refresh.Revoke(ctx, active); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.logger.InfoContext(ctx, "password reset", slog.String("account_id", acct.ID))
	return nil
}
