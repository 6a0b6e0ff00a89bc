package passly

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/passly/account"
	"github.com/MrEthical07/passly/otp"
)

// Login checks email and password and returns a token pair.
//
// An unknown email runs a dummy hash and fails exactly like a wrong
// password, with ErrInvalidCredentials. With Config.Login.RequireVerifiedEmail
// a correct password for an unverified account yields ErrEmailNotVerified.
// For an account with two-factor enabled, a correct password sends a login
// code and yields ErrSecondFactorRequired; VerifyLoginCode completes it.
func (e *Engine) Login(ctx context.Context, email, pw string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	email = account.NormalizeEmail(email)
	acct, err := e.lookupAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		if err := e.hasher.DummyHash(ctx, pw); err != nil {
			return nil, err
		}
		e.loginFailed(ctx, "", "unknown_email")
		return nil, ErrInvalidCredentials
	}

	ok, err := e.verifyPassword(ctx, acct, pw)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := e.accounts.RecordFailedLogin(ctx, acct.ID, e.now()); err != nil {
			e.logger.WarnContext(ctx, "failed login count not persisted",
				slog.String("account_id", acct.ID),
				slog.String("error", err.Error()))
		}
		e.loginFailed(ctx, acct.ID, "bad_password")
		return nil, ErrInvalidCredentials
	}

	if e.config.Login.RequireVerifiedEmail && !acct.EmailVerified {
		e.metricInc(MetricLoginUnverified)
		return nil, ErrEmailNotVerified
	}

	if acct.TwoFactorEnabled {
		if err := e.sendLoginCode(ctx, acct); err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginSecondFactor)
		return nil, ErrSecondFactorRequired
	}

	return e.completeLogin(ctx, acct, pw)
}

// RequestLoginCode sends a login code to a two-factor account. Unknown
// emails and accounts without two-factor are ignored without error, so the
// call reveals nothing about which emails are registered.
func (e *Engine) RequestLoginCode(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	acct, err := e.lookupAccount(ctx, account.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if acct == nil || !acct.TwoFactorEnabled {
		return nil
	}
	return e.sendLoginCode(ctx, acct)
}

// VerifyLoginCode completes a two-factor login. Every failure, including an
// unknown email, yields ErrInvalidCode.
func (e *Engine) VerifyLoginCode(ctx context.Context, email, code string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	email = account.NormalizeEmail(email)
	acct, err := e.lookupAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if acct == nil || !acct.TwoFactorEnabled {
		e.metricInc(MetricOTPFailed)
		return nil, ErrInvalidCode
	}

	ok, err := e.otp.Verify(ctx, email, code, otp.PurposeLoginVerification)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricOTPFailed)
		e.loginFailed(ctx, acct.ID, "bad_login_code")
		return nil, ErrInvalidCode
	}
	e.metricInc(MetricOTPVerified)

	if e.config.Login.RequireVerifiedEmail && !acct.EmailVerified {
		e.metricInc(MetricLoginUnverified)
		return nil, ErrEmailNotVerified
	}

	return e.completeLogin(ctx, acct, "")
}

func (e *Engine) sendLoginCode(ctx context.Context, acct *account.Account) error {
	target := otp.LinkedAccount{AccountID: acct.ID, Email: acct.Email}
	if _, err := e.otp.Generate(ctx, target, otp.PurposeLoginVerification); err != nil {
		return err
	}
	e.metricInc(MetricOTPIssued)
	e.emitEvent(ctx, EventLoginOtpRequested, acct.ID, nil)
	return nil
}

// completeLogin stamps the login, resets the failure count, upgrades the
// password hash when pw is known and the stored parameters are weaker, and
// issues a token pair.
func (e *Engine) completeLogin(ctx context.Context, acct *account.Account, pw string) (*TokenPair, error) {
	now := e.now()

	if pw != "" && e.config.Password.UpgradeOnLogin && e.hasher.NeedsUpgrade(storedParams(acct)) {
		if err := e.upgradePassword(ctx, acct, pw, now); err != nil {
			return nil, err
		}
	}

	if err := e.accounts.RecordLogin(ctx, acct.ID, now); err != nil {
		return nil, err
	}
	acct.LastLoginAt = &now
	acct.AccessFailedCount = 0
	acct.UpdatedAt = now

	pair, err := e.issuePair(ctx, acct)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.logger.InfoContext(ctx, "login succeeded", slog.String("account_id", acct.ID))
	return pair, nil
}

// upgradePassword rehashes pw with the current parameters. The write only
// lands while the stored hash is the one pw was checked against, so a
// password reset that committed meanwhile wins.
func (e *Engine) upgradePassword(ctx context.Context, acct *account.Account, pw string, now time.Time) error {
	creds, err := e.newCredentials(ctx, pw)
	if err != nil {
		return err
	}
	err = e.accounts.SetPassword(ctx, acct.ID, creds, acct.PasswordHash, now)
	if errors.Is(err, account.ErrPasswordChanged) {
		e.logger.InfoContext(ctx, "password hash upgrade skipped, password changed",
			slog.String("account_id", acct.ID))
		return nil
	}
	if err != nil {
		return err
	}
	acct.SetCredentials(creds)
	e.logger.InfoContext(ctx, "password hash upgraded", slog.String("account_id", acct.ID))
	return nil
}

func (e *Engine) loginFailed(ctx context.Context, accountID, reason string) {
	e.metricInc(MetricLoginFailure)
	e.logger.InfoContext(ctx, "login failed",
		slog.String("account_id", accountID),
		slog.String("reason", reason))
	e.emitEvent(ctx, EventLoginFailed, accountID, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
}
