package passly

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrEthical07/passly/account"
	"github.com/MrEthical07/passly/otp"
)

// RequestEmailVerification sends a new email verification code to the
// account's email. It does nothing for an account that is already verified.
func (e *Engine) RequestEmailVerification(ctx context.Context, accountID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	acct, err := e.accountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.EmailVerified {
		return nil
	}

	target := otp.LinkedAccount{AccountID: acct.ID, Email: acct.Email}
	if _, err := e.otp.Generate(ctx, target, otp.PurposeEmailVerification); err != nil {
		return err
	}
	e.metricInc(MetricOTPIssued)
	return nil
}

// VerifyEmail checks code against the latest email verification code of the
// account and marks its email verified.
//
// Any code failure yields ErrInvalidCode. A code verifies once, so a second
// call with the same code fails even though the account stays verified.
func (e *Engine) VerifyEmail(ctx context.Context, accountID, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	acct, err := e.accountByID(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := e.otp.Verify(ctx, acct.Email, code, otp.PurposeEmailVerification)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricOTPFailed)
		return ErrInvalidCode
	}
	e.metricInc(MetricOTPVerified)

	if acct.EmailVerified {
		return nil
	}
	if err := e.accounts.MarkEmailVerified(ctx, acct.ID, e.now()); err != nil {
		return err
	}

	e.metricInc(MetricEmailVerified)
	e.logger.InfoContext(ctx, "email verified", slog.String("account_id", acct.ID))
	return nil
}

func (e *Engine) accountByID(ctx context.Context, accountID string) (*account.Account, error) {
	if accountID == "" {
		return nil, ErrAccountNotFound
	}
	acct, err := e.accounts.GetByID(ctx, accountID)
	if errors.Is(err, account.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}
