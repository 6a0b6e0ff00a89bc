package passly

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"

	"github.com/MrEthical07/passly/account"
	"github.com/MrEthical07/passly/otp"
	"github.com/google/uuid"
)

// Register creates an account for email and sends an email verification
// code to it.
//
// The email is trimmed and lowercased first. An already registered email
// yields ErrEmailTaken. Failure to deliver the verification code does not
// undo the registration: it is logged, and the caller can use
// RequestEmailVerification later.
func (e *Engine) Register(ctx context.Context, email, pw string) (*account.Account, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	email = account.NormalizeEmail(email)
	if !validEmail(email) {
		return nil, ErrEmailInvalid
	}
	if err := e.checkPassword(pw); err != nil {
		return nil, err
	}

	exists, err := e.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		e.metricInc(MetricRegisterDuplicate)
		return nil, ErrEmailTaken
	}

	now := e.now()
	acct := &account.Account{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	creds, err := e.newCredentials(ctx, pw)
	if err != nil {
		return nil, err
	}
	acct.SetCredentials(creds)

	if err := e.accounts.Insert(ctx, acct); err != nil {
		// A concurrent registration won between the check and the insert.
		if errors.Is(err, account.ErrEmailTaken) {
			e.metricInc(MetricRegisterDuplicate)
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	e.metricInc(MetricRegisterSuccess)
	e.logger.InfoContext(ctx, "account registered", slog.String("account_id", acct.ID))

	target := otp.LinkedAccount{AccountID: acct.ID, Email: acct.Email}
	if _, err := e.otp.Generate(ctx, target, otp.PurposeEmailVerification); err != nil {
		e.logger.WarnContext(ctx, "email verification code not delivered after registration",
			slog.String("account_id", acct.ID),
			slog.String("error", err.Error()))
	} else {
		e.metricInc(MetricOTPIssued)
	}

	return acct, nil
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
