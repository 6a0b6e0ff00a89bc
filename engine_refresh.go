package passly

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrEthical07/passly/jwt"
	"github.com/MrEthical07/passly/refresh"
)

// Refresh exchanges a refresh token for a new token pair.
//
// The access token is signed before the refresh token is rotated, so any
// failure leaves the presented token valid for a retry and no half-rotated
// state is visible. Unknown, expired, revoked and already rotated tokens all
// yield ErrInvalidRefreshToken; a rotated token presented again is also
// reported as a TokenReuse security event.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	token, err := e.refresh.Validate(ctx, refreshToken)
	if errors.Is(err, refresh.ErrInvalidToken) {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}

	acct, err := e.accountByID(ctx, token.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricRefreshFailure)
		}
		return nil, err
	}

	access, accessExpires, err := e.issuer.Issue(jwt.Subject{AccountID: acct.ID, Email: acct.Email})
	if err != nil {
		return nil, err
	}

	plain, next, err := e.refresh.Rotate(ctx, token)
	if errors.Is(err, refresh.ErrInvalidToken) {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	return &TokenPair{
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExpires,
		RefreshToken:          plain,
		RefreshTokenExpiresAt: next.ExpiresAt,
	}, nil
}

// Logout revokes refreshToken. An invalid or already revoked token is not an
// error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	token, err := e.refresh.Validate(ctx, refreshToken)
	if errors.Is(err, refresh.ErrInvalidToken) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := e.refresh.Revoke(ctx, token); err != nil {
		return err
	}
	e.metricInc(MetricLogout)
	e.logger.InfoContext(ctx, "logged out", slog.String("account_id", token.AccountID))
	return nil
}

// onTokenReuse records a rotated token being presented again. The account is
// not locked.
func (e *Engine) onTokenReuse(ctx context.Context, token *refresh.Token) {
	e.metricInc(MetricRefreshReuseDetected)
	e.emitEvent(ctx, EventTokenReuse, token.AccountID, func() map[string]string {
		return map[string]string{
			"token_id": token.ID,
		}
	})
}
