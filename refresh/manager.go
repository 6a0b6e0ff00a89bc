package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrInvalidToken is returned by Validate for unknown, expired, revoked and
// rotated tokens alike.
var ErrInvalidToken = errors.New("invalid refresh token")

// Config defines a Manager. TTL is required; the rest is optional.
type Config struct {
	TTL    time.Duration
	Now    func() time.Time
	Rand   io.Reader
	Logger *slog.Logger
	// OnReuse is called when a token that was already rotated is presented
	// again. It runs synchronously inside Validate and must not block.
	OnReuse func(ctx context.Context, token *Token)
}

// Manager issues, validates, rotates and revokes refresh tokens.
//
// An account has at most one active token: Issue revokes the current one
// before inserting the new one, and Rotate replaces it atomically.
type Manager struct {
	repo    Repository
	ttl     time.Duration
	now     func() time.Time
	rand    io.Reader
	logger  *slog.Logger
	onReuse func(context.Context, *Token)
}

// NewManager returns a Manager backed by repo.
func NewManager(repo Repository, cfg Config) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("refresh repository is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("refresh TTL must be > 0")
	}
	m := &Manager{
		repo:    repo,
		ttl:     cfg.TTL,
		now:     cfg.Now,
		rand:    cfg.Rand,
		logger:  cfg.Logger,
		onReuse: cfg.OnReuse,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With(slog.String("component", "refresh"))
	return m, nil
}

// TTL returns the lifetime of newly issued tokens.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue revokes the active token of accountID, if any, and persists a new
// one. The returned plaintext is the only copy of the secret.
func (m *Manager) Issue(ctx context.Context, accountID string) (string, *Token, error) {
	current, err := m.ActiveFor(ctx, accountID)
	if err != nil {
		return "", nil, err
	}
	if current != nil {
		if err := m.Revoke(ctx, current); err != nil {
			return "", nil, fmt.Errorf("revoke previous refresh token: %w", err)
		}
		m.logger.InfoContext(ctx, "revoked previous refresh token", slog.String("account_id", accountID))
	}

	plain, token, err := m.newToken(accountID)
	if err != nil {
		return "", nil, err
	}
	if err := m.repo.Insert(ctx, token); err != nil {
		return "", nil, err
	}

	m.logger.InfoContext(ctx, "refresh token issued", slog.String("account_id", accountID), slog.String("token_id", token.ID))
	return plain, token, nil
}

// Validate returns the stored token for plain when it is active.
//
// Unknown, expired and revoked tokens all yield ErrInvalidToken. Repository
// failures other than ErrNotFound are returned as they are.
func (m *Manager) Validate(ctx context.Context, plain string) (*Token, error) {
	if plain == "" {
		return nil, ErrInvalidToken
	}

	token, err := m.repo.GetByHash(ctx, HashToken(plain))
	if errors.Is(err, ErrNotFound) {
		m.logger.WarnContext(ctx, "refresh token not found")
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	now := m.now()
	if token.IsRotated() {
		m.logger.WarnContext(ctx, "rotated refresh token presented again",
			slog.String("account_id", token.AccountID),
			slog.String("token_id", token.ID))
		if m.onReuse != nil {
			m.onReuse(ctx, token)
		}
		return nil, ErrInvalidToken
	}
	if !token.IsActive(now) {
		m.logger.InfoContext(ctx, "refresh token inactive", slog.String("account_id", token.AccountID))
		return nil, ErrInvalidToken
	}

	return token, nil
}

// Rotate revokes old, links it to a freshly generated replacement, and
// persists both in one repository call. old must come from Validate.
//
// On error nothing is changed, and old is still valid for a later retry.
func (m *Manager) Rotate(ctx context.Context, old *Token) (string, *Token, error) {
	if old == nil {
		return "", nil, ErrInvalidToken
	}

	plain, next, err := m.newToken(old.AccountID)
	if err != nil {
		return "", nil, err
	}

	revokedAt := m.now()
	retired := *old
	retired.RevokedAt = &revokedAt
	retired.ReplacedByHash = next.Hash

	if err := m.repo.Rotate(ctx, &retired, next); err != nil {
		if errors.Is(err, ErrStale) || errors.Is(err, ErrNotFound) {
			m.logger.WarnContext(ctx, "refresh token rotated concurrently", slog.String("account_id", old.AccountID))
			return "", nil, ErrInvalidToken
		}
		return "", nil, err
	}
	*old = retired

	m.logger.InfoContext(ctx, "refresh token rotated",
		slog.String("account_id", old.AccountID),
		slog.String("token_id", next.ID))
	return plain, next, nil
}

// maxRevokeHops bounds how far Revoke follows rotations that raced it.
const maxRevokeHops = 8

// Revoke sets the revocation time of token. Revoking a revoked token is a
// no-op.
//
// When token was rotated after the caller loaded it, the replacement is
// revoked instead, so a logout racing a refresh still ends the session.
func (m *Manager) Revoke(ctx context.Context, token *Token) error {
	if token == nil || token.IsRevoked() {
		return nil
	}

	revokedAt := m.now()
	current := token
	for hop := 0; hop < maxRevokeHops; hop++ {
		err := m.repo.Revoke(ctx, current, revokedAt)
		if err == nil {
			if current == token {
				token.RevokedAt = &revokedAt
			}
			return nil
		}
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if !errors.Is(err, ErrStale) {
			return err
		}

		latest, err := m.repo.GetByHash(ctx, current.Hash)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if current == token {
			*token = *latest
		}
		if !latest.IsRotated() {
			return nil
		}

		next, err := m.repo.GetByHash(ctx, latest.ReplacedByHash)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !next.IsRevoked() {
			m.logger.InfoContext(ctx, "revoking replacement of concurrently rotated token",
				slog.String("account_id", next.AccountID),
				slog.String("token_id", next.ID))
		}
		current = next
	}
	return ErrStale
}

// ActiveFor returns the active token of accountID, or nil when there is none.
func (m *Manager) ActiveFor(ctx context.Context, accountID string) (*Token, error) {
	token, err := m.repo.GetActiveForAccount(ctx, accountID, m.now())
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (m *Manager) newToken(accountID string) (string, *Token, error) {
	plain, err := NewSecret(m.rand)
	if err != nil {
		return "", nil, err
	}
	now := m.now()
	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		return "", nil, err
	}
	return plain, &Token{
		ID:        id.String(),
		AccountID: accountID,
		Hash:      HashToken(plain),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}, nil
}
