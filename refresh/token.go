package refresh

import "time"

// Token is a persisted refresh token. The plaintext secret is never part of
// it; only Hash is stored.
type Token struct {
	ID             string
	AccountID      string
	Hash           string
	ExpiresAt      time.Time
	CreatedAt      time.Time
	RevokedAt      *time.Time
	ReplacedByHash string
}

// IsExpired reports whether the token is past its expiry at now.
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsRevoked reports whether a revocation time is set.
func (t *Token) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsRotated reports whether the token was revoked by a rotation.
func (t *Token) IsRotated() bool {
	return t.RevokedAt != nil && t.ReplacedByHash != ""
}

// IsActive reports whether the token is neither revoked nor expired at now.
// Callers must pass the time of the check, not the time the token was loaded.
func (t *Token) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}
