package passly

import "time"

// TokenPair is the result of a successful Login, VerifyLoginCode or Refresh.
//
// RefreshToken is the only copy of the refresh secret; it is never stored
// or logged by the Engine.
type TokenPair struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}
