package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest HMAC secret NewIssuer accepts.
const MinSecretLength = 32

// Config defines an Issuer.
//
// Config instances are built once during initialization and then treated as
// immutable.
type Config struct {
	Secret    []byte
	Issuer    string
	Audience  string
	AccessTTL time.Duration
	// Leeway applies to exp and iat checks in Parse only.
	Leeway time.Duration
	// KeyID, when set, is written to the kid header and required by Parse.
	KeyID string
	Now   func() time.Time
}

// Subject is the identity an access token is minted for.
type Subject struct {
	AccountID string
	Email     string
}

// AccessClaims is the claim set of an access token.
type AccessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer signs and parses access tokens. It is stateless and safe for
// concurrent use.
type Issuer struct {
	config Config
	now    func() time.Time
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("hs256 secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{config: cfg, now: now}, nil
}

// AccessTTL returns the lifetime of issued tokens.
func (i *Issuer) AccessTTL() time.Duration {
	return i.config.AccessTTL
}

// Issue signs an access token for sub and returns it with its expiry.
// Every token gets a fresh jti.
func (i *Issuer) Issue(sub Subject) (string, time.Time, error) {
	if sub.AccountID == "" {
		return "", time.Time{}, errors.New("subject account id is required")
	}

	now := i.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(i.config.AccessTTL)

	claims := AccessClaims{
		Email: sub.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.AccountID,
			ID:        uuid.NewString(),
			Issuer:    i.config.Issuer,
			Audience:  jwt.ClaimStrings{i.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if i.config.KeyID != "" {
		token.Header["kid"] = i.config.KeyID
	}

	signed, err := token.SignedString(i.config.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies tokenStr and returns its claims. The algorithm, issuer,
// audience, expiry and issued-at are all enforced.
func (i *Issuer) Parse(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.config.Issuer),
		jwt.WithAudience(i.config.Audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if i.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			if kid != i.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return i.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
