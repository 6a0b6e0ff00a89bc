package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"io"
)

// SecretSize is the number of random bytes in a refresh token secret.
const SecretSize = 64

// HashToken returns the hex SHA-256 of token.
//
// The hash is unsalted so stores can index tokens by it.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyToken reports whether token hashes to storedHash, in constant time.
func VerifyToken(token, storedHash string) bool {
	computed := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// NewSecret reads SecretSize bytes from r and encodes them as unpadded
// base64url. A nil r selects crypto/rand.
func NewSecret(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	var raw [SecretSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
