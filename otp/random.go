package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"math/big"
	"strings"
)

const (
	minCodeLength = 4
	maxCodeLength = 10
)

var errCodeLength = errors.New("otp length must be between 4 and 10")

// newCode returns a numeric string of the given length with every digit drawn
// independently and uniformly from r.
func newCode(r io.Reader, length int) (string, error) {
	if length < minCodeLength || length > maxCodeLength {
		return "", errCodeLength
	}
	if r == nil {
		r = rand.Reader
	}

	var b strings.Builder
	b.Grow(length)

	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(r, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// HashCode returns the hex SHA-256 of code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func matchCode(code, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashCode(code)), []byte(storedHash)) == 1
}
