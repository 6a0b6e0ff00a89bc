package password

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"
)

const (
	lowercaseSet = "abcdefghijklmnopqrstuvwxyz"
	uppercaseSet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numberSet    = "0123456789"
	symbolSet    = "!@#$%^&*()-_=+[]{};:,.<>?"
	similarChars = "O0Il"

	// MinGeneratedLength is the shortest password Generate produces.
	MinGeneratedLength = 8
	// MaxGeneratedLength is the longest password Generate produces.
	MaxGeneratedLength = 128
)

var (
	// ErrInvalidLength is returned when the requested length is out of range.
	ErrInvalidLength = errors.New("password length must be between 8 and 128")
	// ErrNoCharacterSets is returned when no character set is selected.
	ErrNoCharacterSets = errors.New("no character sets selected")
)

// Options selects the shape of a generated password.
type Options struct {
	Length         int
	Lowercase      bool
	Uppercase      bool
	Numbers        bool
	Symbols        bool
	ExcludeSimilar bool
}

// Generate returns a random password drawn uniformly from the selected sets.
func Generate(opts Options) (string, error) {
	return GenerateFrom(rand.Reader, opts)
}

// GenerateFrom is Generate with an explicit randomness source.
func GenerateFrom(r io.Reader, opts Options) (string, error) {
	if opts.Length < MinGeneratedLength || opts.Length > MaxGeneratedLength {
		return "", ErrInvalidLength
	}

	pool := characterPool(opts)
	if len(pool) == 0 {
		return "", ErrNoCharacterSets
	}

	max := big.NewInt(int64(len(pool)))
	out := make([]byte, opts.Length)
	for i := range out {
		n, err := rand.Int(r, max)
		if err != nil {
			return "", err
		}
		out[i] = pool[n.Int64()]
	}

	return string(out), nil
}

func characterPool(opts Options) string {
	var b strings.Builder
	if opts.Lowercase {
		b.WriteString(lowercaseSet)
	}
	if opts.Uppercase {
		b.WriteString(uppercaseSet)
	}
	if opts.Numbers {
		b.WriteString(numberSet)
	}
	if opts.Symbols {
		b.WriteString(symbolSet)
	}

	pool := b.String()
	if !opts.ExcludeSimilar {
		return pool
	}

	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(similarChars, r) {
			return -1
		}
		return r
	}, pool)
}
