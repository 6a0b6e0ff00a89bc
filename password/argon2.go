package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"
	"time"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minIterations  uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

// Params are the argon2id cost parameters used for one derivation.
//
// Params are stored next to every account hash so a later change of the
// configured cost never invalidates credentials hashed under older values.
type Params struct {
	Iterations  uint32
	MemoryKB    uint32
	Parallelism uint8
	KeyLength   uint32
}

// usable reports whether p can be fed to argon2 without panicking.
func (p Params) usable() bool {
	return p.Iterations >= minIterations &&
		p.Parallelism >= minParallelism &&
		p.MemoryKB > 0 &&
		p.KeyLength > 0
}

// Config defines a Hasher.
//
// Gate and Rand are optional. A nil Gate selects SharedGate(); a nil Rand
// selects crypto/rand. Observe, when set, receives the wall time of every
// derivation that ran to completion.
type Config struct {
	Params
	SaltLength uint32
	Gate       *Gate
	Rand       io.Reader
	Observe    func(time.Duration)
}

// Hash is the output of Hasher.Hash.
type Hash struct {
	Key    []byte
	Salt   []byte
	Params Params
}

// Hasher derives and verifies argon2id password hashes under a Gate.
type Hasher struct {
	params     Params
	saltLength uint32
	gate       *Gate
	rand       io.Reader
	observe    func(time.Duration)
}

// NewHasher validates cfg and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	h := &Hasher{
		params:     cfg.Params,
		saltLength: cfg.SaltLength,
		gate:       cfg.Gate,
		rand:       cfg.Rand,
		observe:    cfg.Observe,
	}
	if h.gate == nil {
		h.gate = SharedGate()
	}
	if h.rand == nil {
		h.rand = rand.Reader
	}

	return h, nil
}

// Params returns the parameters new hashes are produced with.
func (h *Hasher) Params() Params {
	return h.params
}

// Hash derives a key for password under a fresh random salt.
//
// Hash returns the context error when ctx ends while waiting for the gate or
// while the derivation runs; no Hash value is produced in that case.
func (h *Hasher) Hash(ctx context.Context, password string) (Hash, error) {
	salt, err := h.newSalt()
	if err != nil {
		return Hash{}, err
	}

	key, err := h.derive(ctx, password, salt, h.params)
	if err != nil {
		return Hash{}, err
	}

	return Hash{Key: key, Salt: salt, Params: h.params}, nil
}

// Verify recomputes the hash of password with the stored params and salt and
// compares it with key in constant time.
//
// Any mismatch, including a length mismatch or unusable stored params,
// yields false with a nil error. Only cancellation produces an error.
func (h *Hasher) Verify(ctx context.Context, params Params, key, salt []byte, password string) (bool, error) {
	if !params.usable() || len(key) == 0 {
		// Keep the timing of the normal path.
		if err := h.DummyHash(ctx, password); err != nil {
			return false, err
		}
		return false, nil
	}

	computed, err := h.derive(ctx, password, salt, params)
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

// DummyHash runs a full derivation with the current params and a fresh salt
// and discards the result. Callers use it when no account matches so the
// response time does not reveal whether the account exists.
func (h *Hasher) DummyHash(ctx context.Context, password string) error {
	salt, err := h.newSalt()
	if err != nil {
		return err
	}
	_, err = h.derive(ctx, password, salt, h.params)
	return err
}

// NeedsUpgrade reports whether a hash produced with stored is weaker than, or
// shaped differently from, what the Hasher currently produces.
func (h *Hasher) NeedsUpgrade(stored Params) bool {
	if h.params.MemoryKB > stored.MemoryKB {
		return true
	}
	if h.params.Iterations > stored.Iterations {
		return true
	}
	if h.params.Parallelism > stored.Parallelism {
		return true
	}
	return h.params.KeyLength != stored.KeyLength
}

func (h *Hasher) derive(ctx context.Context, password string, salt []byte, params Params) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	release, err := h.gate.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	// Password processing uses raw string bytes exactly as provided (no Unicode normalization).
	key := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.MemoryKB,
		params.Parallelism,
		params.KeyLength,
	)
	if h.observe != nil {
		h.observe(time.Since(started))
	}

	// argon2 cannot be interrupted; a cancellation that arrived during the
	// computation still wins and the key is dropped.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return key, nil
}

func (h *Hasher) newSalt() ([]byte, error) {
	salt := make([]byte, h.saltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func validateConfig(cfg Config) error {
	if cfg.MemoryKB < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Iterations < minIterations {
		return errors.New("password iterations must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}

	return nil
}
