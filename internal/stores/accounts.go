package stores

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/passly/account"
	"github.com/redis/go-redis/v9"
)

// insertAccountLua claims the email index and writes the record in one step.
// KEYS[1] = record key
// KEYS[2] = email index key
// ARGV[1] = account id
// ARGV[2..] = field/value pairs
//
// Returns "OK" or error string "email_taken", "id_taken".
var insertAccountLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return {err='id_taken'}
end
if redis.call('SETNX', KEYS[2], ARGV[1]) == 0 then
  return {err='email_taken'}
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
return 'OK'
`)

// updateAccountLua rewrites an existing record whose email is unchanged.
// KEYS[1] = record key
// ARGV[1] = email
// ARGV[2..] = field/value pairs
//
// Returns "OK" or error string "not_found", "email_immutable".
var updateAccountLua = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'email')
if not current then
  return {err='not_found'}
end
if current ~= ARGV[1] then
  return {err='email_immutable'}
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
return 'OK'
`)

// patchAccountLua sets fields of an existing record.
// KEYS[1] = record key
// ARGV[1..] = field/value pairs
//
// Returns "OK" or error string "not_found".
var patchAccountLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 'OK'
`)

// failedLoginLua bumps the failed login counter of an existing record.
// KEYS[1] = record key
// ARGV[1] = updated_at
//
// Returns the new count or error string "not_found".
var failedLoginLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
return redis.call('HINCRBY', KEYS[1], 'access_failed_count', 1)
`)

// setPasswordLua replaces the credentials, optionally only while the stored
// hash is the expected one.
// KEYS[1] = record key
// ARGV[1] = "1" to compare, "0" to write unconditionally
// ARGV[2] = expected encoded hash
// ARGV[3..] = field/value pairs
//
// Returns "OK" or error string "not_found", "changed".
var setPasswordLua = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'password_hash')
if not current then
  return {err='not_found'}
end
if ARGV[1] == '1' and current ~= ARGV[2] then
  return {err='changed'}
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
return 'OK'
`)

// ErrAccountEmailImmutable is returned by Update when the email differs from
// the stored one.
var ErrAccountEmailImmutable = errors.New("account email cannot be changed by update")

// AccountStore keeps accounts in Redis hashes with an email index.
type AccountStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewAccountStore returns an AccountStore. An empty prefix selects "psa".
func NewAccountStore(redisClient redis.UniversalClient, prefix string) *AccountStore {
	if prefix == "" {
		prefix = "psa"
	}
	return &AccountStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *AccountStore) key(id string) string {
	return s.prefix + ":acct:" + id
}

func (s *AccountStore) emailKey(email string) string {
	return s.prefix + ":acct:email:" + email
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*account.Account, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, account.ErrNotFound
	}
	return decodeAccount(fields)
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	id, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return s.GetByID(ctx, id)
}

func (s *AccountStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.emailKey(email)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (s *AccountStore) Insert(ctx context.Context, acct *account.Account) error {
	args := append([]interface{}{acct.ID}, encodeAccount(acct)...)
	err := insertAccountLua.Run(ctx, s.redis, []string{s.key(acct.ID), s.emailKey(acct.Email)}, args...).Err()
	if err != nil {
		switch err.Error() {
		case "email_taken":
			return account.ErrEmailTaken
		case "id_taken":
			return errors.New("account id already exists")
		default:
			return unavailable(err)
		}
	}
	return nil
}

func (s *AccountStore) Update(ctx context.Context, acct *account.Account) error {
	args := append([]interface{}{acct.Email}, encodeAccount(acct)...)
	err := updateAccountLua.Run(ctx, s.redis, []string{s.key(acct.ID)}, args...).Err()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return account.ErrNotFound
		case "email_immutable":
			return ErrAccountEmailImmutable
		default:
			return unavailable(err)
		}
	}
	return nil
}

func (s *AccountStore) RecordFailedLogin(ctx context.Context, id string, at time.Time) error {
	err := failedLoginLua.Run(ctx, s.redis, []string{s.key(id)}, formatTime(at)).Err()
	return accountScriptErr(err)
}

func (s *AccountStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	err := patchAccountLua.Run(ctx, s.redis, []string{s.key(id)},
		"last_login_at", formatTime(at),
		"access_failed_count", "0",
		"updated_at", formatTime(at),
	).Err()
	return accountScriptErr(err)
}

func (s *AccountStore) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	err := patchAccountLua.Run(ctx, s.redis, []string{s.key(id)},
		"email_verified", formatBool(true),
		"updated_at", formatTime(at),
	).Err()
	return accountScriptErr(err)
}

func (s *AccountStore) SetPassword(ctx context.Context, id string, creds account.Credentials, expectedHash []byte, at time.Time) error {
	compare := "0"
	if expectedHash != nil {
		compare = "1"
	}
	err := setPasswordLua.Run(ctx, s.redis, []string{s.key(id)},
		compare, encodeBytes(expectedHash),
		"password_hash", encodeBytes(creds.Hash),
		"password_salt", encodeBytes(creds.Salt),
		"iterations", strconv.FormatUint(uint64(creds.Iterations), 10),
		"memory_kb", strconv.FormatUint(uint64(creds.MemoryKB), 10),
		"parallelism", strconv.FormatUint(uint64(creds.Parallelism), 10),
		"key_length", strconv.FormatUint(uint64(creds.KeyLength), 10),
		"access_failed_count", "0",
		"updated_at", formatTime(at),
	).Err()
	return accountScriptErr(err)
}

func accountScriptErr(err error) error {
	if err == nil {
		return nil
	}
	switch err.Error() {
	case "not_found":
		return account.ErrNotFound
	case "changed":
		return account.ErrPasswordChanged
	default:
		return unavailable(err)
	}
}

func (s *AccountStore) Delete(ctx context.Context, id string) error {
	acct, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.Del(ctx, s.emailKey(acct.Email))
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func encodeAccount(a *account.Account) []interface{} {
	return []interface{}{
		"id", a.ID,
		"email", a.Email,
		"email_verified", formatBool(a.EmailVerified),
		"password_hash", encodeBytes(a.PasswordHash),
		"password_salt", encodeBytes(a.PasswordSalt),
		"iterations", strconv.FormatUint(uint64(a.Iterations), 10),
		"memory_kb", strconv.FormatUint(uint64(a.MemoryKB), 10),
		"parallelism", strconv.FormatUint(uint64(a.Parallelism), 10),
		"key_length", strconv.FormatUint(uint64(a.KeyLength), 10),
		"two_factor_enabled", formatBool(a.TwoFactorEnabled),
		"lockout_enabled", formatBool(a.LockoutEnabled),
		"access_failed_count", strconv.Itoa(a.AccessFailedCount),
		"last_login_at", formatOptionalTime(a.LastLoginAt),
		"created_at", formatTime(a.CreatedAt),
		"updated_at", formatTime(a.UpdatedAt),
	}
}

func decodeAccount(fields map[string]string) (*account.Account, error) {
	r := &fieldReader{fields: fields}
	a := &account.Account{
		ID:                r.str("id"),
		Email:             r.str("email"),
		EmailVerified:     r.bool("email_verified"),
		PasswordHash:      r.bytes("password_hash"),
		PasswordSalt:      r.bytes("password_salt"),
		Iterations:        uint32(r.uint("iterations", 32)),
		MemoryKB:          uint32(r.uint("memory_kb", 32)),
		Parallelism:       uint8(r.uint("parallelism", 8)),
		KeyLength:         uint32(r.uint("key_length", 32)),
		TwoFactorEnabled:  r.bool("two_factor_enabled"),
		LockoutEnabled:    r.bool("lockout_enabled"),
		AccessFailedCount: int(r.int64("access_failed_count")),
		LastLoginAt:       r.optionalTime("last_login_at"),
		CreatedAt:         r.time("created_at"),
		UpdatedAt:         r.time("updated_at"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return a, nil
}
