package stores

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/passly/refresh"
	"github.com/redis/go-redis/v9"
)

// insertTokenLua writes a new token and makes it the account's only
// unrevoked token.
// KEYS[1] = new record key
// KEYS[2] = account active pointer key
// ARGV[1] = record key prefix (prefix ":rt:")
// ARGV[2] = new token hash
// ARGV[3] = revocation timestamp for a displaced token
// ARGV[4..] = field/value pairs
//
// Returns "OK" or error string "exists".
var insertTokenLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return {err='exists'}
end
local previous = redis.call('GET', KEYS[2])
if previous and previous ~= ARGV[2] then
  local prevKey = ARGV[1] .. previous
  local revoked = redis.call('HGET', prevKey, 'revoked_at')
  if revoked == '' then
    redis.call('HSET', prevKey, 'revoked_at', ARGV[3])
  end
end
redis.call('HSET', KEYS[1], unpack(ARGV, 4))
redis.call('SET', KEYS[2], ARGV[2])
return 'OK'
`)

// revokeTokenLua revokes an unrevoked token and clears the account's active
// pointer when it points at the token. The replacement link is left as is.
// KEYS[1] = record key
// KEYS[2] = account active pointer key
// ARGV[1] = token hash
// ARGV[2] = revoked_at
//
// Returns "OK" or error string "not_found", "stale".
var revokeTokenLua = redis.NewScript(`
local revoked = redis.call('HGET', KEYS[1], 'revoked_at')
if not revoked then
  return {err='not_found'}
end
if revoked ~= '' then
  return {err='stale'}
end
redis.call('HSET', KEYS[1], 'revoked_at', ARGV[2])
if redis.call('GET', KEYS[2]) == ARGV[1] then
  redis.call('DEL', KEYS[2])
end
return 'OK'
`)

// rotateTokenLua retires the old token and inserts its replacement.
// KEYS[1] = old record key
// KEYS[2] = new record key
// KEYS[3] = account active pointer key
// ARGV[1] = old revoked_at
// ARGV[2] = old replaced_by (new token hash)
// ARGV[3..] = new token field/value pairs
//
// Returns "OK" or error string "not_found", "stale".
var rotateTokenLua = redis.NewScript(`
local revoked = redis.call('HGET', KEYS[1], 'revoked_at')
if not revoked then
  return {err='not_found'}
end
if revoked ~= '' then
  return {err='stale'}
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {err='stale'}
end
redis.call('HSET', KEYS[1], 'revoked_at', ARGV[1], 'replaced_by', ARGV[2])
redis.call('HSET', KEYS[2], unpack(ARGV, 3))
redis.call('SET', KEYS[3], ARGV[2])
return 'OK'
`)

// TokenStore keeps refresh tokens in Redis hashes keyed by token hash, with
// one active pointer per account.
type TokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewTokenStore returns a TokenStore. An empty prefix selects "psa".
func NewTokenStore(redisClient redis.UniversalClient, prefix string) *TokenStore {
	if prefix == "" {
		prefix = "psa"
	}
	return &TokenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *TokenStore) recordPrefix() string {
	return s.prefix + ":rt:"
}

func (s *TokenStore) key(hash string) string {
	return s.recordPrefix() + hash
}

func (s *TokenStore) activeKey(accountID string) string {
	return s.prefix + ":rt:active:" + accountID
}

func (s *TokenStore) Insert(ctx context.Context, token *refresh.Token) error {
	args := []interface{}{s.recordPrefix(), token.Hash, formatTime(token.CreatedAt)}
	args = append(args, encodeToken(token)...)
	err := insertTokenLua.Run(ctx, s.redis,
		[]string{s.key(token.Hash), s.activeKey(token.AccountID)},
		args...,
	).Err()
	if err != nil {
		if err.Error() == "exists" {
			return refresh.ErrStale
		}
		return unavailable(err)
	}
	return nil
}

func (s *TokenStore) Revoke(ctx context.Context, token *refresh.Token, revokedAt time.Time) error {
	err := revokeTokenLua.Run(ctx, s.redis,
		[]string{s.key(token.Hash), s.activeKey(token.AccountID)},
		token.Hash,
		formatTime(revokedAt),
	).Err()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return refresh.ErrNotFound
		case "stale":
			return refresh.ErrStale
		default:
			return unavailable(err)
		}
	}
	return nil
}

func (s *TokenStore) GetByHash(ctx context.Context, hash string) (*refresh.Token, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(hash)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, refresh.ErrNotFound
	}
	return decodeToken(fields)
}

func (s *TokenStore) GetActiveForAccount(ctx context.Context, accountID string, now time.Time) (*refresh.Token, error) {
	hash, err := s.redis.Get(ctx, s.activeKey(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, refresh.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}

	token, err := s.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !token.IsActive(now) {
		return nil, refresh.ErrNotFound
	}
	return token, nil
}

func (s *TokenStore) Rotate(ctx context.Context, old, next *refresh.Token) error {
	args := []interface{}{formatOptionalTime(old.RevokedAt), old.ReplacedByHash}
	args = append(args, encodeToken(next)...)
	err := rotateTokenLua.Run(ctx, s.redis,
		[]string{s.key(old.Hash), s.key(next.Hash), s.activeKey(old.AccountID)},
		args...,
	).Err()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return refresh.ErrNotFound
		case "stale":
			return refresh.ErrStale
		default:
			return unavailable(err)
		}
	}
	return nil
}

func encodeToken(t *refresh.Token) []interface{} {
	return []interface{}{
		"id", t.ID,
		"account_id", t.AccountID,
		"hash", t.Hash,
		"expires_at", formatTime(t.ExpiresAt),
		"created_at", formatTime(t.CreatedAt),
		"revoked_at", formatOptionalTime(t.RevokedAt),
		"replaced_by", t.ReplacedByHash,
	}
}

func decodeToken(fields map[string]string) (*refresh.Token, error) {
	r := &fieldReader{fields: fields}
	t := &refresh.Token{
		ID:             r.str("id"),
		AccountID:      r.str("account_id"),
		Hash:           r.str("hash"),
		ExpiresAt:      r.time("expires_at"),
		CreatedAt:      r.time("created_at"),
		RevokedAt:      r.optionalTime("revoked_at"),
		ReplacedByHash: r.str("replaced_by"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return t, nil
}
