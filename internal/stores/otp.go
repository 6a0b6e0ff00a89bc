package stores

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/passly/otp"
	"github.com/redis/go-redis/v9"
)

// addOTPAttemptLua increments the attempt count of an unused code below the
// limit.
// KEYS[1] = record key
// ARGV[1] = max attempts
//
// Returns the new count, or -1 when the code is missing, used or exhausted.
var addOTPAttemptLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('HGET', KEYS[1], 'used') == '1' then
  return -1
end
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0')
if attempts >= tonumber(ARGV[1]) then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

// markOTPUsedLua sets the used flag once.
// KEYS[1] = record key
// ARGV[1] = max attempts, 0 for no limit
//
// Returns 1 when this call set the flag, 0 otherwise.
var markOTPUsedLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if redis.call('HGET', KEYS[1], 'used') == '1' then
  return 0
end
local max = tonumber(ARGV[1])
if max > 0 and tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0') >= max then
  return 0
end
redis.call('HSET', KEYS[1], 'used', '1')
return 1
`)

// OTPStore keeps one-time codes in Redis hashes. A sorted set per
// (purpose, email) orders codes by creation, and one global sorted set orders
// them by expiry for sweeping.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewOTPStore returns an OTPStore. An empty prefix selects "psa".
func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "psa"
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OTPStore) key(id string) string {
	return s.prefix + ":otp:" + id
}

func (s *OTPStore) indexKey(purpose otp.Purpose, email string) string {
	return s.prefix + ":otp:idx:" + strconv.Itoa(int(purpose)) + ":" + email
}

func (s *OTPStore) expiryKey() string {
	return s.prefix + ":otp:exp"
}

func (s *OTPStore) Insert(ctx context.Context, code *otp.Code) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(code.ID), encodeOTP(code)...)
		pipe.ZAdd(ctx, s.indexKey(code.Purpose, code.Email), redis.Z{
			Score:  scoreMillis(code.CreatedAt),
			Member: code.ID,
		})
		pipe.ZAdd(ctx, s.expiryKey(), redis.Z{
			Score:  scoreMillis(code.ExpiresAt),
			Member: code.ID,
		})
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *OTPStore) AddAttempt(ctx context.Context, id string, max int) (int, error) {
	n, err := addOTPAttemptLua.Run(ctx, s.redis, []string{s.key(id)}, max).Int()
	if err != nil {
		return 0, unavailable(err)
	}
	if n < 0 {
		return 0, otp.ErrNotFound
	}
	return n, nil
}

func (s *OTPStore) MarkUsed(ctx context.Context, id string, max int) (bool, error) {
	n, err := markOTPUsedLua.Run(ctx, s.redis, []string{s.key(id)}, max).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (s *OTPStore) LatestValid(ctx context.Context, email string, purpose otp.Purpose, now time.Time) (*otp.Code, error) {
	// Equal scores come back in reverse lexical order, and ULIDs sort by
	// creation time, so the newest code is always first.
	ids, err := s.redis.ZRevRange(ctx, s.indexKey(purpose, email), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	codes, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, code := range codes {
		if code.IsValid(now) {
			return code, nil
		}
	}
	return nil, otp.ErrNotFound
}

func (s *OTPStore) ListExpired(ctx context.Context, now time.Time) ([]*otp.Code, error) {
	ids, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	codes, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	expired := codes[:0]
	for _, code := range codes {
		if code.IsExpired(now) {
			expired = append(expired, code)
		}
	}
	return expired, nil
}

func (s *OTPStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	codes, err := s.load(ctx, ids)
	if err != nil {
		return 0, err
	}

	dels := make([]*redis.IntCmd, 0, len(codes))
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, code := range codes {
			dels = append(dels, pipe.Del(ctx, s.key(code.ID)))
			pipe.ZRem(ctx, s.indexKey(code.Purpose, code.Email), code.ID)
			pipe.ZRem(ctx, s.expiryKey(), code.ID)
		}
		// Index entries whose record is already gone.
		for _, id := range ids {
			pipe.ZRem(ctx, s.expiryKey(), id)
		}
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}

	var deleted int64
	for _, cmd := range dels {
		deleted += cmd.Val()
	}
	return deleted, nil
}

// load fetches the records for ids in order, skipping ids whose record no
// longer exists.
func (s *OTPStore) load(ctx context.Context, ids []string) ([]*otp.Code, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.key(id))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}

	codes := make([]*otp.Code, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		code, err := decodeOTP(fields)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func encodeOTP(c *otp.Code) []interface{} {
	return []interface{}{
		"id", c.ID,
		"account_id", c.AccountID,
		"email", c.Email,
		"code_hash", c.CodeHash,
		"purpose", strconv.Itoa(int(c.Purpose)),
		"created_at", formatTime(c.CreatedAt),
		"expires_at", formatTime(c.ExpiresAt),
		"used", formatBool(c.Used),
		"attempts", strconv.Itoa(c.Attempts),
	}
}

func decodeOTP(fields map[string]string) (*otp.Code, error) {
	r := &fieldReader{fields: fields}
	c := &otp.Code{
		ID:        r.str("id"),
		AccountID: r.str("account_id"),
		Email:     r.str("email"),
		CodeHash:  r.str("code_hash"),
		Purpose:   otp.Purpose(r.int64("purpose")),
		CreatedAt: r.time("created_at"),
		ExpiresAt: r.time("expires_at"),
		Used:      r.bool("used"),
		Attempts:  int(r.int64("attempts")),
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}
