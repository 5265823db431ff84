package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"warden/cmd/identity/ids"

	"github.com/redis/go-redis/v9"
)

// Scores are Unix microseconds: exact in a float64 and fine enough for login traffic.
var addScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[3])
local n = redis.call('ZCARD', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return n
`)

var countScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local n = redis.call('ZCARD', KEYS[1])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if n == 0 then
  return {0, ''}
end
return {n, oldest[2]}
`)

var reserveScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local n = redis.call('ZCARD', KEYS[1])
local admitted = 0
if n < tonumber(ARGV[5]) then
  redis.call('ZADD', KEYS[1], ARGV[2], ARGV[3])
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
  n = n + 1
  admitted = 1
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local score = ''
if oldest[2] then
  score = oldest[2]
end
return {n, admitted, score}
`)

// RedisStore keeps one sorted set per key; each script call trims and
// counts atomically on the server.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore constructs a RedisStore. prefix namespaces all keys (e.g. "warden").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func cutoff(at time.Time, window time.Duration) string {
	return strconv.FormatInt(at.Add(-window).UnixMicro(), 10)
}

func (s *RedisStore) Add(ctx context.Context, key string, at time.Time, window time.Duration) (int, error) {
	member, err := ids.NewULID(at)
	if err != nil {
		return 0, fmt.Errorf("attempt id: %w", err)
	}

	n, err := addScript.Run(ctx, s.client, []string{s.key(key)},
		cutoff(at, window),
		strconv.FormatInt(at.UnixMicro(), 10),
		member,
		window.Milliseconds(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("redis add attempt: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Reserve(ctx context.Context, key string, at time.Time, window time.Duration, limit int) (Reservation, error) {
	member, err := ids.NewULID(at)
	if err != nil {
		return Reservation{}, fmt.Errorf("attempt id: %w", err)
	}

	res, err := reserveScript.Run(ctx, s.client, []string{s.key(key)},
		cutoff(at, window),
		strconv.FormatInt(at.UnixMicro(), 10),
		member,
		window.Milliseconds(),
		limit,
	).Slice()
	if err != nil {
		return Reservation{}, fmt.Errorf("redis reserve attempt: %w", err)
	}
	if len(res) != 3 {
		return Reservation{}, fmt.Errorf("redis reserve attempt: unexpected reply length %d", len(res))
	}
	n, ok1 := res[0].(int64)
	admitted, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return Reservation{}, fmt.Errorf("redis reserve attempt: unexpected reply %v", res)
	}

	out := Reservation{Admitted: admitted == 1, Count: int(n)}
	if raw, _ := res[2].(string); raw != "" {
		if out.Oldest, err = parseScore(raw); err != nil {
			return Reservation{}, fmt.Errorf("redis reserve attempt: %w", err)
		}
	}
	if out.Admitted {
		out.Member = member
	}
	return out, nil
}

func (s *RedisStore) Release(ctx context.Context, key, member string) error {
	if err := s.client.ZRem(ctx, s.key(key), member).Err(); err != nil {
		return fmt.Errorf("redis release attempt: %w", err)
	}
	return nil
}

func parseScore(raw string) (time.Time, error) {
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse score: %w", err)
	}
	return time.UnixMicro(int64(score)), nil
}

func (s *RedisStore) Count(ctx context.Context, key string, at time.Time, window time.Duration) (int, time.Time, error) {
	res, err := countScript.Run(ctx, s.client, []string{s.key(key)}, cutoff(at, window)).Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis count attempts: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("redis count attempts: unexpected reply length %d", len(res))
	}

	n, ok := res[0].(int64)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("redis count attempts: unexpected count %T", res[0])
	}
	if n == 0 {
		return 0, time.Time{}, nil
	}

	raw, _ := res[1].(string)
	oldest, err := parseScore(raw)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis count attempts: %w", err)
	}
	return int(n), oldest, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis reset attempts: %w", err)
	}
	return nil
}
