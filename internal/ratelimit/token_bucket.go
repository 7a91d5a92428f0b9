// Package ratelimit meters image uploads per caller. A batch is charged one
// token per file, so a single large batch drains the bucket as fast as many
// small ones.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "pixelbatch:ratelimit"

// chargeScript refills the bucket for the time elapsed since the last charge
// and then takes ARGV[4] file tokens if that many are available. It returns
// {charged, tokens left, milliseconds until the charge would fit}.
var chargeScript = redis.NewScript(`
local bucket = KEYS[1]
local capacity = tonumber(ARGV[1])
local per_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local files = tonumber(ARGV[4])
local expire_ms = tonumber(ARGV[5])

local state = redis.call("HMGET", bucket, "level", "updated_ms")
local level = tonumber(state[1]) or capacity
local updated_ms = tonumber(state[2]) or now_ms

level = math.min(capacity, level + math.max(0, now_ms - updated_ms) * per_ms)

local charged = 0
local wait_ms = 0
if level >= files then
  level = level - files
  charged = 1
else
  wait_ms = math.ceil((files - level) / per_ms)
end

redis.call("HSET", bucket, "level", level, "updated_ms", now_ms)
redis.call("PEXPIRE", bucket, expire_ms)

return {charged, math.floor(level), wait_ms}
`)

// Decision is the limiter verdict for one upload.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RedisTokenBucket holds up to capacity file tokens per subject and refills
// the full capacity once per window.
type RedisTokenBucket struct {
	client    redis.UniversalClient
	capacity  int64
	perMS     float64
	window    time.Duration
	keyPrefix string
	now       func() time.Time
}

func NewRedisTokenBucket(client redis.UniversalClient, capacity int, window time.Duration, keyPrefix string) (*RedisTokenBucket, error) {
	switch {
	case client == nil:
		return nil, fmt.Errorf("redis client is required")
	case capacity <= 0:
		return nil, fmt.Errorf("capacity must be positive")
	case window <= 0:
		return nil, fmt.Errorf("window must be positive")
	}

	keyPrefix = strings.TrimSpace(keyPrefix)
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &RedisTokenBucket{
		client:    client,
		capacity:  int64(capacity),
		perMS:     float64(capacity) / float64(max(window.Milliseconds(), 1)),
		window:    window,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}, nil
}

// AllowN charges files tokens to subject. A batch larger than the whole
// bucket can never fit and is refused without a round trip.
func (l *RedisTokenBucket) AllowN(ctx context.Context, subject string, files int) (Decision, error) {
	files = max(files, 1)
	if int64(files) > l.capacity {
		return Decision{Allowed: false, RetryAfter: l.window}, nil
	}

	raw, err := chargeScript.Run(ctx, l.client,
		[]string{l.bucketKey(subject)},
		l.capacity,
		l.perMS,
		l.now().UTC().UnixMilli(),
		files,
		(2 * l.window).Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("charge upload bucket: %w", err)
	}

	values, ok := raw.([]any)
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("unexpected bucket reply %T", raw)
	}
	var parsed [3]int64
	for i, v := range values {
		if parsed[i], err = toInt64(v); err != nil {
			return Decision{}, fmt.Errorf("parse bucket reply[%d]: %w", i, err)
		}
	}

	return Decision{
		Allowed:    parsed[0] == 1,
		Remaining:  parsed[1],
		RetryAfter: time.Duration(parsed[2]) * time.Millisecond,
	}, nil
}

func (l *RedisTokenBucket) bucketKey(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return l.keyPrefix + ":" + subject
}

func toInt64(in any) (int64, error) {
	switch v := in.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", in)
	}
}
