package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FixedWindow is a distributed fixed-window rate limiter backed by Redis.
// Check and increment happen in a single Lua script, so concurrent callers
// sharing a key can never push the counter past max, and a counter can never
// exist without a bounded expiry.
type FixedWindow struct {
	client *redis.Client
	window time.Duration
	max    int
}

// Result reports the outcome of one admission check.
type Result struct {
	Allowed   bool
	Used      int
	Remaining int
	ResetAt   time.Time
}

// LimitError is returned to callers when a key is over quota. It carries what
// user-facing messaging needs: the limit and when the window resets.
type LimitError struct {
	Key     string
	Limit   int
	ResetAt time.Time
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit of %d exceeded for %s, resets at %s", e.Limit, e.Key, e.ResetAt.UTC().Format(time.RFC3339))
}

// NewFixedWindow constructs a limiter with the provided window and max count.
func NewFixedWindow(client *redis.Client, window time.Duration, max int) *FixedWindow {
	return &FixedWindow{
		client: client,
		window: window,
		max:    max,
	}
}

// Key builds the counter key for a feature and client identity pair.
func Key(feature, client string) string {
	return fmt.Sprintf("ratelimit:%s:%s", feature, client)
}

// Allow admits or rejects one request for key. A reachable store always
// returns a Result; a store error is returned as-is so the caller can apply
// its failure policy (this deployment fails closed).
func (l *FixedWindow) Allow(ctx context.Context, key string) (Result, error) {
	res, err := windowScript.Run(ctx, l.client, []string{key}, l.max, l.window.Milliseconds()).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check: %w", err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 3 {
		return Result{}, fmt.Errorf("unexpected rate limit script reply: %T", res)
	}

	allowed := toInt64(arr[0]) == 1
	used := int(toInt64(arr[1]))
	ttl := time.Duration(toInt64(arr[2])) * time.Millisecond

	remaining := l.max - used
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   allowed,
		Used:      used,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

// Limit returns the configured per-window maximum.
func (l *FixedWindow) Limit() int {
	return l.max
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	default:
		return 0
	}
}

// The PTTL<0 branch repairs counters from pre-script deployments that were
// created without an expiry; the script itself never produces one.
var windowScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local count = tonumber(redis.call('GET', key) or '0')
if count >= max then
  local ttl = redis.call('PTTL', key)
  if ttl < 0 then
    redis.call('PEXPIRE', key, window)
    ttl = window
  end
  return {0, count, ttl}
end

count = redis.call('INCR', key)
if count == 1 then
  redis.call('PEXPIRE', key, window)
end
local ttl = redis.call('PTTL', key)
if ttl < 0 then
  redis.call('PEXPIRE', key, window)
  ttl = window
end
return {1, count, ttl}
`)
