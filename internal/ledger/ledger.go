// Package ledger bounds how many attempts a single merchant may drive
// through the engine in a rolling window. It is generalized from a
// conventional API-gateway rate limiter: the same sliding-window
// algorithm, but keyed on merchant_id and consulted once per
// transaction rather than once per HTTP request.
//
// Two implementations are provided: an in-process sliding window (the
// default) and a Redis-backed one for coordinating the limit across
// multiple engine processes. Redis unavailability fails open — a
// merchant is never blocked because the coordination layer is down.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrThrottled is returned when a merchant has exceeded its attempt
// budget for the current window.
type ErrThrottled struct {
	RetryAfter time.Duration
}

func (e *ErrThrottled) Error() string {
	return fmt.Sprintf("attempt ledger: merchant throttled; retry after %s", e.RetryAfter)
}

// Ledger decides whether a merchant may make another attempt right now.
type Ledger interface {
	Allow(ctx context.Context, merchantID string) error
}

// NewLocal builds an in-process sliding-window ledger.
func NewLocal(maxPerWindow int, window time.Duration) Ledger {
	return &localLedger{
		max:     maxPerWindow,
		window:  window,
		buckets: make(map[string]*bucket),
	}
}

// NewRedis builds a Redis-backed ledger using the same
// sorted-set-sliding-window technique as a distributed rate limiter.
func NewRedis(redisURL string, maxPerWindow int, window time.Duration) (Ledger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return &redisLedger{
		client: client,
		script: redis.NewScript(slidingWindowLua),
		max:    maxPerWindow,
		window: window,
	}, nil
}

// ---------------------------------------------------------------------------
// In-process sliding window
// ---------------------------------------------------------------------------

type bucket struct {
	mu         sync.Mutex
	timestamps []time.Time
}

type localLedger struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	max     int
	window  time.Duration
}

func (l *localLedger) Allow(_ context.Context, merchantID string) error {
	b := l.getOrCreate(merchantID)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	i := 0
	for i < len(b.timestamps) && b.timestamps[i].Before(cutoff) {
		i++
	}
	b.timestamps = b.timestamps[i:]

	if len(b.timestamps) >= l.max {
		oldest := b.timestamps[0]
		return &ErrThrottled{RetryAfter: oldest.Add(l.window).Sub(now)}
	}
	b.timestamps = append(b.timestamps, now)
	return nil
}

func (l *localLedger) getOrCreate(key string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; ok {
		return b
	}
	b = &bucket{}
	l.buckets[key] = b
	return b
}

// ---------------------------------------------------------------------------
// Redis-backed sliding window
// ---------------------------------------------------------------------------

const slidingWindowLua = `
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])
local cutoff = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', cutoff)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {0, oldest[2]}
end
redis.call('ZADD', key, now, now)
redis.call('EXPIRE', key, math.ceil(window/1000))
return {1, 0}
`

type redisLedger struct {
	client *redis.Client
	script *redis.Script
	max    int
	window time.Duration
}

func (r *redisLedger) Allow(ctx context.Context, merchantID string) error {
	key := "ledger:" + merchantID
	nowMs := time.Now().UnixMilli()
	windowMs := r.window.Milliseconds()

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	res, err := r.script.Run(ctx, r.client, []string{key}, nowMs, windowMs, r.max).Int64Slice()
	if err != nil {
		// Redis unavailable — fail open.
		return nil
	}

	if res[0] == 0 {
		oldestMs := res[1]
		return &ErrThrottled{RetryAfter: time.Duration(oldestMs+windowMs-nowMs) * time.Millisecond}
	}
	return nil
}
