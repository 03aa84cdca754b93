package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/promocheck/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultProbesPerSec int64 = 1
	probeWindow               = time.Second
	minWaitPause              = 10 * time.Millisecond
)

// admitScript counts one probe in the window keyed by KEYS[1] and reports
// whether the count is still within ARGV[1]. The key expires after ARGV[2] ms.
var admitScript = goredis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if count > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter caps probes per second to one target host across every
// API and worker process sharing the Redis instance. Windows are aligned to
// wall-clock seconds, so a rejected caller waits until the next boundary.
type RedisRateLimiter struct {
	client *goredis.Client
	limit  int64
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, probesPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(probesPerSec), time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limit int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		limit = defaultProbesPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client: client,
		limit:  limit,
		now:    nowFn,
		sleep:  sleepFn,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, target string) (ratelimit.Decision, error) {
	if r == nil || r.client == nil {
		return ratelimit.Decision{}, fmt.Errorf("rate limiter is not initialized")
	}

	host := strings.ToLower(strings.TrimSpace(target))
	if host == "" {
		return ratelimit.Decision{}, fmt.Errorf("target is required")
	}

	now := r.now().UTC()
	windowStart := now.Truncate(probeWindow)

	admitted, err := admitScript.Run(
		ctx,
		r.client,
		[]string{probeWindowKey(host, windowStart)},
		r.limit,
		probeWindow.Milliseconds(),
	).Int()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("failed to evaluate probe rate limit: %w", err)
	}

	if admitted == 1 {
		return ratelimit.Decision{Allowed: true}, nil
	}

	return ratelimit.Decision{RetryAfter: windowStart.Add(probeWindow).Sub(now)}, nil
}

// Wait blocks until a probe to target is admitted or ctx ends.
func (r *RedisRateLimiter) Wait(ctx context.Context, target string) error {
	for {
		decision, err := r.Allow(ctx, target)
		if err != nil {
			return err
		}
		if decision.Allowed {
			return nil
		}

		pause := decision.RetryAfter
		if pause < minWaitPause {
			pause = minWaitPause
		}
		if err := r.sleep(ctx, pause); err != nil {
			return err
		}
	}
}

func probeWindowKey(host string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:probe:%s:%d", host, windowStart.Unix())
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
