package engine

import (
	"context"
	"fmt"
	"time"
)

// DelayRange is a closed interval a randomized delay is drawn from.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

var (
	GenericRetryDelay     = DelayRange{Min: 5 * time.Second, Max: 12 * time.Second}
	RateLimitedRetryDelay = DelayRange{Min: 10 * time.Second, Max: 20 * time.Second}
	TransportRetryDelay   = DelayRange{Min: 8 * time.Second, Max: 15 * time.Second}
	DefaultInterCodeDelay = DelayRange{Min: 4 * time.Second, Max: 10 * time.Second}
)

func (r DelayRange) Validate() error {
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("delay range must not be negative: [%s, %s]", r.Min, r.Max)
	}
	if r.Max < r.Min {
		return fmt.Errorf("delay range max %s is below min %s", r.Max, r.Min)
	}
	return nil
}

// pick draws uniformly from [Min, Max] using randInt63n.
func (r DelayRange) pick(randInt63n func(n int64) int64) time.Duration {
	span := int64(r.Max - r.Min)
	if span <= 0 || randInt63n == nil {
		return r.Min
	}
	return r.Min + time.Duration(randInt63n(span+1))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
