package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/kursadbilgin/promocheck/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultBatchLockTTL = 2 * time.Minute

// BatchLocker makes sure only one run per batch is active at a time.
type BatchLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewBatchLocker(client *goredis.Client, ttl time.Duration, logger *zap.Logger) (*BatchLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultBatchLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchLocker{
		client: redislock.New(client),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Acquire takes the batch lock and keeps it alive until the returned release
// func is called. A batch that is already locked yields domain.ErrConflict.
func (l *BatchLocker) Acquire(ctx context.Context, batchID string) (func(context.Context) error, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	lock, err := l.client.Obtain(ctx, batchLockKey(batchID), l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: batch %s is already being validated", domain.ErrConflict, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain batch lock: %w", err)
	}

	held := &heldLock{
		lock: lock,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go held.keepAlive(l.ttl, l.logger.With(zap.String("batchId", batchID)))

	return held.release, nil
}

type heldLock struct {
	lock *redislock.Lock
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (h *heldLock) keepAlive(ttl time.Duration, logger *zap.Logger) {
	defer close(h.done)

	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			err := h.lock.Refresh(context.Background(), ttl, nil)
			if err == nil {
				continue
			}
			logger.Warn("failed to refresh batch lock", zap.Error(err))
			if errors.Is(err, redislock.ErrNotObtained) {
				return
			}
		}
	}
}

func (h *heldLock) release(ctx context.Context) error {
	h.once.Do(func() { close(h.stop) })
	<-h.done

	err := h.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

func batchLockKey(batchID string) string {
	return "lock:batch:" + batchID
}
