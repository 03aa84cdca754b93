package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/promocheck/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const defaultProgressTTL = 24 * time.Hour

// ProgressStore keeps the latest progress of each batch run.
type ProgressStore struct {
	client *goredis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewProgressStore(client *goredis.Client, ttl time.Duration) (*ProgressStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultProgressTTL
	}

	return &ProgressStore{client: client, ttl: ttl, now: time.Now}, nil
}

func (s *ProgressStore) Save(ctx context.Context, progress domain.BatchProgress) error {
	if progress.BatchID == "" {
		return fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}
	if progress.UpdatedAt.IsZero() {
		progress.UpdatedAt = s.now().UTC()
	}

	b, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	if err := s.client.Set(ctx, progressKey(progress.BatchID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

func (s *ProgressStore) Get(ctx context.Context, batchID string) (*domain.BatchProgress, error) {
	b, err := s.client.Get(ctx, progressKey(batchID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: no progress for batch %s", domain.ErrNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	var progress domain.BatchProgress
	if err := json.Unmarshal(b, &progress); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	return &progress, nil
}

func progressKey(batchID string) string {
	return "progress:batch:" + batchID
}
