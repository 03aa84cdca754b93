package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/promocheck/internal/queue"
	"go.uber.org/zap"
)

const defaultRecheckLimit = 100

// PendingBatchLister finds batches that still hold pending codes.
type PendingBatchLister interface {
	ListBatchesWithPending(ctx context.Context, limit int) ([]string, error)
}

// RecheckScheduler periodically enqueues batches whose codes are still
// pending, so codes left unresolved by earlier runs are tried again.
type RecheckScheduler struct {
	codes     PendingBatchLister
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	limit     int
}

func NewRecheckScheduler(
	codes PendingBatchLister,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RecheckScheduler, error) {
	if codes == nil {
		return nil, fmt.Errorf("code repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("recheck interval must be positive, got %s", interval)
	}
	if limit <= 0 {
		limit = defaultRecheckLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecheckScheduler{
		codes:     codes,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
	}, nil
}

func (s *RecheckScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanPending(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("recheck scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RecheckScheduler) scanPending(ctx context.Context) error {
	batchIDs, err := s.codes.ListBatchesWithPending(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to list batches with pending codes: %w", err)
	}

	enqueued := 0
	for _, batchID := range batchIDs {
		msg := queue.ValidationMessage{BatchID: batchID}
		if err := s.publisher.Publish(ctx, queue.BatchValidationQueue, msg); err != nil {
			s.logger.Error("failed to enqueue pending batch",
				zap.String("batchId", batchID),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		s.logger.Info("pending batches enqueued for recheck", zap.Int("count", enqueued))
	}
	return nil
}
