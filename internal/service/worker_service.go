package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/promocheck/internal/domain"
	"github.com/kursadbilgin/promocheck/internal/observability"
	"github.com/kursadbilgin/promocheck/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// QueuedValidationRunner runs one queued batch validation job.
type QueuedValidationRunner interface {
	RunQueuedValidation(ctx context.Context, msg queue.ValidationMessage) error
}

type WorkerService struct {
	consumer    queue.Consumer
	runner      QueuedValidationRunner
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewWorkerService(
	consumer queue.Consumer,
	runner QueuedValidationRunner,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("validation runner is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		consumer:    consumer,
		runner:      runner,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the batch validation queue with concurrency consumers until
// context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.BatchValidationQueue),
			)

			err := s.consumer.Consume(groupCtx, queue.BatchValidationQueue, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.ValidationMessage) error {
	logger := s.logger.With(
		zap.String("batchId", msg.BatchID),
		zap.String("correlationId", msg.CorrelationID),
	)

	start := s.now()
	err := s.runner.RunQueuedValidation(ctx, msg)
	elapsed := s.now().Sub(start)

	switch {
	case err == nil:
		s.metrics.IncJobProcessed("completed")
		logger.Info("batch job completed", zap.Duration("elapsed", elapsed))
		return nil
	case errors.Is(err, domain.ErrNotFound):
		s.metrics.IncJobProcessed("skipped")
		logger.Warn("batch not found, dropping job")
		return nil
	case errors.Is(err, domain.ErrConflict):
		s.metrics.IncJobProcessed("skipped")
		logger.Info("batch already running elsewhere, dropping job")
		return nil
	case errors.Is(err, domain.ErrValidation):
		s.metrics.IncJobProcessed("rejected")
		return fmt.Errorf("%w: %v", queue.ErrDeadLetter, err)
	case ctx.Err() != nil:
		s.metrics.IncJobProcessed("interrupted")
		return fmt.Errorf("batch job interrupted: %w", err)
	default:
		s.metrics.IncJobProcessed("failed")
		logger.Error("batch job failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return err
	}
}
