package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/promocheck/internal/domain"
	"github.com/kursadbilgin/promocheck/internal/engine"
	"github.com/kursadbilgin/promocheck/internal/observability"
	"github.com/kursadbilgin/promocheck/internal/queue"
	"github.com/kursadbilgin/promocheck/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultMaxCodesPerRequest = 100
	maxBatchSize              = 1000
)

// BatchRunner validates an ordered list of codes.
type BatchRunner interface {
	Run(ctx context.Context, codes []domain.CodeRecord, onProgress engine.ProgressFunc) (*engine.BatchReport, error)
}

// BatchLocker grants exclusive runs per batch. The returned func releases
// the lock.
type BatchLocker interface {
	Acquire(ctx context.Context, batchID string) (func(context.Context) error, error)
}

// ProgressStore keeps the latest progress of asynchronous runs.
type ProgressStore interface {
	Save(ctx context.Context, progress domain.BatchProgress) error
	Get(ctx context.Context, batchID string) (*domain.BatchProgress, error)
}

type ValidationServiceConfig struct {
	// Runner persists verdicts; AdHocRunner does not.
	Runner             BatchRunner
	AdHocRunner        BatchRunner
	MaxCodesPerRequest int
}

type ValidationService struct {
	codes              repository.CodeRepository
	batches            repository.BatchRepository
	runner             BatchRunner
	adHocRunner        BatchRunner
	locker             BatchLocker
	progress           ProgressStore
	publisher          queue.Publisher
	maxCodesPerRequest int
	logger             *zap.Logger
	now                func() time.Time
}

// BatchSummary is a batch with its per-status code counts.
type BatchSummary struct {
	Batch   domain.Batch
	Summary domain.Summary
}

func NewValidationService(
	codes repository.CodeRepository,
	batches repository.BatchRepository,
	locker BatchLocker,
	progress ProgressStore,
	publisher queue.Publisher,
	cfg ValidationServiceConfig,
	logger *zap.Logger,
) (*ValidationService, error) {
	if codes == nil {
		return nil, fmt.Errorf("code repository is required")
	}
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("batch runner is required")
	}
	if cfg.AdHocRunner == nil {
		return nil, fmt.Errorf("ad hoc batch runner is required")
	}
	if locker == nil {
		return nil, fmt.Errorf("batch locker is required")
	}
	if cfg.MaxCodesPerRequest <= 0 {
		cfg.MaxCodesPerRequest = defaultMaxCodesPerRequest
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ValidationService{
		codes:              codes,
		batches:            batches,
		runner:             cfg.Runner,
		adHocRunner:        cfg.AdHocRunner,
		locker:             locker,
		progress:           progress,
		publisher:          publisher,
		maxCodesPerRequest: cfg.MaxCodesPerRequest,
		logger:             logger,
		now:                time.Now,
	}, nil
}

// CreateBatch stores a named batch with its codes, all pending.
func (s *ValidationService) CreateBatch(ctx context.Context, name string, rawCodes []string) (*domain.Batch, []domain.CodeRecord, error) {
	codes := domain.NormalizeCodes(rawCodes)
	if len(codes) == 0 {
		return nil, nil, fmt.Errorf("%w: batch must include at least one code", domain.ErrValidation)
	}
	if len(codes) > maxBatchSize {
		return nil, nil, fmt.Errorf("%w: batch size exceeds %d", domain.ErrValidation, maxBatchSize)
	}

	now := s.now().UTC()
	batch := &domain.Batch{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
	}
	if err := batch.Validate(); err != nil {
		return nil, nil, err
	}

	records := make([]domain.CodeRecord, len(codes))
	ptrs := make([]*domain.CodeRecord, len(codes))
	for i, code := range codes {
		records[i] = domain.CodeRecord{
			ID:        uuid.NewString(),
			BatchID:   batch.ID,
			Code:      code,
			Status:    domain.CodeStatusPending,
			Timestamp: now,
		}
		if err := records[i].Validate(); err != nil {
			return nil, nil, err
		}
		ptrs[i] = &records[i]
	}

	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, nil, err
	}
	if err := s.codes.CreateBatch(ctx, ptrs); err != nil {
		return nil, nil, err
	}

	s.logger.Info("batch created",
		zap.String("batchId", batch.ID),
		zap.Int("codes", len(records)),
	)

	return batch, records, nil
}

// ValidateBatch validates every pending code of a batch, persisting each
// verdict. Only one run per batch may be active at a time.
func (s *ValidationService) ValidateBatch(ctx context.Context, batchID string, onProgress engine.ProgressFunc) (*engine.BatchReport, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, batchID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release batch lock",
				zap.String("batchId", batchID),
				zap.Error(err),
			)
		}
	}()

	pending, err := s.codes.FetchPending(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending codes: %w", err)
	}

	logger := observability.WithContextLogger(s.logger, ctx)
	logger.Info("batch validation started",
		zap.String("batchId", batchID),
		zap.Int("pending", len(pending)),
	)

	report, err := s.runner.Run(ctx, pending, onProgress)
	if err != nil {
		return report, fmt.Errorf("batch %s validation incomplete: %w", batchID, err)
	}

	logger.Info("batch validation finished",
		zap.String("batchId", batchID),
		zap.Int("valid", report.Summary.Valid),
		zap.Int("invalid", report.Summary.Invalid),
		zap.Int("pending", report.Summary.Pending),
	)

	return report, nil
}

// ValidateCodes validates an ad hoc list of codes without storing anything.
func (s *ValidationService) ValidateCodes(ctx context.Context, rawCodes []string) (*engine.BatchReport, error) {
	codes := domain.NormalizeCodes(rawCodes)
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: at least one code is required", domain.ErrValidation)
	}
	if len(codes) > s.maxCodesPerRequest {
		return nil, fmt.Errorf("%w: at most %d codes per request", domain.ErrValidation, s.maxCodesPerRequest)
	}

	records := make([]domain.CodeRecord, len(codes))
	for i, code := range codes {
		records[i] = domain.CodeRecord{Code: code, Status: domain.CodeStatusPending}
	}

	return s.adHocRunner.Run(ctx, records, nil)
}

// OverrideStatus sets a code's status by hand through the same update path
// the engine uses.
func (s *ValidationService) OverrideStatus(ctx context.Context, codeID string, rawStatus string, message string) (*domain.CodeRecord, error) {
	codeID = strings.TrimSpace(codeID)
	if codeID == "" {
		return nil, fmt.Errorf("%w: code id is required", domain.ErrValidation)
	}

	status, err := domain.ParseCodeStatusFromString(rawStatus)
	if err != nil {
		return nil, err
	}

	message = strings.TrimSpace(message)
	if message == "" {
		message = fmt.Sprintf("Manually verified as %s", status)
	}

	if err := s.codes.UpdateStatus(ctx, codeID, status, message, s.now().UTC()); err != nil {
		return nil, err
	}

	observability.WithContextLogger(s.logger, ctx).Info("code status overridden",
		zap.String("codeId", codeID),
		zap.String("status", status.String()),
	)

	return s.codes.GetByID(ctx, codeID)
}

func (s *ValidationService) GetBatchSummary(ctx context.Context, batchID string) (*BatchSummary, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	counts, err := s.codes.CountByStatus(ctx, batchID)
	if err != nil {
		return nil, err
	}

	byStatus := make(map[domain.CodeStatus]int, len(counts))
	for _, c := range counts {
		byStatus[c.Status] += c.Count
	}

	return &BatchSummary{
		Batch:   *batch,
		Summary: domain.SummaryFromCounts(byStatus),
	}, nil
}

// EnqueueBatchValidation schedules an asynchronous run of a batch.
func (s *ValidationService) EnqueueBatchValidation(ctx context.Context, batchID string) (*domain.BatchProgress, error) {
	if s.publisher == nil || s.progress == nil {
		return nil, fmt.Errorf("asynchronous validation is not configured")
	}

	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}
	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		return nil, err
	}

	ctx, correlationID := observability.EnsureCorrelationID(ctx)
	msg := queue.ValidationMessage{BatchID: batchID, CorrelationID: correlationID}
	if err := s.publisher.Publish(ctx, queue.BatchValidationQueue, msg); err != nil {
		return nil, fmt.Errorf("failed to enqueue batch validation: %w", err)
	}

	progress := domain.BatchProgress{
		BatchID:   batchID,
		State:     domain.ProgressQueued,
		UpdatedAt: s.now().UTC(),
	}
	s.saveProgress(ctx, progress)

	return &progress, nil
}

func (s *ValidationService) GetProgress(ctx context.Context, batchID string) (*domain.BatchProgress, error) {
	if s.progress == nil {
		return nil, fmt.Errorf("asynchronous validation is not configured")
	}

	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}
	return s.progress.Get(ctx, batchID)
}

// RunQueuedValidation runs a batch for a queued job and reports progress to
// the progress store.
func (s *ValidationService) RunQueuedValidation(ctx context.Context, msg queue.ValidationMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}

	onProgress := func(current, total int) {
		s.saveProgress(ctx, domain.BatchProgress{
			BatchID:   msg.BatchID,
			State:     domain.ProgressRunning,
			Current:   current,
			Total:     total,
			UpdatedAt: s.now().UTC(),
		})
	}

	report, err := s.ValidateBatch(ctx, msg.BatchID, onProgress)
	if err != nil {
		// Another run owns the progress entry.
		if errors.Is(err, domain.ErrConflict) {
			return err
		}

		failed := domain.BatchProgress{
			BatchID:   msg.BatchID,
			State:     domain.ProgressFailed,
			Error:     err.Error(),
			UpdatedAt: s.now().UTC(),
		}
		if report != nil {
			failed.Current = len(report.Results)
			failed.Summary = &report.Summary
		}
		s.saveProgress(context.WithoutCancel(ctx), failed)
		return err
	}

	total := len(report.Results)
	s.saveProgress(ctx, domain.BatchProgress{
		BatchID:   msg.BatchID,
		State:     domain.ProgressCompleted,
		Current:   total,
		Total:     total,
		Summary:   &report.Summary,
		UpdatedAt: s.now().UTC(),
	})

	return nil
}

func (s *ValidationService) saveProgress(ctx context.Context, progress domain.BatchProgress) {
	if s.progress == nil {
		return
	}
	if err := s.progress.Save(ctx, progress); err != nil {
		observability.WithContextLogger(s.logger, ctx).Warn("failed to save batch progress",
			zap.String("batchId", progress.BatchID),
			zap.String("state", string(progress.State)),
			zap.Error(err),
		)
	}
}
