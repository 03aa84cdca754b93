package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/kursadbilgin/promocheck/internal/domain"
	"github.com/kursadbilgin/promocheck/internal/observability"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ProgressFunc receives the 1-based position of the code about to be validated.
type ProgressFunc func(current, total int)

// CodeValidator resolves one code to a verdict.
type CodeValidator interface {
	Validate(ctx context.Context, code string, maxAttempts int) Result
}

// StatusUpdater persists a code's verdict.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, codeID string, status domain.CodeStatus, message string, at time.Time) error
}

// CodeResult is the outcome for one code of a batch run.
type CodeResult struct {
	CodeID      string
	Code        string
	Verdict     domain.Verdict
	Attempts    int
	ValidatedAt time.Time
	PersistErr  error
}

// BatchReport lists processed codes in input order.
type BatchReport struct {
	Results []CodeResult
	Summary domain.Summary
}

type BatchConfig struct {
	InterCodeDelay DelayRange
	MaxAttempts    int
}

// BatchDriver validates codes one after another with a randomized pause
// between them.
type BatchDriver struct {
	validator      CodeValidator
	store          StatusUpdater
	interCodeDelay DelayRange
	maxAttempts    int
	logger         *zap.Logger
	metrics        *observability.Metrics
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error
	randInt63n     func(n int64) int64
}

// NewBatchDriver builds a driver. A nil store skips persistence.
func NewBatchDriver(validator CodeValidator, store StatusUpdater, cfg BatchConfig, logger *zap.Logger) (*BatchDriver, error) {
	if validator == nil {
		return nil, fmt.Errorf("code validator is required")
	}
	if cfg.InterCodeDelay == (DelayRange{}) {
		cfg.InterCodeDelay = DefaultInterCodeDelay
	}
	if err := cfg.InterCodeDelay.Validate(); err != nil {
		return nil, fmt.Errorf("invalid inter-code delay: %w", err)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchDriver{
		validator:      validator,
		store:          store,
		interCodeDelay: cfg.InterCodeDelay,
		maxAttempts:    cfg.MaxAttempts,
		logger:         logger,
		now:            time.Now,
		sleep:          sleepWithContext,
		randInt63n:     rand.Int63n,
	}, nil
}

func (d *BatchDriver) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// WithoutPersistence returns a copy of the driver that does not write verdicts.
func (d *BatchDriver) WithoutPersistence() *BatchDriver {
	clone := *d
	clone.store = nil
	return &clone
}

// Run validates codes in order. Persistence failures do not stop the run;
// they are returned together with the full report. On cancellation the
// report holds only the codes that finished and the error is ctx.Err().
func (d *BatchDriver) Run(ctx context.Context, codes []domain.CodeRecord, onProgress ProgressFunc) (*BatchReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	d.metrics.IncBatchInFlight()
	defer d.metrics.DecBatchInFlight()

	logger := observability.WithContextLogger(d.logger, ctx)
	report := &BatchReport{Results: make([]CodeResult, 0, len(codes))}
	total := len(codes)
	var errs error

	for i, code := range codes {
		if err := ctx.Err(); err != nil {
			return report, multierr.Append(errs, err)
		}

		if i > 0 {
			if err := d.sleep(ctx, d.interCodeDelay.pick(d.randInt63n)); err != nil {
				return report, multierr.Append(errs, err)
			}
		}

		if onProgress != nil {
			onProgress(i+1, total)
		}

		res := d.validator.Validate(ctx, code.Code, d.maxAttempts)
		if res.Canceled {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			logger.Info("batch run canceled", zap.Int("processed", len(report.Results)), zap.Int("total", total))
			return report, multierr.Append(errs, err)
		}

		result := CodeResult{
			CodeID:      code.ID,
			Code:        code.Code,
			Verdict:     res.Verdict,
			Attempts:    res.Attempts,
			ValidatedAt: d.now().UTC(),
		}

		if d.store != nil {
			// A finished verdict is stored even if the run is canceled meanwhile.
			persistCtx := context.WithoutCancel(ctx)
			if err := d.store.UpdateStatus(persistCtx, code.ID, res.Verdict.Status, res.Verdict.Message, result.ValidatedAt); err != nil {
				result.PersistErr = err
				errs = multierr.Append(errs, fmt.Errorf("failed to persist code %s: %w", code.ID, err))
				d.metrics.IncPersistFailure()
				logger.Error("failed to persist verdict",
					zap.String("codeId", code.ID),
					zap.String("status", res.Verdict.Status.String()),
					zap.Error(err),
				)
			}
		}

		report.Results = append(report.Results, result)
		report.Summary.Add(res.Verdict.Status)
		d.metrics.IncVerdict(res.Verdict.Status.String())

		logger.Info("code validated",
			zap.String("codeId", code.ID),
			zap.Int("position", i+1),
			zap.Int("total", total),
			zap.String("status", res.Verdict.Status.String()),
			zap.Int("attempts", res.Attempts),
		)
	}

	return report, errs
}
