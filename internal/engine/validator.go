package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/kursadbilgin/promocheck/internal/classifier"
	"github.com/kursadbilgin/promocheck/internal/domain"
	"github.com/kursadbilgin/promocheck/internal/observability"
	"github.com/kursadbilgin/promocheck/internal/probe"
	"github.com/kursadbilgin/promocheck/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3

	MessageCanceled = "Validation canceled - Manual check needed"
)

// RequestBuilder builds a fresh probe request for a code.
type RequestBuilder interface {
	Build(code string) (probe.RequestSpec, error)
}

// Classifier maps a probe outcome to a verdict.
type Classifier interface {
	Classify(outcome probe.Outcome) classifier.Classification
}

// Result is the final verdict for one code and how it was reached.
type Result struct {
	Verdict   domain.Verdict
	Attempts  int
	Reason    classifier.Reason
	Exhausted bool
	Canceled  bool
}

type ValidatorConfig struct {
	// Target identifies the probed site for rate limiting.
	Target      string
	Timeout     time.Duration
	MaxAttempts int
}

// Validator runs the attempt loop for a single code. It never returns an
// error: every path ends in a verdict.
type Validator struct {
	builder     RequestBuilder
	executor    probe.Executor
	classifier  Classifier
	limiter     ratelimit.RateLimiter
	target      string
	timeout     time.Duration
	maxAttempts int

	genericDelay     DelayRange
	rateLimitedDelay DelayRange
	transportDelay   DelayRange

	logger     *zap.Logger
	metrics    *observability.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
	randInt63n func(n int64) int64
}

func NewValidator(
	builder RequestBuilder,
	executor probe.Executor,
	cls Classifier,
	limiter ratelimit.RateLimiter,
	cfg ValidatorConfig,
	logger *zap.Logger,
) (*Validator, error) {
	if builder == nil {
		return nil, fmt.Errorf("request builder is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("probe executor is required")
	}
	if cls == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = probe.DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Validator{
		builder:          builder,
		executor:         executor,
		classifier:       cls,
		limiter:          limiter,
		target:           cfg.Target,
		timeout:          cfg.Timeout,
		maxAttempts:      cfg.MaxAttempts,
		genericDelay:     GenericRetryDelay,
		rateLimitedDelay: RateLimitedRetryDelay,
		transportDelay:   TransportRetryDelay,
		logger:           logger,
		sleep:            sleepWithContext,
		randInt63n:       rand.Int63n,
	}, nil
}

func (v *Validator) SetMetrics(metrics *observability.Metrics) {
	if v == nil {
		return
	}
	v.metrics = metrics
}

// Validate probes code until a terminal verdict or until maxAttempts is spent.
// A non-positive maxAttempts uses the configured default.
func (v *Validator) Validate(ctx context.Context, code string, maxAttempts int) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxAttempts <= 0 {
		maxAttempts = v.maxAttempts
	}

	logger := observability.WithContextLogger(v.logger, ctx).With(zap.String("code", code))

	var last classifier.Classification
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return canceledResult(attempt - 1)
		}

		req, err := v.builder.Build(code)
		if err != nil {
			logger.Warn("code cannot be probed", zap.Error(err))
			return Result{
				Verdict: domain.Verdict{
					Status:  domain.CodeStatusPending,
					Message: "Code could not be probed - Manual check needed",
				},
				Attempts: attempt - 1,
			}
		}

		if v.limiter != nil && v.target != "" {
			if err := v.limiter.Wait(ctx, v.target); err != nil {
				if ctx.Err() != nil {
					return canceledResult(attempt - 1)
				}
				logger.Warn("probe rate limiter unavailable, continuing without it", zap.Error(err))
			}
		}

		outcome := v.executor.Execute(ctx, req, v.timeout)
		if outcome.IsTransportError() && ctx.Err() != nil {
			return canceledResult(attempt)
		}

		last = v.classifier.Classify(outcome)
		v.metrics.ObserveProbe(last.Reason.String(), outcome.Elapsed)

		logger.Info("probe attempt classified",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxAttempts),
			zap.String("status", last.Status.String()),
			zap.String("reason", last.Reason.String()),
			zap.Int("httpStatus", outcome.HTTPStatus),
			zap.Duration("elapsed", outcome.Elapsed),
			zap.String("title", outcome.Title),
		)

		if last.Terminal {
			return Result{Verdict: last.Verdict, Attempts: attempt, Reason: last.Reason}
		}
		if attempt == maxAttempts {
			break
		}

		delay := v.retryDelay(last.Reason)
		v.metrics.IncRetryScheduled(last.Reason.String())
		logger.Debug("retrying probe", zap.Duration("delay", delay), zap.Int("nextAttempt", attempt+1))

		if err := v.sleep(ctx, delay); err != nil {
			return canceledResult(attempt)
		}
	}

	return Result{
		Verdict: domain.Verdict{
			Status:  domain.CodeStatusPending,
			Message: fmt.Sprintf("%s after %d attempts - Manual check needed", last.Cause, maxAttempts),
		},
		Attempts:  maxAttempts,
		Reason:    last.Reason,
		Exhausted: true,
	}
}

func (v *Validator) retryDelay(reason classifier.Reason) time.Duration {
	switch reason {
	case classifier.ReasonRateLimited:
		return v.rateLimitedDelay.pick(v.randInt63n)
	case classifier.ReasonTransport, classifier.ReasonTimeout:
		return v.transportDelay.pick(v.randInt63n)
	default:
		return v.genericDelay.pick(v.randInt63n)
	}
}

func canceledResult(attempts int) Result {
	return Result{
		Verdict:  domain.Verdict{Status: domain.CodeStatusPending, Message: MessageCanceled},
		Attempts: attempts,
		Canceled: true,
	}
}
