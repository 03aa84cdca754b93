package engine

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/promocheck/internal/domain"
	"github.com/kursadbilgin/promocheck/internal/probe"
	"github.com/kursadbilgin/promocheck/internal/ratelimit"
)

type fakeBuilder struct {
	calls int
}

func (b *fakeBuilder) Build(code string) (probe.RequestSpec, error) {
	b.calls++
	return probe.RequestSpec{Code: code, URL: "https://target.example/?code=" + code}, nil
}

type fakeExecutor struct {
	executeFn func(ctx context.Context, req probe.RequestSpec, attempt int) probe.Outcome
	calls     int
}

func (e *fakeExecutor) Execute(ctx context.Context, req probe.RequestSpec, _ time.Duration) probe.Outcome {
	e.calls++
	return e.executeFn(ctx, req, e.calls)
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, target string) error
}

func (f *fakeRateLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: true}, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, target string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, target)
	}
	return nil
}

type statusUpdate struct {
	CodeID  string
	Status  domain.CodeStatus
	Message string
	At      time.Time
}

type fakeStatusUpdater struct {
	mu       sync.Mutex
	updates  []statusUpdate
	updateFn func(codeID string) error
}

func (f *fakeStatusUpdater) UpdateStatus(_ context.Context, codeID string, status domain.CodeStatus, message string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateFn != nil {
		if err := f.updateFn(codeID); err != nil {
			return err
		}
	}
	f.updates = append(f.updates, statusUpdate{CodeID: codeID, Status: status, Message: message, At: at})
	return nil
}

type fakeCodeValidator struct {
	validateFn func(ctx context.Context, code string, maxAttempts int) Result
}

func (f *fakeCodeValidator) Validate(ctx context.Context, code string, maxAttempts int) Result {
	return f.validateFn(ctx, code, maxAttempts)
}

func response(status int, body string) probe.Outcome {
	return probe.Outcome{Kind: probe.OutcomeResponse, HTTPStatus: status, Body: body}
}

func transportFailure() probe.Outcome {
	return probe.Outcome{Kind: probe.OutcomeTransportError, Reason: "connection refused"}
}

// recordSleep captures requested delays without waiting.
func recordSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}
