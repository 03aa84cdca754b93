package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/promocheck/internal/domain"
	"github.com/kursadbilgin/promocheck/internal/engine"
	"github.com/kursadbilgin/promocheck/internal/queue"
	"github.com/kursadbilgin/promocheck/internal/repository"
)

type fakeCodeRepo struct {
	createBatchFn            func(ctx context.Context, codes []*domain.CodeRecord) error
	getByIDFn                func(ctx context.Context, id string) (*domain.CodeRecord, error)
	listByBatchFn            func(ctx context.Context, batchID string) ([]domain.CodeRecord, error)
	fetchPendingFn           func(ctx context.Context, batchID string) ([]domain.CodeRecord, error)
	updateStatusFn           func(ctx context.Context, id string, status domain.CodeStatus, message string, at time.Time) error
	countByStatusFn          func(ctx context.Context, batchID string) ([]repository.StatusCount, error)
	listBatchesWithPendingFn func(ctx context.Context, limit int) ([]string, error)
}

func (f *fakeCodeRepo) CreateBatch(ctx context.Context, codes []*domain.CodeRecord) error {
	if f.createBatchFn != nil {
		return f.createBatchFn(ctx, codes)
	}
	return nil
}

func (f *fakeCodeRepo) GetByID(ctx context.Context, id string) (*domain.CodeRecord, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCodeRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.CodeRecord, error) {
	if f.listByBatchFn != nil {
		return f.listByBatchFn(ctx, batchID)
	}
	return nil, nil
}

func (f *fakeCodeRepo) FetchPending(ctx context.Context, batchID string) ([]domain.CodeRecord, error) {
	if f.fetchPendingFn != nil {
		return f.fetchPendingFn(ctx, batchID)
	}
	return nil, nil
}

func (f *fakeCodeRepo) UpdateStatus(ctx context.Context, id string, status domain.CodeStatus, message string, at time.Time) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, id, status, message, at)
	}
	return nil
}

func (f *fakeCodeRepo) CountByStatus(ctx context.Context, batchID string) ([]repository.StatusCount, error) {
	if f.countByStatusFn != nil {
		return f.countByStatusFn(ctx, batchID)
	}
	return nil, nil
}

func (f *fakeCodeRepo) ListBatchesWithPending(ctx context.Context, limit int) ([]string, error) {
	if f.listBatchesWithPendingFn != nil {
		return f.listBatchesWithPendingFn(ctx, limit)
	}
	return nil, nil
}

type fakeBatchRepo struct {
	createFn  func(ctx context.Context, b *domain.Batch) error
	getByIDFn func(ctx context.Context, id string) (*domain.Batch, error)
}

func (f *fakeBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	if f.createFn != nil {
		return f.createFn(ctx, b)
	}
	return nil
}

func (f *fakeBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return &domain.Batch{ID: id, Name: "batch"}, nil
}

type fakeRunner struct {
	runFn func(ctx context.Context, codes []domain.CodeRecord, onProgress engine.ProgressFunc) (*engine.BatchReport, error)
}

func (f *fakeRunner) Run(ctx context.Context, codes []domain.CodeRecord, onProgress engine.ProgressFunc) (*engine.BatchReport, error) {
	if f.runFn != nil {
		return f.runFn(ctx, codes, onProgress)
	}
	return reportFor(codes, domain.CodeStatusValid), nil
}

// reportFor resolves every code to status and reports progress like the driver.
func reportFor(codes []domain.CodeRecord, status domain.CodeStatus) *engine.BatchReport {
	report := &engine.BatchReport{}
	for _, c := range codes {
		report.Results = append(report.Results, engine.CodeResult{
			CodeID:   c.ID,
			Code:     c.Code,
			Verdict:  domain.Verdict{Status: status, Message: "ok"},
			Attempts: 1,
		})
		report.Summary.Add(status)
	}
	return report
}

type fakeLocker struct {
	mu        sync.Mutex
	acquireFn func(ctx context.Context, batchID string) error
	acquired  []string
	released  []string
}

func (f *fakeLocker) Acquire(ctx context.Context, batchID string) (func(context.Context) error, error) {
	if f.acquireFn != nil {
		if err := f.acquireFn(ctx, batchID); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	f.acquired = append(f.acquired, batchID)
	f.mu.Unlock()

	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.released = append(f.released, batchID)
		return nil
	}, nil
}

type fakeProgressStore struct {
	mu     sync.Mutex
	saved  []domain.BatchProgress
	saveFn func(ctx context.Context, progress domain.BatchProgress) error
	getFn  func(ctx context.Context, batchID string) (*domain.BatchProgress, error)
}

func (f *fakeProgressStore) Save(ctx context.Context, progress domain.BatchProgress) error {
	f.mu.Lock()
	f.saved = append(f.saved, progress)
	f.mu.Unlock()

	if f.saveFn != nil {
		return f.saveFn(ctx, progress)
	}
	return nil
}

func (f *fakeProgressStore) Get(ctx context.Context, batchID string) (*domain.BatchProgress, error) {
	if f.getFn != nil {
		return f.getFn(ctx, batchID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeProgressStore) states() []domain.ProgressState {
	f.mu.Lock()
	defer f.mu.Unlock()

	states := make([]domain.ProgressState, 0, len(f.saved))
	for _, p := range f.saved {
		states = append(states, p.State)
	}
	return states
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.ValidationMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.ValidationMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error {
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error {
	return nil
}

type fakeQueuedRunner struct {
	runFn func(ctx context.Context, msg queue.ValidationMessage) error
}

func (f *fakeQueuedRunner) RunQueuedValidation(ctx context.Context, msg queue.ValidationMessage) error {
	if f.runFn != nil {
		return f.runFn(ctx, msg)
	}
	return nil
}

type serviceDeps struct {
	codes     *fakeCodeRepo
	batches   *fakeBatchRepo
	runner    *fakeRunner
	adHoc     *fakeRunner
	locker    *fakeLocker
	progress  *fakeProgressStore
	publisher *fakePublisher
}

func newServiceDeps() *serviceDeps {
	return &serviceDeps{
		codes:     &fakeCodeRepo{},
		batches:   &fakeBatchRepo{},
		runner:    &fakeRunner{},
		adHoc:     &fakeRunner{},
		locker:    &fakeLocker{},
		progress:  &fakeProgressStore{},
		publisher: &fakePublisher{},
	}
}
