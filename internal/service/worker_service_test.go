package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kursadbilgin/promocheck/internal/domain"
	"github.com/kursadbilgin/promocheck/internal/observability"
	"github.com/kursadbilgin/promocheck/internal/queue"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWorkerServiceProcessMessageOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		runErr         error
		wantErr        bool
		wantDeadLetter bool
		wantLog        string
	}{
		{name: "completed", wantLog: "batch job completed"},
		{name: "batch not found is acked", runErr: domain.ErrNotFound, wantLog: "batch not found, dropping job"},
		{name: "batch locked is acked", runErr: domain.ErrConflict, wantLog: "batch already running elsewhere, dropping job"},
		{name: "invalid job is dead-lettered", runErr: domain.ErrValidation, wantErr: true, wantDeadLetter: true},
		{name: "unexpected failure is retried", runErr: errors.New("db down"), wantErr: true, wantLog: "batch job failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			runner := &fakeQueuedRunner{
				runFn: func(ctx context.Context, msg queue.ValidationMessage) error {
					if msg.BatchID != "b1" {
						t.Fatalf("batch id = %s, want b1", msg.BatchID)
					}
					return tt.runErr
				},
			}

			core, logs := observer.New(zap.InfoLevel)
			worker, err := NewWorkerService(&fakeConsumer{}, runner, 1, zap.New(core))
			if err != nil {
				t.Fatalf("NewWorkerService() error = %v", err)
			}
			worker.SetMetrics(observability.NewMetrics())

			err = worker.processMessage(context.Background(), queue.ValidationMessage{BatchID: "b1"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("processMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := errors.Is(err, queue.ErrDeadLetter); got != tt.wantDeadLetter {
				t.Fatalf("dead letter = %v, want %v (err=%v)", got, tt.wantDeadLetter, err)
			}
			if tt.wantLog != "" && logs.FilterMessage(tt.wantLog).Len() != 1 {
				t.Fatalf("expected one %q log entry, got %v", tt.wantLog, logs.All())
			}
		})
	}
}

func TestWorkerServiceProcessMessageInterrupted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeQueuedRunner{
		runFn: func(ctx context.Context, msg queue.ValidationMessage) error {
			cancel()
			return ctx.Err()
		},
	}

	worker, err := NewWorkerService(&fakeConsumer{}, runner, 1, nil)
	if err != nil {
		t.Fatalf("NewWorkerService() error = %v", err)
	}

	err = worker.processMessage(ctx, queue.ValidationMessage{BatchID: "b1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("processMessage() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, queue.ErrDeadLetter) {
		t.Fatal("interrupted job must be requeued, not dead-lettered")
	}
}

func TestWorkerServiceStartRunsConfiguredConsumers(t *testing.T) {
	t.Parallel()

	var started atomic.Int32
	var mu sync.Mutex
	queues := map[string]int{}

	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
			mu.Lock()
			queues[queueName]++
			mu.Unlock()
			started.Add(1)
			<-ctx.Done()
			return nil
		},
	}

	worker, err := NewWorkerService(consumer, &fakeQueuedRunner{}, 3, nil)
	if err != nil {
		t.Fatalf("NewWorkerService() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for started.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("started consumers = %d, want 3", started.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if queues[queue.BatchValidationQueue] != 3 {
		t.Fatalf("consumers per queue = %v, want 3 on %s", queues, queue.BatchValidationQueue)
	}
}

func TestWorkerServiceStartPropagatesConsumerError(t *testing.T) {
	t.Parallel()

	consumerErr := errors.New("consume failed")
	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
			return consumerErr
		},
	}

	worker, err := NewWorkerService(consumer, &fakeQueuedRunner{}, 2, nil)
	if err != nil {
		t.Fatalf("NewWorkerService() error = %v", err)
	}

	if err := worker.Start(context.Background()); !errors.Is(err, consumerErr) {
		t.Fatalf("Start() error = %v, want %v", err, consumerErr)
	}
}

func TestNewWorkerServiceValidatesDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewWorkerService(nil, &fakeQueuedRunner{}, 1, nil); err == nil {
		t.Fatal("expected error for nil consumer")
	}
	if _, err := NewWorkerService(&fakeConsumer{}, nil, 1, nil); err == nil {
		t.Fatal("expected error for nil runner")
	}

	worker, err := NewWorkerService(&fakeConsumer{}, &fakeQueuedRunner{}, 0, nil)
	if err != nil {
		t.Fatalf("NewWorkerService() error = %v", err)
	}
	if worker.concurrency != minWorkerConcurrency {
		t.Fatalf("concurrency = %d, want %d", worker.concurrency, minWorkerConcurrency)
	}
}
