package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/promocheck/internal/queue"
)

func TestRecheckSchedulerEnqueuesPendingBatches(t *testing.T) {
	t.Parallel()

	codes := &fakeCodeRepo{
		listBatchesWithPendingFn: func(ctx context.Context, limit int) ([]string, error) {
			if limit != 10 {
				t.Fatalf("limit = %d, want 10", limit)
			}
			return []string{"b1", "b2", "b3"}, nil
		},
	}

	var published []string
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.ValidationMessage) error {
			if queueName != queue.BatchValidationQueue {
				t.Fatalf("queue = %s, want %s", queueName, queue.BatchValidationQueue)
			}
			if msg.BatchID == "b2" {
				return errors.New("broker unavailable")
			}
			published = append(published, msg.BatchID)
			return nil
		},
	}

	scheduler, err := NewRecheckScheduler(codes, publisher, time.Minute, 10, nil)
	if err != nil {
		t.Fatalf("NewRecheckScheduler() error = %v", err)
	}

	if err := scheduler.scanPending(context.Background()); err != nil {
		t.Fatalf("scanPending() error = %v", err)
	}
	if len(published) != 2 || published[0] != "b1" || published[1] != "b3" {
		t.Fatalf("published = %v, want [b1 b3]", published)
	}
}

func TestRecheckSchedulerScanFailure(t *testing.T) {
	t.Parallel()

	codes := &fakeCodeRepo{
		listBatchesWithPendingFn: func(ctx context.Context, limit int) ([]string, error) {
			return nil, errors.New("db down")
		},
	}

	scheduler, err := NewRecheckScheduler(codes, &fakePublisher{}, time.Minute, 0, nil)
	if err != nil {
		t.Fatalf("NewRecheckScheduler() error = %v", err)
	}
	if scheduler.limit != defaultRecheckLimit {
		t.Fatalf("limit = %d, want %d", scheduler.limit, defaultRecheckLimit)
	}

	if err := scheduler.scanPending(context.Background()); err == nil {
		t.Fatal("expected scan error")
	}
}

func TestRecheckSchedulerStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	scans := make(chan struct{}, 8)
	codes := &fakeCodeRepo{
		listBatchesWithPendingFn: func(ctx context.Context, limit int) ([]string, error) {
			select {
			case scans <- struct{}{}:
			default:
			}
			return nil, nil
		},
	}

	scheduler, err := NewRecheckScheduler(codes, &fakePublisher{}, 10*time.Millisecond, 5, nil)
	if err != nil {
		t.Fatalf("NewRecheckScheduler() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()

	select {
	case <-scans:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not scan")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestNewRecheckSchedulerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRecheckScheduler(nil, &fakePublisher{}, time.Minute, 1, nil); err == nil {
		t.Fatal("expected error for nil lister")
	}
	if _, err := NewRecheckScheduler(&fakeCodeRepo{}, nil, time.Minute, 1, nil); err == nil {
		t.Fatal("expected error for nil publisher")
	}
	if _, err := NewRecheckScheduler(&fakeCodeRepo{}, &fakePublisher{}, 0, 1, nil); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
