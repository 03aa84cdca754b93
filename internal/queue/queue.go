package queue

import (
	"context"
	"fmt"
)

// Publisher publishes batch validation jobs to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg ValidationMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg ValidationMessage) error

// Consumer consumes batch validation jobs from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// BatchValidationQueue is the work queue for asynchronous batch runs.
	BatchValidationQueue = "batch_validation"
	dlxExchangeName      = "promocheck.dlx"
)

var workQueues = []string{BatchValidationQueue}

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.batch_validation.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// WorkQueueNames returns all work queues.
func WorkQueueNames() []string {
	return append([]string(nil), workQueues...)
}

// DLQNames returns all dead-letter queues.
func DLQNames() []string {
	queues := make([]string, 0, len(workQueues))
	for _, queue := range workQueues {
		queues = append(queues, DLQName(queue))
	}
	return queues
}
