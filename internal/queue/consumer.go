package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrDeadLetter marks a handler failure that must not be retried.
// Messages failing with it are rejected to the dead-letter queue.
var ErrDeadLetter = errors.New("dead letter")

// settlement is how a delivery is finished after handling.
type settlement int

const (
	settleAck settlement = iota
	settleRequeue
	settleDeadLetter
)

func (s settlement) String() string {
	switch s {
	case settleAck:
		return "ack"
	case settleRequeue:
		return "requeue"
	case settleDeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// settlementFor decides the fate of a handled delivery. A failed delivery
// is requeued once; a second failure goes to the DLQ.
func settlementFor(handlerErr error, redelivered bool) settlement {
	switch {
	case handlerErr == nil:
		return settleAck
	case errors.Is(handlerErr, ErrDeadLetter), redelivered:
		return settleDeadLetter
	default:
		return settleRequeue
	}
}

type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Consume blocks until ctx ends, resubscribing with backoff whenever the
// channel or connection drops.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	delay := minRedialDelay
	for {
		err := c.subscribe(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			delay = minRedialDelay
			continue
		}

		c.logger.Warn("consumer subscription lost",
			zap.Error(err),
			zap.String("queue", queue),
			zap.Duration("retryIn", delay),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay = nextRedialDelay(delay)
	}
}

func (c *RabbitMQConsumer) subscribe(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.openChannel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	msg, err := decodeMessage(d.Body)
	if err != nil {
		c.logger.Warn("rejecting undecodable message",
			zap.Error(err),
			zap.String("routingKey", d.RoutingKey),
			zap.String("messageId", d.MessageId),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject invalid message: %w", rejectErr)
		}
		return nil
	}

	handlerErr := handler(ctx, msg)
	outcome := settlementFor(handlerErr, d.Redelivered)

	fields := []zap.Field{
		zap.String("batchId", msg.BatchID),
		zap.String("settlement", outcome.String()),
		zap.Bool("redelivered", d.Redelivered),
	}

	switch outcome {
	case settleAck:
		err = d.Ack(false)
	case settleRequeue:
		c.logger.Warn("requeueing message after handler failure", append(fields, zap.Error(handlerErr))...)
		err = d.Nack(false, true)
	case settleDeadLetter:
		c.logger.Error("dead-lettering message", append(fields, zap.Error(handlerErr))...)
		err = d.Reject(false)
	}
	if err != nil {
		return fmt.Errorf("failed to %s delivery: %w", outcome, err)
	}

	return nil
}

func decodeMessage(body []byte) (ValidationMessage, error) {
	var msg ValidationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return ValidationMessage{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return ValidationMessage{}, err
	}
	return msg, nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
