package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var errPublishNacked = errors.New("broker did not confirm publish")

// RabbitMQPublisher publishes persistent JSON messages and waits for the
// broker confirm before returning.
type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg ValidationMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	publishing, err := newPublishing(queue, msg, p.now())
	if err != nil {
		return err
	}

	ch, err := p.client.openChannel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, publishing)
	if err != nil {
		return fmt.Errorf("failed to publish message to queue %q: %w", queue, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for publish confirm on %q: %w", queue, err)
	}
	if !acked {
		return fmt.Errorf("queue %q: %w", queue, errPublishNacked)
	}

	return nil
}

func newPublishing(queue string, msg ValidationMessage, at time.Time) (amqp.Publishing, error) {
	if queue == "" {
		return amqp.Publishing{}, fmt.Errorf("queue name is required")
	}
	if err := msg.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid validation message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal validation message: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     at.UTC(),
		MessageId:     msg.BatchID,
		CorrelationId: msg.CorrelationID,
		Type:          queue,
		Body:          payload,
	}, nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
