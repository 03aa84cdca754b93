package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	minRedialDelay = time.Second
	maxRedialDelay = 30 * time.Second
	heartbeat      = 10 * time.Second
	connectionName = "promocheck"
)

var errConnectionClosed = errors.New("rabbitmq connection closed")

// RabbitMQ owns the AMQP connection shared by publishers and consumers.
// A dropped connection is redialed lazily on the next channel request.
type RabbitMQ struct {
	url    string
	logger *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewRabbitMQ(ctx context.Context, url string, logger *zap.Logger) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &RabbitMQ{url: url, logger: logger}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if _, err := r.connection(dialCtx); err != nil {
		return nil, err
	}

	return r, nil
}

// Ping reports whether the connection is currently open.
func (r *RabbitMQ) Ping(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() {
		return errConnectionClosed
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// openChannel returns a channel with the work and dead-letter topology declared.
func (r *RabbitMQ) openChannel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		r.logger.Warn("rabbitmq channel open failed, redialing", zap.Error(err))
		r.discard(conn)

		if conn, err = r.connection(ctx); err != nil {
			return nil, err
		}
		if ch, err = conn.Channel(); err != nil {
			return nil, fmt.Errorf("failed to open rabbitmq channel after redial: %w", err)
		}
	}

	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return ch, nil
}

// connection returns the live connection, dialing with exponential backoff
// until it succeeds or ctx ends.
func (r *RabbitMQ) connection(ctx context.Context) (*amqp.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn, nil
	}

	delay := minRedialDelay
	for attempt := 1; ; attempt++ {
		conn, err := amqp.DialConfig(r.url, amqp.Config{
			Heartbeat: heartbeat,
			Locale:    "en_US",
			Properties: amqp.Table{
				"connection_name": connectionName,
			},
		})
		if err == nil {
			r.conn = conn
			if attempt > 1 {
				r.logger.Info("rabbitmq connection restored", zap.Int("attempts", attempt))
			}
			return conn, nil
		}

		r.logger.Warn("rabbitmq dial failed",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("retryIn", delay),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq dial canceled: %w", ctx.Err())
		case <-time.After(delay):
		}

		delay = nextRedialDelay(delay)
	}
}

func (r *RabbitMQ) discard(conn *amqp.Connection) {
	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
	}
	r.mu.Unlock()

	if !conn.IsClosed() {
		_ = conn.Close()
	}
}

func nextRedialDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > maxRedialDelay {
		return maxRedialDelay
	}
	return next
}

// queueTopology is a durable work queue whose rejected messages are routed
// through the dead-letter exchange into its DLQ.
type queueTopology struct {
	queue      string
	deadLetter string
}

func topologyFor(queue string) queueTopology {
	return queueTopology{queue: queue, deadLetter: DLQName(queue)}
}

func (t queueTopology) arguments() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    dlxExchangeName,
		"x-dead-letter-routing-key": t.queue,
	}
}

func (t queueTopology) declare(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(t.deadLetter, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlq %q: %w", t.deadLetter, err)
	}
	if err := ch.QueueBind(t.deadLetter, t.queue, dlxExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind dlq %q: %w", t.deadLetter, err)
	}
	if _, err := ch.QueueDeclare(t.queue, true, false, false, false, t.arguments()); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", t.queue, err)
	}
	return nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	for _, queue := range workQueues {
		if err := topologyFor(queue).declare(ch); err != nil {
			return err
		}
	}

	return nil
}
