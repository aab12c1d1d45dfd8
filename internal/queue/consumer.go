package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ReceivedEvent is an event as read back from the queue. The payload is
// left undecoded since its shape depends on Type.
type ReceivedEvent struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	SessionID  string          `json:"session_id,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EventHandler processes a received event. Returning an error nacks the
// message; it is requeued once.
type EventHandler func(ctx context.Context, event ReceivedEvent) error

// ErrMalformedEvent is reported for messages that are not valid events.
var ErrMalformedEvent = errors.New("malformed event")

// Consumer consumes events from the event queue
type Consumer struct {
	conn       *Connection
	handler    EventHandler
	workers    int
	prefetch   int
	timeout    time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers        int           // Number of concurrent workers
	Prefetch       int           // Prefetch count per worker
	HandlerTimeout time.Duration // Upper bound for a single handler call
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:        1,
		Prefetch:       10,
		HandlerTimeout: 30 * time.Second,
	}
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = def.HandlerTimeout
	}
	return cfg
}

// NewConsumer creates a new event consumer
func NewConsumer(conn *Connection, handler EventHandler, cfg ConsumerConfig) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		conn:     conn,
		handler:  handler,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.HandlerTimeout,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		EventQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("starting event consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// decodeEvent parses a message body into an event.
func decodeEvent(body []byte) (ReceivedEvent, error) {
	var ev ReceivedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ReceivedEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Type == "" || ev.ID == uuid.Nil {
		return ReceivedEvent{}, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	return ev, nil
}

func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	ev, err := decodeEvent(msg.Body)
	if err != nil {
		slog.Error("dropping event", "worker_id", workerID, "error", err)
		_ = msg.Reject(false)
		return
	}

	hctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.handler(hctx, ev); err != nil {
		requeue := !msg.Redelivered
		slog.Error("event handler failed",
			"worker_id", workerID,
			"event_id", ev.ID,
			"type", ev.Type,
			"requeue", requeue,
			"error", err,
		)
		_ = msg.Nack(false, requeue)
		return
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("failed to ack message",
			"worker_id", workerID,
			"event_id", ev.ID,
			"error", err,
		)
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}
