package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"

	"github.com/felixgeelhaar/lingo/internal/domain"
)

// jsonPublisher is the part of Connection the producer needs.
type jsonPublisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// ProducerConfig tunes the circuit breaker guarding publishes.
type ProducerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// PublishTimeout bounds a single publish.
	PublishTimeout time.Duration
	Logger         *slog.Logger
}

// DefaultProducerConfig returns sensible defaults
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		PublishTimeout:   2 * time.Second,
	}
}

// Producer publishes domain events to the event queue. It implements
// domain.EventPublisher.
type Producer struct {
	conn    jsonPublisher
	breaker circuitbreaker.CircuitBreaker[struct{}]
	timeout time.Duration
	logger  *slog.Logger
}

// NewProducer creates a new event producer
func NewProducer(conn *Connection, cfg ProducerConfig) *Producer {
	return newProducer(conn, cfg)
}

func newProducer(conn jsonPublisher, cfg ProducerConfig) *Producer {
	def := DefaultProducerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	threshold := cfg.FailureThreshold
	return &Producer{
		conn:    conn,
		timeout: cfg.PublishTimeout,
		logger:  logger,
		breaker: circuitbreaker.New[struct{}](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return int(counts.ConsecutiveFailures) >= threshold
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("event publisher circuit breaker state change",
					"queue", EventQueueName,
					"from", from.String(),
					"to", to.String())
			},
		}),
	}
}

// Publish sends an event to the event queue
func (p *Producer) Publish(ctx context.Context, event domain.Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	_, err := p.breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return struct{}{}, p.conn.PublishJSON(ctx, EventQueueName, event)
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	p.logger.Debug("published event",
		"event_id", event.ID,
		"type", event.Type,
		"session_id", event.SessionID,
	)
	return nil
}

var _ domain.EventPublisher = (*Producer)(nil)
