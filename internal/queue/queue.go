package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventQueueName is the durable queue domain events are published to.
const EventQueueName = "lingo.events"

// DefaultMessageTTL bounds how long an unconsumed event stays queued.
const DefaultMessageTTL = 24 * time.Hour

// Connection manages the RabbitMQ connection with automatic reconnection
type Connection struct {
	url        string
	ttl        time.Duration
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
}

// NewConnection dials RabbitMQ and declares the event queue.
func NewConnection(url string) (*Connection, error) {
	return NewConnectionWithTTL(url, DefaultMessageTTL)
}

// NewConnectionWithTTL is NewConnection with an explicit message TTL.
func NewConnectionWithTTL(url string, ttl time.Duration) (*Connection, error) {
	if ttl <= 0 {
		ttl = DefaultMessageTTL
	}
	c := &Connection{
		url: url,
		ttl: ttl,
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

// connect establishes connection and channel
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	c.conn, err = amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := c.declareQueues(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return err
	}

	go c.handleReconnect()

	slog.Info("connected to RabbitMQ", "url", sanitizeURL(c.url))
	return nil
}

func (c *Connection) declareQueues() error {
	_, err := c.channel.QueueDeclare(
		EventQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		queueArgs(c.ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to declare event queue: %w", err)
	}
	return nil
}

func queueArgs(ttl time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl": int32(ttl / time.Millisecond),
	}
}

// handleReconnect listens for connection close and attempts to reconnect
func (c *Connection) handleReconnect() {
	c.mu.RLock()
	notifyClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	c.mu.RUnlock()

	err := <-notifyClose
	if err == nil {
		return // normal close
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	slog.Warn("RabbitMQ connection closed, attempting to reconnect",
		"error", err,
		"reconnects", c.reconnects,
	)

	for i := 0; i < 10; i++ {
		c.reconnects++
		time.Sleep(reconnectBackoff(i))

		if err := c.connect(); err != nil {
			slog.Error("reconnection failed", "error", err, "attempt", i+1)
			continue
		}

		slog.Info("reconnected to RabbitMQ", "attempts", i+1)
		return
	}

	slog.Error("failed to reconnect to RabbitMQ after 10 attempts")
}

func reconnectBackoff(attempt int) time.Duration {
	backoff := time.Duration(1<<attempt) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

// Channel returns the current channel (thread-safe)
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected checks if the connection is active
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishJSON publishes a JSON message to a queue
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	return ch.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

// sanitizeURL hides the password of an AMQP URL for logging
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "amqp://[invalid]"
	}
	return u.Redacted()
}
