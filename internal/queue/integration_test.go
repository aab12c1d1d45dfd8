//go:build integration

package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/queue"
)

// setupRabbitMQ creates a RabbitMQ container for testing
func setupRabbitMQ(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("failed to get AMQP URL: %v", err)
	}
	return amqpURL
}

func TestIntegration_Connection_ConnectAndClose(t *testing.T) {
	amqpURL := setupRabbitMQ(t)

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	if !conn.IsConnected() {
		t.Error("expected connection to be active")
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	if _, err := queue.NewConnection("amqp://invalid:5672"); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestIntegration_PublishAndConsume(t *testing.T) {
	amqpURL := setupRabbitMQ(t)

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	defer conn.Close()

	var (
		mu       sync.Mutex
		received []queue.ReceivedEvent
		done     = make(chan struct{})
	)
	consumer := queue.NewConsumer(conn, func(_ context.Context, ev queue.ReceivedEvent) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev)
		if len(received) == 3 {
			close(done)
		}
		return nil
	}, queue.ConsumerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer consumer.Stop()

	producer := queue.NewProducer(conn, queue.DefaultProducerConfig())
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sent := []domain.Event{
		domain.NewEvent(domain.EventSessionStarted, "s1", "u1", at, nil),
		domain.NewEvent(domain.EventAnswerRecorded, "s1", "u1", at.Add(time.Second), map[string]any{"answer_id": "a1"}),
		domain.NewEvent(domain.EventSessionCompleted, "s1", "u1", at.Add(time.Minute), map[string]any{"correct": 1}),
	}
	for _, ev := range sent {
		if err := producer.Publish(ctx, ev); err != nil {
			t.Fatalf("Publish(%s) error = %v", ev.Type, err)
		}
	}

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for events")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, ev := range sent {
		if received[i].ID != ev.ID || received[i].Type != ev.Type {
			t.Errorf("received[%d] = %s %s; want %s %s", i, received[i].ID, received[i].Type, ev.ID, ev.Type)
		}
	}
}

func TestIntegration_HandlerErrorRedelivers(t *testing.T) {
	amqpURL := setupRabbitMQ(t)

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	defer conn.Close()

	var (
		mu       sync.Mutex
		attempts int
		done     = make(chan struct{})
	)
	consumer := queue.NewConsumer(conn, func(context.Context, queue.ReceivedEvent) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 2 {
			close(done)
			return nil
		}
		return context.DeadlineExceeded
	}, queue.ConsumerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer consumer.Stop()

	producer := queue.NewProducer(conn, queue.DefaultProducerConfig())
	if err := producer.Publish(ctx, domain.NewEvent(domain.EventSessionStarted, "s1", "u1", time.Now(), nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for redelivery")
	}
}
