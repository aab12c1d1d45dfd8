package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type ackRecord struct {
	acked    int
	nacked   int
	rejected int
	requeue  bool
}

func (a *ackRecord) Ack(uint64, bool) error { a.acked++; return nil }

func (a *ackRecord) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *ackRecord) Reject(_ uint64, requeue bool) error {
	a.rejected++
	a.requeue = requeue
	return nil
}

const validEvent = `{"id":"7f1c8a52-3a55-4c7e-9a8e-2b8f7b0c1d11","type":"session.completed","occurred_at":"2026-03-01T09:00:00Z","session_id":"s1","user_id":"u1","payload":{"correct":3}}`

func delivery(ack *ackRecord, body string, redelivered bool) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Redelivered:  redelivered,
		Body:         []byte(body),
	}
}

func TestConsumerConfig_Defaults(t *testing.T) {
	cfg := ConsumerConfig{}.withDefaults()
	if cfg.Workers != 1 {
		t.Errorf("Workers = %d; want 1", cfg.Workers)
	}
	if cfg.Prefetch != 10 {
		t.Errorf("Prefetch = %d; want 10", cfg.Prefetch)
	}
	if cfg.HandlerTimeout != 30*time.Second {
		t.Errorf("HandlerTimeout = %v; want 30s", cfg.HandlerTimeout)
	}

	custom := ConsumerConfig{Workers: 4, Prefetch: 2, HandlerTimeout: time.Second}.withDefaults()
	if custom.Workers != 4 || custom.Prefetch != 2 || custom.HandlerTimeout != time.Second {
		t.Errorf("withDefaults() overrode custom values: %+v", custom)
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: validEvent},
		{name: "not json", body: "hello", wantErr: true},
		{name: "missing type", body: `{"id":"7f1c8a52-3a55-4c7e-9a8e-2b8f7b0c1d11"}`, wantErr: true},
		{name: "missing id", body: `{"type":"session.started"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := decodeEvent([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedEvent) {
					t.Errorf("decodeEvent() error = %v; want ErrMalformedEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeEvent() error = %v", err)
			}
			if ev.Type != "session.completed" || ev.SessionID != "s1" {
				t.Errorf("decodeEvent() = %+v", ev)
			}
			if string(ev.Payload) != `{"correct":3}` {
				t.Errorf("Payload = %s", ev.Payload)
			}
		})
	}
}

func TestProcessMessage(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		redelivered bool
		handlerErr  error
		wantAck     int
		wantNack    int
		wantReject  int
		wantRequeue bool
		wantCalls   int
	}{
		{name: "handled", body: validEvent, wantAck: 1, wantCalls: 1},
		{name: "malformed rejected", body: "{", wantReject: 1},
		{name: "handler error requeued", body: validEvent, handlerErr: errors.New("x"), wantNack: 1, wantRequeue: true, wantCalls: 1},
		{name: "redelivered failure dropped", body: validEvent, redelivered: true, handlerErr: errors.New("x"), wantNack: 1, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			c := &Consumer{
				timeout: time.Second,
				handler: func(ctx context.Context, ev ReceivedEvent) error {
					calls++
					if _, ok := ctx.Deadline(); !ok {
						t.Error("handler context has no deadline")
					}
					return tt.handlerErr
				},
			}
			ack := &ackRecord{}
			c.processMessage(context.Background(), 0, delivery(ack, tt.body, tt.redelivered))

			if calls != tt.wantCalls {
				t.Errorf("handler calls = %d; want %d", calls, tt.wantCalls)
			}
			if ack.acked != tt.wantAck || ack.nacked != tt.wantNack || ack.rejected != tt.wantReject {
				t.Errorf("ack/nack/reject = %d/%d/%d; want %d/%d/%d",
					ack.acked, ack.nacked, ack.rejected, tt.wantAck, tt.wantNack, tt.wantReject)
			}
			if ack.requeue != tt.wantRequeue {
				t.Errorf("requeue = %v; want %v", ack.requeue, tt.wantRequeue)
			}
		})
	}
}

func TestStop_WithoutStart(t *testing.T) {
	c := &Consumer{}
	c.Stop()
}
