package keylock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocker_SerializesSameKey(t *testing.T) {
	l := New()
	ctx := context.Background()

	var mu sync.Mutex
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "k")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d; want 1", maxActive)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d; want 0 after release", l.Len())
	}
}

func TestLocker_IndependentKeys(t *testing.T) {
	l := New()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("Lock(a) error = %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock(b) error = %v; want independent key to be free", err)
	}
	unlockB()
}

func TestLocker_ContextCancel(t *testing.T) {
	l := New()
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Lock() error = %v; want DeadlineExceeded", err)
	}

	unlock()
	unlock()
	if l.Len() != 0 {
		t.Errorf("Len() = %d; want 0", l.Len())
	}
}
