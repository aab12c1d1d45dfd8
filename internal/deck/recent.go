package deck

import (
	"context"
	"slices"
	"sync"
)

// MemoryRecent keeps the last N answered item ids per user in process.
type MemoryRecent struct {
	mu     sync.Mutex
	window int
	byUser map[string][]string
}

// NewMemoryRecent creates a tracker remembering window items per user.
func NewMemoryRecent(window int) *MemoryRecent {
	if window <= 0 {
		window = 20
	}
	return &MemoryRecent{window: window, byUser: make(map[string][]string)}
}

// Record adds itemID as the most recent item for userID.
func (m *MemoryRecent) Record(_ context.Context, userID, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := slices.DeleteFunc(m.byUser[userID], func(id string) bool { return id == itemID })
	ids = append([]string{itemID}, ids...)
	if len(ids) > m.window {
		ids = ids[:m.window]
	}
	m.byUser[userID] = ids
	return nil
}

// Recent returns the remembered ids, most recent first.
func (m *MemoryRecent) Recent(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.byUser[userID]), nil
}
