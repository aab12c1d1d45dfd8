package session

import (
	"context"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
)

// Store defines the persistence interface for sessions.
// The memory, SQLite and Postgres backends implement this.
type Store interface {
	// Create inserts a new session.
	Create(ctx context.Context, s *Session) error

	// Get returns domain.ErrSessionNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Session, error)

	// Update writes s if its Version still matches the stored row and bumps
	// the version; a stale version yields domain.ErrConflict.
	Update(ctx context.Context, s *Session) error

	// ListExpired returns non-completed sessions whose ExpiresAt is before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Session, error)
}

// AnswerLister returns the answers recorded for a session in acceptance order.
type AnswerLister interface {
	ListBySession(ctx context.Context, sessionID string) ([]*domain.Answer, error)
}
