package answer

import (
	"context"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/session"
)

// Ledger persists answers together with their rating update.
type Ledger interface {
	// Commit applies req and inserts ans in one atomic step, stamping the
	// effective deltas and resulting ratings onto ans. A stale version yields
	// domain.ErrConflict; an existing answer id yields domain.ErrDuplicateAnswer.
	Commit(ctx context.Context, req rating.ApplyRequest, ans *domain.Answer) (rating.Applied, error)

	// GetAnswer returns domain.ErrAnswerNotFound for unknown ids.
	GetAnswer(ctx context.Context, id string) (*domain.Answer, error)

	ListBySession(ctx context.Context, sessionID string) ([]*domain.Answer, error)
}

// ItemSource looks up catalog items.
type ItemSource interface {
	GetItem(ctx context.Context, id string) (*domain.Item, error)
}

// SessionAcceptor serializes answers per session.
type SessionAcceptor interface {
	Accept(ctx context.Context, sessionID, userID string, fn session.AcceptFunc) error
}

// SeenRecorder remembers which items a user has answered recently.
type SeenRecorder interface {
	Record(ctx context.Context, userID, itemID string) error
}
