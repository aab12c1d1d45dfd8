// Package memory is an in-process backend implementing every store contract
// of the engine. It is used by tests, the MCP tool server and single-node
// deployments without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/keylock"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/session"
	"github.com/felixgeelhaar/lingo/internal/storage"
)

// Store keeps ratings, items, sessions and answers in maps. Rating updates
// are serialized by independent per-user-key and per-item locks; mu only
// guards map access for the duration of a read or write.
type Store struct {
	mu        sync.RWMutex
	users     map[string]domain.Rating
	items     map[string]*domain.Item
	sessions  map[string]*session.Session
	answers   map[string]*domain.Answer
	bySession map[string][]string

	userLocks *keylock.Locker
	itemLocks *keylock.Locker
	timeout   time.Duration
}

// New creates an empty store. timeout bounds lock acquisition.
func New(timeout time.Duration) *Store {
	return &Store{
		users:     make(map[string]domain.Rating),
		items:     make(map[string]*domain.Item),
		sessions:  make(map[string]*session.Session),
		answers:   make(map[string]*domain.Answer),
		bySession: make(map[string][]string),
		userLocks: keylock.New(),
		itemLocks: keylock.New(),
		timeout:   timeout,
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// -----------------------------------------------------------------------------
// Ratings
// -----------------------------------------------------------------------------

// GetUserRating returns the stored rating or the default.
func (s *Store) GetUserRating(ctx context.Context, key domain.SkillKey) (domain.Rating, error) {
	if err := ctx.Err(); err != nil {
		return domain.Rating{}, storage.Translate("get user rating", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.users[key.String()]; ok {
		return r, nil
	}
	return domain.NewRating(), nil
}

// GetItemRating returns the item's difficulty or the default.
func (s *Store) GetItemRating(ctx context.Context, itemID string) (domain.Rating, error) {
	if err := ctx.Err(); err != nil {
		return domain.Rating{}, storage.Translate("get item rating", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if it, ok := s.items[itemID]; ok {
		return it.Rating(), nil
	}
	return domain.NewRating(), nil
}

// ApplyDeltas updates both ratings if their versions are unchanged.
func (s *Store) ApplyDeltas(ctx context.Context, req rating.ApplyRequest) (rating.Applied, error) {
	return s.commit(ctx, req, nil)
}

// lockPair acquires the user lock, then the item lock.
func (s *Store) lockPair(ctx context.Context, req rating.ApplyRequest) (func(), error) {
	ctx, cancel := storage.Bound(ctx, s.timeout)
	defer cancel()

	unlockUser, err := s.userLocks.Lock(ctx, req.UserKey.String())
	if err != nil {
		return nil, storage.Translate("lock user rating", err)
	}
	unlockItem, err := s.itemLocks.Lock(ctx, req.ItemID)
	if err != nil {
		unlockUser()
		return nil, storage.Translate("lock item rating", err)
	}
	return func() {
		unlockItem()
		unlockUser()
	}, nil
}

// commit applies req and, when ans is non-nil, inserts the answer in the same
// critical section.
func (s *Store) commit(ctx context.Context, req rating.ApplyRequest, ans *domain.Answer) (rating.Applied, error) {
	unlock, err := s.lockPair(ctx, req)
	if err != nil {
		return rating.Applied{}, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[req.ItemID]
	if !ok {
		return rating.Applied{}, domain.ErrItemNotFound
	}
	if ans != nil {
		if _, dup := s.answers[ans.ID]; dup {
			return rating.Applied{}, domain.ErrDuplicateAnswer
		}
	}

	userKey := req.UserKey.String()
	user, ok := s.users[userKey]
	if !ok {
		user = domain.NewRating()
	}

	applied, err := rating.Resolve(req, user, item.Rating())
	if err != nil {
		return rating.Applied{}, err
	}

	s.users[userKey] = applied.User
	updated := *item
	updated.DifficultyElo = applied.Item.Value
	updated.Version = applied.Item.Version
	s.items[req.ItemID] = &updated

	if ans != nil {
		applied.Stamp(ans)
		stored := *ans
		s.answers[ans.ID] = &stored
		s.bySession[ans.SessionID] = append(s.bySession[ans.SessionID], ans.ID)
	}
	return applied, nil
}

// -----------------------------------------------------------------------------
// Answers
// -----------------------------------------------------------------------------

// Commit applies the rating update and inserts the answer atomically.
func (s *Store) Commit(ctx context.Context, req rating.ApplyRequest, ans *domain.Answer) (rating.Applied, error) {
	return s.commit(ctx, req, ans)
}

// GetAnswer returns a stored answer.
func (s *Store) GetAnswer(ctx context.Context, id string) (*domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[id]
	if !ok {
		return nil, domain.ErrAnswerNotFound
	}
	c := *a
	return &c, nil
}

// ListBySession returns answers in insertion order.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]*domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySession[sessionID]
	out := make([]*domain.Answer, 0, len(ids))
	for _, id := range ids {
		c := *s.answers[id]
		out = append(out, &c)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Sessions
// -----------------------------------------------------------------------------

// Create inserts a session.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return domain.ErrConflict
	}
	sess.Version = 1
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Get returns a copy of a session.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Update replaces a session if its version matches.
func (s *Store) Update(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[sess.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if cur.Version != sess.Version {
		return domain.ErrConflict
	}
	sess.Version++
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// ListExpired returns open sessions past their expiry, oldest first.
func (s *Store) ListExpired(ctx context.Context, now time.Time, limit int) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*session.Session
	for _, sess := range s.sessions {
		if !sess.Completed() && sess.Expired(now) {
			out = append(out, sess.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Catalog
// -----------------------------------------------------------------------------

// PutItem inserts or replaces an item. Replacing keeps the current
// difficulty version so in-flight updates conflict correctly.
func (s *Store) PutItem(ctx context.Context, item domain.Item) error {
	if item.ID == "" {
		return domain.InvalidConfig("id", "required")
	}
	if item.DifficultyElo == 0 {
		item.DifficultyElo = domain.DefaultRating
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.items[item.ID]; ok {
		item.Version = cur.Version + 1
	}
	s.items[item.ID] = &item
	return nil
}

// GetItem returns a catalog item.
func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	c := *it
	return &c, nil
}

// ListActive returns active items matching the filter, ordered by id.
func (s *Store) ListActive(ctx context.Context, f domain.ItemFilter) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Item
	for _, it := range s.items {
		if it.Matches(f) {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
