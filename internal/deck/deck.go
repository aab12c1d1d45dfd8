// Package deck selects practice items whose difficulty matches the learner's
// current rating.
package deck

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/lingo/internal/domain"
)

// Catalog lists active items.
type Catalog interface {
	ListActive(ctx context.Context, f domain.ItemFilter) ([]domain.Item, error)
}

// RatingReader reads a learner's current rating.
type RatingReader interface {
	GetUserRating(ctx context.Context, key domain.SkillKey) (domain.Rating, error)
}

// RecentTracker remembers items a user has recently answered.
type RecentTracker interface {
	Record(ctx context.Context, userID, itemID string) error
	Recent(ctx context.Context, userID string) ([]string, error)
}

// Config holds deck builder settings.
type Config struct {
	DefaultSize   int
	MaxSize       int
	MaxConcurrent int
	// Rand drives tie shuffling. A seeded source makes builds reproducible.
	Rand   *rand.Rand
	Recent RecentTracker
	Logger *slog.Logger
}

// DefaultConfig returns the deck defaults.
func DefaultConfig() Config {
	return Config{
		DefaultSize:   10,
		MaxSize:       50,
		MaxConcurrent: 32,
	}
}

// Request asks for one deck.
type Request struct {
	UserID     string
	Lang       string
	Level      string
	Exam       string
	Skill      string
	Tag        string
	Size       int
	ExcludeIDs []string
}

// Validate checks required fields.
func (r Request) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"user_id", r.UserID},
		{"lang", r.Lang},
		{"level", r.Level},
		{"exam", r.Exam},
		{"skill", r.Skill},
	} {
		if strings.TrimSpace(f.value) == "" {
			return domain.InvalidConfig(f.name, "required")
		}
	}
	if r.Size < 0 {
		return domain.InvalidConfig("size", "must not be negative")
	}
	return nil
}

// Deck is the selected item list.
type Deck struct {
	UserRating float64       `json:"user_rating"`
	Items      []domain.Item `json:"items"`
}

// Builder builds decks. It is safe for concurrent use.
type Builder struct {
	catalog  Catalog
	ratings  RatingReader
	recent   RecentTracker
	cfg      Config
	bulkhead bulkhead.Bulkhead[*Deck]
	logger   *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewBuilder creates a deck builder.
func NewBuilder(catalog Catalog, ratings RatingReader, cfg Config) *Builder {
	def := DefaultConfig()
	if cfg.DefaultSize <= 0 {
		cfg.DefaultSize = def.DefaultSize
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{
		catalog: catalog,
		ratings: ratings,
		recent:  cfg.Recent,
		cfg:     cfg,
		logger:  logger,
		rnd:     rnd,
		bulkhead: bulkhead.New[*Deck](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxConcurrent * 2,
			QueueTimeout:  time.Second,
		}),
	}
}

// Build selects up to req.Size active items closest to the learner's rating.
// Fewer items are returned when the pool is smaller; an empty pool yields an
// empty deck.
func (b *Builder) Build(ctx context.Context, req Request) (*Deck, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	deck, err := b.bulkhead.Execute(ctx, func(ctx context.Context) (*Deck, error) {
		return b.build(ctx, req)
	})
	if err != nil {
		if isDomainError(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("build deck: %w", domain.ErrTimeout)
		}
		return nil, fmt.Errorf("build deck: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return deck, nil
}

func (b *Builder) build(ctx context.Context, req Request) (*Deck, error) {
	key := domain.SkillKey{UserID: req.UserID, Lang: req.Lang, Exam: req.Exam, Skill: req.Skill, Tag: req.Tag}
	r, err := b.ratings.GetUserRating(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get user rating: %w", err)
	}

	filter := domain.ItemFilter{Lang: req.Lang, Level: req.Level, Exam: req.Exam, Skill: req.Skill, Tag: req.Tag}
	items, err := b.catalog.ListActive(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	exclude := make(map[string]bool, len(req.ExcludeIDs))
	for _, id := range req.ExcludeIDs {
		exclude[id] = true
	}
	if b.recent != nil {
		recent, err := b.recent.Recent(ctx, req.UserID)
		if err != nil {
			b.logger.Warn("recent items unavailable", "user_id", req.UserID, "error", err)
		}
		for _, id := range recent {
			exclude[id] = true
		}
	}

	candidates := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if it.Matches(filter) && !exclude[it.ID] {
			candidates = append(candidates, it)
		}
	}

	size := req.Size
	if size <= 0 {
		size = b.cfg.DefaultSize
	}
	size = min(size, b.cfg.MaxSize)

	return &Deck{
		UserRating: r.Value,
		Items:      b.pick(candidates, r.Value, size),
	}, nil
}

// pick orders candidates by closeness to rating, shuffles equally close
// items and keeps the first size.
func (b *Builder) pick(items []domain.Item, rating float64, size int) []domain.Item {
	distance := func(it domain.Item) float64 { return math.Abs(it.DifficultyElo - rating) }

	slices.SortStableFunc(items, func(x, y domain.Item) int {
		if c := cmp.Compare(distance(x), distance(y)); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})

	b.mu.Lock()
	for start := 0; start < len(items); {
		end := start + 1
		for end < len(items) && distance(items[end]) == distance(items[start]) {
			end++
		}
		group := items[start:end]
		b.rnd.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })
		start = end
	}
	b.mu.Unlock()

	if len(items) > size {
		items = items[:size]
	}
	return items
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidConfig,
		domain.ErrTimeout,
		domain.ErrStorageUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
