package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/lingo/internal/answer"
	"github.com/felixgeelhaar/lingo/internal/config"
	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/session"
	"github.com/felixgeelhaar/lingo/internal/storage/memory"
	"github.com/felixgeelhaar/lingo/internal/storage/postgres"
	"github.com/felixgeelhaar/lingo/internal/storage/sqlite"
)

// Catalog is the item surface shared by the answer processor, the deck
// builder and the seeding command.
type Catalog interface {
	PutItem(ctx context.Context, item domain.Item) error
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	ListActive(ctx context.Context, f domain.ItemFilter) ([]domain.Item, error)
}

// Backend bundles the stores of the configured storage driver.
type Backend struct {
	Driver   string
	Ratings  rating.Store
	Ledger   answer.Ledger
	Sessions session.Store
	Items    Catalog

	ping  func(ctx context.Context) error
	close func() error
}

// OpenBackend connects to the configured driver and applies pending
// migrations.
func OpenBackend(ctx context.Context, cfg config.StorageConfig) (*Backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		store := memory.New(cfg.Timeout)
		return &Backend{
			Driver:   cfg.Driver,
			Ratings:  store,
			Ledger:   store,
			Sessions: store,
			Items:    store,
			ping:     store.Ping,
			close:    store.Close,
		}, nil

	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		db.Timeout = cfg.Timeout
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		answers := sqlite.NewAnswerStore(db)
		return &Backend{
			Driver:   cfg.Driver,
			Ratings:  sqlite.NewRatingStore(db),
			Ledger:   answers,
			Sessions: sqlite.NewSessionStore(db),
			Items:    sqlite.NewItemStore(db),
			ping:     db.Ping,
			close:    db.Close,
		}, nil

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.PostgresDSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		db.Timeout = cfg.Timeout
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		answers := postgres.NewAnswerStore(db)
		return &Backend{
			Driver:   cfg.Driver,
			Ratings:  postgres.NewRatingStore(db),
			Ledger:   answers,
			Sessions: postgres.NewSessionStore(db),
			Items:    postgres.NewItemStore(db),
			ping:     db.Ping,
			close: func() error {
				db.Close()
				return nil
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// Ping reports storage health.
func (b *Backend) Ping(ctx context.Context) error {
	return b.ping(ctx)
}

// Close releases the underlying connections.
func (b *Backend) Close() error {
	return b.close()
}
