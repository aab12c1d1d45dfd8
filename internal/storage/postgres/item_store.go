package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/storage"
	"github.com/jackc/pgx/v5"
)

// ItemStore implements the item catalog backed by Postgres.
type ItemStore struct {
	db *DB
}

// NewItemStore creates a new Postgres-backed item store.
func NewItemStore(db *DB) *ItemStore {
	return &ItemStore{db: db}
}

const itemColumns = `id, lang, level, exam, skill_scope, tags, difficulty_elo, content_version, active, version`

// PutItem inserts or replaces an item. Replacing bumps the difficulty
// version so in-flight rating updates conflict.
func (s *ItemStore) PutItem(ctx context.Context, item domain.Item) error {
	if item.ID == "" {
		return domain.InvalidConfig("id", "required")
	}
	if item.DifficultyElo == 0 {
		item.DifficultyElo = domain.DefaultRating
	}
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO items (`+itemColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10)
		ON CONFLICT (id) DO UPDATE SET
			lang = EXCLUDED.lang, level = EXCLUDED.level, exam = EXCLUDED.exam,
			skill_scope = EXCLUDED.skill_scope, tags = EXCLUDED.tags,
			difficulty_elo = EXCLUDED.difficulty_elo, content_version = EXCLUDED.content_version,
			active = EXCLUDED.active, version = items.version + 1,
			updated_at = EXCLUDED.updated_at`,
		item.ID, item.Lang, item.Level, item.Exam, orEmpty(item.SkillScope), orEmpty(item.Tags),
		item.DifficultyElo, item.ContentVersion, item.Active, time.Now().UTC(),
	)
	return translate("upsert item", err)
}

// GetItem retrieves an item by ID.
func (s *ItemStore) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	it, err := scanItem(s.db.Pool.QueryRow(ctx, "SELECT "+itemColumns+" FROM items WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	return it, translate("get item", err)
}

// ListActive returns active items matching the filter, ordered by id.
func (s *ItemStore) ListActive(ctx context.Context, f domain.ItemFilter) ([]domain.Item, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	rows, err := s.db.Pool.Query(ctx, `SELECT `+itemColumns+` FROM items
		WHERE active AND lang = $1 AND level = $2 AND exam = $3
		AND $4 = ANY(skill_scope)
		AND ($5 = '' OR $5 = ANY(tags))
		ORDER BY id`, f.Lang, f.Level, f.Exam, f.Skill, f.Tag)
	if err != nil {
		return nil, translate("list items", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, translate("list items", err)
		}
		items = append(items, *it)
	}
	return items, translate("list items", rows.Err())
}

func scanItem(row pgx.Row) (*domain.Item, error) {
	var it domain.Item
	if err := row.Scan(
		&it.ID, &it.Lang, &it.Level, &it.Exam, &it.SkillScope, &it.Tags,
		&it.DifficultyElo, &it.ContentVersion, &it.Active, &it.Version,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	if len(it.Tags) == 0 {
		it.Tags = nil
	}
	return &it, nil
}
