package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/storage"
)

// ItemStore implements the item catalog backed by SQLite.
type ItemStore struct {
	db *DB
}

// NewItemStore creates a new SQLite-backed item store.
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

	scope, err := json.Marshal(tagsOrEmpty(item.SkillScope))
	if err != nil {
		return fmt.Errorf("marshal skill_scope: %w", err)
	}
	tags, err := json.Marshal(tagsOrEmpty(item.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			lang=excluded.lang, level=excluded.level, exam=excluded.exam,
			skill_scope=excluded.skill_scope, tags=excluded.tags,
			difficulty_elo=excluded.difficulty_elo, content_version=excluded.content_version,
			active=excluded.active, version=items.version + 1,
			updated_at=excluded.updated_at`,
		item.ID, item.Lang, item.Level, item.Exam, string(scope), string(tags),
		item.DifficultyElo, item.ContentVersion, boolToInt(item.Active), time.Now().UTC(),
	)
	return storage.Translate("upsert item", err)
}

// GetItem retrieves an item by ID.
func (s *ItemStore) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	return it, storage.Translate("get item", err)
}

// ListActive returns active items matching the filter, ordered by id.
func (s *ItemStore) ListActive(ctx context.Context, f domain.ItemFilter) ([]domain.Item, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items
		WHERE active = 1 AND lang = ? AND level = ? AND exam = ?
		ORDER BY id`, f.Lang, f.Level, f.Exam)
	if err != nil {
		return nil, storage.Translate("list items", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, storage.Translate("list items", err)
		}
		// Skill scope and tags are JSON arrays; filter them here.
		if it.Matches(f) {
			items = append(items, *it)
		}
	}
	return items, storage.Translate("list items", rows.Err())
}

func scanItem(row scanner) (*domain.Item, error) {
	var it domain.Item
	var scope, tags string
	var active int

	if err := row.Scan(
		&it.ID, &it.Lang, &it.Level, &it.Exam, &scope, &tags,
		&it.DifficultyElo, &it.ContentVersion, &active, &it.Version,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}

	if err := json.Unmarshal([]byte(scope), &it.SkillScope); err != nil {
		return nil, fmt.Errorf("unmarshal skill_scope: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &it.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if len(it.Tags) == 0 {
		it.Tags = nil
	}
	it.Active = active != 0
	return &it, nil
}
