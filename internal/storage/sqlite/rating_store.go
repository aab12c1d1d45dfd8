package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/storage"
)

// RatingStore implements rating persistence backed by SQLite.
type RatingStore struct {
	db *DB
}

// NewRatingStore creates a new SQLite-backed rating store.
func NewRatingStore(db *DB) *RatingStore {
	return &RatingStore{db: db}
}

// GetUserRating returns the stored rating or the default with version 0.
func (s *RatingStore) GetUserRating(ctx context.Context, key domain.SkillKey) (domain.Rating, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()
	r, err := getUserRating(ctx, s.db, key)
	return r, storage.Translate("get user rating", err)
}

// GetItemRating returns the item's difficulty or the default with version 0.
func (s *RatingStore) GetItemRating(ctx context.Context, itemID string) (domain.Rating, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()
	r, err := getItemRating(ctx, s.db, itemID)
	if errors.Is(err, domain.ErrItemNotFound) {
		return domain.NewRating(), nil
	}
	return r, storage.Translate("get item rating", err)
}

// ApplyDeltas updates both ratings in one transaction if their versions are
// unchanged.
func (s *RatingStore) ApplyDeltas(ctx context.Context, req rating.ApplyRequest) (rating.Applied, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	var applied rating.Applied
	err := s.db.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		applied, err = applyDeltas(ctx, tx, req)
		return err
	})
	return applied, storage.Translate("apply deltas", err)
}

func getUserRating(ctx context.Context, q querier, key domain.SkillKey) (domain.Rating, error) {
	row := q.QueryRowContext(ctx, `
		SELECT rating, rating_deviation, version, last_update
		FROM user_ratings
		WHERE user_id = ? AND lang = ? AND exam = ? AND skill = ? AND tag = ?`,
		key.UserID, key.Lang, key.Exam, key.Skill, key.Tag)

	var r domain.Rating
	if err := row.Scan(&r.Value, &r.Deviation, &r.Version, &r.LastUpdate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewRating(), nil
		}
		return domain.Rating{}, fmt.Errorf("scan user rating: %w", err)
	}
	return r, nil
}

func getItemRating(ctx context.Context, q querier, itemID string) (domain.Rating, error) {
	row := q.QueryRowContext(ctx, "SELECT difficulty_elo, version FROM items WHERE id = ?", itemID)

	r := domain.NewRating()
	if err := row.Scan(&r.Value, &r.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Rating{}, domain.ErrItemNotFound
		}
		return domain.Rating{}, fmt.Errorf("scan item rating: %w", err)
	}
	return r, nil
}

// applyDeltas re-reads both rows inside tx, resolves the request and writes
// the new values guarded by the observed versions.
func applyDeltas(ctx context.Context, tx *sql.Tx, req rating.ApplyRequest) (rating.Applied, error) {
	user, err := getUserRating(ctx, tx, req.UserKey)
	if err != nil {
		return rating.Applied{}, err
	}
	item, err := getItemRating(ctx, tx, req.ItemID)
	if err != nil {
		return rating.Applied{}, err
	}

	applied, err := rating.Resolve(req, user, item)
	if err != nil {
		return rating.Applied{}, err
	}

	key := req.UserKey
	var res sql.Result
	if user.Version == 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO user_ratings (user_id, lang, exam, skill, tag, rating, rating_deviation, version, last_update)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`,
			key.UserID, key.Lang, key.Exam, key.Skill, key.Tag,
			applied.User.Value, applied.User.Deviation, applied.User.Version, applied.User.LastUpdate.UTC(),
		)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE user_ratings SET rating = ?, version = ?, last_update = ?
			WHERE user_id = ? AND lang = ? AND exam = ? AND skill = ? AND tag = ? AND version = ?`,
			applied.User.Value, applied.User.Version, applied.User.LastUpdate.UTC(),
			key.UserID, key.Lang, key.Exam, key.Skill, key.Tag, user.Version,
		)
	}
	if err := checkWritten(res, err, "write user rating"); err != nil {
		return rating.Applied{}, err
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE items SET difficulty_elo = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		applied.Item.Value, applied.Item.Version, applied.Item.LastUpdate.UTC(),
		req.ItemID, item.Version,
	)
	if err := checkWritten(res, err, "write item rating"); err != nil {
		return rating.Applied{}, err
	}

	return applied, nil
}

// checkWritten turns a guarded write that touched no rows into a conflict.
func checkWritten(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}
