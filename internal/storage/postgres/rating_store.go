package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// RatingStore implements rating persistence backed by Postgres.
type RatingStore struct {
	db *DB
}

// NewRatingStore creates a new Postgres-backed rating store.
func NewRatingStore(db *DB) *RatingStore {
	return &RatingStore{db: db}
}

// GetUserRating returns the stored rating or the default with version 0.
func (s *RatingStore) GetUserRating(ctx context.Context, key domain.SkillKey) (domain.Rating, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()
	r, err := getUserRating(ctx, s.db.Pool, key, false)
	return r, translate("get user rating", err)
}

// GetItemRating returns the item's difficulty or the default with version 0.
func (s *RatingStore) GetItemRating(ctx context.Context, itemID string) (domain.Rating, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()
	r, err := getItemRating(ctx, s.db.Pool, itemID, false)
	if errors.Is(err, domain.ErrItemNotFound) {
		return domain.NewRating(), nil
	}
	return r, translate("get item rating", err)
}

// ApplyDeltas updates both ratings in one transaction if their versions are
// unchanged.
func (s *RatingStore) ApplyDeltas(ctx context.Context, req rating.ApplyRequest) (rating.Applied, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	var applied rating.Applied
	err := s.db.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		applied, err = applyDeltas(ctx, tx, req)
		return err
	})
	return applied, translate("apply deltas", err)
}

func getUserRating(ctx context.Context, q querier, key domain.SkillKey, forUpdate bool) (domain.Rating, error) {
	query := `
		SELECT rating, rating_deviation, version, last_update
		FROM user_ratings
		WHERE user_id = $1 AND lang = $2 AND exam = $3 AND skill = $4 AND tag = $5`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var r domain.Rating
	err := q.QueryRow(ctx, query, key.UserID, key.Lang, key.Exam, key.Skill, key.Tag).
		Scan(&r.Value, &r.Deviation, &r.Version, &r.LastUpdate)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewRating(), nil
	}
	if err != nil {
		return domain.Rating{}, fmt.Errorf("scan user rating: %w", err)
	}
	r.LastUpdate = r.LastUpdate.UTC()
	return r, nil
}

func getItemRating(ctx context.Context, q querier, itemID string, forUpdate bool) (domain.Rating, error) {
	query := "SELECT difficulty_elo, version FROM items WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	r := domain.NewRating()
	err := q.QueryRow(ctx, query, itemID).Scan(&r.Value, &r.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Rating{}, domain.ErrItemNotFound
	}
	if err != nil {
		return domain.Rating{}, fmt.Errorf("scan item rating: %w", err)
	}
	return r, nil
}

// applyDeltas locks the user row, then the item row, resolves the request
// and writes both guarded by the observed versions.
func applyDeltas(ctx context.Context, tx pgx.Tx, req rating.ApplyRequest) (rating.Applied, error) {
	user, err := getUserRating(ctx, tx, req.UserKey, true)
	if err != nil {
		return rating.Applied{}, err
	}
	item, err := getItemRating(ctx, tx, req.ItemID, true)
	if err != nil {
		return rating.Applied{}, err
	}

	applied, err := rating.Resolve(req, user, item)
	if err != nil {
		return rating.Applied{}, err
	}

	key := req.UserKey
	var tag pgconn.CommandTag
	if user.Version == 0 {
		tag, err = tx.Exec(ctx, `
			INSERT INTO user_ratings (user_id, lang, exam, skill, tag, rating, rating_deviation, version, last_update)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT DO NOTHING`,
			key.UserID, key.Lang, key.Exam, key.Skill, key.Tag,
			applied.User.Value, applied.User.Deviation, applied.User.Version, applied.User.LastUpdate.UTC(),
		)
	} else {
		tag, err = tx.Exec(ctx, `
			UPDATE user_ratings SET rating = $1, version = $2, last_update = $3
			WHERE user_id = $4 AND lang = $5 AND exam = $6 AND skill = $7 AND tag = $8 AND version = $9`,
			applied.User.Value, applied.User.Version, applied.User.LastUpdate.UTC(),
			key.UserID, key.Lang, key.Exam, key.Skill, key.Tag, user.Version,
		)
	}
	if err := checkWritten(tag, err, "write user rating"); err != nil {
		return rating.Applied{}, err
	}

	tag, err = tx.Exec(ctx, `
		UPDATE items SET difficulty_elo = $1, version = $2, updated_at = $3
		WHERE id = $4 AND version = $5`,
		applied.Item.Value, applied.Item.Version, applied.Item.LastUpdate.UTC(),
		req.ItemID, item.Version,
	)
	if err := checkWritten(tag, err, "write item rating"); err != nil {
		return rating.Applied{}, err
	}

	return applied, nil
}

// checkWritten turns a guarded write that touched no rows into a conflict.
func checkWritten(tag pgconn.CommandTag, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}
