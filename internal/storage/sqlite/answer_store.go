package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/storage"
)

// AnswerStore implements the answer ledger backed by SQLite.
type AnswerStore struct {
	db *DB
}

// NewAnswerStore creates a new SQLite-backed answer store.
func NewAnswerStore(db *DB) *AnswerStore {
	return &AnswerStore{db: db}
}

const answerColumns = `id, session_id, user_id, item_id, lang, level, exam, skill, tags,
	user_choice, correct, score_delta, shown_at, answered_at, latency_ms,
	item_difficulty, content_version, app_version, suspicious,
	elo_user_delta, elo_item_delta, user_rating_after, item_rating_after, created_at`

// Commit applies the rating update and inserts the answer in one
// transaction.
func (s *AnswerStore) Commit(ctx context.Context, req rating.ApplyRequest, ans *domain.Answer) (rating.Applied, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	var applied rating.Applied
	err := s.db.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM answers WHERE id = ?", ans.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check answer: %w", err)
		}
		if exists > 0 {
			return domain.ErrDuplicateAnswer
		}

		applied, err = applyDeltas(ctx, tx, req)
		if err != nil {
			return err
		}
		applied.Stamp(ans)
		return insertAnswer(ctx, tx, ans)
	})
	return applied, storage.Translate("commit answer", err)
}

func insertAnswer(ctx context.Context, tx *sql.Tx, a *domain.Answer) error {
	tags, err := json.Marshal(tagsOrEmpty(a.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO answers (`+answerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.UserID, a.ItemID, a.Lang, a.Level, a.Exam, a.Skill, string(tags),
		a.UserChoice, boolToInt(a.Correct), a.ScoreDelta, nullTime(a.ShownAt), nullTime(a.AnsweredAt), a.LatencyMs,
		a.ItemDifficulty, a.ContentVersion, a.AppVersion, boolToInt(a.Suspicious),
		a.EloUserDelta, a.EloItemDelta, a.UserRatingAfter, a.ItemRatingAfter, a.CreatedAt.UTC(),
	)
	if err != nil {
		if isConstraint(err) {
			return domain.ErrDuplicateAnswer
		}
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

// GetAnswer retrieves an answer by ID.
func (s *AnswerStore) GetAnswer(ctx context.Context, id string) (*domain.Answer, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, "SELECT "+answerColumns+" FROM answers WHERE id = ?", id)
	a, err := scanAnswer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAnswerNotFound
	}
	return a, storage.Translate("get answer", err)
}

// ListBySession returns a session's answers in insertion order.
func (s *AnswerStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.Answer, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+answerColumns+" FROM answers WHERE session_id = ? ORDER BY rowid", sessionID)
	if err != nil {
		return nil, storage.Translate("list answers", err)
	}
	defer rows.Close()

	answers := []*domain.Answer{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, storage.Translate("list answers", err)
		}
		answers = append(answers, a)
	}
	return answers, storage.Translate("list answers", rows.Err())
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAnswer(row scanner) (*domain.Answer, error) {
	var a domain.Answer
	var tags string
	var correct, suspicious int
	var shownAt, answeredAt sql.NullTime

	if err := row.Scan(
		&a.ID, &a.SessionID, &a.UserID, &a.ItemID, &a.Lang, &a.Level, &a.Exam, &a.Skill, &tags,
		&a.UserChoice, &correct, &a.ScoreDelta, &shownAt, &answeredAt, &a.LatencyMs,
		&a.ItemDifficulty, &a.ContentVersion, &a.AppVersion, &suspicious,
		&a.EloUserDelta, &a.EloItemDelta, &a.UserRatingAfter, &a.ItemRatingAfter, &a.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan answer: %w", err)
	}

	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if len(a.Tags) == 0 {
		a.Tags = nil
	}
	a.Correct = correct != 0
	a.Suspicious = suspicious != 0
	if shownAt.Valid {
		a.ShownAt = shownAt.Time.UTC()
	}
	if answeredAt.Valid {
		a.AnsweredAt = answeredAt.Time.UTC()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
