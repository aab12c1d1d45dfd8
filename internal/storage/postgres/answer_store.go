package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/storage"
	"github.com/jackc/pgx/v5"
)

// AnswerStore implements the answer ledger backed by Postgres.
type AnswerStore struct {
	db *DB
}

// NewAnswerStore creates a new Postgres-backed answer store.
func NewAnswerStore(db *DB) *AnswerStore {
	return &AnswerStore{db: db}
}

const answerColumns = `id, session_id, user_id, item_id, lang, level, exam, skill, tags,
	user_choice, correct, score_delta, shown_at, answered_at, latency_ms,
	item_difficulty, content_version, app_version, suspicious,
	elo_user_delta, elo_item_delta, user_rating_after, item_rating_after, created_at`

// Commit applies the rating update and inserts the answer in one
// transaction. A concurrent insert of the same id fails on the primary key
// and rolls the rating update back.
func (s *AnswerStore) Commit(ctx context.Context, req rating.ApplyRequest, ans *domain.Answer) (rating.Applied, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	var applied rating.Applied
	err := s.db.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM answers WHERE id = $1)", ans.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check answer: %w", err)
		}
		if exists {
			return domain.ErrDuplicateAnswer
		}

		var err error
		applied, err = applyDeltas(ctx, tx, req)
		if err != nil {
			return err
		}
		applied.Stamp(ans)

		_, err = tx.Exec(ctx, `INSERT INTO answers (`+answerColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
			ans.ID, ans.SessionID, ans.UserID, ans.ItemID, ans.Lang, ans.Level, ans.Exam, ans.Skill, orEmpty(ans.Tags),
			ans.UserChoice, ans.Correct, ans.ScoreDelta, timePtr(ans.ShownAt), timePtr(ans.AnsweredAt), ans.LatencyMs,
			ans.ItemDifficulty, ans.ContentVersion, ans.AppVersion, ans.Suspicious,
			ans.EloUserDelta, ans.EloItemDelta, ans.UserRatingAfter, ans.ItemRatingAfter, ans.CreatedAt.UTC(),
		)
		if isUniqueViolation(err) {
			return domain.ErrDuplicateAnswer
		}
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		return nil
	})
	return applied, translate("commit answer", err)
}

// GetAnswer retrieves an answer by ID.
func (s *AnswerStore) GetAnswer(ctx context.Context, id string) (*domain.Answer, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	a, err := scanAnswer(s.db.Pool.QueryRow(ctx, "SELECT "+answerColumns+" FROM answers WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAnswerNotFound
	}
	return a, translate("get answer", err)
}

// ListBySession returns a session's answers in insertion order.
func (s *AnswerStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.Answer, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	rows, err := s.db.Pool.Query(ctx,
		"SELECT "+answerColumns+" FROM answers WHERE session_id = $1 ORDER BY seq", sessionID)
	if err != nil {
		return nil, translate("list answers", err)
	}
	defer rows.Close()

	answers := []*domain.Answer{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, translate("list answers", err)
		}
		answers = append(answers, a)
	}
	return answers, translate("list answers", rows.Err())
}

func scanAnswer(row pgx.Row) (*domain.Answer, error) {
	var a domain.Answer
	var shownAt, answeredAt *time.Time

	if err := row.Scan(
		&a.ID, &a.SessionID, &a.UserID, &a.ItemID, &a.Lang, &a.Level, &a.Exam, &a.Skill, &a.Tags,
		&a.UserChoice, &a.Correct, &a.ScoreDelta, &shownAt, &answeredAt, &a.LatencyMs,
		&a.ItemDifficulty, &a.ContentVersion, &a.AppVersion, &a.Suspicious,
		&a.EloUserDelta, &a.EloItemDelta, &a.UserRatingAfter, &a.ItemRatingAfter, &a.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan answer: %w", err)
	}

	if len(a.Tags) == 0 {
		a.Tags = nil
	}
	a.ShownAt = derefTime(shownAt)
	a.AnsweredAt = derefTime(answeredAt)
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}
