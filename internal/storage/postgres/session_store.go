package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/scoring"
	"github.com/felixgeelhaar/lingo/internal/session"
	"github.com/felixgeelhaar/lingo/internal/storage"
	"github.com/jackc/pgx/v5"
)

// SessionStore implements session persistence backed by Postgres.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new Postgres-backed session store.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `id, user_id, lang, level, exam, skill, tag, mode, duration_s, state,
	answer_count, started_at, expires_at, ended_at, summary, exam_result, version, created_at, updated_at`

// Create inserts a new session with version 1.
func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	summary, err := marshalJSON(sess.Summary, "summary")
	if err != nil {
		return err
	}
	exam, err := marshalJSON(sess.ExamResult, "exam result")
	if err != nil {
		return err
	}

	_, err = s.db.Pool.Exec(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		sess.ID, sess.UserID, sess.Lang, sess.Level, sess.Exam, sess.Skill, sess.Tag,
		string(sess.Mode), sess.DurationSeconds, string(sess.State),
		sess.AnswerCount, sess.StartedAt.UTC(), sess.ExpiresAt.UTC(), endedAt(sess), summary, exam, 1,
		sess.CreatedAt.UTC(), sess.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return translate("insert session", err)
	}
	sess.Version = 1
	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	sess, err := scanSession(s.db.Pool.QueryRow(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	return sess, translate("get session", err)
}

// Update writes the session if its version is unchanged and bumps it.
func (s *SessionStore) Update(ctx context.Context, sess *session.Session) error {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	summary, err := marshalJSON(sess.Summary, "summary")
	if err != nil {
		return err
	}
	exam, err := marshalJSON(sess.ExamResult, "exam result")
	if err != nil {
		return err
	}

	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE sessions SET state = $1, answer_count = $2, ended_at = $3, summary = $4, exam_result = $5,
			version = $6, updated_at = $7
		WHERE id = $8 AND version = $9`,
		string(sess.State), sess.AnswerCount, endedAt(sess), summary, exam,
		sess.Version+1, sess.UpdatedAt.UTC(),
		sess.ID, sess.Version,
	)
	err = checkWritten(tag, err, "update session")
	if errors.Is(err, domain.ErrConflict) {
		var exists bool
		if qerr := s.db.Pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)", sess.ID).Scan(&exists); qerr == nil && !exists {
			return domain.ErrSessionNotFound
		}
	}
	if err != nil {
		return translate("update session", err)
	}
	sess.Version++
	return nil
}

// ListExpired returns open sessions whose expiry is before now, oldest first.
func (s *SessionStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*session.Session, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.db.Pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE state <> $1 AND expires_at < $2
		ORDER BY expires_at LIMIT $3`,
		string(session.StateCompleted), now.UTC(), lim)
	if err != nil {
		return nil, translate("list expired sessions", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, translate("list expired sessions", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, translate("list expired sessions", rows.Err())
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var sess session.Session
	var mode, state string
	var ended *time.Time
	var summary, exam []byte

	if err := row.Scan(
		&sess.ID, &sess.UserID, &sess.Lang, &sess.Level, &sess.Exam, &sess.Skill, &sess.Tag,
		&mode, &sess.DurationSeconds, &state,
		&sess.AnswerCount, &sess.StartedAt, &sess.ExpiresAt, &ended, &summary, &exam, &sess.Version,
		&sess.CreatedAt, &sess.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.Mode = session.Mode(mode)
	sess.State = session.State(state)
	sess.StartedAt = sess.StartedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()
	if ended != nil {
		t := ended.UTC()
		sess.EndedAt = &t
	}
	if summary != nil {
		sess.Summary = &scoring.SwipeSummary{}
		if err := json.Unmarshal(summary, sess.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
	}
	if exam != nil {
		sess.ExamResult = &scoring.ExamResult{}
		if err := json.Unmarshal(exam, sess.ExamResult); err != nil {
			return nil, fmt.Errorf("unmarshal exam result: %w", err)
		}
	}
	return &sess, nil
}

// marshalJSON returns nil for a nil pointer so the JSONB column stays NULL.
func marshalJSON[T any](v *T, what string) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", what, err)
	}
	return b, nil
}

func endedAt(sess *session.Session) *time.Time {
	if sess.EndedAt == nil {
		return nil
	}
	return timePtr(*sess.EndedAt)
}
