package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/scoring"
	"github.com/felixgeelhaar/lingo/internal/session"
	"github.com/felixgeelhaar/lingo/internal/storage"
)

// SessionStore implements session persistence backed by SQLite.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new SQLite-backed session store.
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

	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Lang, sess.Level, sess.Exam, sess.Skill, sess.Tag,
		string(sess.Mode), sess.DurationSeconds, string(sess.State),
		sess.AnswerCount, sess.StartedAt.UTC(), sess.ExpiresAt.UTC(), endedAt(sess), summary, exam, 1,
		sess.CreatedAt.UTC(), sess.UpdatedAt.UTC(),
	)
	if err != nil {
		if isConstraint(err) {
			return domain.ErrConflict
		}
		return storage.Translate("insert session", err)
	}
	sess.Version = 1
	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	return sess, storage.Translate("get session", err)
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

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET state = ?, answer_count = ?, ended_at = ?, summary = ?, exam_result = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(sess.State), sess.AnswerCount, endedAt(sess), summary, exam,
		sess.Version+1, sess.UpdatedAt.UTC(),
		sess.ID, sess.Version,
	)
	err = checkWritten(res, err, "update session")
	if errors.Is(err, domain.ErrConflict) {
		var exists int
		if qerr := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE id = ?", sess.ID).Scan(&exists); qerr == nil && exists == 0 {
			return domain.ErrSessionNotFound
		}
	}
	if err != nil {
		return storage.Translate("update session", err)
	}
	sess.Version++
	return nil
}

// ListExpired returns open sessions whose expiry is before now, oldest first.
func (s *SessionStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*session.Session, error) {
	ctx, cancel := storage.Bound(ctx, s.db.Timeout)
	defer cancel()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE state <> ? AND expires_at < ?
		ORDER BY expires_at LIMIT ?`,
		string(session.StateCompleted), now.UTC(), limit)
	if err != nil {
		return nil, storage.Translate("list expired sessions", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, storage.Translate("list expired sessions", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, storage.Translate("list expired sessions", rows.Err())
}

func scanSession(row scanner) (*session.Session, error) {
	var sess session.Session
	var mode, state string
	var ended sql.NullTime
	var summary, exam sql.NullString

	if err := row.Scan(
		&sess.ID, &sess.UserID, &sess.Lang, &sess.Level, &sess.Exam, &sess.Skill, &sess.Tag,
		&mode, &sess.DurationSeconds, &state,
		&sess.AnswerCount, &sess.StartedAt, &sess.ExpiresAt, &ended, &summary, &exam, &sess.Version,
		&sess.CreatedAt, &sess.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	if ended.Valid {
		t := ended.Time.UTC()
		sess.EndedAt = &t
	}
	if summary.Valid {
		sess.Summary = &scoring.SwipeSummary{}
		if err := json.Unmarshal([]byte(summary.String), sess.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
	}
	if exam.Valid {
		sess.ExamResult = &scoring.ExamResult{}
		if err := json.Unmarshal([]byte(exam.String), sess.ExamResult); err != nil {
			return nil, fmt.Errorf("unmarshal exam result: %w", err)
		}
	}
	return &sess, nil
}

// marshalJSON encodes v for a nullable TEXT column. A nil pointer is NULL.
func marshalJSON[T any](v *T, what string) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal %s: %w", what, err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func endedAt(sess *session.Session) sql.NullTime {
	if sess.EndedAt == nil {
		return sql.NullTime{}
	}
	return nullTime(*sess.EndedAt)
}
