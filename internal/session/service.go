package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/keylock"
	"github.com/felixgeelhaar/lingo/internal/scoring"
)

// Config controls session timing.
type Config struct {
	// Grace is added to the requested duration before a session counts as
	// expired.
	Grace time.Duration
	// MaxDuration bounds requested durations. Zero disables the check.
	MaxDuration time.Duration
	// SweepBatch bounds how many expired sessions one Sweep loads.
	SweepBatch int
	Clock      domain.Clock
	Events     domain.EventPublisher
	Logger     *slog.Logger
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		Grace:       30 * time.Second,
		MaxDuration: 4 * time.Hour,
		SweepBatch:  500,
	}
}

// EndRequest contains data for ending a session
type EndRequest struct {
	SessionID string
	// UserID is checked against the owner when set.
	UserID  string
	EndedAt time.Time
	// Summary is synthesized from recorded answers when nil.
	Summary *scoring.SwipeSummary
}

// AcceptFunc runs while the session is locked for one answer.
type AcceptFunc func(ctx context.Context, s *Session) error

// Manager owns the session lifecycle and serializes mutations per session.
type Manager struct {
	store   Store
	answers AnswerLister
	locks   *keylock.Locker
	cfg     Config
	clock   domain.Clock
	events  domain.EventPublisher
	logger  *slog.Logger
}

// NewManager creates a new session manager
func NewManager(store Store, answers AnswerLister, cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = domain.SystemClock{}
	}
	if cfg.Events == nil {
		cfg.Events = domain.NopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		store:   store,
		answers: answers,
		locks:   keylock.New(),
		cfg:     cfg,
		clock:   cfg.Clock,
		events:  cfg.Events,
		logger:  cfg.Logger,
	}
}

// Start creates a session in the Created state.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if err := req.Validate(m.cfg.MaxDuration); err != nil {
		return nil, err
	}

	s := newSession(req, m.clock.Now(), m.cfg.Grace)
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	m.logger.Info("session started",
		"session_id", s.ID,
		"user_id", s.UserID,
		"skill", s.Skill,
		"duration_s", s.DurationSeconds,
	)
	m.publish(ctx, domain.EventSessionStarted, s, map[string]any{
		"lang":       s.Lang,
		"level":      s.Level,
		"exam":       s.Exam,
		"skill":      s.Skill,
		"duration_s": s.DurationSeconds,
	})

	return s, nil
}

// Get returns a session. When userID is set it must own the session.
func (m *Manager) Get(ctx context.Context, id, userID string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && !s.OwnedBy(userID) {
		return nil, domain.ErrForbidden
	}
	return s, nil
}

// Accept runs fn under the session lock if the session accepts answers.
// Answers for one session are therefore applied in acceptance order. A
// session past its timer is completed first and ErrSessionCompleted returned.
// The answer count and state only change once fn succeeds.
func (m *Manager) Accept(ctx context.Context, sessionID, userID string, fn AcceptFunc) error {
	unlock, err := m.locks.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("lock session: %w", lockError(err))
	}
	defer unlock()

	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !s.OwnedBy(userID) {
		return domain.ErrForbidden
	}
	if s.Completed() {
		return domain.ErrSessionCompleted
	}

	now := m.clock.Now()
	if s.Expired(now) {
		if _, err := m.endLocked(ctx, s, s.Deadline(), nil); err != nil {
			return fmt.Errorf("expire session: %w", err)
		}
		return domain.ErrSessionCompleted
	}

	if err := fn(ctx, s); err != nil {
		return err
	}

	// The answer is committed; a failed progress write is only logged.
	s.recordAnswer(m.clock.Now())
	if err := m.store.Update(ctx, s); err != nil {
		m.logger.Error("failed to record session progress",
			"session_id", s.ID,
			"answer_count", s.AnswerCount,
			"error", err,
		)
	}
	return nil
}

// End completes a session. Ending a completed session again with the same
// summary, or without one, succeeds without changes; a different summary is a
// conflict.
func (m *Manager) End(ctx context.Context, req EndRequest) (*Session, error) {
	unlock, err := m.locks.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", lockError(err))
	}
	defer unlock()

	s, err := m.store.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if req.UserID != "" && !s.OwnedBy(req.UserID) {
		return nil, domain.ErrForbidden
	}

	if s.Completed() {
		if req.Summary == nil || (s.Summary != nil && *req.Summary == *s.Summary) {
			return s, nil
		}
		return nil, fmt.Errorf("session %s already ended with a different summary: %w", s.ID, domain.ErrConflict)
	}

	endedAt := m.endTime(s, req.EndedAt)
	if endedAt.Before(s.StartedAt) {
		return nil, domain.InvalidConfig("ended_at", "before started_at")
	}

	return m.endLocked(ctx, s, endedAt, req.Summary)
}

// endTime returns when s ended. A session whose timer ran out ended at its
// deadline, however late the request arrives.
func (m *Manager) endTime(s *Session, requested time.Time) time.Time {
	now := m.clock.Now()
	if requested.IsZero() {
		requested = now
	}
	if s.Expired(now) && requested.After(s.Deadline()) {
		return s.Deadline()
	}
	return requested
}

// RecordExam stores the scored result of an exam-mode session and completes
// the session if it is still open. A session is scored once.
func (m *Manager) RecordExam(ctx context.Context, sessionID, userID string, result *scoring.ExamResult) (*Session, error) {
	if result == nil {
		return nil, domain.InvalidAnswer("result", "required")
	}

	unlock, err := m.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", lockError(err))
	}
	defer unlock()

	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if userID != "" && !s.OwnedBy(userID) {
		return nil, domain.ErrForbidden
	}
	if s.Mode != ModeExam {
		return nil, domain.InvalidConfig("session_id", "not an exam session")
	}
	if s.ExamResult != nil {
		return nil, fmt.Errorf("session %s already scored: %w", s.ID, domain.ErrConflict)
	}

	s.ExamResult = result.Clone()
	if !s.Completed() {
		return m.endLocked(ctx, s, m.endTime(s, time.Time{}), nil)
	}

	s.UpdatedAt = m.clock.Now()
	if err := m.store.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return s, nil
}

// GradeExam applies manual grades to the stored exam result of a session.
// The batch is all or nothing; grading a question that is already final is a
// conflict.
func (m *Manager) GradeExam(ctx context.Context, sessionID, userID string, grades []scoring.ManualGrade) (*scoring.ExamResult, error) {
	if len(grades) == 0 {
		return nil, domain.InvalidAnswer("grades", "required")
	}

	unlock, err := m.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", lockError(err))
	}
	defer unlock()

	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if userID != "" && !s.OwnedBy(userID) {
		return nil, domain.ErrForbidden
	}
	if s.ExamResult == nil {
		return nil, domain.InvalidConfig("session_id", "session has no exam result")
	}

	graded, err := scoring.ApplyManualGrades(s.ExamResult, grades)
	if err != nil {
		return nil, err
	}

	s.ExamResult = graded
	s.UpdatedAt = m.clock.Now()
	if err := m.store.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	m.logger.Info("exam graded",
		"session_id", s.ID,
		"grades", len(grades),
		"status", graded.Status,
	)
	return graded, nil
}

// Expire completes a session whose timer ran out. Sessions that are already
// completed or still running are left alone; it reports whether it ended one.
func (m *Manager) Expire(ctx context.Context, sessionID string) (bool, error) {
	unlock, err := m.locks.Lock(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("lock session: %w", lockError(err))
	}
	defer unlock()

	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if s.Completed() || !s.Expired(m.clock.Now()) {
		return false, nil
	}
	if _, err := m.endLocked(ctx, s, s.Deadline(), nil); err != nil {
		return false, err
	}
	return true, nil
}

// endLocked completes s. The caller holds the session lock.
func (m *Manager) endLocked(ctx context.Context, s *Session, endedAt time.Time, summary *scoring.SwipeSummary) (*Session, error) {
	var sum scoring.SwipeSummary
	if summary != nil {
		sum = *summary
	} else {
		answers, err := m.answers.ListBySession(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("list answers: %w", err)
		}
		sum = scoring.SummarizeSwipe(answers, s.StartedAt, endedAt)
	}

	s.complete(endedAt, sum, m.clock.Now())
	if err := m.store.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	m.logger.Info("session completed",
		"session_id", s.ID,
		"user_id", s.UserID,
		"answers", sum.Total,
		"accuracy_pct", sum.AccuracyPct,
	)
	m.publish(ctx, domain.EventSessionCompleted, s, sum)

	return s, nil
}

func (m *Manager) publish(ctx context.Context, eventType string, s *Session, payload any) {
	event := domain.NewEvent(eventType, s.ID, s.UserID, m.clock.Now(), payload)
	if err := m.events.Publish(ctx, event); err != nil {
		m.logger.Error("failed to publish event",
			"type", eventType,
			"session_id", s.ID,
			"error", err,
		)
	}
}

func lockError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	return err
}
