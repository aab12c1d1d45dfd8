package session

import (
	"strings"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/scoring"
	"github.com/google/uuid"
)

// State is the lifecycle state of a session.
type State string

const (
	StateCreated    State = "created"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)

// Mode is the practice mode of a session.
type Mode string

const (
	ModeSwipe Mode = "swipe"
	ModeExam  Mode = "exam"
)

// Session is one timed practice or exam attempt by a user.
type Session struct {
	ID              string `json:"session_id"`
	UserID          string `json:"user_id"`
	Lang            string `json:"lang"`
	Level           string `json:"level"`
	Exam            string `json:"exam"`
	Skill           string `json:"skill"`
	Tag             string `json:"tag,omitempty"`
	Mode            Mode   `json:"mode"`
	DurationSeconds int    `json:"duration_s"`
	State           State  `json:"state"`
	AnswerCount     int    `json:"answer_count"`

	StartedAt time.Time             `json:"started_at"`
	ExpiresAt time.Time             `json:"expires_at"`
	EndedAt   *time.Time            `json:"ended_at,omitempty"`
	Summary   *scoring.SwipeSummary `json:"summary,omitempty"`

	// ExamResult is the scored result of an exam-mode session. Manual
	// grades are applied to this copy.
	ExamResult *scoring.ExamResult `json:"exam_result,omitempty"`

	// Version is bumped by the store on every update.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StartRequest contains data for starting a session
type StartRequest struct {
	UserID          string
	Lang            string
	Level           string
	Exam            string
	Skill           string
	Tag             string
	Mode            Mode
	DurationSeconds int
}

// Validate checks required fields and bounds.
func (r *StartRequest) Validate(maxDuration time.Duration) error {
	for _, f := range []struct{ name, value string }{
		{"user_id", r.UserID},
		{"lang", r.Lang},
		{"level", r.Level},
		{"exam", r.Exam},
		{"skill", r.Skill},
	} {
		if strings.TrimSpace(f.value) == "" {
			return domain.InvalidConfig(f.name, "required")
		}
	}
	if r.DurationSeconds <= 0 {
		return domain.InvalidConfig("duration_s", "must be positive")
	}
	if maxDuration > 0 && time.Duration(r.DurationSeconds)*time.Second > maxDuration {
		return domain.InvalidConfig("duration_s", "exceeds maximum of "+maxDuration.String())
	}
	switch r.Mode {
	case "":
		r.Mode = ModeSwipe
	case ModeSwipe, ModeExam:
	default:
		return domain.InvalidConfig("mode", "must be swipe or exam")
	}
	return nil
}

// newSession creates a session in the Created state.
func newSession(req StartRequest, now time.Time, grace time.Duration) *Session {
	duration := time.Duration(req.DurationSeconds) * time.Second
	return &Session{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		Lang:            req.Lang,
		Level:           req.Level,
		Exam:            req.Exam,
		Skill:           req.Skill,
		Tag:             req.Tag,
		Mode:            req.Mode,
		DurationSeconds: req.DurationSeconds,
		State:           StateCreated,
		StartedAt:       now,
		ExpiresAt:       now.Add(duration + grace),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// SkillKey returns the rating key answers in this session update.
func (s *Session) SkillKey() domain.SkillKey {
	return domain.SkillKey{
		UserID: s.UserID,
		Lang:   s.Lang,
		Exam:   s.Exam,
		Skill:  s.Skill,
		Tag:    s.Tag,
	}
}

// Deadline is the end of the requested duration, without grace.
func (s *Session) Deadline() time.Time {
	return s.StartedAt.Add(time.Duration(s.DurationSeconds) * time.Second)
}

// Expired reports whether the timer, including grace, has run out.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Completed reports whether the session is terminal.
func (s *Session) Completed() bool {
	return s.State == StateCompleted
}

// OwnedBy reports whether userID owns the session.
func (s *Session) OwnedBy(userID string) bool {
	return s.UserID == userID
}

// recordAnswer counts a committed answer. The first one moves a Created
// session to InProgress.
func (s *Session) recordAnswer(now time.Time) {
	s.AnswerCount++
	if s.State == StateCreated {
		s.State = StateInProgress
	}
	s.UpdatedAt = now
}

// complete marks the session as completed
func (s *Session) complete(endedAt time.Time, summary scoring.SwipeSummary, now time.Time) {
	s.State = StateCompleted
	s.EndedAt = &endedAt
	s.Summary = &summary
	s.UpdatedAt = now
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.Summary != nil {
		sum := *s.Summary
		c.Summary = &sum
	}
	c.ExamResult = s.ExamResult.Clone()
	return &c
}
