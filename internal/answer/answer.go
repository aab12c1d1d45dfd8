// Package answer processes submitted answers: validation, idempotency,
// rating updates and the all-or-nothing write of the answer row.
package answer

import (
	"strings"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/session"
)

// Submission is an answer as sent by the client.
type Submission struct {
	AnswerID       string    `json:"answer_id"`
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	ItemID         string    `json:"item_id"`
	Lang           string    `json:"lang"`
	Level          string    `json:"level"`
	Exam           string    `json:"exam"`
	Skill          string    `json:"skill"`
	Tags           []string  `json:"tags"`
	UserChoice     string    `json:"user_choice"`
	Correct        bool      `json:"correct"`
	ScoreDelta     float64   `json:"score_delta"`
	ShownAt        time.Time `json:"shown_at,omitzero"`
	AnsweredAt     time.Time `json:"answered_at,omitzero"`
	LatencyMs      int64     `json:"latency_ms"`
	ItemDifficulty float64   `json:"item_difficulty"`
	ContentVersion string    `json:"content_version"`
	AppVersion     string    `json:"app_version"`
	Suspicious     bool      `json:"suspicious"`
}

// Validate rejects malformed submissions before any store access.
func (s *Submission) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"answer_id", s.AnswerID},
		{"session_id", s.SessionID},
		{"user_id", s.UserID},
		{"item_id", s.ItemID},
	} {
		if strings.TrimSpace(f.value) == "" {
			return domain.InvalidAnswer(f.name, "required")
		}
	}
	if len(s.AnswerID) > 128 {
		return domain.InvalidAnswer("answer_id", "longer than 128 characters")
	}
	if s.LatencyMs < 0 {
		return domain.InvalidAnswer("latency_ms", "must not be negative")
	}
	if !s.ShownAt.IsZero() && !s.AnsweredAt.IsZero() && s.AnsweredAt.Before(s.ShownAt) {
		return domain.InvalidAnswer("answered_at", "before shown_at")
	}
	return nil
}

// checkSession rejects skill fields that disagree with the session.
func (s *Submission) checkSession(sess *session.Session) error {
	for _, f := range []struct{ name, got, want string }{
		{"lang", s.Lang, sess.Lang},
		{"level", s.Level, sess.Level},
		{"exam", s.Exam, sess.Exam},
		{"skill", s.Skill, sess.Skill},
	} {
		if f.got != "" && f.got != f.want {
			return domain.InvalidAnswer(f.name, "does not match session "+f.want)
		}
	}
	return nil
}

// toAnswer builds the answer row for a submission within sess.
func (s *Submission) toAnswer(sess *session.Session, item *domain.Item, now time.Time) *domain.Answer {
	a := &domain.Answer{
		ID:             s.AnswerID,
		SessionID:      s.SessionID,
		UserID:         s.UserID,
		ItemID:         s.ItemID,
		Lang:           sess.Lang,
		Level:          sess.Level,
		Exam:           sess.Exam,
		Skill:          sess.Skill,
		Tags:           s.Tags,
		UserChoice:     s.UserChoice,
		Correct:        s.Correct,
		ScoreDelta:     s.ScoreDelta,
		ShownAt:        s.ShownAt,
		AnsweredAt:     s.AnsweredAt,
		LatencyMs:      s.LatencyMs,
		ItemDifficulty: s.ItemDifficulty,
		ContentVersion: s.ContentVersion,
		AppVersion:     s.AppVersion,
		Suspicious:     s.Suspicious,
		CreatedAt:      now,
	}
	if a.ItemDifficulty == 0 {
		a.ItemDifficulty = item.DifficultyElo
	}
	if a.ContentVersion == "" {
		a.ContentVersion = item.ContentVersion
	}
	return a
}

// asAnswer returns the client-supplied fields in answer form, for replay
// comparison.
func (s *Submission) asAnswer() *domain.Answer {
	return &domain.Answer{
		ID:         s.AnswerID,
		SessionID:  s.SessionID,
		UserID:     s.UserID,
		ItemID:     s.ItemID,
		Tags:       s.Tags,
		UserChoice: s.UserChoice,
		Correct:    s.Correct,
		ScoreDelta: s.ScoreDelta,
		ShownAt:    s.ShownAt,
		AnsweredAt: s.AnsweredAt,
		LatencyMs:  s.LatencyMs,
	}
}

// EloUpdates reports the effective rating changes of an answer.
type EloUpdates struct {
	UserRatingChange float64 `json:"user_rating_change"`
	ItemRatingChange float64 `json:"item_rating_change"`
	UserRating       float64 `json:"user_rating"`
	ItemRating       float64 `json:"item_rating"`
}

// Result is the stored answer plus its rating changes.
type Result struct {
	Answer     *domain.Answer `json:"answer"`
	EloUpdates EloUpdates     `json:"elo_updates"`
	// Replayed is set when the answer id had already been recorded.
	Replayed bool `json:"replayed"`
}

func resultFor(a *domain.Answer, replayed bool) *Result {
	return &Result{
		Answer: a,
		EloUpdates: EloUpdates{
			UserRatingChange: a.EloUserDelta,
			ItemRatingChange: a.EloItemDelta,
			UserRating:       a.UserRatingAfter,
			ItemRating:       a.ItemRatingAfter,
		},
		Replayed: replayed,
	}
}
