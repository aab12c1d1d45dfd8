package domain

import (
	"slices"
	"time"
)

// Answer is one recorded response to an item. Answers are immutable once
// stored; ID is the client-supplied idempotency key.
type Answer struct {
	ID             string    `json:"answer_id"`
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	ItemID         string    `json:"item_id"`
	Lang           string    `json:"lang"`
	Level          string    `json:"level"`
	Exam           string    `json:"exam"`
	Skill          string    `json:"skill"`
	Tags           []string  `json:"tags,omitempty"`
	UserChoice     string    `json:"user_choice"`
	Correct        bool      `json:"correct"`
	ScoreDelta     float64   `json:"score_delta"`
	ShownAt        time.Time `json:"shown_at,omitzero"`
	AnsweredAt     time.Time `json:"answered_at,omitzero"`
	LatencyMs      int64     `json:"latency_ms"`
	ItemDifficulty float64   `json:"item_difficulty"`
	ContentVersion string    `json:"content_version,omitempty"`
	AppVersion     string    `json:"app_version,omitempty"`
	Suspicious     bool      `json:"suspicious"`

	EloUserDelta    float64   `json:"elo_user_delta"`
	EloItemDelta    float64   `json:"elo_item_delta"`
	UserRatingAfter float64   `json:"user_rating_after"`
	ItemRatingAfter float64   `json:"item_rating_after"`
	CreatedAt       time.Time `json:"created_at"`
}

// SameSubmission reports whether other carries the same client-supplied
// payload. Server-computed fields are ignored.
func (a *Answer) SameSubmission(other *Answer) bool {
	return a.ID == other.ID &&
		a.SessionID == other.SessionID &&
		a.UserID == other.UserID &&
		a.ItemID == other.ItemID &&
		a.UserChoice == other.UserChoice &&
		a.Correct == other.Correct &&
		a.ScoreDelta == other.ScoreDelta &&
		a.LatencyMs == other.LatencyMs &&
		a.ShownAt.Equal(other.ShownAt) &&
		a.AnsweredAt.Equal(other.AnsweredAt) &&
		slices.Equal(a.Tags, other.Tags)
}

// Outcome returns the Elo outcome value for the answer.
func (a *Answer) Outcome() float64 {
	if a.Correct {
		return 1
	}
	return 0
}
