package domain

import (
	"strings"
	"time"
)

// Rating defaults applied when no row exists yet.
const (
	DefaultRating    = 1500.0
	DefaultDeviation = 200.0
)

// SkillKey identifies one per-user proficiency rating.
type SkillKey struct {
	UserID string `json:"user_id"`
	Lang   string `json:"lang"`
	Exam   string `json:"exam"`
	Skill  string `json:"skill"`
	Tag    string `json:"tag,omitempty"`
}

// String returns the stable storage key for the rating row.
func (k SkillKey) String() string {
	return strings.Join([]string{k.UserID, k.Lang, k.Exam, k.Skill, k.Tag}, "|")
}

// Validate checks that every mandatory component is present.
func (k SkillKey) Validate() error {
	switch {
	case strings.TrimSpace(k.UserID) == "":
		return InvalidConfig("user_id", "required")
	case strings.TrimSpace(k.Lang) == "":
		return InvalidConfig("lang", "required")
	case strings.TrimSpace(k.Exam) == "":
		return InvalidConfig("exam", "required")
	case strings.TrimSpace(k.Skill) == "":
		return InvalidConfig("skill", "required")
	}
	return nil
}

// Rating is a rating value together with its compare-and-swap version.
// Version 0 means the row has never been persisted.
type Rating struct {
	Value      float64   `json:"rating"`
	Deviation  float64   `json:"rating_deviation"`
	Version    int64     `json:"version"`
	LastUpdate time.Time `json:"last_update,omitempty"`
}

// NewRating returns the default rating for an absent row.
func NewRating() Rating {
	return Rating{Value: DefaultRating, Deviation: DefaultDeviation}
}

// Persisted reports whether the rating has been written at least once.
func (r Rating) Persisted() bool {
	return r.Version > 0
}
