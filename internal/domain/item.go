package domain

import "slices"

// Item is a practice item in the catalog.
type Item struct {
	ID             string   `json:"id" yaml:"id"`
	Lang           string   `json:"lang" yaml:"lang"`
	Level          string   `json:"level" yaml:"level"`
	Exam           string   `json:"exam" yaml:"exam"`
	SkillScope     []string `json:"skill_scope" yaml:"skill_scope"`
	Tags           []string `json:"tags,omitempty" yaml:"tags"`
	DifficultyElo  float64  `json:"difficulty_elo" yaml:"difficulty_elo"`
	ContentVersion string   `json:"content_version,omitempty" yaml:"content_version"`
	Active         bool     `json:"active" yaml:"active"`
	Version        int64    `json:"-" yaml:"-"`
}

// ItemFilter selects catalog items for a deck.
type ItemFilter struct {
	Lang  string
	Level string
	Exam  string
	Skill string
	Tag   string
}

// Matches reports whether the item is active and satisfies the filter.
func (i *Item) Matches(f ItemFilter) bool {
	if !i.Active {
		return false
	}
	if i.Lang != f.Lang || i.Level != f.Level || i.Exam != f.Exam {
		return false
	}
	if !slices.Contains(i.SkillScope, f.Skill) {
		return false
	}
	if f.Tag != "" && !slices.Contains(i.Tags, f.Tag) {
		return false
	}
	return true
}

// Rating returns the item's difficulty as a Rating.
func (i *Item) Rating() Rating {
	return Rating{Value: i.DifficultyElo, Deviation: DefaultDeviation, Version: i.Version}
}
