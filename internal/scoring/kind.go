// Package scoring aggregates answers into swipe-session summaries and exam
// results, including subjective questions that await manual review.
package scoring

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/lingo/internal/domain"
)

// Kind is a question type.
type Kind string

// Objective kinds are scored automatically.
const (
	KindMultipleChoice Kind = "multiple_choice"
	KindTrueFalse      Kind = "true_false"
	KindFillBlank      Kind = "fill_blank"
	KindMatching       Kind = "matching"
)

// Subjective kinds always go to manual review.
const (
	KindEssay        Kind = "essay"
	KindOpenEnded    Kind = "open_ended"
	KindSpeakingTask Kind = "speaking_task"
)

// ParseKind validates a question kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindMultipleChoice, KindTrueFalse, KindFillBlank, KindMatching,
		KindEssay, KindOpenEnded, KindSpeakingTask:
		return k, nil
	}
	return "", domain.InvalidAnswer("kind", fmt.Sprintf("unknown question kind %q", s))
}

// Objective reports whether the kind is auto-scored.
func (k Kind) Objective() bool {
	switch k {
	case KindMultipleChoice, KindTrueFalse, KindFillBlank, KindMatching:
		return true
	}
	return false
}
