package scoring

import (
	"fmt"

	"github.com/felixgeelhaar/lingo/internal/domain"
)

// Question is one exam question. The set of implementations is closed:
// ObjectiveQuestion and SubjectiveQuestion.
type Question interface {
	QuestionID() string
	QuestionKind() Kind
	MaxPoints() float64
	sealed()
}

// ObjectiveQuestion has a canonical correct answer.
type ObjectiveQuestion struct {
	ID      string
	Kind    Kind
	Points  float64
	Correct string
}

// SubjectiveQuestion needs a human grader.
type SubjectiveQuestion struct {
	ID     string
	Kind   Kind
	Points float64
}

func (q ObjectiveQuestion) QuestionID() string  { return q.ID }
func (q ObjectiveQuestion) QuestionKind() Kind  { return q.Kind }
func (q ObjectiveQuestion) MaxPoints() float64  { return q.Points }
func (ObjectiveQuestion) sealed()               {}
func (q SubjectiveQuestion) QuestionID() string { return q.ID }
func (q SubjectiveQuestion) QuestionKind() Kind { return q.Kind }
func (q SubjectiveQuestion) MaxPoints() float64 { return q.Points }
func (SubjectiveQuestion) sealed()              {}

// QuestionSpec is the wire form of a question.
type QuestionSpec struct {
	ID      string  `json:"id"`
	Kind    string  `json:"kind"`
	Points  float64 `json:"points"`
	Correct string  `json:"correct,omitempty"`
}

// NewQuestion builds the typed question for a spec. Objective kinds must
// carry a correct answer.
func NewQuestion(spec QuestionSpec) (Question, error) {
	if spec.ID == "" {
		return nil, domain.InvalidAnswer("id", "question id required")
	}
	kind, err := ParseKind(spec.Kind)
	if err != nil {
		return nil, err
	}
	points := spec.Points
	if points == 0 {
		points = 1
	}
	if points < 0 {
		return nil, domain.InvalidAnswer("points", fmt.Sprintf("question %s: negative points", spec.ID))
	}

	if kind.Objective() {
		if spec.Correct == "" {
			return nil, domain.InvalidAnswer("correct", fmt.Sprintf("question %s: correct answer required", spec.ID))
		}
		return ObjectiveQuestion{ID: spec.ID, Kind: kind, Points: points, Correct: spec.Correct}, nil
	}
	return SubjectiveQuestion{ID: spec.ID, Kind: kind, Points: points}, nil
}

// NewQuestions builds every question and rejects duplicate ids.
func NewQuestions(specs []QuestionSpec) ([]Question, error) {
	seen := make(map[string]bool, len(specs))
	out := make([]Question, 0, len(specs))
	for _, spec := range specs {
		q, err := NewQuestion(spec)
		if err != nil {
			return nil, err
		}
		if seen[q.QuestionID()] {
			return nil, domain.InvalidAnswer("id", fmt.Sprintf("duplicate question %s", q.QuestionID()))
		}
		seen[q.QuestionID()] = true
		out = append(out, q)
	}
	return out, nil
}
