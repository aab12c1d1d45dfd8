package scoring

import (
	"fmt"

	"github.com/felixgeelhaar/lingo/internal/domain"
)

// ApplyManualGrade records a human grade for a pending subjective answer and
// updates the result totals in place.
func ApplyManualGrade(result *ExamResult, questionID string, points float64) error {
	for i := range result.Questions {
		rec := &result.Questions[i]
		if rec.QuestionID != questionID {
			continue
		}
		if !rec.PendingManual || rec.IsFinal {
			return ErrAlreadyFinalized
		}
		if points < 0 || points > rec.MaxPoints {
			return domain.InvalidAnswer("points", fmt.Sprintf("must be between 0 and %g", rec.MaxPoints))
		}

		rec.Score = points
		rec.IsFinal = true
		rec.PendingManual = false

		result.PendingManualCount--
		result.PendingManualPoints -= rec.MaxPoints
		result.ManualPoints += points
		result.ManualMaxPoints += rec.MaxPoints
		result.refresh()
		return nil
	}
	return domain.InvalidAnswer("question_id", fmt.Sprintf("unknown question %q", questionID))
}

// ManualGrade is a human grade for one subjective question.
type ManualGrade struct {
	QuestionID string  `json:"question_id"`
	Points     float64 `json:"points"`
}

// ApplyManualGrades grades a copy of result and returns it. Any rejected
// grade discards the whole batch and result is left untouched.
func ApplyManualGrades(result *ExamResult, grades []ManualGrade) (*ExamResult, error) {
	graded := result.Clone()
	for _, g := range grades {
		if err := ApplyManualGrade(graded, g.QuestionID, g.Points); err != nil {
			return nil, err
		}
	}
	return graded, nil
}
