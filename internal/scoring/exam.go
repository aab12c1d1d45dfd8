package scoring

import "math"

// Exam result statuses.
const (
	StatusScored           = "scored"
	StatusPartiallyPending = "partially_pending"
	StatusPendingManual    = "pending_manual"
)

// Response is a submitted answer to one question.
type Response struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// QuestionRecord is the final per-question record of an exam.
type QuestionRecord struct {
	QuestionID    string  `json:"question_id"`
	Kind          Kind    `json:"kind"`
	Answer        string  `json:"answer,omitempty"`
	Answered      bool    `json:"answered"`
	Correct       bool    `json:"correct"`
	MaxPoints     float64 `json:"max_points"`
	Score         float64 `json:"score"`
	IsFinal       bool    `json:"is_final"`
	PendingManual bool    `json:"pending_manual"`
}

// ExamResult aggregates an exam. Percentage covers objective questions only
// and is nil when there are no objective points to score.
type ExamResult struct {
	CorrectPoints        float64          `json:"correct_points"`
	TotalObjectivePoints float64          `json:"total_objective_points"`
	Percentage           *int             `json:"percentage"`
	Status               string           `json:"status"`
	PendingManualCount   int              `json:"pending_manual_count"`
	PendingManualPoints  float64          `json:"pending_manual_points"`
	ManualPoints         float64          `json:"manual_points"`
	ManualMaxPoints      float64          `json:"manual_max_points"`
	FinalPercentage      *int             `json:"final_percentage,omitempty"`
	Questions            []QuestionRecord `json:"questions"`
}

// ScoreExam scores responses against questions. Responses for unknown
// questions are rejected; a later response to the same question replaces an
// earlier one.
func ScoreExam(questions []Question, responses []Response) (*ExamResult, error) {
	sheet := NewSheet(questions)
	for _, r := range responses {
		if err := sheet.Answer(r.QuestionID, r.Answer); err != nil {
			return nil, err
		}
	}
	return sheet.FinalizeAll()
}

// Clone returns a deep copy. A nil result clones to nil.
func (r *ExamResult) Clone() *ExamResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Percentage = clonePercent(r.Percentage)
	c.FinalPercentage = clonePercent(r.FinalPercentage)
	c.Questions = append([]QuestionRecord(nil), r.Questions...)
	return &c
}

func clonePercent(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (r *ExamResult) add(q Question, rec QuestionRecord) {
	switch q.(type) {
	case ObjectiveQuestion:
		r.TotalObjectivePoints += rec.MaxPoints
		r.CorrectPoints += rec.Score
	case SubjectiveQuestion:
		if rec.PendingManual {
			r.PendingManualCount++
			r.PendingManualPoints += rec.MaxPoints
		}
	}
	r.Questions = append(r.Questions, rec)
}

// refresh recomputes percentages and status from the totals.
func (r *ExamResult) refresh() {
	r.Percentage = percent(r.CorrectPoints, r.TotalObjectivePoints)

	switch {
	case r.PendingManualCount > 0 && r.TotalObjectivePoints == 0:
		r.Status = StatusPendingManual
	case r.PendingManualCount > 0:
		r.Status = StatusPartiallyPending
	case r.TotalObjectivePoints == 0 && r.ManualMaxPoints == 0:
		r.Status = StatusPendingManual
	default:
		r.Status = StatusScored
	}

	r.FinalPercentage = nil
	if r.Status == StatusScored {
		r.FinalPercentage = percent(r.CorrectPoints+r.ManualPoints, r.TotalObjectivePoints+r.ManualMaxPoints)
	}
}

func percent(got, total float64) *int {
	if total <= 0 {
		return nil
	}
	p := int(math.Round(got / total * 100))
	return &p
}
