package scoring

import (
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
)

// SwipeSummary is the end-of-session summary for swipe practice.
type SwipeSummary struct {
	Total           int     `json:"total"`
	Correct         int     `json:"correct"`
	Incorrect       int     `json:"incorrect"`
	ScoreSum        float64 `json:"score_sum"`
	AccuracyPct     float64 `json:"accuracy_pct"`
	ItemsPerMin     float64 `json:"items_per_min"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// SummarizeSwipe aggregates answers collected between startedAt and endedAt.
func SummarizeSwipe(answers []*domain.Answer, startedAt, endedAt time.Time) SwipeSummary {
	var s SwipeSummary
	for _, a := range answers {
		s.Total++
		s.ScoreSum += a.ScoreDelta
		if a.Correct {
			s.Correct++
		} else {
			s.Incorrect++
		}
	}

	if s.Total > 0 {
		s.AccuracyPct = float64(s.Correct) / float64(s.Total) * 100
	}

	elapsed := endedAt.Sub(startedAt)
	if elapsed > 0 {
		s.DurationSeconds = elapsed.Seconds()
		s.ItemsPerMin = float64(s.Total) / elapsed.Minutes()
	}
	return s
}
