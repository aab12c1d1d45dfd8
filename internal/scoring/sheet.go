package scoring

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/lingo/internal/domain"
)

// ErrAlreadyFinalized is returned when an answer is finalized or graded twice.
var ErrAlreadyFinalized = fmt.Errorf("answer already finalized: %w", domain.ErrConflict)

// AnswerState tracks one question through an exam.
type AnswerState int

const (
	StateUnanswered AnswerState = iota
	StateAnswered
	StateFinalized
)

func (s AnswerState) String() string {
	switch s {
	case StateUnanswered:
		return "unanswered"
	case StateAnswered:
		return "answered"
	case StateFinalized:
		return "finalized"
	}
	return fmt.Sprintf("AnswerState(%d)", int(s))
}

type sheetEntry struct {
	question Question
	state    AnswerState
	response string
	record   QuestionRecord
}

// Sheet collects responses for a fixed question set. Responses may be
// replaced until the question is finalized; finalization happens once.
type Sheet struct {
	order   []string
	entries map[string]*sheetEntry
}

// NewSheet creates a sheet with every question unanswered.
func NewSheet(questions []Question) *Sheet {
	s := &Sheet{
		order:   make([]string, 0, len(questions)),
		entries: make(map[string]*sheetEntry, len(questions)),
	}
	for _, q := range questions {
		s.order = append(s.order, q.QuestionID())
		s.entries[q.QuestionID()] = &sheetEntry{question: q}
	}
	return s
}

func (s *Sheet) entry(questionID string) (*sheetEntry, error) {
	e, ok := s.entries[questionID]
	if !ok {
		return nil, domain.InvalidAnswer("question_id", fmt.Sprintf("unknown question %q", questionID))
	}
	return e, nil
}

// Answer records a response.
func (s *Sheet) Answer(questionID, response string) error {
	e, err := s.entry(questionID)
	if err != nil {
		return err
	}
	if e.state == StateFinalized {
		return ErrAlreadyFinalized
	}
	e.response = response
	e.state = StateAnswered
	return nil
}

// State returns the current state of a question.
func (s *Sheet) State(questionID string) (AnswerState, error) {
	e, err := s.entry(questionID)
	if err != nil {
		return 0, err
	}
	return e.state, nil
}

// Finalize scores the question and freezes it.
func (s *Sheet) Finalize(questionID string) (QuestionRecord, error) {
	e, err := s.entry(questionID)
	if err != nil {
		return QuestionRecord{}, err
	}
	if e.state == StateFinalized {
		return QuestionRecord{}, ErrAlreadyFinalized
	}

	answered := e.state == StateAnswered
	rec := QuestionRecord{
		QuestionID: questionID,
		Kind:       e.question.QuestionKind(),
		Answer:     e.response,
		Answered:   answered,
		MaxPoints:  e.question.MaxPoints(),
		IsFinal:    true,
	}

	switch q := e.question.(type) {
	case ObjectiveQuestion:
		if answered && matches(q.Kind, e.response, q.Correct) {
			rec.Score = q.Points
			rec.Correct = true
		}
	case SubjectiveQuestion:
		if answered {
			rec.IsFinal = false
			rec.PendingManual = true
		}
	default:
		panic(fmt.Sprintf("scoring: unhandled question type %T", q))
	}

	e.state = StateFinalized
	e.record = rec
	return rec, nil
}

// FinalizeAll finalizes every remaining question and aggregates the result.
func (s *Sheet) FinalizeAll() (*ExamResult, error) {
	result := &ExamResult{Questions: make([]QuestionRecord, 0, len(s.order))}
	for _, id := range s.order {
		e := s.entries[id]
		if e.state != StateFinalized {
			if _, err := s.Finalize(id); err != nil && !errors.Is(err, ErrAlreadyFinalized) {
				return nil, err
			}
		}
		result.add(e.question, e.record)
	}
	result.refresh()
	return result, nil
}
