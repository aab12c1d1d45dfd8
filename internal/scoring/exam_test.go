package scoring

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/lingo/internal/domain"
)

func mustQuestions(t *testing.T, specs []QuestionSpec) []Question {
	t.Helper()
	qs, err := NewQuestions(specs)
	if err != nil {
		t.Fatalf("NewQuestions() error = %v", err)
	}
	return qs
}

func TestScoreExam_MixedObjectiveAndEssay(t *testing.T) {
	qs := mustQuestions(t, []QuestionSpec{
		{ID: "q1", Kind: "multiple_choice", Points: 1, Correct: "b"},
		{ID: "q2", Kind: "true_false", Points: 1, Correct: "true"},
		{ID: "q3", Kind: "fill_blank", Points: 1, Correct: "gegangen"},
		{ID: "q4", Kind: "essay", Points: 5},
	})

	result, err := ScoreExam(qs, []Response{
		{QuestionID: "q1", Answer: "B"},
		{QuestionID: "q2", Answer: "false"},
		{QuestionID: "q3", Answer: " Gegangen. "},
		{QuestionID: "q4", Answer: "Mein Urlaub war ..."},
	})
	if err != nil {
		t.Fatalf("ScoreExam() error = %v", err)
	}

	if result.Percentage == nil || *result.Percentage != 67 {
		t.Errorf("Percentage = %v; want 67", result.Percentage)
	}
	if result.CorrectPoints != 2 || result.TotalObjectivePoints != 3 {
		t.Errorf("points = %v/%v; want 2/3", result.CorrectPoints, result.TotalObjectivePoints)
	}
	if result.PendingManualCount != 1 {
		t.Errorf("PendingManualCount = %d; want 1", result.PendingManualCount)
	}
	if result.PendingManualPoints != 5 {
		t.Errorf("PendingManualPoints = %v; want 5", result.PendingManualPoints)
	}
	if result.Status != StatusPartiallyPending {
		t.Errorf("Status = %q; want %q", result.Status, StatusPartiallyPending)
	}

	essay := result.Questions[3]
	if !essay.PendingManual || essay.IsFinal {
		t.Errorf("essay record = %+v; want pending and not final", essay)
	}
}

func TestScoreExam_OnlySubjective(t *testing.T) {
	qs := mustQuestions(t, []QuestionSpec{
		{ID: "e1", Kind: "essay", Points: 10},
		{ID: "s1", Kind: "speaking_task", Points: 5},
	})

	result, err := ScoreExam(qs, []Response{
		{QuestionID: "e1", Answer: "text"},
		{QuestionID: "s1", Answer: "audio://1"},
	})
	if err != nil {
		t.Fatalf("ScoreExam() error = %v", err)
	}

	if result.Percentage != nil {
		t.Errorf("Percentage = %d; want nil", *result.Percentage)
	}
	if result.Status != StatusPendingManual {
		t.Errorf("Status = %q; want %q", result.Status, StatusPendingManual)
	}
	if result.PendingManualPoints != 15 {
		t.Errorf("PendingManualPoints = %v; want 15", result.PendingManualPoints)
	}
}

func TestScoreExam_UnansweredObjectiveCountsAsZero(t *testing.T) {
	qs := mustQuestions(t, []QuestionSpec{
		{ID: "q1", Kind: "multiple_choice", Points: 2, Correct: "a"},
		{ID: "q2", Kind: "multiple_choice", Points: 2, Correct: "c"},
		{ID: "e1", Kind: "open_ended", Points: 3},
	})

	result, err := ScoreExam(qs, []Response{{QuestionID: "q1", Answer: "a"}})
	if err != nil {
		t.Fatalf("ScoreExam() error = %v", err)
	}
	if *result.Percentage != 50 {
		t.Errorf("Percentage = %d; want 50", *result.Percentage)
	}
	if result.PendingManualCount != 0 {
		t.Errorf("unanswered subjective should not be pending, got %d", result.PendingManualCount)
	}
	if result.Status != StatusScored {
		t.Errorf("Status = %q; want %q", result.Status, StatusScored)
	}
}

func TestScoreExam_UnknownQuestion(t *testing.T) {
	qs := mustQuestions(t, []QuestionSpec{{ID: "q1", Kind: "true_false", Correct: "true"}})
	_, err := ScoreExam(qs, []Response{{QuestionID: "nope", Answer: "x"}})
	if !errors.Is(err, domain.ErrInvalidAnswerFormat) {
		t.Errorf("ScoreExam() error = %v; want ErrInvalidAnswerFormat", err)
	}
}

func TestNewQuestion(t *testing.T) {
	tests := []struct {
		name    string
		spec    QuestionSpec
		wantErr bool
		wantObj bool
	}{
		{"objective", QuestionSpec{ID: "q", Kind: "matching", Correct: "a-1"}, false, true},
		{"subjective", QuestionSpec{ID: "q", Kind: "essay"}, false, false},
		{"unknown kind", QuestionSpec{ID: "q", Kind: "drawing"}, true, false},
		{"missing correct", QuestionSpec{ID: "q", Kind: "fill_blank"}, true, false},
		{"missing id", QuestionSpec{Kind: "essay"}, true, false},
		{"negative points", QuestionSpec{ID: "q", Kind: "essay", Points: -1}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewQuestion(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewQuestion() error = %v; wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			_, isObj := q.(ObjectiveQuestion)
			if isObj != tt.wantObj {
				t.Errorf("objective = %v; want %v", isObj, tt.wantObj)
			}
		})
	}
}

func TestNewQuestions_Duplicate(t *testing.T) {
	_, err := NewQuestions([]QuestionSpec{
		{ID: "q", Kind: "essay"},
		{ID: "q", Kind: "essay"},
	})
	if !errors.Is(err, domain.ErrInvalidAnswerFormat) {
		t.Errorf("NewQuestions() error = %v; want ErrInvalidAnswerFormat", err)
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		kind           Kind
		given, correct string
		want           bool
	}{
		{KindMultipleChoice, " b ", "B", true},
		{KindMultipleChoice, "a", "b", false},
		{KindFillBlank, "Ich  BIN gegangen!", "ich bin gegangen", true},
		{KindMatching, "b-2, a-1", "a-1,b-2", true},
		{KindMatching, "a-2,b-1", "a-1,b-2", false},
	}
	for _, tt := range tests {
		if got := matches(tt.kind, tt.given, tt.correct); got != tt.want {
			t.Errorf("matches(%s, %q, %q) = %v; want %v", tt.kind, tt.given, tt.correct, got, tt.want)
		}
	}
}
