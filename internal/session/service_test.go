package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/scoring"
	"github.com/felixgeelhaar/lingo/internal/session"
	"github.com/felixgeelhaar/lingo/internal/storage/memory"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func setupManager(t *testing.T) (*session.Manager, *memory.Store, *domain.FixedClock, *recorder) {
	t.Helper()
	store := memory.New(time.Second)
	clock := domain.NewFixedClock(t0)
	events := &recorder{}
	cfg := session.DefaultConfig()
	cfg.Clock = clock
	cfg.Events = events
	return session.NewManager(store, store, cfg), store, clock, events
}

func startRequest() session.StartRequest {
	return session.StartRequest{
		UserID:          "u1",
		Lang:            "de",
		Level:           "B1",
		Exam:            "goethe",
		Skill:           "W",
		DurationSeconds: 60,
	}
}

func mustStart(t *testing.T, m *session.Manager) *session.Session {
	t.Helper()
	s, err := m.Start(context.Background(), startRequest())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return s
}

// record inserts an answer directly into the ledger.
func record(t *testing.T, store *memory.Store, s *session.Session, id string, correct bool) {
	t.Helper()
	ctx := context.Background()
	if err := store.PutItem(ctx, domain.Item{ID: "item-" + id, Active: true}); err != nil {
		t.Fatalf("PutItem() error = %v", err)
	}
	ans := &domain.Answer{ID: id, SessionID: s.ID, UserID: s.UserID, ItemID: "item-" + id, Correct: correct, ScoreDelta: 1}
	req := rating.ApplyRequest{UserKey: s.SkillKey(), ItemID: ans.ItemID, Min: 100, Max: 3000, At: t0}
	user, _ := store.GetUserRating(ctx, req.UserKey)
	req.UserVersion = user.Version
	if _, err := store.Commit(ctx, req, ans); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func TestManager_Start(t *testing.T) {
	m, store, _, events := setupManager(t)

	s := mustStart(t, m)
	if s.State != session.StateCreated {
		t.Errorf("State = %q; want %q", s.State, session.StateCreated)
	}
	if s.Mode != session.ModeSwipe {
		t.Errorf("Mode = %q; want %q", s.Mode, session.ModeSwipe)
	}
	if !s.StartedAt.Equal(t0) {
		t.Errorf("StartedAt = %v; want %v", s.StartedAt, t0)
	}

	stored, err := store.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Version != 1 {
		t.Errorf("Version = %d; want 1", stored.Version)
	}
	if got := events.types(); len(got) != 1 || got[0] != domain.EventSessionStarted {
		t.Errorf("events = %v; want [%s]", got, domain.EventSessionStarted)
	}
}

func TestManager_Start_Invalid(t *testing.T) {
	m, _, _, _ := setupManager(t)

	req := startRequest()
	req.DurationSeconds = -1
	if _, err := m.Start(context.Background(), req); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Start() error = %v; want ErrInvalidConfig", err)
	}
}

func TestManager_Get(t *testing.T) {
	m, _, _, _ := setupManager(t)
	s := mustStart(t, m)
	ctx := context.Background()

	if _, err := m.Get(ctx, s.ID, "u1"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := m.Get(ctx, s.ID, "u2"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Get() other user error = %v; want ErrForbidden", err)
	}
	if _, err := m.Get(ctx, "missing", ""); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Get() missing error = %v; want ErrSessionNotFound", err)
	}
}

func TestManager_Accept(t *testing.T) {
	m, store, _, _ := setupManager(t)
	s := mustStart(t, m)
	ctx := context.Background()

	called := false
	err := m.Accept(ctx, s.ID, "u1", func(_ context.Context, got *session.Session) error {
		called = true
		if got.State != session.StateCreated {
			t.Errorf("State inside Accept = %q; want %q", got.State, session.StateCreated)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if !called {
		t.Fatal("Accept() did not run fn")
	}

	stored, _ := store.Get(ctx, s.ID)
	if stored.State != session.StateInProgress {
		t.Errorf("stored State = %q; want %q", stored.State, session.StateInProgress)
	}
	if stored.AnswerCount != 1 {
		t.Errorf("AnswerCount = %d; want 1", stored.AnswerCount)
	}

	if err := m.Accept(ctx, s.ID, "u1", func(context.Context, *session.Session) error { return nil }); err != nil {
		t.Fatalf("Accept() second error = %v", err)
	}
	stored, _ = store.Get(ctx, s.ID)
	if stored.AnswerCount != 2 || stored.State != session.StateInProgress {
		t.Errorf("after second answer = %d/%q; want 2/%q", stored.AnswerCount, stored.State, session.StateInProgress)
	}
}

func TestManager_Accept_FailedAnswerLeavesSession(t *testing.T) {
	m, store, _, _ := setupManager(t)
	s := mustStart(t, m)
	ctx := context.Background()

	errRejected := errors.New("rejected")
	err := m.Accept(ctx, s.ID, "u1", func(context.Context, *session.Session) error { return errRejected })
	if !errors.Is(err, errRejected) {
		t.Fatalf("Accept() error = %v; want %v", err, errRejected)
	}

	stored, _ := store.Get(ctx, s.ID)
	if stored.State != session.StateCreated {
		t.Errorf("State = %q; want %q", stored.State, session.StateCreated)
	}
	if stored.AnswerCount != 0 {
		t.Errorf("AnswerCount = %d; want 0", stored.AnswerCount)
	}
	if stored.Version != 1 {
		t.Errorf("Version = %d; want 1", stored.Version)
	}
}

func TestManager_Accept_Rejections(t *testing.T) {
	ctx := context.Background()
	noop := func(context.Context, *session.Session) error { return nil }

	t.Run("forbidden", func(t *testing.T) {
		m, _, _, _ := setupManager(t)
		s := mustStart(t, m)
		if err := m.Accept(ctx, s.ID, "u2", noop); !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("Accept() error = %v; want ErrForbidden", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		m, _, _, _ := setupManager(t)
		if err := m.Accept(ctx, "nope", "u1", noop); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Errorf("Accept() error = %v; want ErrSessionNotFound", err)
		}
	})

	t.Run("completed", func(t *testing.T) {
		m, _, _, _ := setupManager(t)
		s := mustStart(t, m)
		if _, err := m.End(ctx, session.EndRequest{SessionID: s.ID, UserID: "u1"}); err != nil {
			t.Fatalf("End() error = %v", err)
		}
		if err := m.Accept(ctx, s.ID, "u1", noop); !errors.Is(err, domain.ErrSessionCompleted) {
			t.Errorf("Accept() error = %v; want ErrSessionCompleted", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		m, store, clock, events := setupManager(t)
		s := mustStart(t, m)
		clock.Advance(2 * time.Minute)

		if err := m.Accept(ctx, s.ID, "u1", noop); !errors.Is(err, domain.ErrSessionCompleted) {
			t.Fatalf("Accept() error = %v; want ErrSessionCompleted", err)
		}
		stored, _ := store.Get(ctx, s.ID)
		if !stored.Completed() {
			t.Fatal("expired session should be completed")
		}
		if !stored.EndedAt.Equal(s.Deadline()) {
			t.Errorf("EndedAt = %v; want deadline %v", stored.EndedAt, s.Deadline())
		}
		types := events.types()
		if types[len(types)-1] != domain.EventSessionCompleted {
			t.Errorf("last event = %q; want %q", types[len(types)-1], domain.EventSessionCompleted)
		}
	})

	t.Run("within grace", func(t *testing.T) {
		m, _, clock, _ := setupManager(t)
		s := mustStart(t, m)
		clock.Advance(80 * time.Second)
		if err := m.Accept(ctx, s.ID, "u1", noop); err != nil {
			t.Errorf("Accept() within grace error = %v", err)
		}
	})
}

func TestManager_End_SynthesizesSummary(t *testing.T) {
	m, store, clock, _ := setupManager(t)
	s := mustStart(t, m)

	record(t, store, s, "a1", true)
	record(t, store, s, "a2", true)
	record(t, store, s, "a3", false)
	clock.Advance(30 * time.Second)

	ended, err := m.End(context.Background(), session.EndRequest{SessionID: s.ID, UserID: "u1"})
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.State != session.StateCompleted {
		t.Errorf("State = %q; want %q", ended.State, session.StateCompleted)
	}
	sum := ended.Summary
	if sum.Total != 3 || sum.Correct != 2 || sum.Incorrect != 1 {
		t.Errorf("summary counts = %d/%d/%d; want 3/2/1", sum.Total, sum.Correct, sum.Incorrect)
	}
	if sum.DurationSeconds != 30 {
		t.Errorf("DurationSeconds = %v; want 30", sum.DurationSeconds)
	}
	if sum.ItemsPerMin != 6 {
		t.Errorf("ItemsPerMin = %v; want 6", sum.ItemsPerMin)
	}
}

func TestManager_End_Idempotent(t *testing.T) {
	m, _, _, events := setupManager(t)
	s := mustStart(t, m)
	ctx := context.Background()

	summary := &scoring.SwipeSummary{Total: 4, Correct: 3, Incorrect: 1, AccuracyPct: 75}
	first, err := m.End(ctx, session.EndRequest{SessionID: s.ID, UserID: "u1", Summary: summary})
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}

	again, err := m.End(ctx, session.EndRequest{SessionID: s.ID, UserID: "u1", Summary: summary})
	if err != nil {
		t.Fatalf("End() repeat error = %v", err)
	}
	if !again.EndedAt.Equal(*first.EndedAt) {
		t.Errorf("repeat EndedAt = %v; want %v", again.EndedAt, first.EndedAt)
	}

	if _, err := m.End(ctx, session.EndRequest{SessionID: s.ID, UserID: "u1"}); err != nil {
		t.Errorf("End() without summary error = %v", err)
	}

	other := &scoring.SwipeSummary{Total: 1}
	if _, err := m.End(ctx, session.EndRequest{SessionID: s.ID, UserID: "u1", Summary: other}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("End() different summary error = %v; want ErrConflict", err)
	}

	completed := 0
	for _, typ := range events.types() {
		if typ == domain.EventSessionCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("session.completed events = %d; want 1", completed)
	}
}

func TestManager_End_Errors(t *testing.T) {
	m, _, _, _ := setupManager(t)
	s := mustStart(t, m)
	ctx := context.Background()

	if _, err := m.End(ctx, session.EndRequest{SessionID: s.ID, UserID: "u2"}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("End() other user error = %v; want ErrForbidden", err)
	}
	early := session.EndRequest{SessionID: s.ID, UserID: "u1", EndedAt: t0.Add(-time.Second)}
	if _, err := m.End(ctx, early); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("End() before start error = %v; want ErrInvalidConfig", err)
	}
	if _, err := m.End(ctx, session.EndRequest{SessionID: "missing"}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("End() missing error = %v; want ErrSessionNotFound", err)
	}
}

func TestManager_End_LateRequestEndsAtDeadline(t *testing.T) {
	m, store, clock, _ := setupManager(t)
	s := mustStart(t, m)

	record(t, store, s, "a1", true)
	record(t, store, s, "a2", true)
	record(t, store, s, "a3", false)
	clock.Advance(10 * time.Minute)

	ended, err := m.End(context.Background(), session.EndRequest{SessionID: s.ID, UserID: "u1"})
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if !ended.EndedAt.Equal(s.Deadline()) {
		t.Errorf("EndedAt = %v; want deadline %v", ended.EndedAt, s.Deadline())
	}
	if ended.Summary.DurationSeconds != 60 {
		t.Errorf("DurationSeconds = %v; want 60", ended.Summary.DurationSeconds)
	}
	if ended.Summary.ItemsPerMin != 3 {
		t.Errorf("ItemsPerMin = %v; want 3", ended.Summary.ItemsPerMin)
	}
}

func TestManager_End_WithinGraceKeepsRequestTime(t *testing.T) {
	m, _, clock, _ := setupManager(t)
	s := mustStart(t, m)
	clock.Advance(75 * time.Second)

	ended, err := m.End(context.Background(), session.EndRequest{SessionID: s.ID, UserID: "u1"})
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if want := t0.Add(75 * time.Second); !ended.EndedAt.Equal(want) {
		t.Errorf("EndedAt = %v; want %v", ended.EndedAt, want)
	}
}

func examResult(t *testing.T) *scoring.ExamResult {
	t.Helper()
	qs, err := scoring.NewQuestions([]scoring.QuestionSpec{
		{ID: "q1", Kind: "multiple_choice", Points: 1, Correct: "a"},
		{ID: "e1", Kind: "essay", Points: 5},
	})
	if err != nil {
		t.Fatalf("NewQuestions() error = %v", err)
	}
	result, err := scoring.ScoreExam(qs, []scoring.Response{
		{QuestionID: "q1", Answer: "a"},
		{QuestionID: "e1", Answer: "Ich schreibe..."},
	})
	if err != nil {
		t.Fatalf("ScoreExam() error = %v", err)
	}
	return result
}

func startExam(t *testing.T, m *session.Manager) *session.Session {
	t.Helper()
	req := startRequest()
	req.Mode = session.ModeExam
	s, err := m.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return s
}

func TestManager_RecordExam(t *testing.T) {
	m, store, clock, _ := setupManager(t)
	s := startExam(t, m)
	ctx := context.Background()
	clock.Advance(20 * time.Second)

	scored, err := m.RecordExam(ctx, s.ID, "u1", examResult(t))
	if err != nil {
		t.Fatalf("RecordExam() error = %v", err)
	}
	if !scored.Completed() {
		t.Errorf("State = %q; want %q", scored.State, session.StateCompleted)
	}

	stored, _ := store.Get(ctx, s.ID)
	if stored.ExamResult == nil || stored.ExamResult.PendingManualCount != 1 {
		t.Fatalf("stored ExamResult = %+v; want one pending question", stored.ExamResult)
	}

	if _, err := m.RecordExam(ctx, s.ID, "u1", examResult(t)); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("RecordExam() again error = %v; want ErrConflict", err)
	}
	if _, err := m.RecordExam(ctx, s.ID, "u2", examResult(t)); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("RecordExam() other user error = %v; want ErrForbidden", err)
	}

	swipe := mustStart(t, m)
	if _, err := m.RecordExam(ctx, swipe.ID, "u1", examResult(t)); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("RecordExam() on swipe session error = %v; want ErrInvalidConfig", err)
	}
}

func TestManager_GradeExam(t *testing.T) {
	m, store, _, _ := setupManager(t)
	s := startExam(t, m)
	ctx := context.Background()

	if _, err := m.GradeExam(ctx, s.ID, "u1", []scoring.ManualGrade{{QuestionID: "e1", Points: 4}}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("GradeExam() before scoring error = %v; want ErrInvalidConfig", err)
	}

	if _, err := m.RecordExam(ctx, s.ID, "u1", examResult(t)); err != nil {
		t.Fatalf("RecordExam() error = %v", err)
	}

	graded, err := m.GradeExam(ctx, s.ID, "", []scoring.ManualGrade{{QuestionID: "e1", Points: 4}})
	if err != nil {
		t.Fatalf("GradeExam() error = %v", err)
	}
	if graded.Status != scoring.StatusScored || *graded.FinalPercentage != 83 {
		t.Errorf("graded = %q/%v; want scored/83", graded.Status, graded.FinalPercentage)
	}

	stored, _ := store.Get(ctx, s.ID)
	if stored.ExamResult.Status != scoring.StatusScored {
		t.Errorf("stored Status = %q; want %q", stored.ExamResult.Status, scoring.StatusScored)
	}

	_, err = m.GradeExam(ctx, s.ID, "", []scoring.ManualGrade{{QuestionID: "e1", Points: 1}})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("GradeExam() regrade error = %v; want ErrConflict", err)
	}
	stored, _ = store.Get(ctx, s.ID)
	if stored.ExamResult.ManualPoints != 4 {
		t.Errorf("ManualPoints after regrade = %v; want 4", stored.ExamResult.ManualPoints)
	}
}

func TestManager_Sweep(t *testing.T) {
	m, store, clock, _ := setupManager(t)
	ctx := context.Background()

	abandoned := mustStart(t, m)
	record(t, store, abandoned, "a1", true)

	clock.Advance(10 * time.Minute)
	fresh := mustStart(t, m)

	n, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep() = %d; want 1", n)
	}

	got, _ := store.Get(ctx, abandoned.ID)
	if !got.Completed() {
		t.Fatal("abandoned session should be completed")
	}
	if got.Summary.Total != 1 {
		t.Errorf("summary Total = %d; want 1", got.Summary.Total)
	}
	if got.Summary.DurationSeconds != 60 {
		t.Errorf("summary DurationSeconds = %v; want 60", got.Summary.DurationSeconds)
	}

	if still, _ := store.Get(ctx, fresh.ID); still.Completed() {
		t.Error("running session should not be swept")
	}

	if n, _ := m.Sweep(ctx); n != 0 {
		t.Errorf("second Sweep() = %d; want 0", n)
	}
}

func TestManager_RunSweeper_StopsOnCancel(t *testing.T) {
	m, _, _, _ := setupManager(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSweeper did not stop after cancel")
	}
}
