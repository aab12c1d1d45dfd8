// Package storagetest is a conformance suite run against every storage
// backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/lingo/internal/answer"
	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/elo"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/scoring"
	"github.com/felixgeelhaar/lingo/internal/session"
)

// Catalog is the item surface the suite needs.
type Catalog interface {
	PutItem(ctx context.Context, item domain.Item) error
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	ListActive(ctx context.Context, f domain.ItemFilter) ([]domain.Item, error)
}

// Backend bundles the stores of one backend. Each call to a Factory must
// return empty stores.
type Backend struct {
	Ratings  rating.Store
	Ledger   answer.Ledger
	Answers  session.AnswerLister
	Sessions session.Store
	Items    Catalog
}

// Factory creates a fresh backend for one test.
type Factory func(t *testing.T) Backend

var (
	testKey = domain.SkillKey{UserID: "u1", Lang: "de", Exam: "goethe", Skill: "W"}
	t0      = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

// Run executes the suite.
func Run(t *testing.T, newBackend Factory) {
	t.Run("DefaultRating", func(t *testing.T) { testDefaultRating(t, newBackend(t)) })
	t.Run("ApplyDeltas", func(t *testing.T) { testApplyDeltas(t, newBackend(t)) })
	t.Run("ApplyDeltasClamps", func(t *testing.T) { testClamps(t, newBackend(t)) })
	t.Run("ApplyDeltasUnknownItem", func(t *testing.T) { testUnknownItem(t, newBackend(t)) })
	t.Run("CommitAnswer", func(t *testing.T) { testCommit(t, newBackend(t)) })
	t.Run("CommitDuplicate", func(t *testing.T) { testCommitDuplicate(t, newBackend(t)) })
	t.Run("ConcurrentUsersSameItem", func(t *testing.T) { testConcurrent(t, newBackend(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newBackend(t)) })
	t.Run("ListExpired", func(t *testing.T) { testListExpired(t, newBackend(t)) })
	t.Run("Items", func(t *testing.T) { testItems(t, newBackend(t)) })
}

func putItems(t *testing.T, b Backend, items ...domain.Item) {
	t.Helper()
	for _, it := range items {
		if err := b.Items.PutItem(context.Background(), it); err != nil {
			t.Fatalf("PutItem() error = %v", err)
		}
	}
}

func item(id string, elo float64) domain.Item {
	return domain.Item{ID: id, Lang: "de", Level: "B1", Exam: "goethe", SkillScope: []string{"W"}, DifficultyElo: elo, Active: true}
}

func newSession(id, userID string, expiresAt time.Time) *session.Session {
	return &session.Session{
		ID:              id,
		UserID:          userID,
		Lang:            "de",
		Level:           "B1",
		Exam:            "goethe",
		Skill:           "W",
		Mode:            session.ModeSwipe,
		DurationSeconds: 60,
		State:           session.StateCreated,
		StartedAt:       t0,
		ExpiresAt:       expiresAt,
		CreatedAt:       t0,
		UpdatedAt:       t0,
	}
}

func createSession(t *testing.T, b Backend, s *session.Session) {
	t.Helper()
	if err := b.Sessions.Create(context.Background(), s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func request(userVersion, itemVersion int64, userDelta, itemDelta float64) rating.ApplyRequest {
	return rating.ApplyRequest{
		UserKey:     testKey,
		UserDelta:   userDelta,
		UserVersion: userVersion,
		ItemID:      "i1",
		ItemDelta:   itemDelta,
		ItemVersion: itemVersion,
		Min:         100,
		Max:         3000,
		At:          t0,
	}
}

func testDefaultRating(t *testing.T, b Backend) {
	ctx := context.Background()

	r, err := b.Ratings.GetUserRating(ctx, testKey)
	if err != nil {
		t.Fatalf("GetUserRating() error = %v", err)
	}
	if r.Value != domain.DefaultRating || r.Deviation != domain.DefaultDeviation || r.Version != 0 {
		t.Errorf("GetUserRating() = %+v; want default", r)
	}

	again, _ := b.Ratings.GetUserRating(ctx, testKey)
	if again.Persisted() {
		t.Error("reading a default rating must not persist it")
	}

	ir, err := b.Ratings.GetItemRating(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetItemRating() error = %v", err)
	}
	if ir.Value != domain.DefaultRating || ir.Version != 0 {
		t.Errorf("GetItemRating() = %+v; want default", ir)
	}
}

func testApplyDeltas(t *testing.T, b Backend) {
	ctx := context.Background()
	putItems(t, b, item("i1", 1500))

	applied, err := b.Ratings.ApplyDeltas(ctx, request(0, 0, 10, -10))
	if err != nil {
		t.Fatalf("ApplyDeltas() error = %v", err)
	}
	if applied.User.Value != 1510 || applied.Item.Value != 1490 {
		t.Errorf("applied = %v/%v; want 1510/1490", applied.User.Value, applied.Item.Value)
	}
	if applied.User.Version != 1 || applied.Item.Version != 1 {
		t.Errorf("versions = %d/%d; want 1/1", applied.User.Version, applied.Item.Version)
	}

	r, _ := b.Ratings.GetUserRating(ctx, testKey)
	if r.Value != 1510 || r.Version != 1 {
		t.Errorf("stored user rating = %v (v%d); want 1510 (v1)", r.Value, r.Version)
	}
	if !r.LastUpdate.Equal(t0) {
		t.Errorf("LastUpdate = %v; want %v", r.LastUpdate, t0)
	}
	ir, _ := b.Ratings.GetItemRating(ctx, "i1")
	if ir.Value != 1490 || ir.Version != 1 {
		t.Errorf("stored item rating = %v (v%d); want 1490 (v1)", ir.Value, ir.Version)
	}

	// Stale user version.
	if _, err := b.Ratings.ApplyDeltas(ctx, request(0, 1, 10, -10)); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("stale user ApplyDeltas() error = %v; want ErrConflict", err)
	}
	// Stale item version.
	if _, err := b.Ratings.ApplyDeltas(ctx, request(1, 0, 10, -10)); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("stale item ApplyDeltas() error = %v; want ErrConflict", err)
	}

	r, _ = b.Ratings.GetUserRating(ctx, testKey)
	if r.Value != 1510 {
		t.Errorf("conflicting updates changed the rating to %v", r.Value)
	}

	if _, err := b.Ratings.ApplyDeltas(ctx, request(1, 1, 5, -5)); err != nil {
		t.Errorf("fresh ApplyDeltas() error = %v", err)
	}
}

func testClamps(t *testing.T, b Backend) {
	putItems(t, b, item("i1", 110))

	applied, err := b.Ratings.ApplyDeltas(context.Background(), request(0, 0, 2000, -50))
	if err != nil {
		t.Fatalf("ApplyDeltas() error = %v", err)
	}
	if applied.User.Value != 3000 || applied.UserDelta != 1500 {
		t.Errorf("user = %v (delta %v); want 3000 (delta 1500)", applied.User.Value, applied.UserDelta)
	}
	if applied.Item.Value != 100 || applied.ItemDelta != -10 {
		t.Errorf("item = %v (delta %v); want 100 (delta -10)", applied.Item.Value, applied.ItemDelta)
	}
}

func testUnknownItem(t *testing.T, b Backend) {
	ctx := context.Background()
	req := request(0, 0, 10, -10)
	req.ItemID = "ghost"

	if _, err := b.Ratings.ApplyDeltas(ctx, req); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("ApplyDeltas() error = %v; want ErrItemNotFound", err)
	}
	if r, _ := b.Ratings.GetUserRating(ctx, testKey); r.Persisted() {
		t.Error("failed update must not persist a user rating")
	}
}

func answerFor(id, sessionID string, shown time.Time) *domain.Answer {
	return &domain.Answer{
		ID:             id,
		SessionID:      sessionID,
		UserID:         "u1",
		ItemID:         "i1",
		Lang:           "de",
		Level:          "B1",
		Exam:           "goethe",
		Skill:          "W",
		Tags:           []string{"dativ"},
		UserChoice:     "dem",
		Correct:        true,
		ScoreDelta:     1,
		ShownAt:        shown,
		AnsweredAt:     shown.Add(1200 * time.Millisecond),
		LatencyMs:      1200,
		ItemDifficulty: 1500,
		ContentVersion: "v3",
		AppVersion:     "1.4.0",
		CreatedAt:      shown.Add(2 * time.Second),
	}
}

func testCommit(t *testing.T, b Backend) {
	ctx := context.Background()
	putItems(t, b, item("i1", 1500))
	createSession(t, b, newSession("s1", "u1", t0.Add(time.Hour)))

	first := answerFor("a1", "s1", t0)
	applied, err := b.Ledger.Commit(ctx, request(0, 0, 10, -10), first)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if first.EloUserDelta != 10 || first.UserRatingAfter != 1510 || first.ItemRatingAfter != 1490 {
		t.Errorf("answer not stamped: %+v", first)
	}
	if applied.User.Version != 1 {
		t.Errorf("user version = %d; want 1", applied.User.Version)
	}

	second := answerFor("a2", "s1", t0.Add(5*time.Second))
	second.Correct = false
	second.Tags = nil
	if _, err := b.Ledger.Commit(ctx, request(1, 1, -10, 10), second); err != nil {
		t.Fatalf("Commit() second error = %v", err)
	}

	got, err := b.Ledger.GetAnswer(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAnswer() error = %v", err)
	}
	if !got.SameSubmission(first) {
		t.Errorf("GetAnswer() = %+v; want %+v", got, first)
	}
	if got.ContentVersion != "v3" || got.AppVersion != "1.4.0" || got.ItemDifficulty != 1500 {
		t.Errorf("metadata = %q/%q/%v; want v3/1.4.0/1500", got.ContentVersion, got.AppVersion, got.ItemDifficulty)
	}
	if got.EloItemDelta != -10 || got.ItemRatingAfter != 1490 {
		t.Errorf("stored deltas = %v/%v; want -10/1490", got.EloItemDelta, got.ItemRatingAfter)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v; want %v", got.CreatedAt, first.CreatedAt)
	}

	list, err := b.Answers.ListBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "a1" || list[1].ID != "a2" {
		t.Fatalf("ListBySession() = %v; want [a1 a2]", ids(list))
	}
	if list[1].Correct {
		t.Error("second answer should be incorrect")
	}

	if _, err := b.Ledger.GetAnswer(ctx, "missing"); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Errorf("GetAnswer() missing error = %v; want ErrAnswerNotFound", err)
	}
	if empty, err := b.Answers.ListBySession(ctx, "none"); err != nil || len(empty) != 0 {
		t.Errorf("ListBySession(none) = %v, %v; want empty", empty, err)
	}
}

func ids(answers []*domain.Answer) []string {
	out := make([]string, len(answers))
	for i, a := range answers {
		out[i] = a.ID
	}
	return out
}

func testCommitDuplicate(t *testing.T, b Backend) {
	ctx := context.Background()
	putItems(t, b, item("i1", 1500))
	createSession(t, b, newSession("s1", "u1", t0.Add(time.Hour)))

	if _, err := b.Ledger.Commit(ctx, request(0, 0, 10, -10), answerFor("a1", "s1", t0)); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	_, err := b.Ledger.Commit(ctx, request(1, 1, 10, -10), answerFor("a1", "s1", t0))
	if !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("Commit() duplicate error = %v; want ErrDuplicateAnswer", err)
	}

	// The rejected commit must not have moved ratings.
	r, _ := b.Ratings.GetUserRating(ctx, testKey)
	if r.Value != 1510 || r.Version != 1 {
		t.Errorf("user rating = %v (v%d); want 1510 (v1)", r.Value, r.Version)
	}
	list, _ := b.Answers.ListBySession(ctx, "s1")
	if len(list) != 1 {
		t.Errorf("ListBySession() = %d answers; want 1", len(list))
	}

	// A stale commit writes nothing either.
	_, err = b.Ledger.Commit(ctx, request(0, 0, 10, -10), answerFor("a2", "s1", t0))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Commit() stale error = %v; want ErrConflict", err)
	}
	if _, err := b.Ledger.GetAnswer(ctx, "a2"); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Errorf("conflicting commit stored its answer: %v", err)
	}
}

func testConcurrent(t *testing.T, b Backend) {
	ctx := context.Background()
	putItems(t, b, item("i1", 1500))
	updater := rating.NewUpdater(b.Ratings, elo.DefaultEngine(), rating.UpdaterConfig{
		MaxAttempts:  50,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	})

	const users = 12
	var wg sync.WaitGroup
	for i := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := testKey
			key.UserID = fmt.Sprintf("user-%02d", i)
			if _, err := updater.Apply(ctx, rating.UpdateRequest{UserKey: key, ItemID: "i1", Outcome: 0, At: t0}); err != nil {
				t.Errorf("Apply() error = %v", err)
			}
		}()
	}
	wg.Wait()

	it, err := b.Items.GetItem(ctx, "i1")
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if it.Version != users {
		t.Errorf("item version = %d; want %d (one per update)", it.Version, users)
	}
	if it.DifficultyElo <= 1500 {
		t.Errorf("item difficulty = %v; want above 1500 after failures", it.DifficultyElo)
	}
}

func testSessions(t *testing.T, b Backend) {
	ctx := context.Background()

	s := newSession("s1", "u1", t0.Add(90*time.Second))
	s.Tag = "dativ"
	createSession(t, b, s)
	if s.Version != 1 {
		t.Errorf("Version after Create = %d; want 1", s.Version)
	}
	if err := b.Sessions.Create(ctx, newSession("s1", "u1", t0)); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate Create() error = %v; want ErrConflict", err)
	}

	got, err := b.Sessions.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Tag != "dativ" || got.Mode != session.ModeSwipe || got.DurationSeconds != 60 {
		t.Errorf("Get() = %+v", got)
	}
	if !got.ExpiresAt.Equal(s.ExpiresAt) || !got.StartedAt.Equal(t0) {
		t.Errorf("times = %v/%v; want %v/%v", got.StartedAt, got.ExpiresAt, t0, s.ExpiresAt)
	}

	stale := got.Clone()

	ended := t0.Add(time.Minute)
	got.State = session.StateCompleted
	got.EndedAt = &ended
	got.Summary = &scoring.SwipeSummary{Total: 3, Correct: 2, Incorrect: 1, AccuracyPct: 66.7}
	got.AnswerCount = 3
	pct := 50
	got.ExamResult = &scoring.ExamResult{
		CorrectPoints:        1,
		TotalObjectivePoints: 2,
		Percentage:           &pct,
		Status:               scoring.StatusPartiallyPending,
		PendingManualCount:   1,
		PendingManualPoints:  5,
		Questions: []scoring.QuestionRecord{
			{QuestionID: "e1", Kind: scoring.KindEssay, Answer: "text", Answered: true, MaxPoints: 5, PendingManual: true},
		},
	}
	got.UpdatedAt = ended
	if err := b.Sessions.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Version after Update = %d; want 2", got.Version)
	}

	stale.State = session.StateInProgress
	if err := b.Sessions.Update(ctx, stale); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("stale Update() error = %v; want ErrConflict", err)
	}

	reloaded, _ := b.Sessions.Get(ctx, "s1")
	if reloaded.State != session.StateCompleted {
		t.Errorf("State = %q; want %q", reloaded.State, session.StateCompleted)
	}
	if reloaded.EndedAt == nil || !reloaded.EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v; want %v", reloaded.EndedAt, ended)
	}
	if reloaded.Summary == nil || *reloaded.Summary != *got.Summary {
		t.Errorf("Summary = %+v; want %+v", reloaded.Summary, got.Summary)
	}
	if reloaded.AnswerCount != 3 {
		t.Errorf("AnswerCount = %d; want 3", reloaded.AnswerCount)
	}
	exam := reloaded.ExamResult
	if exam == nil || exam.Percentage == nil || *exam.Percentage != 50 || exam.PendingManualCount != 1 {
		t.Fatalf("ExamResult = %+v; want the stored result", exam)
	}
	if len(exam.Questions) != 1 || exam.Questions[0] != got.ExamResult.Questions[0] {
		t.Errorf("ExamResult.Questions = %+v; want %+v", exam.Questions, got.ExamResult.Questions)
	}

	if _, err := b.Sessions.Get(ctx, "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Get() error = %v; want ErrSessionNotFound", err)
	}
	missing := newSession("nope", "u1", t0)
	missing.Version = 1
	if err := b.Sessions.Update(ctx, missing); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Update() missing error = %v; want ErrSessionNotFound", err)
	}
}

func testListExpired(t *testing.T, b Backend) {
	ctx := context.Background()
	now := t0.Add(10 * time.Minute)

	createSession(t, b, newSession("late", "u1", t0.Add(5*time.Minute)))
	createSession(t, b, newSession("early", "u1", t0.Add(time.Minute)))
	createSession(t, b, newSession("running", "u1", t0.Add(time.Hour)))

	done := newSession("done", "u1", t0.Add(time.Minute))
	createSession(t, b, done)
	done.State = session.StateCompleted
	if err := b.Sessions.Update(ctx, done); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	expired, err := b.Sessions.ListExpired(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListExpired() error = %v", err)
	}
	if len(expired) != 2 || expired[0].ID != "early" || expired[1].ID != "late" {
		got := make([]string, len(expired))
		for i, s := range expired {
			got[i] = s.ID
		}
		t.Errorf("ListExpired() = %v; want [early late]", got)
	}

	limited, _ := b.Sessions.ListExpired(ctx, now, 1)
	if len(limited) != 1 {
		t.Errorf("ListExpired(limit 1) = %d sessions; want 1", len(limited))
	}
}

func testItems(t *testing.T, b Backend) {
	ctx := context.Background()

	tagged := item("b", 1600)
	tagged.Tags = []string{"dativ"}
	other := item("x", 1500)
	other.SkillScope = []string{"L"}
	inactive := item("c", 1500)
	inactive.Active = false
	noElo := item("a", 0)
	noElo.ContentVersion = "v1"
	putItems(t, b, tagged, noElo, inactive, other)

	filter := domain.ItemFilter{Lang: "de", Level: "B1", Exam: "goethe", Skill: "W"}
	items, err := b.Items.ListActive(ctx, filter)
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != "a" || items[1].ID != "b" {
		t.Fatalf("ListActive() = %v; want [a b]", items)
	}
	if items[0].DifficultyElo != domain.DefaultRating {
		t.Errorf("default difficulty = %v; want %v", items[0].DifficultyElo, domain.DefaultRating)
	}

	filter.Tag = "dativ"
	items, _ = b.Items.ListActive(ctx, filter)
	if len(items) != 1 || items[0].ID != "b" {
		t.Errorf("ListActive(tag) = %v; want [b]", items)
	}

	got, err := b.Items.GetItem(ctx, "a")
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if got.ContentVersion != "v1" || got.Version != 0 {
		t.Errorf("GetItem() = %+v", got)
	}

	noElo.Active = false
	putItems(t, b, noElo)
	got, _ = b.Items.GetItem(ctx, "a")
	if got.Active || got.Version != 1 {
		t.Errorf("replaced item = active %v version %d; want false/1", got.Active, got.Version)
	}

	if _, err := b.Items.GetItem(ctx, "ghost"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("GetItem() error = %v; want ErrItemNotFound", err)
	}
}
