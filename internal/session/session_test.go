package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/scoring"
)

func validStart() StartRequest {
	return StartRequest{
		UserID:          "u1",
		Lang:            "de",
		Level:           "B1",
		Exam:            "goethe",
		Skill:           "W",
		DurationSeconds: 300,
	}
}

func TestStartRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*StartRequest)
		field  string
	}{
		{"valid", func(*StartRequest) {}, ""},
		{"missing user", func(r *StartRequest) { r.UserID = "" }, "user_id"},
		{"blank skill", func(r *StartRequest) { r.Skill = "  " }, "skill"},
		{"zero duration", func(r *StartRequest) { r.DurationSeconds = 0 }, "duration_s"},
		{"too long", func(r *StartRequest) { r.DurationSeconds = 5 * 3600 }, "duration_s"},
		{"bad mode", func(r *StartRequest) { r.Mode = "race" }, "mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validStart()
			tt.mutate(&req)
			err := req.Validate(4 * time.Hour)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, domain.ErrInvalidConfig) {
				t.Fatalf("Validate() error = %v; want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q should name field %q", err, tt.field)
			}
		})
	}
}

func TestStartRequest_DefaultMode(t *testing.T) {
	req := validStart()
	if err := req.Validate(0); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if req.Mode != ModeSwipe {
		t.Errorf("Mode = %q; want %q", req.Mode, ModeSwipe)
	}
}

func TestNewSession(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newSession(validStart(), now, 30*time.Second)

	if s.ID == "" {
		t.Error("newSession() should generate an ID")
	}
	if s.State != StateCreated {
		t.Errorf("State = %q; want %q", s.State, StateCreated)
	}
	if want := now.Add(5 * time.Minute); !s.Deadline().Equal(want) {
		t.Errorf("Deadline() = %v; want %v", s.Deadline(), want)
	}
	if want := now.Add(5*time.Minute + 30*time.Second); !s.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v; want %v", s.ExpiresAt, want)
	}
	if s.Expired(s.ExpiresAt) {
		t.Error("session should not be expired exactly at ExpiresAt")
	}
	if !s.Expired(s.ExpiresAt.Add(time.Millisecond)) {
		t.Error("session should be expired after ExpiresAt")
	}
}

func TestSession_RecordAnswer(t *testing.T) {
	now := time.Now().UTC()
	s := newSession(validStart(), now, 0)

	s.recordAnswer(now)
	if s.State != StateInProgress {
		t.Errorf("State = %q; want %q", s.State, StateInProgress)
	}
	s.recordAnswer(now.Add(time.Second))
	if s.AnswerCount != 2 {
		t.Errorf("AnswerCount = %d; want 2", s.AnswerCount)
	}
	if !s.UpdatedAt.Equal(now.Add(time.Second)) {
		t.Errorf("UpdatedAt = %v; want %v", s.UpdatedAt, now.Add(time.Second))
	}
}

func TestSession_Clone(t *testing.T) {
	now := time.Now().UTC()
	s := newSession(validStart(), now, 0)
	s.complete(now, scoring.SwipeSummary{Total: 2}, now)

	c := s.Clone()
	c.Summary.Total = 9
	*c.EndedAt = now.Add(time.Hour)

	if s.Summary.Total != 2 {
		t.Error("Clone() should copy the summary")
	}
	if !s.EndedAt.Equal(now) {
		t.Error("Clone() should copy EndedAt")
	}
}

func TestSession_SkillKey(t *testing.T) {
	req := validStart()
	req.Tag = "dativ"
	s := newSession(req, time.Now(), 0)

	got := s.SkillKey().String()
	if want := "u1|de|goethe|W|dativ"; got != want {
		t.Errorf("SkillKey() = %q; want %q", got, want)
	}
}
