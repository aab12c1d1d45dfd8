package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/felixgeelhaar/lingo/internal/answer"
	"github.com/felixgeelhaar/lingo/internal/auth"
	"github.com/felixgeelhaar/lingo/internal/deck"
	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/scoring"
	"github.com/felixgeelhaar/lingo/internal/session"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into dst, rejecting unknown trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	if dec.More() {
		return errors.New("request body has trailing data")
	}
	return nil
}

// caller returns the user id a request acts for. An explicit id must be
// allowed by the token; without one a learner token supplies its subject.
func caller(r *http.Request, userID string) (string, error) {
	if userID != "" {
		if err := auth.Authorize(r.Context(), userID); err != nil {
			return "", err
		}
		return userID, nil
	}
	if c, ok := auth.ClaimsFrom(r.Context()); ok && c.Role != auth.RoleAdmin {
		return c.Subject, nil
	}
	return "", nil
}

type startSessionRequest struct {
	UserID          string       `json:"user_id"`
	Lang            string       `json:"lang"`
	Level           string       `json:"level"`
	Exam            string       `json:"exam"`
	Skill           string       `json:"skill"`
	Tag             string       `json:"tag"`
	Mode            session.Mode `json:"mode"`
	DurationSeconds int          `json:"duration_s"`
}

type startSessionResponse struct {
	SessionID string        `json:"session_id"`
	State     session.State `json:"state"`
	Mode      session.Mode  `json:"mode"`
	StartedAt time.Time     `json:"started_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

func (rt *Router) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, r, err.Error())
		return
	}
	userID, err := caller(r, req.UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	s, err := rt.svc.Sessions.Start(r.Context(), session.StartRequest{
		UserID:          userID,
		Lang:            req.Lang,
		Level:           req.Level,
		Exam:            req.Exam,
		Skill:           req.Skill,
		Tag:             req.Tag,
		Mode:            req.Mode,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, startSessionResponse{
		SessionID: s.ID,
		State:     s.State,
		Mode:      s.Mode,
		StartedAt: s.StartedAt,
		ExpiresAt: s.ExpiresAt,
	})
}

type endSessionRequest struct {
	SessionID string                `json:"session_id"`
	UserID    string                `json:"user_id"`
	EndedAt   time.Time             `json:"ended_at"`
	Summary   *scoring.SwipeSummary `json:"summary"`
}

type endSessionResponse struct {
	SessionID string                `json:"session_id"`
	State     session.State         `json:"state"`
	EndedAt   *time.Time            `json:"ended_at,omitempty"`
	Summary   *scoring.SwipeSummary `json:"summary,omitempty"`
}

func (rt *Router) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, r, err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		WriteError(w, r, domain.InvalidConfig("session_id", "required"))
		return
	}
	userID, err := caller(r, req.UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	s, err := rt.svc.Sessions.End(r.Context(), session.EndRequest{
		SessionID: req.SessionID,
		UserID:    userID,
		EndedAt:   req.EndedAt,
		Summary:   req.Summary,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, endSessionResponse{
		SessionID: s.ID,
		State:     s.State,
		EndedAt:   s.EndedAt,
		Summary:   s.Summary,
	})
}

func (rt *Router) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r, r.URL.Query().Get("user_id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	s, err := rt.svc.Sessions.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

type answerResponse struct {
	*domain.Answer
	EloUpdates answer.EloUpdates `json:"elo_updates"`
	Replayed   bool              `json:"replayed"`
}

func (rt *Router) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var sub answer.Submission
	if err := decodeJSON(w, r, &sub); err != nil {
		WriteError(w, r, domain.InvalidAnswer("body", err.Error()))
		return
	}
	if sub.UserID != "" {
		if err := auth.Authorize(r.Context(), sub.UserID); err != nil {
			WriteError(w, r, err)
			return
		}
	}

	res, err := rt.svc.Answers.Submit(r.Context(), sub)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	WriteJSON(w, status, answerResponse{Answer: res.Answer, EloUpdates: res.EloUpdates, Replayed: res.Replayed})
}

func (rt *Router) handleDeck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, err := caller(r, q.Get("user_id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	size := 0
	if raw := q.Get("size"); raw != "" {
		if size, err = strconv.Atoi(raw); err != nil {
			WriteError(w, r, domain.InvalidConfig("size", "must be an integer"))
			return
		}
	}

	var exclude []string
	if raw := q.Get("exclude"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				exclude = append(exclude, id)
			}
		}
	}

	d, err := rt.svc.Decks.Build(r.Context(), deck.Request{
		UserID:     userID,
		Lang:       q.Get("lang"),
		Level:      q.Get("level"),
		Exam:       q.Get("exam"),
		Skill:      q.Get("skill"),
		Tag:        q.Get("tag"),
		Size:       size,
		ExcludeIDs: exclude,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, d)
}

type ratingResponse struct {
	domain.SkillKey
	domain.Rating
}

func (rt *Router) handleRating(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, err := caller(r, q.Get("user_id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	key := domain.SkillKey{
		UserID: userID,
		Lang:   q.Get("lang"),
		Exam:   q.Get("exam"),
		Skill:  q.Get("skill"),
		Tag:    q.Get("tag"),
	}
	if err := key.Validate(); err != nil {
		WriteError(w, r, err)
		return
	}

	rating, err := rt.svc.Ratings.GetUserRating(r.Context(), key)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ratingResponse{SkillKey: key, Rating: rating})
}

// examScoreRequest scores an exam. With a session id the result is stored on
// that exam session for later manual grading.
type examScoreRequest struct {
	SessionID string                 `json:"session_id"`
	UserID    string                 `json:"user_id"`
	Questions []scoring.QuestionSpec `json:"questions"`
	Responses []scoring.Response     `json:"responses"`
}

func (rt *Router) handleExamScore(w http.ResponseWriter, r *http.Request) {
	var req examScoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, domain.InvalidAnswer("body", err.Error()))
		return
	}

	questions, err := scoring.NewQuestions(req.Questions)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	result, err := scoring.ScoreExam(questions, req.Responses)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if req.SessionID != "" {
		userID, err := caller(r, req.UserID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if _, err := rt.svc.Sessions.RecordExam(r.Context(), req.SessionID, userID, result); err != nil {
			WriteError(w, r, err)
			return
		}
	}
	WriteJSON(w, http.StatusOK, result)
}

type examReviewRequest struct {
	SessionID string                `json:"session_id"`
	Grades    []scoring.ManualGrade `json:"grades"`
}

// handleExamReview grades the exam result stored on a session. Only admins
// grade when authentication is enabled.
func (rt *Router) handleExamReview(w http.ResponseWriter, r *http.Request) {
	var req examReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, domain.InvalidAnswer("body", err.Error()))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		WriteError(w, r, domain.InvalidConfig("session_id", "required"))
		return
	}
	if err := auth.RequireAdmin(r.Context()); err != nil {
		WriteError(w, r, err)
		return
	}

	result, err := rt.svc.Sessions.GradeExam(r.Context(), req.SessionID, "", req.Grades)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
