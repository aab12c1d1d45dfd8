// Package mcp exposes the practice engine as MCP tools so assistants can run
// sessions, fetch decks and score exams on a learner's behalf.
package mcp

import (
	"context"
	"fmt"
	"time"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/lingo/internal/answer"
	"github.com/felixgeelhaar/lingo/internal/deck"
	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/scoring"
	"github.com/felixgeelhaar/lingo/internal/session"
)

// Server wraps the MCP server with lingo functionality
type Server struct {
	mcpServer *server.Server
	sessions  *session.Manager
	answers   *answer.Processor
	decks     *deck.Builder
	ratings   rating.Store
}

// Config contains configuration for the MCP server
type Config struct {
	Sessions *session.Manager
	Answers  *answer.Processor
	Decks    *deck.Builder
	Ratings  rating.Store
	Version  string
}

// NewServer creates a new MCP server for lingo
func NewServer(cfg Config) *Server {
	s := &Server{
		sessions: cfg.Sessions,
		answers:  cfg.Answers,
		decks:    cfg.Decks,
		ratings:  cfg.Ratings,
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "lingo",
		Version: version,
	}, server.WithInstructions(`
Lingo is an adaptive practice engine for language exams.
Learner and item ratings move with every answer (Elo, K=20), and decks pick
items closest to the learner's current rating.

Available tools:
- lingo_rating: Current rating for a user skill
- lingo_deck: Build a practice deck
- lingo_session_start: Start a timed session
- lingo_answer: Record an answer inside a session
- lingo_session_status: Inspect a session
- lingo_session_end: End a session and get its summary
- lingo_exam_score: Score an exam; subjective questions stay pending
- lingo_exam_review: Grade pending questions of a scored exam session
`))

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("lingo_rating").
		Description("Get a learner's rating for one skill. Unrated skills report the default of 1500.").
		Handler(s.handleRating)

	s.mcpServer.Tool("lingo_deck").
		Description("Build a deck of active items closest to the learner's rating.").
		Handler(s.handleDeck)

	s.mcpServer.Tool("lingo_session_start").
		Description("Start a timed practice or exam session.").
		Handler(s.handleSessionStart)

	s.mcpServer.Tool("lingo_answer").
		Description("Record an answer. Resubmitting the same answer_id is safe.").
		Handler(s.handleAnswer)

	s.mcpServer.Tool("lingo_session_status").
		Description("Get the state of a session.").
		Handler(s.handleSessionStatus)

	s.mcpServer.Tool("lingo_session_end").
		Description("End a session. The summary is computed from recorded answers.").
		Handler(s.handleSessionEnd)

	s.mcpServer.Tool("lingo_exam_score").
		Description("Score exam responses. Objective questions are auto-scored; essays and speaking tasks await manual review.").
		Handler(s.handleExamScore)

	s.mcpServer.Tool("lingo_exam_review").
		Description("Grade pending essay or speaking answers of an exam session scored with lingo_exam_score. Each question is graded once.").
		Handler(s.handleExamReview)
}

// Input/Output types for tools

type SkillInput struct {
	UserID string `json:"user_id" jsonschema:"description=Learner id"`
	Lang   string `json:"lang" jsonschema:"description=Language code, e.g. de"`
	Exam   string `json:"exam" jsonschema:"description=Exam family, e.g. goethe"`
	Skill  string `json:"skill" jsonschema:"description=Skill code: R, W, L or S"`
	Tag    string `json:"tag,omitempty" jsonschema:"description=Optional grammar or topic tag"`
}

type RatingOutput struct {
	Rating    float64 `json:"rating"`
	Deviation float64 `json:"rating_deviation"`
	Rated     bool    `json:"rated"`
}

type DeckInput struct {
	SkillInput
	Level   string   `json:"level" jsonschema:"description=CEFR level, e.g. B1"`
	Size    int      `json:"size,omitempty" jsonschema:"description=Number of items (default 10)"`
	Exclude []string `json:"exclude,omitempty" jsonschema:"description=Item ids to leave out"`
}

type DeckItem struct {
	ID            string   `json:"id"`
	DifficultyElo float64  `json:"difficulty_elo"`
	Tags          []string `json:"tags,omitempty"`
}

type DeckOutput struct {
	UserRating float64    `json:"user_rating"`
	Items      []DeckItem `json:"items"`
}

type SessionStartInput struct {
	SkillInput
	Level           string `json:"level" jsonschema:"description=CEFR level, e.g. B1"`
	Mode            string `json:"mode,omitempty" jsonschema:"description=swipe or exam,enum=swipe,enum=exam"`
	DurationSeconds int    `json:"duration_s" jsonschema:"description=Session length in seconds"`
}

type SessionOutput struct {
	SessionID   string                `json:"session_id"`
	State       string                `json:"state"`
	AnswerCount int                   `json:"answer_count"`
	ExpiresAt   time.Time             `json:"expires_at"`
	Summary     *scoring.SwipeSummary `json:"summary,omitempty"`
	ExamResult  *scoring.ExamResult   `json:"exam_result,omitempty"`
}

type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"description=Session id from lingo_session_start"`
	UserID    string `json:"user_id,omitempty" jsonschema:"description=Owner of the session"`
}

type AnswerInput struct {
	AnswerID   string   `json:"answer_id" jsonschema:"description=Client-generated idempotency key"`
	SessionID  string   `json:"session_id" jsonschema:"description=Session id from lingo_session_start"`
	UserID     string   `json:"user_id" jsonschema:"description=Learner id"`
	ItemID     string   `json:"item_id" jsonschema:"description=Item that was answered"`
	UserChoice string   `json:"user_choice,omitempty" jsonschema:"description=What the learner chose"`
	Correct    bool     `json:"correct" jsonschema:"description=Whether the answer was correct"`
	LatencyMs  int64    `json:"latency_ms,omitempty" jsonschema:"description=Time to answer in milliseconds"`
	Tags       []string `json:"tags,omitempty" jsonschema:"description=Item tags"`
}

type AnswerOutput struct {
	AnswerID         string  `json:"answer_id"`
	UserRatingChange float64 `json:"user_rating_change"`
	ItemRatingChange float64 `json:"item_rating_change"`
	UserRating       float64 `json:"user_rating"`
	Replayed         bool    `json:"replayed"`
}

type ExamScoreInput struct {
	SessionID string                 `json:"session_id,omitempty" jsonschema:"description=Exam session to store the result on for manual review"`
	UserID    string                 `json:"user_id,omitempty" jsonschema:"description=Owner of the session"`
	Questions []scoring.QuestionSpec `json:"questions" jsonschema:"description=Questions with id, kind, points and correct answer"`
	Responses []scoring.Response     `json:"responses" jsonschema:"description=Responses as question_id and answer"`
}

type ExamReviewInput struct {
	SessionID string                `json:"session_id" jsonschema:"description=Exam session scored with lingo_exam_score"`
	Grades    []scoring.ManualGrade `json:"grades" jsonschema:"description=Grades as question_id and points"`
}

// Tool handlers

func (s *Server) handleRating(ctx context.Context, input SkillInput) (RatingOutput, error) {
	key := input.key()
	if err := key.Validate(); err != nil {
		return RatingOutput{}, err
	}
	r, err := s.ratings.GetUserRating(ctx, key)
	if err != nil {
		return RatingOutput{}, fmt.Errorf("get rating: %w", err)
	}
	return RatingOutput{Rating: r.Value, Deviation: r.Deviation, Rated: r.Persisted()}, nil
}

func (s *Server) handleDeck(ctx context.Context, input DeckInput) (DeckOutput, error) {
	d, err := s.decks.Build(ctx, deck.Request{
		UserID:     input.UserID,
		Lang:       input.Lang,
		Level:      input.Level,
		Exam:       input.Exam,
		Skill:      input.Skill,
		Tag:        input.Tag,
		Size:       input.Size,
		ExcludeIDs: input.Exclude,
	})
	if err != nil {
		return DeckOutput{}, fmt.Errorf("build deck: %w", err)
	}

	out := DeckOutput{UserRating: d.UserRating, Items: make([]DeckItem, 0, len(d.Items))}
	for _, it := range d.Items {
		out.Items = append(out.Items, DeckItem{ID: it.ID, DifficultyElo: it.DifficultyElo, Tags: it.Tags})
	}
	return out, nil
}

func (s *Server) handleSessionStart(ctx context.Context, input SessionStartInput) (SessionOutput, error) {
	sess, err := s.sessions.Start(ctx, session.StartRequest{
		UserID:          input.UserID,
		Lang:            input.Lang,
		Level:           input.Level,
		Exam:            input.Exam,
		Skill:           input.Skill,
		Tag:             input.Tag,
		Mode:            session.Mode(input.Mode),
		DurationSeconds: input.DurationSeconds,
	})
	if err != nil {
		return SessionOutput{}, fmt.Errorf("failed to start session: %w", err)
	}
	return sessionOutput(sess), nil
}

func (s *Server) handleAnswer(ctx context.Context, input AnswerInput) (AnswerOutput, error) {
	res, err := s.answers.Submit(ctx, answer.Submission{
		AnswerID:   input.AnswerID,
		SessionID:  input.SessionID,
		UserID:     input.UserID,
		ItemID:     input.ItemID,
		UserChoice: input.UserChoice,
		Correct:    input.Correct,
		LatencyMs:  input.LatencyMs,
		Tags:       input.Tags,
	})
	if err != nil {
		return AnswerOutput{}, fmt.Errorf("failed to record answer: %w", err)
	}
	return AnswerOutput{
		AnswerID:         res.Answer.ID,
		UserRatingChange: res.EloUpdates.UserRatingChange,
		ItemRatingChange: res.EloUpdates.ItemRatingChange,
		UserRating:       res.EloUpdates.UserRating,
		Replayed:         res.Replayed,
	}, nil
}

func (s *Server) handleSessionStatus(ctx context.Context, input SessionInput) (SessionOutput, error) {
	sess, err := s.sessions.Get(ctx, input.SessionID, input.UserID)
	if err != nil {
		return SessionOutput{}, fmt.Errorf("get session: %w", err)
	}
	return sessionOutput(sess), nil
}

func (s *Server) handleSessionEnd(ctx context.Context, input SessionInput) (SessionOutput, error) {
	sess, err := s.sessions.End(ctx, session.EndRequest{SessionID: input.SessionID, UserID: input.UserID})
	if err != nil {
		return SessionOutput{}, fmt.Errorf("failed to end session: %w", err)
	}
	return sessionOutput(sess), nil
}

func (s *Server) handleExamScore(ctx context.Context, input ExamScoreInput) (scoring.ExamResult, error) {
	questions, err := scoring.NewQuestions(input.Questions)
	if err != nil {
		return scoring.ExamResult{}, err
	}
	res, err := scoring.ScoreExam(questions, input.Responses)
	if err != nil {
		return scoring.ExamResult{}, err
	}
	if input.SessionID != "" {
		if _, err := s.sessions.RecordExam(ctx, input.SessionID, input.UserID, res); err != nil {
			return scoring.ExamResult{}, fmt.Errorf("record exam: %w", err)
		}
	}
	return *res, nil
}

func (s *Server) handleExamReview(ctx context.Context, input ExamReviewInput) (scoring.ExamResult, error) {
	res, err := s.sessions.GradeExam(ctx, input.SessionID, "", input.Grades)
	if err != nil {
		return scoring.ExamResult{}, fmt.Errorf("grade exam: %w", err)
	}
	return *res, nil
}

func (in SkillInput) key() domain.SkillKey {
	return domain.SkillKey{UserID: in.UserID, Lang: in.Lang, Exam: in.Exam, Skill: in.Skill, Tag: in.Tag}
}

func sessionOutput(sess *session.Session) SessionOutput {
	return SessionOutput{
		SessionID:   sess.ID,
		State:       string(sess.State),
		AnswerCount: sess.AnswerCount,
		ExpiresAt:   sess.ExpiresAt,
		Summary:     sess.Summary,
		ExamResult:  sess.ExamResult,
	}
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
