// Package api exposes the session, answer, deck and exam scoring operations
// over HTTP/JSON.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/felixgeelhaar/lingo/internal/answer"
	"github.com/felixgeelhaar/lingo/internal/api/middleware"
	"github.com/felixgeelhaar/lingo/internal/deck"
	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/session"
)

// Services are the engine components the API serves.
type Services struct {
	Sessions *session.Manager
	Answers  *answer.Processor
	Decks    *deck.Builder
	Ratings  rating.Store
	// Ready reports storage health for GET /ready. Nil means always ready.
	Ready func(ctx context.Context) error
	Clock domain.Clock
}

// Options configures the HTTP surface.
type Options struct {
	// Verifier enables bearer authentication when set.
	Verifier    middleware.TokenVerifier
	RateLimiter *middleware.RateLimiter
	CORSOrigins []string
	Logger      *slog.Logger
}

// Router holds the handlers and their dependencies
type Router struct {
	svc    Services
	clock  domain.Clock
	logger *slog.Logger
}

// NewRouter creates the HTTP handler with all routes and middleware configured
func NewRouter(svc Services, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := svc.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	rt := &Router{svc: svc, clock: clock, logger: logger}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	r := chi.NewRouter()
	r.Use(middleware.CorrelationID, middleware.Logger(logger), middleware.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.CorrelationIDHeader},
		ExposedHeaders:   []string{middleware.CorrelationIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", rt.handleHealth)
	r.Get("/ready", rt.handleReady)

	r.Group(func(pr chi.Router) {
		if opts.Verifier != nil {
			pr.Use(middleware.RequireBearer(opts.Verifier))
		}
		if opts.RateLimiter != nil {
			pr.Use(opts.RateLimiter.Handler)
		}

		pr.Post("/session/start", rt.handleStartSession)
		pr.Post("/session/end", rt.handleEndSession)
		pr.Get("/session/{id}", rt.handleGetSession)
		pr.Post("/answer", rt.handleAnswer)
		pr.Get("/deck", rt.handleDeck)
		pr.Get("/rating", rt.handleRating)
		pr.Post("/exam/score", rt.handleExamScore)
		pr.Post("/exam/review", rt.handleExamReview)
	})

	return r
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   rt.clock.Now().Format(time.RFC3339),
	})
}

func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Ready != nil {
		if err := rt.svc.Ready(r.Context()); err != nil {
			rt.logger.Error("storage health check failed",
				"error", err,
				"correlation_id", middleware.GetCorrelationID(r.Context()),
			)
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not ready",
				"checks": map[string]string{"storage": "unhealthy"},
			})
			return
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"checks": map[string]string{"storage": "healthy"},
	})
}
