// Package daemon assembles the engine from configuration: storage, rating
// updates, sessions, decks, events and the HTTP server.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/lingo/internal/answer"
	"github.com/felixgeelhaar/lingo/internal/api"
	"github.com/felixgeelhaar/lingo/internal/api/middleware"
	"github.com/felixgeelhaar/lingo/internal/auth"
	"github.com/felixgeelhaar/lingo/internal/config"
	"github.com/felixgeelhaar/lingo/internal/deck"
	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/elo"
	"github.com/felixgeelhaar/lingo/internal/mcp"
	"github.com/felixgeelhaar/lingo/internal/queue"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/session"
)

// Server represents the lingo daemon
type Server struct {
	cfg     *config.Config
	version string
	logger  *slog.Logger
	clock   domain.Clock
	server  *http.Server
	handler http.Handler

	// Services
	Backend  *Backend
	Sessions *session.Manager
	Answers  *answer.Processor
	Decks    *deck.Builder

	conn    *queue.Connection
	redis   *goredis.Client
	limiter *middleware.RateLimiter

	stopSweeper context.CancelFunc
	sweeperDone sync.WaitGroup
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config  *config.Config
	Version string
	Logger  *slog.Logger
	// Clock defaults to the system clock.
	Clock domain.Clock
}

// NewServer opens storage and wires every component. It does not listen
// until Start is called.
func NewServer(ctx context.Context, sc ServerConfig) (*Server, error) {
	cfg := sc.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := sc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := sc.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}

	backend, err := OpenBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		version: sc.Version,
		logger:  logger,
		clock:   clock,
		Backend: backend,
	}

	events := s.setupEvents(logger)
	recent := s.setupRecent(ctx, logger)

	engine := elo.Engine{
		KUser: cfg.Rating.KUser,
		KItem: cfg.Rating.KItem,
		Min:   cfg.Rating.Min,
		Max:   cfg.Rating.Max,
	}
	updater := rating.NewUpdater(backend.Ratings, engine, rating.UpdaterConfig{
		MaxAttempts:  cfg.Rating.MaxAttempts,
		InitialDelay: cfg.Rating.InitialDelay,
		MaxDelay:     cfg.Rating.MaxDelay,
		Logger:       logger,
	})

	s.Sessions = session.NewManager(backend.Sessions, backend.Ledger, session.Config{
		Grace:       cfg.Session.Grace,
		MaxDuration: cfg.Session.MaxDuration,
		SweepBatch:  cfg.Session.SweepBatch,
		Clock:       clock,
		Events:      events,
		Logger:      logger,
	})

	s.Answers = answer.NewProcessor(s.Sessions, backend.Items, updater, backend.Ledger, answer.Config{
		MinLatency: cfg.Answers.MinLatency,
		Timeout:    cfg.Storage.Timeout,
		Clock:      clock,
		Events:     events,
		Seen:       recent,
		Logger:     logger,
	})

	s.Decks = deck.NewBuilder(backend.Items, backend.Ratings, deck.Config{
		DefaultSize:   cfg.Deck.DefaultSize,
		MaxSize:       cfg.Deck.MaxSize,
		MaxConcurrent: cfg.Deck.MaxConcurrent,
		Recent:        recent,
		Logger:        logger,
	})

	opts := api.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	}
	if cfg.Auth.Enabled {
		verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret,
			auth.WithIssuer(cfg.Auth.Issuer),
			auth.WithLeeway(cfg.Auth.Leeway),
			auth.WithClock(clock),
		)
		if err != nil {
			s.closeAll()
			return nil, fmt.Errorf("create token verifier: %w", err)
		}
		opts.Verifier = verifier
	}
	if cfg.RateLimit.Enabled {
		s.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			Rate:     cfg.RateLimit.Rate,
			Burst:    cfg.RateLimit.Burst,
			Interval: time.Second,
			Key:      middleware.UserOrIP,
		})
		opts.RateLimiter = s.limiter
	}

	s.handler = api.NewRouter(s.Services(), opts)
	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupEvents connects the event producer. The engine keeps working without
// a broker, so connection failures fall back to dropping events.
func (s *Server) setupEvents(logger *slog.Logger) domain.EventPublisher {
	if !s.cfg.Events.Enabled {
		return domain.NopPublisher{}
	}
	conn, err := queue.NewConnectionWithTTL(s.cfg.Events.AMQPURL, s.cfg.Events.MessageTTL)
	if err != nil {
		logger.Warn("event broker not available, events disabled", "error", err)
		return domain.NopPublisher{}
	}
	s.conn = conn

	pcfg := queue.DefaultProducerConfig()
	pcfg.FailureThreshold = s.cfg.Events.FailureThreshold
	pcfg.Logger = logger
	return queue.NewProducer(conn, pcfg)
}

// setupRecent picks the recent-item tracker: Redis when enabled and
// reachable, otherwise process memory.
func (s *Server) setupRecent(ctx context.Context, logger *slog.Logger) deck.RecentTracker {
	window := s.cfg.Deck.RecentWindow
	if s.cfg.Redis.Enabled {
		client, err := deck.NewRedisClient(ctx, s.cfg.Redis.Addr, s.cfg.Redis.Password, s.cfg.Redis.DB)
		if err == nil {
			s.redis = client
			return deck.NewRedisRecent(client, window, s.cfg.Redis.TTL)
		}
		logger.Warn("redis not available, tracking recent items in memory", "error", err)
	}
	return deck.NewMemoryRecent(window)
}

// Services returns the components served over HTTP.
func (s *Server) Services() api.Services {
	return api.Services{
		Sessions: s.Sessions,
		Answers:  s.Answers,
		Decks:    s.Decks,
		Ratings:  s.Backend.Ratings,
		Ready:    s.Ready,
		Clock:    s.clock,
	}
}

// MCP returns an MCP server backed by the same components.
func (s *Server) MCP() *mcp.Server {
	return mcp.NewServer(mcp.Config{
		Sessions: s.Sessions,
		Answers:  s.Answers,
		Decks:    s.Decks,
		Ratings:  s.Backend.Ratings,
		Version:  s.version,
	})
}

// Ready checks storage and, when configured, the broker and Redis.
func (s *Server) Ready(ctx context.Context) error {
	if err := s.Backend.Ping(ctx); err != nil {
		return err
	}
	if s.conn != nil && !s.conn.IsConnected() {
		return fmt.Errorf("event broker: %w", domain.ErrStorageUnavailable)
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", domain.ErrStorageUnavailable)
		}
	}
	return nil
}

// Handler returns the HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// StartSweeper runs the expired-session sweeper until Shutdown.
func (s *Server) StartSweeper() {
	if s.stopSweeper != nil || s.cfg.Session.SweepInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweeper = cancel
	s.sweeperDone.Add(1)
	go func() {
		defer s.sweeperDone.Done()
		s.Sessions.RunSweeper(ctx, s.cfg.Session.SweepInterval)
	}()
}

// Start starts the sweeper and the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting lingo daemon",
		"addr", s.server.Addr,
		"storage", s.Backend.Driver,
		"events", s.conn != nil,
		"redis", s.redis != nil,
		"auth", s.cfg.Auth.Enabled,
	)
	s.StartSweeper()
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")

	err := s.server.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return errors.Join(err, s.closeAll())
}

// closeAll stops background work and releases connections.
func (s *Server) closeAll() error {
	if s.stopSweeper != nil {
		s.stopSweeper()
		s.sweeperDone.Wait()
	}

	var errs []error
	if s.limiter != nil {
		if err := s.limiter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rate limiter: %w", err))
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event broker: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := s.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}
