package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/felixgeelhaar/lingo/internal/config"
	"github.com/felixgeelhaar/lingo/internal/daemon"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.lingo/config.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Setup logging
	logFile, err := setupLogging(cfg.Server.LogFile, parseLogLevel(cfg.Server.LogLevel))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	// Create server
	ctx := context.Background()
	server, err := daemon.NewServer(ctx, daemon.ServerConfig{
		Config:  cfg,
		Version: Version,
		Logger:  slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		slog.Info("received signal, shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	// Start server
	if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	slog.Info("daemon stopped")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging logs text to stderr and, when logPath is set, JSON to the file.
func setupLogging(logPath string, level slog.Level) (*os.File, error) {
	stderr := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if logPath == "" {
		slog.SetDefault(slog.New(stderr))
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	slog.SetDefault(slog.New(&multiHandler{
		handlers: []slog.Handler{
			slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}),
			stderr,
		},
	}))

	return logFile, nil
}

// multiHandler logs to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			errs = append(errs, handler.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
