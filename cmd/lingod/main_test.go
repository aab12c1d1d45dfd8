package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestMultiHandler(t *testing.T) {
	var debug, warn bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With("component", "test")

	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(debug) should be true when any handler accepts it")
	}

	logger.Info("hello")
	logger.Warn("careful")

	if !strings.Contains(debug.String(), "hello") || !strings.Contains(debug.String(), "careful") {
		t.Errorf("debug handler output = %q", debug.String())
	}
	if strings.Contains(warn.String(), "hello") {
		t.Errorf("warn handler should drop info records: %q", warn.String())
	}
	if !strings.Contains(warn.String(), "component=test") {
		t.Errorf("attrs not propagated: %q", warn.String())
	}
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "logs", "lingod.log")
	f, err := setupLogging(path, slog.LevelInfo)
	if err != nil {
		t.Fatalf("setupLogging() error = %v", err)
	}
	slog.Info("started", "port", 7480)
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"started"`) {
		t.Errorf("log file = %q; want JSON record", data)
	}
}

func TestSetupLoggingStderrOnly(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	f, err := setupLogging("", slog.LevelInfo)
	if err != nil {
		t.Fatalf("setupLogging() error = %v", err)
	}
	if f != nil {
		t.Error("no file should be opened without a log path")
	}
}
