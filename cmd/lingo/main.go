package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/lingo/internal/config"
	"github.com/felixgeelhaar/lingo/internal/daemon"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lingo",
		Short:         "Adaptive practice engine for language exams",
		Long:          "Lingo rates learners and items with Elo, builds decks near the learner's level and runs timed practice sessions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to config.yaml (default ~/.lingo/config.yaml)")

	root.AddCommand(
		newMigrateCmd(),
		newSweepCmd(),
		newRatingCmd(),
		newDeckCmd(),
		newItemsCmd(),
		newEventsCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "lingo", Version)
		},
	}
}

// loadConfig reads the file named by --config, then the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openServer wires the engine without listening. Logs go to stderr so that
// stdout stays clean for command output and the MCP protocol.
func openServer(cmd *cobra.Command) (*daemon.Server, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	srv, err := daemon.NewServer(cmd.Context(), daemon.ServerConfig{
		Config:  cfg,
		Version: Version,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
