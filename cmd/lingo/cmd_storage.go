package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/lingo/internal/daemon"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending storage migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			backend, err := daemon.OpenBackend(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}
			defer backend.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "storage %s is up to date\n", backend.Driver)
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Complete sessions whose timer has run out",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := openServer(cmd)
			if err != nil {
				return err
			}
			defer srv.Shutdown(context.Background())

			n, err := srv.Sessions.Sweep(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d sessions\n", n)
			return err
		},
	}
}
