package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newMCPCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server (stdio by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := openServer(cmd)
			if err != nil {
				return err
			}
			defer srv.Shutdown(context.Background())

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			mcpSrv := srv.MCP()
			if addr != "" {
				return mcpSrv.ServeHTTP(ctx, addr)
			}
			return mcpSrv.ServeStdio(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "Serve over HTTP on this address instead of stdio")
	return cmd
}
