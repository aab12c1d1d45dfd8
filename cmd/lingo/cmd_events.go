package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/lingo/internal/queue"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect engine events on the broker",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "tail",
		Short: "Print events as JSON lines until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			conn, err := queue.NewConnectionWithTTL(cfg.Events.AMQPURL, cfg.Events.MessageTTL)
			if err != nil {
				return fmt.Errorf("connect to broker: %w", err)
			}
			defer conn.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			consumer := queue.NewConsumer(conn, func(_ context.Context, ev queue.ReceivedEvent) error {
				return enc.Encode(ev)
			}, queue.ConsumerConfig{Workers: 1})

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if err := consumer.Start(ctx); err != nil {
				return fmt.Errorf("start consumer: %w", err)
			}
			<-ctx.Done()
			consumer.Stop()
			return nil
		},
	})
	return cmd
}
