package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/iota-talent/pkg/configuration"
	"github.com/iota-uz/iota-talent/pkg/metrics"
)

func newOutboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and relay recorded talent events",
	}
	cmd.AddCommand(newOutboxStatusCmd(), newOutboxRelayCmd(), newOutboxCleanCmd())
	return cmd
}

func newOutboxStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Count pending, locked, dead and published events",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			relay, err := rt.relay()
			if err != nil {
				return err
			}
			stats, err := relay.Stats(rt.ctx)
			if err != nil {
				return err
			}
			return writeJSON(stats)
		},
	}
}

func newOutboxRelayCmd() *cobra.Command {
	var (
		once        bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Deliver recorded events to the event bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			relay, err := rt.relay()
			if err != nil {
				return err
			}
			if once {
				delivered, err := relay.ProcessOnce(rt.ctx)
				if err != nil {
					return err
				}
				return writeJSON(map[string]int{"delivered": delivered})
			}

			cleaner, err := rt.cleaner()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(rt.ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if metricsAddr == "" {
				metricsAddr = configuration.Use().Outbox.MetricsAddr
			}
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return relay.Run(ctx) })
			g.Go(func() error { return cleaner.Run(ctx) })
			if metricsAddr != "" {
				log := rt.app.Logger().WithField("component", "talentctl.metrics")
				g.Go(func() error { return metrics.Serve(ctx, metricsAddr, metrics.DefaultPath, log) })
			}
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Deliver one batch and exit")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while relaying (default OUTBOX_METRICS_ADDR)")
	return cmd
}

func newOutboxCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete published events past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			cleaner, err := rt.cleaner()
			if err != nil {
				return err
			}
			published, dead, err := cleaner.CleanOnce(rt.ctx)
			if err != nil {
				return err
			}
			return writeJSON(map[string]int64{"published_deleted": published, "dead_deleted": dead})
		},
	}
}
