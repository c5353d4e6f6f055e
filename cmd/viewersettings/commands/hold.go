package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/objectfs/viewersettings/internal/coordinator"
	"github.com/objectfs/viewersettings/internal/shutdown"
)

func newHoldCmd(a *app) *cobra.Command {
	var (
		readonly        bool
		shutdownTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "hold <location>",
		Short: "Keep settings open with autosave until interrupted",
		Long: `Open the resource the way a running viewer does: take the lock, load the
settings and autosave them periodically. On SIGINT or SIGTERM the settings
are saved and the lock is released before any other shutdown work.

Metrics are served while holding when monitoring.metrics.enabled is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mgr := shutdown.NewManager(a.logger)
			if err := a.collector.Start(ctx); err != nil {
				return err
			}
			mgr.Register("metrics", shutdown.PhaseTeardown, a.collector.Stop)

			s, err := a.openSession(ctx, args[0], readonly, coordinator.WithShutdownManager(mgr))
			if err != nil {
				_ = mgr.Run(context.Background())
				return err
			}
			mgr.Register("backend", shutdown.PhaseTeardown, func(context.Context) error {
				return s.backend.Close()
			})

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Holding %s (%s). Press Ctrl+C to stop.\n", s.coord.Identity(), s.result)
			<-ctx.Done()
			stop()
			a.logger.Info("Shutdown signal received, saving settings")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return mgr.Run(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&readonly, "read-only", false, "open without taking the lock")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "time allowed for the final save")
	return cmd
}
