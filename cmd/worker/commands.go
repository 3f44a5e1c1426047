package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"booksync/internal/google"
	"booksync/internal/metrics"
	"booksync/internal/wake"
	"booksync/internal/worker"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the long-running worker command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var noPrune bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the sync queue until interrupted",
		Long: `Start a calendar worker. The worker wakes on Redis or in-process signals,
checks database hints on a short interval and polls the queue as a fallback.

Example:
  booksync-worker run --config configs/config.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if !e.cfg.Google.Enabled() {
				e.logger.Warn().Msg("google oauth not configured, calendar worker not started")
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if e.cfg.Monitoring.PrometheusEnabled {
				metrics.Register()
				go metrics.Serve(ctx, fmt.Sprintf(":%d", e.cfg.Monitoring.PrometheusPort), &e.logger)
			}

			if e.refresher != nil && e.cfg.Google.WatchCredentials {
				go func() {
					if err := google.WatchCredentials(ctx, e.cfg.Google, e.refresher, &e.logger); err != nil {
						e.logger.Error().Err(err).Msg("credentials watcher stopped")
					}
				}()
			}

			if !noPrune {
				pruner := worker.NewPruner(e.db, e.cfg.Retention, &e.logger)
				if err := pruner.Start(ctx); err != nil {
					return err
				}
			}

			w := worker.NewCalendarWorker(
				e.db,
				e.manager(),
				e.redis,
				wake.NewTransport(e.redis, e.cfg.Sync.WakeChannel, &e.logger),
				e.cfg.Sync,
				e.oplog,
				&e.logger,
			)
			w.Start(ctx)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noPrune, "no-prune", false, "do not schedule retention runs")

	return cmd
}

// NewOnceCommand creates a command that drains the due tasks once and exits.
func NewOnceCommand(rootOpts *RootOptions) *cobra.Command {
	var ownerID int64

	cmd := &cobra.Command{
		Use:           "once",
		Short:         "Process due tasks once and exit",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			w := worker.NewCalendarWorker(e.db, e.manager(), e.redis, nil, e.cfg.Sync, e.oplog, &e.logger)
			n, err := w.RunOnce(cmd.Context(), ownerID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d task(s)\n", n)
			return nil
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 0, "only process tasks of this owner (0 = all)")

	return cmd
}

// NewPruneCommand creates a command that applies the retention policy once.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "prune",
		Short:         "Delete aged tasks and wake hints",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := worker.NewPruner(e.db, e.cfg.Retention, &e.logger).Prune(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

// NewStatsCommand creates a command that prints queue counts by status.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Print sync queue counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			stats, err := e.db.SyncQueueStats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
