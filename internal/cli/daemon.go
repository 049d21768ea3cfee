package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/wardsync/internal/config"
	"github.com/roach88/wardsync/internal/engine"
	"github.com/roach88/wardsync/internal/store"
)

// NewDaemonCommand creates the daemon command.
func NewDaemonCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Sync in the background until interrupted",
		Long: `Run sync passes periodically and whenever the server becomes reachable
again after an outage.

SIGHUP requests an immediate run. Edits to the config file change the
sync interval without a restart. When the database cannot be opened the
daemon keeps running on an in-memory store.

Examples:
  wardsync daemon --server-url https://hospital.example/api
  wardsync daemon --interval 1m --probe-interval 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(rootOpts, cmd)
		},
	}

	cmd.Flags().Duration("interval", 0, "time between periodic runs, 0 disables them (default from config)")
	cmd.Flags().Duration("probe-interval", 0, "time between connectivity probes, 0 disables them (default from config)")

	return cmd
}

func runDaemon(opts *RootOptions, cmd *cobra.Command) error {
	if err := opts.requireServer(); err != nil {
		return err
	}
	logger := opts.Logger
	cfg := opts.Config

	st := store.OpenWithFallback(cfg.Database, logger)
	e := opts.newEnv(st)
	defer e.close(opts)

	schedOpts := []engine.SchedulerOption{
		engine.WithInterval(cfg.Interval),
		engine.WithSchedulerLogger(logger),
		engine.WithResultHandler(func(res engine.Result) {
			logSyncResult(opts, res)
		}),
	}
	if cfg.ProbeInterval > 0 {
		schedOpts = append(schedOpts, engine.WithProbe(e.client, cfg.ProbeInterval))
	}
	sched := engine.NewScheduler(e.engine, schedOpts...)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case sig := <-sigChan:
				if sig == syscall.SIGHUP {
					logger.Info("sync requested by signal")
					sched.Trigger()
					continue
				}
				logger.Info("received signal, shutting down", "signal", sig)
				cancel()
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	})

	if opts.ConfigUsed != "" {
		w, err := config.NewWatcher(opts.ConfigUsed)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to watch config", err)
		}
		if err := w.Start(); err != nil {
			return WrapExitError(ExitCommandError, "failed to watch config", err)
		}
		defer func() { _ = w.Stop() }()

		g.Go(func() error {
			watchConfig(ctx, opts, w, sched)
			return nil
		})
	}

	g.Go(func() error {
		if cfg.ProbeInterval <= 0 {
			// The first successful probe syncs; without one, sync now.
			sched.Trigger()
		}
		return sched.Run(ctx)
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Syncing with %s %s.\n", cfg.ServerURL, describeInterval(cfg.Interval))
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "daemon error", err)
	}

	logger.Info("daemon stopped gracefully")
	return nil
}

// watchConfig applies reloaded settings that can change at runtime.
func watchConfig(ctx context.Context, opts *RootOptions, w *config.Watcher, sched *engine.Scheduler) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-w.Changes():
			if !ok {
				return
			}
			if cfg.Interval != sched.Interval() {
				opts.Logger.Info("sync interval changed", "from", sched.Interval(), "to", cfg.Interval)
				sched.SetInterval(cfg.Interval)
			}
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			opts.Logger.Warn("ignoring config change", "error", err)
		}
	}
}

func logSyncResult(opts *RootOptions, res engine.Result) {
	args := []any{
		"succeeded", res.Succeeded,
		"conflicts", res.Conflicts,
		"failed", res.Failed,
	}
	if !res.Success {
		opts.Logger.Warn(res.Message, args...)
		return
	}
	opts.Logger.Info(res.Message, args...)
}

func describeInterval(d time.Duration) string {
	if d <= 0 {
		return "on reconnect"
	}
	return "every " + d.String()
}
