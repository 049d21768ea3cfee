package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wardsync/internal/engine"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass",
		Long: `Replay every queued mutation against the server and reconcile the results.

Exit codes:
  0 - No failed mutations (conflicts that were resolved count as success)
  1 - Some mutations failed, or another sync run is in progress
  2 - Command error (bad config, unreadable database, etc.)

Examples:
  wardsync sync --server-url https://hospital.example/api
  wardsync sync --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}

	cmd.Flags().Int("concurrency", 0, "entities dispatched in parallel (default from config)")
	cmd.Flags().Int("max-attempts", 0, "transient failures before dead-lettering, 0 = unlimited (default from config)")

	return cmd
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	if err := opts.requireServer(); err != nil {
		return err
	}

	e, err := opts.openEnv()
	if err != nil {
		return err
	}
	defer e.close(opts)

	out := opts.formatter(cmd)
	out.VerboseLog("syncing with %s", opts.Config.ServerURL)

	res := e.engine.Sync(cmd.Context())
	if err := out.Success(res, formatResult(res, opts.Verbose)); err != nil {
		return err
	}
	if !res.Success {
		return NewExitError(ExitFailure, res.Message)
	}
	return nil
}

// formatResult renders a sync Result for humans.
func formatResult(res engine.Result, verbose bool) string {
	var b strings.Builder
	b.WriteString(res.Message)
	for _, o := range res.Outcomes {
		if !verbose && o.Kind == engine.OutcomeSucceeded {
			continue
		}
		fmt.Fprintf(&b, "\n  %-9s %s", o.Kind, o.Action)
		switch {
		case o.DeadLettered:
			b.WriteString(" (dead-lettered)")
		case o.Resolved:
			b.WriteString(" (resolved)")
		}
		if o.Err != nil {
			fmt.Fprintf(&b, "\n            %v", o.Err)
		}
	}
	return b.String()
}
