package cli

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wardsync/internal/model"
)

// logListOptions holds flags for `log list`.
type logListOptions struct {
	status string
	entity string
	limit  int
}

// NewLogCommand creates the log command group.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the sync log",
	}

	opts := &logListOptions{}
	list := &cobra.Command{
		Use:   "list",
		Short: "List sync log entries, newest first",
		Long: `List per-mutation outcomes recorded by sync runs, newest first.

Examples:
  wardsync log list
  wardsync log list --status conflict
  wardsync log list --entity patients --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogList(rootOpts, opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.status, "status", "", "only entries with this status (success, error, conflict)")
	list.Flags().StringVar(&opts.entity, "entity", "", "only entries for this entity type")
	list.Flags().IntVar(&opts.limit, "limit", 0, "maximum entries to show (0 = all)")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every sync log entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogClear(rootOpts, cmd)
		},
	})

	return cmd
}

func runLogList(rootOpts *RootOptions, opts *logListOptions, cmd *cobra.Command) error {
	keep, err := opts.filter()
	if err != nil {
		return rootOpts.formatter(cmd).Fail(
			WrapExitError(ExitCommandError, "invalid filter", err).WithKind(CodeInput))
	}

	e, err := rootOpts.openEnv()
	if err != nil {
		return err
	}
	defer e.close(rootOpts)

	entries, err := e.engine.Log().Filter(cmd.Context(), keep)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read sync log", err)
	}
	slices.Reverse(entries)
	if opts.limit > 0 && len(entries) > opts.limit {
		entries = entries[:opts.limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d entries", len(entries))
	for _, le := range entries {
		fmt.Fprintf(&b, "\n  %s  %-8s %s\n    %s",
			le.Timestamp.Format(time.RFC3339), le.Status, le.Action, le.Details)
	}
	return rootOpts.formatter(cmd).Success(entries, b.String())
}

// filter builds the entry predicate from the flags.
func (o *logListOptions) filter() (func(model.LogEntry) bool, error) {
	var status model.LogStatus
	switch o.status {
	case "":
	case string(model.StatusSuccess), string(model.StatusError), string(model.StatusConflict):
		status = model.LogStatus(o.status)
	default:
		return nil, fmt.Errorf("unknown status %q", o.status)
	}

	var (
		entity    model.EntityType
		hasEntity bool
	)
	if o.entity != "" {
		t, err := model.ParseEntityType(o.entity)
		if err != nil {
			return nil, err
		}
		entity, hasEntity = t, true
	}

	return func(le model.LogEntry) bool {
		if status != "" && le.Status != status {
			return false
		}
		if hasEntity && le.EntityType != entity {
			return false
		}
		return true
	}, nil
}

func runLogClear(opts *RootOptions, cmd *cobra.Command) error {
	e, err := opts.openEnv()
	if err != nil {
		return err
	}
	defer e.close(opts)

	if err := e.engine.Log().Clear(cmd.Context()); err != nil {
		return WrapExitError(ExitCommandError, "failed to clear sync log", err)
	}
	return opts.formatter(cmd).Success(map[string]bool{"cleared": true}, "sync log cleared")
}
