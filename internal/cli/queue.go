package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/queue"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect pending mutations and dead letters",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued mutations in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(rootOpts, cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dead",
		Short: "List dead-lettered mutations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueDead(rootOpts, cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "requeue <mutation-id>",
		Short: "Move a dead letter back to the end of the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueRequeue(rootOpts, cmd, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear-dead",
		Short: "Discard every dead letter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueClearDead(rootOpts, cmd)
		},
	})

	return cmd
}

func runQueueList(opts *RootOptions, cmd *cobra.Command) error {
	e, err := opts.openEnv()
	if err != nil {
		return err
	}
	defer e.close(opts)

	ms, err := e.engine.Queue().All(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d queued", len(ms))
	for _, m := range ms {
		fmt.Fprintf(&b, "\n  %s  %s  %s", m.ID, m.Timestamp.Format(time.RFC3339), m.Action())
	}
	return opts.formatter(cmd).Success(ms, b.String())
}

func runQueueDead(opts *RootOptions, cmd *cobra.Command) error {
	e, err := opts.openEnv()
	if err != nil {
		return err
	}
	defer e.close(opts)

	dls, err := e.engine.Queue().DeadLetters(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read dead letters", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d dead letters", len(dls))
	for _, dl := range dls {
		fmt.Fprintf(&b, "\n  %s  %s  attempts=%d\n    %s", dl.Mutation.ID, dl.Mutation.Action(), dl.Attempts, dl.Reason)
	}
	if dls == nil {
		dls = []model.DeadLetter{}
	}
	return opts.formatter(cmd).Success(dls, b.String())
}

func runQueueRequeue(opts *RootOptions, cmd *cobra.Command, id string) error {
	e, err := opts.openEnv()
	if err != nil {
		return err
	}
	defer e.close(opts)

	m, err := e.engine.Queue().Requeue(cmd.Context(), id)
	if errors.Is(err, queue.ErrNotFound) {
		return opts.formatter(cmd).Fail(
			NewExitError(ExitFailure, fmt.Sprintf("no dead letter %s", id)).WithKind(CodeNotFound))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to requeue", err)
	}
	return opts.formatter(cmd).Success(m, fmt.Sprintf("requeued %s (%s)", m.ID, m.Action()))
}

func runQueueClearDead(opts *RootOptions, cmd *cobra.Command) error {
	e, err := opts.openEnv()
	if err != nil {
		return err
	}
	defer e.close(opts)

	if err := e.engine.Queue().ClearDeadLetters(cmd.Context()); err != nil {
		return WrapExitError(ExitCommandError, "failed to clear dead letters", err)
	}
	return opts.formatter(cmd).Success(map[string]bool{"cleared": true}, "dead letters cleared")
}
