package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wardsync/internal/engine"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync metadata and queue counts",
		Long: `Show when the last sync finished, whether a run holds the lease,
and how many mutations are queued or dead-lettered.

Examples:
  wardsync status
  wardsync status --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	e, err := opts.openEnv()
	if err != nil {
		return err
	}
	defer e.close(opts)

	st, err := e.engine.Status(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read status", err)
	}
	return opts.formatter(cmd).Success(st, formatStatus(st))
}

func formatStatus(st engine.Status) string {
	var b strings.Builder

	last := "never"
	if st.Metadata.LastSyncTime != nil {
		last = st.Metadata.LastSyncTime.Format(time.RFC3339)
	}
	fmt.Fprintf(&b, "Last sync:     %s\n", last)

	if st.Metadata.SyncInProgress {
		fmt.Fprintf(&b, "In progress:   yes (owner %s", st.Metadata.LeaseOwner)
		if st.Metadata.LeaseExpiresAt != nil {
			fmt.Fprintf(&b, ", lease until %s", st.Metadata.LeaseExpiresAt.Format(time.RFC3339))
		}
		b.WriteString(")\n")
	} else {
		b.WriteString("In progress:   no\n")
	}

	fmt.Fprintf(&b, "Queued:        %d\n", st.Queued)
	fmt.Fprintf(&b, "Dead letters:  %d", st.DeadLetters)
	return b.String()
}
