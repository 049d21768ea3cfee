package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wardsync/internal/engine"
	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/record"
)

// enqueueOptions holds flags for the enqueue command.
type enqueueOptions struct {
	method   string
	endpoint string
	data     string
	headers  map[string]string
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &enqueueOptions{}

	cmd := &cobra.Command{
		Use:   "enqueue <entity-type> [entity-id]",
		Short: "Apply a local edit and queue it for sync",
		Long: `Write a record to the local store and queue the mutation that will
replay it against the server on the next sync run.

The entity id defaults to the record's "id" field. Without --data the
edit is a DELETE.

Examples:
  wardsync enqueue patients --data '{"id":"p1","name":"Ada"}'
  wardsync enqueue patients p1 --data @patient.json
  wardsync enqueue appointments a7
  wardsync enqueue labTests --method POST --data @lab.json --header X-Ward=3B`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(rootOpts, opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.method, "method", "", "HTTP method (default PUT, or DELETE without --data)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "request path relative to the server URL")
	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "record JSON, or @file to read it from a file")
	cmd.Flags().StringToStringVar(&opts.headers, "header", nil, "extra request header as key=value (repeatable)")

	return cmd
}

func runEnqueue(rootOpts *RootOptions, opts *enqueueOptions, cmd *cobra.Command, args []string) error {
	out := rootOpts.formatter(cmd)

	edit, err := opts.edit(args)
	if err != nil {
		return out.Fail(WrapExitError(ExitCommandError, "invalid edit", err).WithKind(CodeInput))
	}

	e, err := rootOpts.openEnv()
	if err != nil {
		return err
	}
	defer e.close(rootOpts)

	m, err := e.engine.Record(cmd.Context(), edit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to queue edit", err)
	}
	return out.Success(m, fmt.Sprintf("queued %s (%s)", m.ID, m.Action()))
}

// edit turns the arguments and flags into an engine.Edit.
func (o *enqueueOptions) edit(args []string) (engine.Edit, error) {
	t, err := model.ParseEntityType(args[0])
	if err != nil {
		return engine.Edit{}, err
	}

	edit := engine.Edit{
		EntityType: t,
		Method:     o.method,
		Endpoint:   o.endpoint,
		Headers:    o.headers,
	}
	if len(args) == 2 {
		edit.EntityID = args[1]
	}

	if o.data != "" {
		data := []byte(o.data)
		if path, ok := strings.CutPrefix(o.data, "@"); ok {
			data, err = os.ReadFile(path)
			if err != nil {
				return engine.Edit{}, fmt.Errorf("read data file: %w", err)
			}
		}
		rec, err := record.Decode(data)
		if err != nil {
			return engine.Edit{}, fmt.Errorf("parse data: %w", err)
		}
		edit.Record = rec
	}
	return edit, nil
}
