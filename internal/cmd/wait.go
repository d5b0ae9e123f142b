package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geetools/exportsched/internal/scheduler"
)

var waitFlags = []commandLineFlag{projectFlag, pollIntervalFlag, maxPollIntervalFlag}

// Wait returns the cobra command that blocks until no operation is active.
func Wait() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "wait [flags]",
			Short: "Wait until every active operation of the project has finished",
			Long: `List the operations of the project that are pending or running and poll
them until each one reaches a terminal state.

Example:
  exportsched wait --project my-project --poll-interval 1m
`,
			Args: cobra.NoArgs,
		}, waitFlags,
		runWait,
	)
}

func runWait(ctx *Context, _ []string) error {
	client, err := ctx.NewClient("")
	if err != nil {
		return err
	}
	if err := scheduler.WaitForExisting(ctx, client, ctx.PollPolicy()); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(ctx.Stdout(), "No active operations")
	return nil
}
