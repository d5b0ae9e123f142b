package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geetools/exportsched/internal/output"
)

var allFlag = commandLineFlag{
	name:   "all",
	usage:  "include finished operations",
	isBool: true,
}

var statusFlags = []commandLineFlag{projectFlag, allFlag}

// Status returns the cobra command that lists platform operations.
func Status() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "status [flags]",
			Short: "List the active operations of the project",
			Long: `Print a table of the operations of the project that are pending or
running. With --all, finished operations are listed too.

Example:
  exportsched status --project my-project
`,
			Args: cobra.NoArgs,
		}, statusFlags,
		runStatus,
	)
}

func runStatus(ctx *Context, _ []string) error {
	client, err := ctx.NewClient("")
	if err != nil {
		return err
	}
	ops, err := client.ListOperations(ctx)
	if err != nil {
		return err
	}
	if all, _ := ctx.Command.Flags().GetBool(allFlag.name); !all {
		active := ops[:0:0]
		for _, op := range ops {
			if op.State().IsActive() {
				active = append(active, op)
			}
		}
		ops = active
	}
	_, _ = fmt.Fprintln(ctx.Stdout(), output.Operations(ops))
	return nil
}

