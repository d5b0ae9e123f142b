package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geetools/exportsched/internal/cmn/logger"
	"github.com/geetools/exportsched/internal/cmn/logger/tag"
	"github.com/geetools/exportsched/internal/core"
)

var cancelFlags = []commandLineFlag{projectFlag}

// Cancel returns the cobra command that cancels every active operation.
func Cancel() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "cancel [flags]",
			Short: "Request cancellation of every active operation of the project",
			Long: `Send a cancel request for each pending or running operation of the project.
Cancellation is best effort: the platform may still complete an operation.

Example:
  exportsched cancel --project my-project
`,
			Args: cobra.NoArgs,
		}, cancelFlags,
		runCancel,
	)
}

func runCancel(ctx *Context, _ []string) error {
	client, err := ctx.NewClient("")
	if err != nil {
		return err
	}
	active, err := client.ListActive(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, job := range active {
		if err := job.Cancel(ctx); err != nil {
			logger.Warn(ctx, "Failed to cancel operation", tag.Operation(core.HandleOf(job)), tag.Error(err))
			errs = append(errs, err)
		}
	}
	_, _ = fmt.Fprintf(ctx.Stdout(), "Requested cancellation of %d operations\n", len(active)-len(errs))
	return errors.Join(errs...)
}
