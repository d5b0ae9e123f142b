package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/geetools/exportsched/internal/manifest"
	"github.com/geetools/exportsched/internal/output"
	"github.com/geetools/exportsched/internal/scheduler"
	"github.com/geetools/exportsched/internal/simjob"
)

var dryFlags = []commandLineFlag{
	maxConcurrencyFlag,
	pollIntervalFlag,
	errorOnFailFlag,
	verboseFlag,
}

// dryPollInterval is used unless --poll-interval is given.
const dryPollInterval = 10 * time.Millisecond

// Dry returns the cobra command that runs a manifest against simulated jobs.
func Dry() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "dry [flags] <manifest>",
			Short: "Simulate a manifest run without contacting the platform",
			Long: `Run the job graph of a manifest with simulated jobs in place of platform
tasks. Each job finishes after the number of polls given by its simulate
block, failing if the block says so.

Use it to check dependencies, ordering and the effect of --max-concurrency
before submitting real work.

Example:
  exportsched dry exports.yaml --max-concurrency 2
`,
			Args: cobra.ExactArgs(1),
		}, dryFlags,
		runDry,
	)
}

func runDry(ctx *Context, args []string) error {
	m, err := manifest.Load(args[0])
	if err != nil {
		return err
	}

	opts := ctx.SchedulerOptions()
	if !ctx.Command.Flags().Changed(pollIntervalFlag.name) {
		opts = append(opts,
			scheduler.WithPollInterval(dryPollInterval),
			scheduler.WithMaxPollInterval(0),
		)
	}

	tracker := simjob.NewTracker()
	sched, err := m.Build(ctx, manifest.SimulatedFactory(tracker), opts...)
	if err != nil {
		return err
	}

	jobs, err := sched.Run(ctx)
	if jobs != nil {
		_, _ = fmt.Fprintln(ctx.Stdout(), output.JobSummary(jobs))
		_, _ = fmt.Fprintf(ctx.Stdout(), "Dry-run finished: %d jobs, at most %d running at once\n",
			len(jobs), tracker.MaxActive())
	}
	return err
}
