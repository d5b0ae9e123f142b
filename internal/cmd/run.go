package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/geetools/exportsched/internal/artifact"
	"github.com/geetools/exportsched/internal/checkpoint"
	"github.com/geetools/exportsched/internal/cmn/logger"
	"github.com/geetools/exportsched/internal/cmn/logger/tag"
	"github.com/geetools/exportsched/internal/manifest"
	"github.com/geetools/exportsched/internal/metrics"
	"github.com/geetools/exportsched/internal/output"
	"github.com/geetools/exportsched/internal/scheduler"
)

var runFlags = []commandLineFlag{
	projectFlag,
	maxConcurrencyFlag,
	pollIntervalFlag,
	maxPollIntervalFlag,
	timeoutFlag,
	errorOnFailFlag,
	verboseFlag,
	skipExistingFlag,
	resumeFlag,
	freshFlag,
	runKeyFlag,
	cancelOnInterruptFlag,
	metricsAddrFlag,
}

// Run returns the cobra command that executes a manifest on the platform.
func Run() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "run [flags] <manifest>",
			Short: "Submit the jobs of a manifest and wait until the graph drains",
			Long: `Submit every job of a manifest to the platform, honouring dependencies and
the concurrency limit, and wait until each job has finished or cannot run.

A job starts only after all of its dependencies completed successfully. Jobs
whose dependency failed are failed without being submitted.

Examples:
  exportsched run exports.yaml --max-concurrency 4
  exportsched run exports.hcl --resume --run-key nightly-2024-06-01
  exportsched run exports.hcl --fresh --run-key nightly-2024-06-01
`,
			Args: cobra.ExactArgs(1),
		}, runFlags,
		runRun,
	)
}

func runRun(ctx *Context, args []string) error {
	m, err := manifest.Load(args[0])
	if err != nil {
		return err
	}
	client, err := ctx.NewClient(m.Project)
	if err != nil {
		return err
	}

	opts := ctx.SchedulerOptions()

	runKey := ctx.Config.Checkpoint.RunKey
	if runKey == "" {
		runKey = m.Name
	}
	store, err := checkpoint.Open(ctx, ctx.Config.Checkpoint)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
		opts = append(opts, scheduler.WithObserver(checkpoint.NewRecorder(store, runKey)))
	}

	var collector *metrics.Collector
	if ctx.Config.Metrics.Addr != "" {
		collector = metrics.NewCollector()
		opts = append(opts, scheduler.WithObserver(collector))
	}

	sched, err := m.Build(ctx, manifest.PlatformFactory(client), opts...)
	if err != nil {
		return err
	}

	if fresh, _ := ctx.Command.Flags().GetBool("fresh"); fresh {
		if store == nil {
			return errors.New("--fresh requires a checkpoint backend")
		}
		if err := store.Reset(ctx, runKey); err != nil {
			return fmt.Errorf("failed to reset checkpoints: %w", err)
		}
		logger.Info(ctx, "Checkpoints cleared", tag.RunKey(runKey))
	}

	if resume, _ := ctx.Command.Flags().GetBool("resume"); resume {
		if store == nil {
			return errors.New("--resume requires a checkpoint backend")
		}
		if _, err := checkpoint.Resume(ctx, store, runKey, sched); err != nil {
			return fmt.Errorf("failed to resume: %w", err)
		}
	}

	if skip, _ := ctx.Command.Flags().GetBool("skip-existing"); skip {
		prober, err := artifact.NewMinioProber(ctx.Config.Storage)
		if err != nil {
			return err
		}
		if _, err := artifact.SkipExisting(ctx, prober, m, sched); err != nil {
			return err
		}
	}

	cancelRemote, _ := ctx.Command.Flags().GetBool("cancel-on-interrupt")
	jobs, err := execute(ctx, sched, collector, cancelRemote)
	if jobs != nil {
		_, _ = fmt.Fprintln(ctx.Stdout(), output.JobSummary(jobs))
	}
	return err
}

// execute runs sched until it drains or a signal arrives, serving metrics
// alongside when collector is set.
func execute(ctx *Context, sched *scheduler.Scheduler, collector *metrics.Collector, cancelRemote bool) ([]*scheduler.Job, error) {
	runCtx, cancel := context.WithCancel(ctx.Context)
	defer cancel()

	handler := &interruptHandler{cancel: cancel, sched: sched, cancelRemote: cancelRemote}
	listenSignals(runCtx, handler)

	g, gctx := errgroup.WithContext(runCtx)
	if collector != nil {
		srv, err := metrics.Listen(ctx.Config.Metrics.Addr, collector)
		if err != nil {
			return nil, fmt.Errorf("failed to serve metrics: %w", err)
		}
		g.Go(func() error { return srv.Serve(gctx) })
	}

	var (
		jobs   []*scheduler.Job
		runErr error
	)
	g.Go(func() error {
		defer cancel()
		jobs, runErr = sched.Run(runCtx)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Warn(ctx, "Metrics server stopped", tag.Error(err))
	}

	if runErr != nil && handler.interrupted() && isInterrupted(runErr) {
		return jobs, fmt.Errorf("run interrupted: %w", runErr)
	}
	return jobs, runErr
}

// interruptHandler stops a run on the first signal and, if asked, cancels
// the jobs still running on the platform.
type interruptHandler struct {
	cancel       context.CancelFunc
	sched        *scheduler.Scheduler
	cancelRemote bool

	once     sync.Once
	received bool
	mu       sync.Mutex
}

func (h *interruptHandler) Signal(ctx context.Context, sig os.Signal) {
	h.once.Do(func() {
		h.mu.Lock()
		h.received = true
		h.mu.Unlock()

		logger.Warn(ctx, "Received signal; stopping run", tag.String("signal", sig.String()))
		if h.cancelRemote {
			h.sched.CancelAll(context.WithoutCancel(ctx))
		}
		h.cancel()
	})
}

func (h *interruptHandler) interrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.received
}
