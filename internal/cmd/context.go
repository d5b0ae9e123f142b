package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/geetools/exportsched/internal/cmn/backoff"
	"github.com/geetools/exportsched/internal/cmn/config"
	"github.com/geetools/exportsched/internal/cmn/logger"
	"github.com/geetools/exportsched/internal/platform"
	"github.com/geetools/exportsched/internal/scheduler"
)

// Context holds the configuration for a command.
type Context struct {
	context.Context

	Command *cobra.Command
	Config  *config.Config
	Quiet   bool

	logFile *os.File
}

// NewContext loads configuration, applying flags bound to config keys, and
// sets up the logger.
func NewContext(cmd *cobra.Command, flags []commandLineFlag) (*Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	v := viper.New()
	if err := bindFlags(v, cmd, flags...); err != nil {
		return nil, err
	}

	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}

	var loaderOpts []config.ConfigLoaderOption
	if cfgPath, _ := cmd.Flags().GetString("config"); cfgPath != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(cfgPath))
	}

	cfg, err := config.NewConfigLoader(v, loaderOpts...).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	c := &Context{Context: ctx, Command: cmd, Config: cfg, Quiet: quiet}
	if err := c.setupLogger(); err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		logger.Warn(c, w)
	}
	return c, nil
}

func (c *Context) setupLogger() error {
	var opts []logger.Option
	if c.Config.Global.Debug {
		opts = append(opts, logger.WithDebug())
	}
	if c.Quiet {
		opts = append(opts, logger.WithQuiet())
	}
	if c.Config.Global.LogFormat != "" {
		opts = append(opts, logger.WithFormat(c.Config.Global.LogFormat))
	}
	if path := c.Config.Global.LogFile; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		c.logFile = f
		opts = append(opts, logger.WithWriter(f))
	}
	c.Context = logger.WithLogger(c.Context, logger.NewLogger(opts...))
	return nil
}

// Close releases the log file, if any.
func (c *Context) Close() {
	if c.logFile != nil {
		_ = c.logFile.Close()
	}
}

// Stdout is where command results are printed.
func (c *Context) Stdout() io.Writer {
	return c.Command.OutOrStdout()
}

// NewClient creates a platform client for project, falling back to the
// configured project when empty.
func (c *Context) NewClient(project string) (*platform.Client, error) {
	pc := c.Config.Platform
	if pc.Project != "" {
		project = pc.Project
	}
	return platform.NewClient(c, platform.Config{
		BaseURL:         pc.BaseURL,
		Project:         project,
		AccessToken:     pc.AccessToken,
		CredentialsFile: pc.CredentialsFile,
		Timeout:         pc.Timeout,
		MaxRetries:      pc.MaxRetries,
	})
}

// SchedulerOptions translates the scheduler configuration.
func (c *Context) SchedulerOptions() []scheduler.Option {
	sc := c.Config.Scheduler
	return []scheduler.Option{
		scheduler.WithMaxConcurrency(sc.MaxConcurrency),
		scheduler.WithPollInterval(sc.PollInterval),
		scheduler.WithMaxPollInterval(sc.MaxPollInterval),
		scheduler.WithTimeout(sc.Timeout),
		scheduler.WithErrorOnFail(sc.ErrorOnFail),
		scheduler.WithVerbose(sc.Verbose),
	}
}

// PollPolicy is the polling policy for the wait utilities.
func (c *Context) PollPolicy() backoff.Policy {
	return backoff.PollPolicy(c.Config.Scheduler.PollInterval, c.Config.Scheduler.MaxPollInterval)
}

// NewCommand wires flags and configuration loading into cmd and runs
// runFunc with the resulting Context.
func NewCommand(cmd *cobra.Command, flags []commandLineFlag, runFunc func(ctx *Context, args []string) error) *cobra.Command {
	initFlags(cmd, flags...)
	cmd.SilenceUsage = true

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, err := NewContext(cmd, flags)
		if err != nil {
			return fmt.Errorf("initialization error: %w", err)
		}
		defer ctx.Close()

		if err := runFunc(ctx, args); err != nil {
			logger.Error(ctx, "Command failed", "err", err)
			return err
		}
		return nil
	}
	return cmd
}

// signalListener is implemented by types that react to OS signals.
type signalListener interface {
	Signal(context.Context, os.Signal)
}

// listenSignals forwards the first SIGINT or SIGTERM to listener until ctx
// is done.
func listenSignals(ctx context.Context, listener signalListener) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ctx.Done():
		case sig := <-ch:
			listener.Signal(ctx, sig)
		}
	}()
}

// isInterrupted reports whether err came from a cancelled run rather than a
// failure of the run itself.
func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
