package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type commandLineFlag struct {
	name, shorthand, defaultValue, usage string
	isBool                               bool
	// bindViper is the config key the flag overrides, if any.
	bindViper string
}

var (
	configFlag = commandLineFlag{
		name:      "config",
		shorthand: "c",
		usage:     "config file (default is $HOME/.config/exportsched/config.yaml)",
	}
	quietFlag = commandLineFlag{
		name:      "quiet",
		shorthand: "q",
		usage:     "suppress log output",
		isBool:    true,
	}
	debugFlag = commandLineFlag{
		name:      "debug",
		usage:     "enable debug logging",
		isBool:    true,
		bindViper: "debug",
	}
	projectFlag = commandLineFlag{
		name:      "project",
		shorthand: "p",
		usage:     "platform project id (overrides the manifest)",
		bindViper: "platform.project",
	}
	maxConcurrencyFlag = commandLineFlag{
		name:      "max-concurrency",
		shorthand: "m",
		usage:     "maximum number of jobs running at once",
		bindViper: "scheduler.maxConcurrency",
	}
	pollIntervalFlag = commandLineFlag{
		name:      "poll-interval",
		usage:     "interval between status polls, e.g. 30s",
		bindViper: "scheduler.pollInterval",
	}
	maxPollIntervalFlag = commandLineFlag{
		name:      "max-poll-interval",
		usage:     "upper bound for the poll interval back-off",
		bindViper: "scheduler.maxPollInterval",
	}
	timeoutFlag = commandLineFlag{
		name:      "timeout",
		usage:     "give up waiting after this duration",
		bindViper: "scheduler.timeout",
	}
	errorOnFailFlag = commandLineFlag{
		name:      "error-on-fail",
		usage:     "stop as soon as a job is observed failed",
		isBool:    true,
		bindViper: "scheduler.errorOnFail",
	}
	verboseFlag = commandLineFlag{
		name:      "verbose",
		shorthand: "v",
		usage:     "progress verbosity (0 silent, 1 starts, 3 finishes, 7 polls, 10 graph dumps)",
		bindViper: "scheduler.verbose",
	}
	skipExistingFlag = commandLineFlag{
		name:   "skip-existing",
		usage:  "skip jobs whose output already exists in object storage",
		isBool: true,
	}
	resumeFlag = commandLineFlag{
		name:   "resume",
		usage:  "skip jobs recorded as completed under the run key",
		isBool: true,
	}
	freshFlag = commandLineFlag{
		name:   "fresh",
		usage:  "forget checkpoints recorded under the run key before running",
		isBool: true,
	}
	runKeyFlag = commandLineFlag{
		name:      "run-key",
		usage:     "checkpoint key for this run (default is the manifest name)",
		bindViper: "checkpoint.runKey",
	}
	cancelOnInterruptFlag = commandLineFlag{
		name:   "cancel-on-interrupt",
		usage:  "cancel running remote jobs on SIGINT or SIGTERM",
		isBool: true,
	}
	metricsAddrFlag = commandLineFlag{
		name:      "metrics-addr",
		usage:     "serve Prometheus metrics on this address during the run",
		bindViper: "metrics.addr",
	}
)

var baseFlags = []commandLineFlag{configFlag, quietFlag, debugFlag}

func initFlags(cmd *cobra.Command, additionalFlags ...commandLineFlag) {
	for _, flag := range append(baseFlags, additionalFlags...) {
		if flag.isBool {
			cmd.Flags().BoolP(flag.name, flag.shorthand, flag.defaultValue == "true", flag.usage)
			continue
		}
		cmd.Flags().StringP(flag.name, flag.shorthand, flag.defaultValue, flag.usage)
	}
}

// bindFlags binds flags that override configuration keys to v. Only flags
// set on the command line take precedence over the config file and env.
func bindFlags(v *viper.Viper, cmd *cobra.Command, additionalFlags ...commandLineFlag) error {
	for _, flag := range append(baseFlags, additionalFlags...) {
		if flag.bindViper == "" {
			continue
		}
		if err := v.BindPFlag(flag.bindViper, cmd.Flags().Lookup(flag.name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag.name, err)
		}
	}
	return nil
}
