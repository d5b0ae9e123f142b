package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/geetools/exportsched/internal/cmd"
	"github.com/geetools/exportsched/internal/cmn/config"
)

var rootCmd = &cobra.Command{
	Use:   config.AppSlug,
	Short: "exportsched runs graphs of export and import tasks on a remote geospatial platform",
	Long: `exportsched runs graphs of export and import tasks on a remote geospatial platform.

Tasks are declared in a YAML or HCL manifest with their dependencies. They are
submitted as soon as their dependencies succeed, with a bound on how many run
at once, and polled until the whole graph has drained.
`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(cmd.Run())
	rootCmd.AddCommand(cmd.Dry())
	rootCmd.AddCommand(cmd.Wait())
	rootCmd.AddCommand(cmd.Status())
	rootCmd.AddCommand(cmd.Cancel())
	rootCmd.AddCommand(cmd.Version())

	config.Version = version
}

var version = "0.0.0"
