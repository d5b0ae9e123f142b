package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geetools/exportsched/internal/cmn/config"
)

// Version returns the cobra command that prints the binary version.
func Version() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the binary version",
		Long:  `Print the current version of the exportsched executable.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), config.Version)
		},
	}
}
