package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func versionCmd(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clagehs %s (commit %s, built %s)\n", info.Version, info.Commit, info.Date)
		},
	}
}
