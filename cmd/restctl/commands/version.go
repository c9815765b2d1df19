package commands

import (
	"github.com/spf13/cobra"

	"github.com/kbukum/restkit/version"
)

func newVersionCmd(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			return printOutput(cmd.OutOrStdout(), global.Output, info, false, "", kvTable{
				{"version", info.Short()},
				{"built", info.BuildTime},
				{"go", info.GoVersion},
			})
		},
	}
}
