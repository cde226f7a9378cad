package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"price-watch/internal/version"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if versionShort {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
			return
		}
		fmt.Fprint(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version number")
}
