package cmd

import (
	"github.com/spf13/cobra"

	"github.com/slipway/slipway/internal/constants"
	"github.com/slipway/slipway/internal/output"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of the CLI",
	Run: func(_ *cobra.Command, _ []string) {
		output.Header("🚀 " + constants.ProjectName)
		output.KeyValue("Version", *constants.GetVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
