package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/slipway/slipway/internal/assets"
	apperrors "github.com/slipway/slipway/internal/errors"
	"github.com/slipway/slipway/internal/output"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter manifest to build on",
	Long: `Init writes a commented starter manifest describing two environments and two
services. Edit it to match your project, then check it with ` + output.Bold("slipway validate") + `.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	if _, err := os.Stat(manifestPath); err == nil {
		return apperrors.NewConfigError(manifestPath, "manifest already exists, not overwriting", nil)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return apperrors.NewConfigError(manifestPath, "could not check for an existing manifest", err)
	}

	if err := os.WriteFile(manifestPath, []byte(assets.StarterManifest), 0o644); err != nil { //nolint:gosec // a manifest is a committed project file
		return apperrors.NewConfigError(manifestPath, "could not write manifest", err)
	}

	output.Successf("Wrote starter manifest")
	output.KeyValue("Path", manifestPath)
	output.Infof("Edit it to match your project, then run %s", output.Bold("slipway validate"))
	return nil
}
