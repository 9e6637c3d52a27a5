package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slipway/slipway/internal/config"
	"github.com/slipway/slipway/internal/output"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Save default settings for future runs",
	Long: `Configure records the flags given alongside it (manifest path, environment,
timeout, log options) as defaults in ` + output.Bold("~/.slipway/config.yaml") + `,
so later invocations no longer need them.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		output.Infof("Starting a fresh configuration")
		cfg = &config.Config{}
	} else {
		output.Infof("Updating existing configuration")
	}

	flags := cmd.Flags()
	if flags.Changed("manifest") {
		cfg.Manifest = manifestPath
	}
	if flags.Changed("environment") {
		cfg.Environment = environment
	}
	if flags.Changed("timeout") {
		d, err := parseTimeout(timeout)
		if err != nil {
			return err
		}
		cfg.Timeout = d
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if flags.Changed("no-color") {
		cfg.NoColor = noColor
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	configPath, err := config.GetConfigPath()
	if err != nil {
		return err
	}

	output.Successf("Configuration saved")
	output.KeyValue("Path", configPath)
	if cfg.Manifest != "" {
		output.KeyValue("Manifest", cfg.Manifest)
	}
	if cfg.Environment != "" {
		output.KeyValue("Environment", cfg.Environment)
	}
	if cfg.Timeout > 0 {
		output.KeyValue("Timeout", cfg.Timeout.String())
	}
	return nil
}
