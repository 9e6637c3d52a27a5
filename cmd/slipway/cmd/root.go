// Package cmd implements the CLI commands for the slipway tool.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/slipway/slipway/internal/config"
	"github.com/slipway/slipway/internal/constants"
	apperrors "github.com/slipway/slipway/internal/errors"
	"github.com/slipway/slipway/internal/logger"
	"github.com/slipway/slipway/internal/output"
)

var (
	debug         bool
	environment   string
	logFormat     string
	manifestPath  string
	noColor       bool
	timeout       string
	timeoutCancel context.CancelFunc
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   constants.ProjectName,
	Short: "Declarative deployments for small cloud projects",
	Long: fmt.Sprintf(`%s reads a deployment manifest and converges a cloud project onto it:
required APIs, IAM grants, event topics, and the deployable artifacts themselves.
Runs are idempotent; applying twice in a row changes nothing the second time.`, constants.ProjectName),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			// A broken tool config must not brick the CLI; flags still work.
			output.Warningf("ignoring tool configuration: %v", err)
			cfg = &config.Config{}
		}
		applyConfigDefaults(cmd, cfg)

		if logFormat != "" && logFormat != "text" && logFormat != "json" {
			return fmt.Errorf("unknown log format %q (use text or json)", logFormat)
		}

		if noColor {
			color.NoColor = true
		}

		if verbose {
			output.Header(output.Bold(constants.ProjectName) + " " + *constants.GetVersion())
		}

		level := cfg.GetLogLevel()
		if debug {
			level = slog.LevelDebug
		}
		logger.Initialize(jsonLogs(), level)

		// Parse the run timeout and install it on the command context.
		// This runs after flags are parsed but before the command runs.
		timeoutDuration, err := parseTimeout(timeout)
		if err != nil {
			return fmt.Errorf("error parsing timeout: %w", err)
		}

		if timeoutDuration > 0 {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutDuration)
			timeoutCancel = cancel // Stored for cleanup in Execute()
			cmd.SetContext(ctx)

			if verbose {
				output.Infof("timeout: %s", timeoutDuration)
			}
		} else if verbose {
			output.Infof("timeout disabled")
		}
		return nil
	},
}

// RootCmd exposes the assembled command tree for documentation tooling.
func RootCmd() *cobra.Command {
	return rootCmd
}

// Execute runs the root command and exits with the stage-specific code of
// whatever error comes back, so CI can tell a config mistake from a failed
// deploy.
func Execute() {
	err := rootCmd.Execute()
	if timeoutCancel != nil {
		timeoutCancel()
	}

	if err != nil {
		output.Errorf("%v", err)
		os.Exit(apperrors.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "f", constants.DefaultManifestName, "Path to the deployment manifest")
	rootCmd.PersistentFlags().StringVarP(&environment, "environment", "e", "", "Environment to operate on")
	rootCmd.PersistentFlags().StringVar(&timeout, "timeout", "", "Timeout for the whole run (e.g., 15m, 30s, or plain seconds; 0 disables)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (default: json when stderr is not a terminal)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debugging logs")
}

// applyConfigDefaults fills every flag the command line left untouched from
// the operator configuration, so `slipway configure` defaults apply without
// overriding explicit flags.
func applyConfigDefaults(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if !flags.Changed("manifest") && cfg.Manifest != "" {
		manifestPath = cfg.Manifest
	}
	if !flags.Changed("environment") && environment == "" {
		environment = cfg.Environment
	}
	if !flags.Changed("timeout") && timeout == "" && cfg.Timeout > 0 {
		timeout = cfg.Timeout.String()
	}
	if !flags.Changed("log-format") && logFormat == "" {
		logFormat = cfg.LogFormat
	}
	if !flags.Changed("no-color") && cfg.NoColor {
		noColor = true
	}
}

// jsonLogs reports whether logs go out as JSON: forced by --log-format, or
// chosen automatically when stderr is not a terminal (CI, pipes).
func jsonLogs() bool {
	if logFormat != "" {
		return logFormat == "json"
	}
	stat, err := os.Stderr.Stat()
	if err != nil {
		return true
	}
	return stat.Mode()&os.ModeCharDevice == 0
}

// parseTimeout parses a timeout string to a time.Duration.
// Defaults to the built-in apply timeout if empty.
// Supports formats: "15m", "30s", "1h", "600" (number of seconds).
func parseTimeout(timeoutStr string) (time.Duration, error) {
	if timeoutStr == "" {
		return constants.DefaultApplyTimeout, nil
	}

	duration, err := time.ParseDuration(timeoutStr)
	if err == nil {
		return duration, nil
	}

	seconds, err := strconv.Atoi(timeoutStr)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout format: %s (use a duration like '15m' or '30s', or seconds like '600')", timeoutStr)
	}

	return time.Duration(seconds) * time.Second, nil
}
