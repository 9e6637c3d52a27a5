package cmd

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/slipway/slipway/internal/manifest"
	"github.com/slipway/slipway/internal/output"
	"github.com/slipway/slipway/internal/secrets"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the manifest without touching any project",
	Long: `Validate loads the deployment manifest, checks it against the schema, and
resolves every declared environment. Nothing is read from or written to any
cloud project.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, _ []string) error {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}

	m.WarnNearDuplicates(slog.Default())
	warnSuspiciousVariables(m)

	// Resolution catches per-environment problems schema validation cannot,
	// like a function source archive the environment's provider cannot
	// deploy from.
	for _, name := range slices.Sorted(maps.Keys(m.Environments)) {
		if _, err := m.ResolveEnvironment(name); err != nil {
			return err
		}
		output.Successf("environment %s resolves", name)
	}

	output.Successf("Manifest is valid: %d service(s), %d environment(s)",
		len(m.Services), len(m.Environments))
	return nil
}

// warnSuspiciousVariables flags plain variables whose names suggest they hold
// sensitive values and belong in the secret store as a secrets entry.
func warnSuspiciousVariables(m *manifest.Manifest) {
	seen := make(map[string]bool)
	warn := func(scope string, names []string) {
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			output.Warningf("%s variable %s looks like a secret, consider a secrets entry", scope, name)
		}
	}

	warn("shared", secrets.SuspiciousVariables(m.Variables))
	for _, name := range slices.Sorted(maps.Keys(m.Environments)) {
		warn(name, secrets.SuspiciousVariables(m.Environments[name].Variables))
	}
}
