package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/slipway/slipway/internal/constants"
	apperrors "github.com/slipway/slipway/internal/errors"
	"github.com/slipway/slipway/internal/logger"
	"github.com/slipway/slipway/internal/manifest"
	"github.com/slipway/slipway/internal/output"
	"github.com/slipway/slipway/internal/provider"
	"github.com/slipway/slipway/internal/provider/aws"
	"github.com/slipway/slipway/internal/provider/gcp"
	"github.com/slipway/slipway/internal/reconcile"
)

var (
	autoApprove bool
	dryRun      bool
	planFormat  string
)

var applyCmd = &cobra.Command{
	Use:   "apply [environment]",
	Short: "Reconcile an environment onto its manifest",
	Long: `Apply loads the deployment manifest, resolves the named environment, and
converges the target project onto it: enables required APIs, grants IAM
roles, ensures event topics, and deploys every service and function.

A dry run reports what would change without touching the project.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report planned changes without applying them")
	applyCmd.Flags().BoolVarP(&autoApprove, "yes", "y", false, "Skip the confirmation prompt")
	applyCmd.Flags().StringVarP(&planFormat, "output", "o", "table", "Plan output format: table or yaml")
	rootCmd.AddCommand(applyCmd)
}

// newClientsFor builds the provider client bundle for one environment.
// Swapped out in tests.
var newClientsFor = func(ctx context.Context, p constants.Provider, region string) (*provider.Clients, error) {
	switch p {
	case constants.AWS:
		return aws.NewClients(ctx, region)
	default:
		return gcp.NewClients(ctx, region)
	}
}

func runApply(cmd *cobra.Command, args []string) error {
	if planFormat != "table" && planFormat != "yaml" {
		return apperrors.NewConfigError("--output",
			fmt.Sprintf("unknown plan format %q (want table or yaml)", planFormat), nil)
	}

	dep, err := loadDeployment(args)
	if err != nil {
		return err
	}
	env := dep.Environment

	output.Header(constants.ProjectName + " apply")
	output.KeyValue("Environment", env.Name)
	output.KeyValue("Provider", string(env.Provider))
	output.KeyValue("Project", env.Project)
	output.KeyValue("Region", env.Region)
	output.Blank()

	if !dryRun && !autoApprove {
		if !output.Confirm(fmt.Sprintf("Reconcile %q onto project %q?", env.Name, env.Project)) {
			output.Infof("aborted, nothing changed")
			return nil
		}
	}

	ctx := logger.WithRunID(cmd.Context(), logger.NewRunID())
	log := logger.DeriveRunLogger(ctx, slog.Default())

	clients, err := newClientsFor(ctx, env.Provider, env.Region)
	if err != nil {
		return fmt.Errorf("could not build %s clients: %w", env.Provider, err)
	}

	r := &reconcile.Reconciler{Clients: clients, Log: log, DryRun: dryRun}

	start := time.Now()
	plan, runErr := r.Run(ctx, dep)
	// The plan holds everything up to the point of failure, so render it
	// even when the run errors out.
	renderPlan(plan)
	if runErr != nil {
		return runErr
	}

	switch {
	case dryRun:
		output.Infof("Dry run: %d change(s) would be applied", plan.Mutations())
	case plan.Mutations() == 0:
		output.Successf("Nothing to do: %s already matches the manifest (%s)",
			env.Name, output.Duration(time.Since(start)))
	default:
		output.Successf("Applied %d change(s) in %s",
			plan.Mutations(), output.Duration(time.Since(start)))
	}
	return nil
}

// loadDeployment loads the manifest and resolves the environment named by the
// positional argument, the --environment flag, or the tool configuration.
func loadDeployment(args []string) (*manifest.Deployment, error) {
	envName := environment
	if len(args) == 1 {
		envName = args[0]
	}
	if envName == "" {
		return nil, apperrors.NewConfigError("environment",
			"no environment named: pass one as an argument or set --environment", nil)
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	m.WarnNearDuplicates(slog.Default())

	return m.ResolveEnvironment(envName)
}

func renderPlan(plan *reconcile.Plan) {
	if plan == nil || len(plan.Actions) == 0 {
		return
	}

	if planFormat == "yaml" {
		data, err := yaml.Marshal(plan)
		if err != nil {
			output.Errorf("could not render plan: %v", err)
			return
		}
		output.Printf("%s", data)
		return
	}

	output.Table([]string{"Stage", "Resource", "Action"}, plan.Rows())
}
