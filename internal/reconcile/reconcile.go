// Package reconcile drives the staged pipeline that converges a project onto
// a resolved deployment: enable APIs, grant IAM roles, ensure event topics,
// deploy artifacts. Stages run strictly in order and a failure in one stage
// keeps all later stages from starting; work inside a stage fans out
// concurrently. Re-running against a fully reconciled project issues no
// mutating provider call.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/slipway/slipway/internal/constants"
	apperrors "github.com/slipway/slipway/internal/errors"
	"github.com/slipway/slipway/internal/manifest"
	"github.com/slipway/slipway/internal/output"
	"github.com/slipway/slipway/internal/provider"
	"github.com/slipway/slipway/internal/secrets"
)

// Reconciler applies one resolved deployment to its target project. In
// dry-run mode every stage runs its read and diff phase and records what it
// would do, without issuing a single mutating call.
type Reconciler struct {
	Clients *provider.Clients
	Log     *slog.Logger
	DryRun  bool

	mu   sync.Mutex
	plan *Plan
}

// Run executes the pipeline. The returned plan holds the applied (or, in a
// dry run, planned) actions up to the point of failure; the error, if any,
// carries the failing stage.
func (r *Reconciler) Run(ctx context.Context, dep *manifest.Deployment) (*Plan, error) {
	r.plan = &Plan{
		Environment: dep.Environment.Name,
		Project:     dep.Environment.Project,
		DryRun:      r.DryRun,
	}
	defer r.plan.sort()

	refs, err := r.checkPreconditions(ctx, dep)
	if err != nil {
		return r.plan, err
	}

	stages := []struct {
		title string
		empty bool
		run   func(context.Context, *manifest.Deployment) error
	}{
		{"Enable required APIs", len(dep.APIs) == 0, r.enableAPIs},
		{"Grant IAM roles", len(dep.Grants) == 0, r.grantRoles},
		{"Ensure event topics", len(dep.Topics) == 0, r.ensureTopics},
		{"Deploy artifacts", len(dep.Services) == 0,
			func(ctx context.Context, dep *manifest.Deployment) error {
				return r.deployArtifacts(ctx, dep, refs)
			}},
	}

	for i, stage := range stages {
		if stage.empty {
			output.StepSkip(i+1, len(stages), stage.title+": nothing declared")
			continue
		}
		output.Step(i+1, len(stages), stage.title)
		if err := stage.run(ctx, dep); err != nil {
			output.StepError(i+1, len(stages), stage.title)
			return r.plan, err
		}
		output.StepSuccess(i+1, len(stages), stage.title)
	}
	return r.plan, nil
}

// checkPreconditions is stage 0: verify the project is reachable, then bind
// every declared secret. Both are read-only; a missing secret aborts before
// any later service is probed, so there is never a partial binding.
func (r *Reconciler) checkPreconditions(ctx context.Context, dep *manifest.Deployment) (map[string][]secrets.ResolvedRef, error) {
	project := dep.Environment.Project

	if err := r.Clients.Project.CheckProject(ctx, project); err != nil {
		return nil, stageError(constants.StageConfig, project, "project precondition failed", err)
	}
	r.log().Debug("project reachable", "project", project)

	binder := &secrets.Binder{Store: r.Clients.Secrets, Log: r.log()}
	refs := make(map[string][]secrets.ResolvedRef, len(dep.Services))
	for i := range dep.Services {
		svc := &dep.Services[i]
		bound, err := binder.Bind(ctx, project, svc.Secrets)
		if err != nil {
			return nil, stageError(constants.StageSecrets, svc.Name, "secret binding failed", err)
		}
		refs[svc.Name] = bound
	}
	return refs, nil
}

func (r *Reconciler) enableAPIs(ctx context.Context, dep *manifest.Deployment) error {
	if len(dep.APIs) == 0 {
		return nil
	}
	project := dep.Environment.Project

	enabled, err := r.Clients.APIs.EnabledAPIs(ctx, project, dep.APIs)
	if err != nil {
		return stageError(constants.StageAPIs, project, "could not read enabled apis", err)
	}

	var missing []string
	for _, api := range dep.APIs {
		if enabled[api] {
			r.record(Action{Stage: constants.StageAPIs, Resource: api, Op: OpNone})
			continue
		}
		missing = append(missing, api)
	}
	if len(missing) == 0 {
		r.log().Debug("all required apis enabled", "count", len(dep.APIs))
		return nil
	}

	if r.DryRun {
		for _, api := range missing {
			r.record(Action{Stage: constants.StageAPIs, Resource: api, Op: OpEnable})
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.MaxStageConcurrency)
	for _, api := range missing {
		g.Go(func() error {
			if err := r.Clients.APIs.EnableAPI(gctx, project, api); err != nil {
				return stageError(constants.StageAPIs, api, "could not enable api", err)
			}
			r.record(Action{Stage: constants.StageAPIs, Resource: api, Op: OpEnable})
			r.log().Info("enabled api", "api", api)
			return nil
		})
	}
	return g.Wait()
}

// grantRoles diffs the wanted grants against the current policy and applies
// the missing ones in a single batch, so concurrent reconciles cannot race
// this run grant by grant.
func (r *Reconciler) grantRoles(ctx context.Context, dep *manifest.Deployment) error {
	if len(dep.Grants) == 0 {
		return nil
	}
	project := dep.Environment.Project

	missing, err := r.Clients.IAM.MissingGrants(ctx, project, dep.Grants)
	if err != nil {
		return stageError(constants.StageIAM, project, "could not read current grants", err)
	}

	missingSet := make(map[manifest.Grant]bool, len(missing))
	for _, grant := range missing {
		missingSet[grant] = true
	}
	for _, grant := range dep.Grants {
		if !missingSet[grant] {
			r.record(Action{Stage: constants.StageIAM, Resource: grantResource(grant), Op: OpNone})
		}
	}
	if len(missing) == 0 {
		r.log().Debug("all grants in place", "count", len(dep.Grants))
		return nil
	}

	if !r.DryRun {
		if err := r.Clients.IAM.EnsureGrants(ctx, project, missing); err != nil {
			return stageError(constants.StageIAM, project, "could not apply grants", err)
		}
	}
	for _, grant := range missing {
		r.record(Action{Stage: constants.StageIAM, Resource: grantResource(grant), Op: OpGrant})
		if !r.DryRun {
			r.log().Info("granted role", "role", grant.Role, "service_account", grant.ServiceAccount)
		}
	}
	return nil
}

func (r *Reconciler) ensureTopics(ctx context.Context, dep *manifest.Deployment) error {
	if len(dep.Topics) == 0 {
		return nil
	}
	project := dep.Environment.Project

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.MaxStageConcurrency)
	for _, topic := range dep.Topics {
		g.Go(func() error {
			exists, err := r.Clients.Topics.TopicExists(gctx, project, topic)
			if err != nil {
				return stageError(constants.StageEvents, topic, "could not check topic", err)
			}
			if exists {
				r.record(Action{Stage: constants.StageEvents, Resource: topic, Op: OpNone})
				return nil
			}
			if !r.DryRun {
				if err := r.Clients.Topics.EnsureTopic(gctx, project, topic); err != nil {
					return stageError(constants.StageEvents, topic, "could not create topic", err)
				}
				r.log().Info("created topic", "topic", topic)
			}
			r.record(Action{Stage: constants.StageEvents, Resource: topic, Op: OpCreate})
			return nil
		})
	}
	return g.Wait()
}

func (r *Reconciler) deployArtifacts(ctx context.Context, dep *manifest.Deployment, refs map[string][]secrets.ResolvedRef) error {
	if len(dep.Services) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.MaxStageConcurrency)
	for i := range dep.Services {
		svc := dep.Services[i]
		g.Go(func() error {
			return r.deployOne(gctx, dep, svc, refs[svc.Name])
		})
	}
	return g.Wait()
}

func (r *Reconciler) deployOne(ctx context.Context, dep *manifest.Deployment, svc manifest.ServiceSpec, refs []secrets.ResolvedRef) error {
	project := dep.Environment.Project

	desired, err := provider.Desired(svc, dep.Variables, refs)
	if err != nil {
		return stageError(constants.StageDeploy, svc.Name, "invalid desired state", err)
	}
	if dep.Environment.Provider == constants.AWS && len(desired.Audiences) > 0 {
		r.log().Warn("custom audiences are not supported on aws, ignoring them", "service", svc.Name)
		desired.Audiences = nil
	}

	current, err := r.Clients.Artifacts.CurrentArtifact(ctx, project, svc.Name, svc.Kind)
	if err != nil {
		return stageError(constants.StageDeploy, svc.Name, "could not read deployed state", err)
	}

	switch {
	case current == nil:
		if r.DryRun {
			r.record(Action{Stage: constants.StageDeploy, Resource: svc.Name, Op: OpCreate})
			return nil
		}
		id, err := r.Clients.Artifacts.CreateArtifact(ctx, project, desired)
		if err != nil {
			return stageError(constants.StageDeploy, svc.Name, "create failed", err)
		}
		r.record(Action{Stage: constants.StageDeploy, Resource: svc.Name, Op: OpCreate, Detail: id})
		r.log().Info("created artifact", "service", svc.Name, "id", id)

	case current.Equal(desired):
		r.record(Action{Stage: constants.StageDeploy, Resource: svc.Name, Op: OpNone})
		r.log().Debug("artifact already matches", "service", svc.Name)

	default:
		if r.DryRun {
			r.record(Action{Stage: constants.StageDeploy, Resource: svc.Name, Op: OpUpdate})
			return nil
		}
		id, err := r.Clients.Artifacts.UpdateArtifact(ctx, project, desired)
		if err != nil {
			return stageError(constants.StageDeploy, svc.Name, "update failed", err)
		}
		r.record(Action{Stage: constants.StageDeploy, Resource: svc.Name, Op: OpUpdate, Detail: id})
		r.log().Info("updated artifact", "service", svc.Name, "id", id)
	}
	return nil
}

func (r *Reconciler) record(a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plan.Actions = append(r.plan.Actions, a)
}

func (r *Reconciler) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// stageError attributes a provider failure to its pipeline stage. Errors the
// provider already classified pass through unchanged so their code and stage
// survive.
func stageError(stage constants.Stage, resource, message string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if stage == constants.StageDeploy {
		return apperrors.NewDeployError(resource, message, err)
	}
	return apperrors.NewProviderError(stage, resource, message, err)
}

func grantResource(g manifest.Grant) string {
	return fmt.Sprintf("%s on %s", g.Role, g.ServiceAccount)
}
