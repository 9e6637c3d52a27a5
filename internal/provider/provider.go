// Package provider defines the collaborator interfaces the reconciler drives
// and the shared types exchanged across them. Implementations live in the gcp
// and aws subpackages; tests use fakes.
package provider

import (
	"context"

	"github.com/slipway/slipway/internal/constants"
	"github.com/slipway/slipway/internal/manifest"
	"github.com/slipway/slipway/internal/secrets"
)

// ProjectChecker verifies the target project exists and is reachable with the
// ambient credentials before any stage runs.
type ProjectChecker interface {
	CheckProject(ctx context.Context, project string) error
}

// APIEnabler manages provider API enablement.
type APIEnabler interface {
	// EnabledAPIs reports which of the given APIs are already enabled.
	EnabledAPIs(ctx context.Context, project string, apis []string) (map[string]bool, error)
	// EnableAPI enables one API and waits for the enablement to complete.
	// Enabling an already-enabled API is a no-op.
	EnableAPI(ctx context.Context, project, api string) error
}

// PolicyBinder manages project-level role grants.
type PolicyBinder interface {
	// MissingGrants returns the subset of want not currently in effect.
	MissingGrants(ctx context.Context, project string, want []manifest.Grant) ([]manifest.Grant, error)
	// EnsureGrants adds the given grants. Granting one that concurrently
	// appeared is treated as success, never an error.
	EnsureGrants(ctx context.Context, project string, grants []manifest.Grant) error
}

// TopicAdmin manages event-delivery topics.
type TopicAdmin interface {
	TopicExists(ctx context.Context, project, topic string) (bool, error)
	// EnsureTopic creates the topic. A creation that loses a race to a
	// concurrent creator is treated as success.
	EnsureTopic(ctx context.Context, project, topic string) error
}

// Deployer pushes deployable artifacts.
//
// CurrentArtifact returns the deployed state in the same normal form that
// Desired produces (see ArtifactState.Normalize), or nil when the artifact
// does not exist, so the reconciler can diff with Equal.
type Deployer interface {
	CurrentArtifact(ctx context.Context, project, name string, kind constants.ArtifactKind) (*ArtifactState, error)
	// CreateArtifact deploys a new artifact and returns its identifier
	// (service URL or function resource name).
	CreateArtifact(ctx context.Context, project string, desired *ArtifactState) (string, error)
	// UpdateArtifact updates an existing artifact in place. No duplicate is
	// ever created.
	UpdateArtifact(ctx context.Context, project string, desired *ArtifactState) (string, error)
}

// Clients bundles everything the reconciler needs for one environment.
// Construct with gcp.NewClients or aws.NewClients.
type Clients struct {
	Project   ProjectChecker
	APIs      APIEnabler
	IAM       PolicyBinder
	Topics    TopicAdmin
	Secrets   secrets.Store
	Artifacts Deployer
}
