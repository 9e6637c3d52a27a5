package cmd

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipway/slipway/internal/constants"
	apperrors "github.com/slipway/slipway/internal/errors"
	"github.com/slipway/slipway/internal/manifest"
	"github.com/slipway/slipway/internal/provider"
	"github.com/slipway/slipway/internal/testutil"
)

// stubClients satisfies every provider collaborator with benign reads and
// recorded writes, standing in for a project with nothing deployed yet.
type stubClients struct {
	mu        sync.Mutex
	mutations []string
}

func (s *stubClients) record(m string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutations = append(s.mutations, m)
}

func (s *stubClients) CheckProject(context.Context, string) error { return nil }

func (s *stubClients) EnabledAPIs(_ context.Context, _ string, apis []string) (map[string]bool, error) {
	out := make(map[string]bool, len(apis))
	for _, api := range apis {
		out[api] = false
	}
	return out, nil
}

func (s *stubClients) EnableAPI(_ context.Context, _, api string) error {
	s.record("enable " + api)
	return nil
}

func (s *stubClients) MissingGrants(_ context.Context, _ string, want []manifest.Grant) ([]manifest.Grant, error) {
	return want, nil
}

func (s *stubClients) EnsureGrants(_ context.Context, _ string, grants []manifest.Grant) error {
	for _, g := range grants {
		s.record("grant " + g.Role)
	}
	return nil
}

func (s *stubClients) TopicExists(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *stubClients) EnsureTopic(_ context.Context, _, topic string) error {
	s.record("topic " + topic)
	return nil
}

func (s *stubClients) LookupSecret(_ context.Context, _, name string) (string, error) {
	return "ref/" + name, nil
}

func (s *stubClients) CurrentArtifact(context.Context, string, string, constants.ArtifactKind) (*provider.ArtifactState, error) {
	return nil, nil
}

func (s *stubClients) CreateArtifact(_ context.Context, _ string, desired *provider.ArtifactState) (string, error) {
	s.record("create " + desired.Name)
	return "deployed/" + desired.Name, nil
}

func (s *stubClients) UpdateArtifact(_ context.Context, _ string, desired *provider.ArtifactState) (string, error) {
	s.record("update " + desired.Name)
	return "deployed/" + desired.Name, nil
}

// withStubClients swaps the provider client factory for the stub and returns
// it together with a counter of factory invocations.
func withStubClients(t *testing.T) (*stubClients, *int) {
	t.Helper()
	s := &stubClients{}
	built := 0
	prev := newClientsFor
	newClientsFor = func(context.Context, constants.Provider, string) (*provider.Clients, error) {
		built++
		return &provider.Clients{Project: s, APIs: s, IAM: s, Topics: s, Secrets: s, Artifacts: s}, nil
	}
	t.Cleanup(func() { newClientsFor = prev })
	return s, &built
}

func TestApply_DryRun(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	stdout, _ := captureOutput(t)
	s, _ := withStubClients(t)
	path := testutil.WriteManifest(t, t.TempDir(), testutil.ManifestYAML)

	err := execute(t, "apply", "development", "--manifest", path, "--dry-run")
	require.NoError(t, err)

	assert.Empty(t, s.mutations, "a dry run must not issue a single mutating call")
	assert.Contains(t, stdout.String(), "would create")
	assert.Contains(t, stdout.String(), "backend")
	assert.Contains(t, stdout.String(), "executor")
}

func TestApply_DryRunYAMLPlan(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	stdout, _ := captureOutput(t)
	withStubClients(t)
	path := testutil.WriteManifest(t, t.TempDir(), testutil.ManifestYAML)

	err := execute(t, "apply", "development", "--manifest", path, "--dry-run", "-o", "yaml")
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "dry_run: true")
	assert.Contains(t, stdout.String(), "actions:")
	assert.Contains(t, stdout.String(), "op: create")
}

func TestApply_AppliesChanges(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, stderr := captureOutput(t)
	s, _ := withStubClients(t)
	path := testutil.WriteManifest(t, t.TempDir(), testutil.ManifestYAML)

	err := execute(t, "apply", "production", "--manifest", path, "--yes")
	require.NoError(t, err)

	assert.NotEmpty(t, s.mutations)
	assert.Contains(t, s.mutations, "create backend")
	assert.Contains(t, s.mutations, "create executor")
	assert.Contains(t, s.mutations, "topic veo-jobs")
	assert.Contains(t, stderr.String(), "Applied")
}

func TestApply_DeclinedConfirmation(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	captureOutput(t)
	s, built := withStubClients(t)
	path := testutil.WriteManifest(t, t.TempDir(), testutil.ManifestYAML)

	// Stdin is /dev/null under go test, so the prompt reads as a decline.
	err := execute(t, "apply", "production", "--manifest", path)
	require.NoError(t, err)

	assert.Zero(t, *built, "no provider clients are built for a declined run")
	assert.Empty(t, s.mutations)
}

func TestApply_UnknownEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	captureOutput(t)
	withStubClients(t)
	path := testutil.WriteManifest(t, t.TempDir(), testutil.ManifestYAML)

	err := execute(t, "apply", "integration", "--manifest", path, "--dry-run")
	require.Error(t, err)
	testutil.AssertErrorCode(t, err, apperrors.CodeConfigInvalid)
	testutil.AssertExitCode(t, err, constants.ExitConfig)
	assert.Contains(t, err.Error(), "development", "the error lists the declared environments")
}

func TestApply_NoEnvironmentNamed(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	captureOutput(t)
	withStubClients(t)
	path := testutil.WriteManifest(t, t.TempDir(), testutil.ManifestYAML)

	err := execute(t, "apply", "--manifest", path, "--dry-run")
	require.Error(t, err)
	testutil.AssertErrorCode(t, err, apperrors.CodeConfigInvalid)
	assert.Contains(t, err.Error(), "--environment")
}

func TestApply_BadPlanFormat(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	captureOutput(t)
	withStubClients(t)

	err := execute(t, "apply", "development", "--dry-run", "-o", "csv")
	require.Error(t, err)
	testutil.AssertErrorCode(t, err, apperrors.CodeConfigInvalid)
}
