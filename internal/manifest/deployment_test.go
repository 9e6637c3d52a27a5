package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/slipway/slipway/internal/errors"
	"github.com/slipway/slipway/internal/vars"
)

func loadValid(t *testing.T) *Manifest {
	t.Helper()
	m, err := Load(writeManifest(t, validManifest))
	require.NoError(t, err)
	return m
}

func TestResolveEnvironment(t *testing.T) {
	m := loadValid(t)

	dep, err := m.ResolveEnvironment("production")
	require.NoError(t, err)

	assert.Equal(t, "production", dep.Environment.Name)
	assert.Equal(t, "veo-prod", dep.Environment.Project)

	expected := vars.Set{
		"LOG_LEVEL":   "INFO",
		"USE_MOCKS":   "false",
		"ENVIRONMENT": "production",
	}
	assert.Equal(t, expected, dep.Variables, "common and override layers merged")
}

func TestResolveEnvironment_OverrideWins(t *testing.T) {
	m := loadValid(t)
	m.Variables["ENVIRONMENT"] = "common-value"

	dep, err := m.ResolveEnvironment("development")
	require.NoError(t, err)

	assert.Equal(t, "development", dep.Variables["ENVIRONMENT"])
}

func TestResolveEnvironment_Unknown(t *testing.T) {
	m := loadValid(t)

	_, err := m.ResolveEnvironment("staging")

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "development, production", "declared environments are listed")
}

func TestResolveEnvironment_SourceSchemeMismatch(t *testing.T) {
	m, err := Load(writeManifest(t, `
version: 1
environments:
  edge:
    provider: aws
    project: "123456789012"
    region: us-east-1
services:
  - name: executor
    kind: function
    runtime: python312
    entry_point: execute
    source: gs://veo-artifacts/executor.zip
`))
	require.NoError(t, err)

	_, err = m.ResolveEnvironment("edge")

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "services.executor.source")
	assert.Contains(t, err.Error(), "s3://")
}

func TestResolveEnvironment_MissingServiceAccountOnAWS(t *testing.T) {
	m, err := Load(writeManifest(t, `
version: 1
environments:
  edge:
    provider: aws
    project: "123456789012"
    region: us-east-1
  dev:
    project: p
    region: r
services:
  - name: backend
    image: img
`))
	require.NoError(t, err)

	// The same manifest is fine on gcp, where the provider assigns a default
	// runtime account.
	_, err = m.ResolveEnvironment("dev")
	require.NoError(t, err)

	_, err = m.ResolveEnvironment("edge")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "services.backend.service_account")
}

func TestResolveEnvironment_DerivedSets(t *testing.T) {
	m, err := Load(writeManifest(t, `
version: 1
apis:
  - pubsub.googleapis.com
  - run.googleapis.com
  - pubsub.googleapis.com
environments:
  dev: {project: p, region: r}
services:
  - name: backend
    image: img
    service_account: backend-sa
    roles:
      - roles/pubsub.publisher
      - roles/secretmanager.secretAccessor
    publishes: [veo-jobs, audit-events]
  - name: worker
    image: img2
    service_account: backend-sa
    roles:
      - roles/pubsub.publisher
  - name: executor
    kind: function
    runtime: python312
    entry_point: execute
    source: gs://b/fn.zip
    trigger: {topic: veo-jobs}
`))
	require.NoError(t, err)

	dep, err := m.ResolveEnvironment("dev")
	require.NoError(t, err)

	assert.Equal(t, []string{"pubsub.googleapis.com", "run.googleapis.com"}, dep.APIs,
		"duplicate APIs collapse, order is deterministic")
	assert.Equal(t, []string{"audit-events", "veo-jobs"}, dep.Topics,
		"topics are the union of publishes and triggers")
	assert.Equal(t, []Grant{
		{ServiceAccount: "backend-sa", Role: "roles/pubsub.publisher"},
		{ServiceAccount: "backend-sa", Role: "roles/secretmanager.secretAccessor"},
	}, dep.Grants, "grants deduplicate across services")
}

func TestResolveEnvironment_ImageOverride(t *testing.T) {
	m, err := Load(writeManifest(t, `
version: 1
environments:
  dev:
    project: p
    region: r
    images: {backend: "gcr.io/p/backend:dev"}
  prod:
    project: p2
    region: r
services:
  - {name: backend, image: "gcr.io/p/backend:stable"}
`))
	require.NoError(t, err)

	dev, err := m.ResolveEnvironment("dev")
	require.NoError(t, err)
	assert.Equal(t, "gcr.io/p/backend:dev", dev.Services[0].Image)

	prod, err := m.ResolveEnvironment("prod")
	require.NoError(t, err)
	assert.Equal(t, "gcr.io/p/backend:stable", prod.Services[0].Image)
	assert.Equal(t, "gcr.io/p/backend:stable", m.Services[0].Image, "manifest itself is not mutated")
}

func TestResolveEnvironment_FreshVariables(t *testing.T) {
	m := loadValid(t)

	dep, err := m.ResolveEnvironment("development")
	require.NoError(t, err)

	dep.Variables["INJECTED"] = "x"
	assert.NotContains(t, m.Variables, "INJECTED", "resolved set is independent of the manifest")
}
