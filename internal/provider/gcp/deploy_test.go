package gcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/run/v2"

	"github.com/slipway/slipway/internal/constants"
	"github.com/slipway/slipway/internal/provider"
	"github.com/slipway/slipway/internal/secrets"
	"github.com/slipway/slipway/internal/vars"
)

func testDeployer() *defaultDeployer {
	return &defaultDeployer{region: "us-central1"}
}

func desiredService() *provider.ArtifactState {
	state := &provider.ArtifactState{
		Name:           "backend",
		Kind:           constants.KindService,
		Image:          "gcr.io/veo-dev/backend:v12",
		ServiceAccount: "veo-backend",
		Env:            vars.Set{"LOG_LEVEL": "INFO", "ENVIRONMENT": "development"},
		Secrets: []secrets.ResolvedRef{
			{Secret: "GOOGLE_TOKEN_AUDIENCE", Env: "GOOGLE_TOKEN_AUDIENCE", Version: "latest"},
			{Secret: "IAP_AUDIENCE", Env: "IAP_CLIENT_AUDIENCE", Version: "latest"},
		},
		Audiences:      []string{"https://backend.veo.example.com"},
		MemoryMiB:      512,
		TimeoutSeconds: 300,
	}
	state.Normalize()
	return state
}

func desiredFunction() *provider.ArtifactState {
	state := &provider.ArtifactState{
		Name:           "executor",
		Kind:           constants.KindFunction,
		Runtime:        "python312",
		EntryPoint:     "execute",
		Source:         "gs://veo-artifacts/executor.zip",
		ServiceAccount: "veo-executor",
		Env:            vars.Set{"LOG_LEVEL": "INFO"},
		Secrets: []secrets.ResolvedRef{
			{Secret: "GOOGLE_TOKEN_AUDIENCE", Env: "GOOGLE_TOKEN_AUDIENCE", Version: "latest"},
		},
		TriggerTopic:   "veo-jobs",
		MemoryMiB:      512,
		TimeoutSeconds: 300,
	}
	state.Normalize()
	return state
}

// A desired state pushed through the request spec and read back through the
// state mapping must compare equal, otherwise every apply would see drift.
func TestRunServiceSpec_RoundTrip(t *testing.T) {
	d := testDeployer()
	desired := desiredService()

	svc := d.runServiceSpec("veo-dev", desired)
	current := runServiceState("veo-dev", "backend", svc)

	assert.True(t, desired.Equal(current), "service round-trip must be drift-free")
}

func TestFunctionSpec_RoundTrip(t *testing.T) {
	d := testDeployer()
	desired := desiredFunction()

	fn, err := d.functionSpec("veo-dev", desired)
	require.NoError(t, err)
	current := functionState("veo-dev", "executor", fn)

	assert.True(t, desired.Equal(current), "function round-trip must be drift-free")
}

func TestRunServiceSpec(t *testing.T) {
	d := testDeployer()
	svc := d.runServiceSpec("veo-dev", desiredService())

	assert.Equal(t, "projects/veo-dev/locations/us-central1/services/backend", svc.Name)
	assert.Equal(t, []string{"https://backend.veo.example.com"}, svc.CustomAudiences)
	assert.Equal(t, constants.ProjectName, svc.Labels[constants.ManagedByLabel])

	require.NotNil(t, svc.Template)
	assert.Equal(t, "veo-backend@veo-dev.iam.gserviceaccount.com", svc.Template.ServiceAccount)
	assert.Equal(t, "300s", svc.Template.Timeout)

	require.Len(t, svc.Template.Containers, 1)
	container := svc.Template.Containers[0]
	assert.Equal(t, "gcr.io/veo-dev/backend:v12", container.Image)
	assert.Equal(t, "512Mi", container.Resources.Limits["memory"])

	// Plain variables come first in name order, then secret-sourced ones.
	require.Len(t, container.Env, 4)
	assert.Equal(t, "ENVIRONMENT", container.Env[0].Name)
	assert.Equal(t, "LOG_LEVEL", container.Env[1].Name)
	assert.Equal(t, "GOOGLE_TOKEN_AUDIENCE", container.Env[2].Name)
	require.NotNil(t, container.Env[2].ValueSource)
	assert.Equal(t, "GOOGLE_TOKEN_AUDIENCE", container.Env[2].ValueSource.SecretKeyRef.Secret)
	assert.Equal(t, "latest", container.Env[2].ValueSource.SecretKeyRef.Version)
}

func TestFunctionSpec(t *testing.T) {
	d := testDeployer()
	fn, err := d.functionSpec("veo-dev", desiredFunction())
	require.NoError(t, err)

	assert.Equal(t, "projects/veo-dev/locations/us-central1/functions/executor", fn.Name)

	require.NotNil(t, fn.BuildConfig)
	assert.Equal(t, "python312", fn.BuildConfig.Runtime)
	assert.Equal(t, "execute", fn.BuildConfig.EntryPoint)
	require.NotNil(t, fn.BuildConfig.Source.StorageSource)
	assert.Equal(t, "veo-artifacts", fn.BuildConfig.Source.StorageSource.Bucket)
	assert.Equal(t, "executor.zip", fn.BuildConfig.Source.StorageSource.Object)

	require.NotNil(t, fn.ServiceConfig)
	assert.Equal(t, "512Mi", fn.ServiceConfig.AvailableMemory)
	assert.Equal(t, int64(300), fn.ServiceConfig.TimeoutSeconds)
	assert.Equal(t, "veo-executor@veo-dev.iam.gserviceaccount.com", fn.ServiceConfig.ServiceAccountEmail)
	require.Len(t, fn.ServiceConfig.SecretEnvironmentVariables, 1)
	assert.Equal(t, "veo-dev", fn.ServiceConfig.SecretEnvironmentVariables[0].ProjectId)

	require.NotNil(t, fn.EventTrigger)
	assert.Equal(t, pubsubPublishEventType, fn.EventTrigger.EventType)
	assert.Equal(t, "projects/veo-dev/topics/veo-jobs", fn.EventTrigger.PubsubTopic)
}

func TestFunctionSpec_BadSource(t *testing.T) {
	d := testDeployer()
	desired := desiredFunction()
	desired.Source = "executor/"

	_, err := d.functionSpec("veo-dev", desired)
	assert.Error(t, err)
}

func TestRunServiceState_DefaultComputeAccount(t *testing.T) {
	svc := &run.GoogleCloudRunV2Service{
		Template: &run.GoogleCloudRunV2RevisionTemplate{
			ServiceAccount: "123456789-compute@developer.gserviceaccount.com",
			Timeout:        "300s",
		},
	}

	state := runServiceState("veo-dev", "backend", svc)
	assert.Empty(t, state.ServiceAccount, "unmanaged default account must not register as drift")
}

func TestAccountEmail(t *testing.T) {
	tests := []struct {
		name     string
		account  string
		expected string
	}{
		{name: "short name expanded", account: "veo-backend", expected: "veo-backend@veo-dev.iam.gserviceaccount.com"},
		{name: "full email passthrough", account: "svc@other-proj.iam.gserviceaccount.com", expected: "svc@other-proj.iam.gserviceaccount.com"},
		{name: "empty stays empty", account: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, accountEmail("veo-dev", tt.account))
		})
	}
}

func TestShortAccountName(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected string
	}{
		{name: "own project trimmed", email: "veo-backend@veo-dev.iam.gserviceaccount.com", expected: "veo-backend"},
		{name: "foreign project kept", email: "svc@other-proj.iam.gserviceaccount.com", expected: "svc@other-proj.iam.gserviceaccount.com"},
		{name: "default compute empty", email: "123-compute@developer.gserviceaccount.com", expected: ""},
		{name: "empty", email: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shortAccountName("veo-dev", tt.email))
		})
	}
}

func TestParseArchiveRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		bucket  string
		object  string
		wantErr bool
	}{
		{name: "valid", ref: "gs://veo-artifacts/executor.zip", bucket: "veo-artifacts", object: "executor.zip"},
		{name: "nested object", ref: "gs://veo-artifacts/builds/v2/executor.zip", bucket: "veo-artifacts", object: "builds/v2/executor.zip"},
		{name: "missing scheme", ref: "veo-artifacts/executor.zip", wantErr: true},
		{name: "missing object", ref: "gs://veo-artifacts", wantErr: true},
		{name: "empty object", ref: "gs://veo-artifacts/", wantErr: true},
		{name: "empty", ref: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, object, err := parseArchiveRef(tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.object, object)
		})
	}
}

func TestTimeoutSeconds(t *testing.T) {
	assert.Equal(t, int64(300), timeoutSeconds("300s"))
	assert.Equal(t, int64(300), timeoutSeconds("5m"))
	assert.Zero(t, timeoutSeconds(""))
	assert.Zero(t, timeoutSeconds("soon"))
}
