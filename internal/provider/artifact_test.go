package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipway/slipway/internal/constants"
	"github.com/slipway/slipway/internal/manifest"
	"github.com/slipway/slipway/internal/secrets"
	"github.com/slipway/slipway/internal/vars"
)

func TestDesired(t *testing.T) {
	spec := manifest.ServiceSpec{
		Name:           "backend",
		Kind:           constants.KindService,
		Image:          "gcr.io/veo-dev/backend:v12",
		ServiceAccount: "veo-backend",
		Audiences:      []string{"iap.veo.example.com", "api.veo.example.com"},
		Memory:         "512Mi",
		Timeout:        "300s",
	}
	variables := vars.Set{"LOG_LEVEL": "info", "GOOGLE_CLOUD_PROJECT": "veo-dev"}
	refs := []secrets.ResolvedRef{
		{Secret: "IAP_AUDIENCE", Env: "IAP_CLIENT_AUDIENCE", Ref: "projects/1/secrets/IAP_AUDIENCE", Version: "latest"},
		{Secret: "GOOGLE_TOKEN_AUDIENCE", Env: "GOOGLE_TOKEN_AUDIENCE", Ref: "projects/1/secrets/GOOGLE_TOKEN_AUDIENCE", Version: "latest"},
	}

	state, err := Desired(spec, variables, refs)
	require.NoError(t, err)

	assert.Equal(t, "backend", state.Name)
	assert.Equal(t, constants.KindService, state.Kind)
	assert.Equal(t, "gcr.io/veo-dev/backend:v12", state.Image)
	assert.Equal(t, "veo-backend", state.ServiceAccount)
	assert.Equal(t, int64(512), state.MemoryMiB)
	assert.Equal(t, int64(300), state.TimeoutSeconds)
	assert.Empty(t, state.TriggerTopic)

	// Order-insensitive fields come back sorted.
	assert.Equal(t, []string{"api.veo.example.com", "iap.veo.example.com"}, state.Audiences)
	require.Len(t, state.Secrets, 2)
	assert.Equal(t, "GOOGLE_TOKEN_AUDIENCE", state.Secrets[0].Env)
	assert.Equal(t, "IAP_CLIENT_AUDIENCE", state.Secrets[1].Env)

	assert.Equal(t, variables, state.Env)
}

func TestDesired_Function(t *testing.T) {
	spec := manifest.ServiceSpec{
		Name:       "executor",
		Kind:       constants.KindFunction,
		Runtime:    "python312",
		EntryPoint: "handle_job",
		Source:     "gs://veo-artifacts/executor.zip",
		Trigger:    &manifest.TriggerSpec{Topic: "veo-jobs"},
	}

	state, err := Desired(spec, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, constants.KindFunction, state.Kind)
	assert.Equal(t, "python312", state.Runtime)
	assert.Equal(t, "handle_job", state.EntryPoint)
	assert.Equal(t, "gs://veo-artifacts/executor.zip", state.Source)
	assert.Equal(t, "veo-jobs", state.TriggerTopic)
	assert.NotNil(t, state.Env)
	assert.Empty(t, state.Secrets)
}

func TestDesired_InvalidMemory(t *testing.T) {
	spec := manifest.ServiceSpec{Name: "backend", Kind: constants.KindService, Memory: "lots"}

	state, err := Desired(spec, nil, nil)
	require.Error(t, err)
	assert.Nil(t, state)
}

func TestDesired_DoesNotAliasInputs(t *testing.T) {
	spec := manifest.ServiceSpec{
		Name:      "backend",
		Kind:      constants.KindService,
		Image:     "gcr.io/veo-dev/backend:v12",
		Audiences: []string{"z.example.com", "a.example.com"},
	}
	variables := vars.Set{"LOG_LEVEL": "info"}

	state, err := Desired(spec, variables, nil)
	require.NoError(t, err)

	state.Env["LOG_LEVEL"] = "debug"
	state.Audiences[0] = "mutated"

	assert.Equal(t, "info", variables["LOG_LEVEL"])
	assert.Equal(t, []string{"z.example.com", "a.example.com"}, spec.Audiences)
}

func TestArtifactState_Equal(t *testing.T) {
	base := func() *ArtifactState {
		return &ArtifactState{
			Name:           "backend",
			Kind:           constants.KindService,
			Image:          "gcr.io/veo-dev/backend:v12",
			ServiceAccount: "veo-backend",
			Env:            vars.Set{"LOG_LEVEL": "info"},
			Secrets: []secrets.ResolvedRef{
				{Secret: "IAP_AUDIENCE", Env: "IAP_CLIENT_AUDIENCE", Ref: "projects/1/secrets/IAP_AUDIENCE", Version: "latest"},
			},
			Audiences:      []string{"api.veo.example.com"},
			MemoryMiB:      512,
			TimeoutSeconds: 300,
		}
	}

	tests := []struct {
		name   string
		mutate func(*ArtifactState)
		want   bool
	}{
		{
			name:   "identical",
			mutate: func(*ArtifactState) {},
			want:   true,
		},
		{
			name: "ref string ignored",
			mutate: func(s *ArtifactState) {
				s.Secrets[0].Ref = "projects/veo-dev/secrets/IAP_AUDIENCE"
			},
			want: true,
		},
		{
			name:   "different image",
			mutate: func(s *ArtifactState) { s.Image = "gcr.io/veo-dev/backend:v13" },
			want:   false,
		},
		{
			name:   "different service account",
			mutate: func(s *ArtifactState) { s.ServiceAccount = "veo-other" },
			want:   false,
		},
		{
			name:   "different source archive",
			mutate: func(s *ArtifactState) { s.Source = "gs://veo-artifacts/executor-v2.zip" },
			want:   false,
		},
		{
			name:   "different env value",
			mutate: func(s *ArtifactState) { s.Env["LOG_LEVEL"] = "debug" },
			want:   false,
		},
		{
			name:   "extra env var",
			mutate: func(s *ArtifactState) { s.Env["EXTRA"] = "1" },
			want:   false,
		},
		{
			name:   "different secret version",
			mutate: func(s *ArtifactState) { s.Secrets[0].Version = "3" },
			want:   false,
		},
		{
			name:   "extra secret",
			mutate: func(s *ArtifactState) {
				s.Secrets = append(s.Secrets, secrets.ResolvedRef{Secret: "X", Env: "X"})
			},
			want: false,
		},
		{
			name:   "different audiences",
			mutate: func(s *ArtifactState) { s.Audiences = []string{"other.example.com"} },
			want:   false,
		},
		{
			name:   "different memory",
			mutate: func(s *ArtifactState) { s.MemoryMiB = 1024 },
			want:   false,
		},
		{
			name:   "different timeout",
			mutate: func(s *ArtifactState) { s.TimeoutSeconds = 60 },
			want:   false,
		},
		{
			name:   "different trigger topic",
			mutate: func(s *ArtifactState) { s.TriggerTopic = "veo-jobs" },
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := base(), base()
			tt.mutate(b)
			assert.Equal(t, tt.want, a.Equal(b))
			assert.Equal(t, tt.want, b.Equal(a))
		})
	}
}

func TestArtifactState_Equal_Nil(t *testing.T) {
	state := &ArtifactState{Name: "backend"}

	var absent *ArtifactState
	assert.False(t, state.Equal(nil))
	assert.False(t, absent.Equal(state))
	assert.True(t, absent.Equal(nil))
}

func TestNormalize_OrderInsensitive(t *testing.T) {
	a := &ArtifactState{
		Name:      "backend",
		Audiences: []string{"b.example.com", "a.example.com"},
		Secrets: []secrets.ResolvedRef{
			{Secret: "S2", Env: "ZETA"},
			{Secret: "S1", Env: "ALPHA"},
		},
	}
	b := &ArtifactState{
		Name:      "backend",
		Audiences: []string{"a.example.com", "b.example.com"},
		Secrets: []secrets.ResolvedRef{
			{Secret: "S1", Env: "ALPHA"},
			{Secret: "S2", Env: "ZETA"},
		},
	}

	a.Normalize()
	b.Normalize()

	assert.True(t, a.Equal(b))
}
