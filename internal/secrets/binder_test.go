package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/slipway/slipway/internal/errors"
	"github.com/slipway/slipway/internal/manifest"
	"github.com/slipway/slipway/internal/vars"
)

type fakeStore struct {
	refs    map[string]string
	lookups []string
}

func (f *fakeStore) LookupSecret(_ context.Context, _, name string) (string, error) {
	f.lookups = append(f.lookups, name)
	ref, ok := f.refs[name]
	if !ok {
		return "", apperrors.NewSecretNotFound(name, nil)
	}
	return ref, nil
}

func TestBinder_Bind(t *testing.T) {
	store := &fakeStore{refs: map[string]string{
		"GOOGLE_TOKEN_AUDIENCE": "projects/veo-dev/secrets/GOOGLE_TOKEN_AUDIENCE",
		"IAP_AUDIENCE":          "projects/veo-dev/secrets/IAP_AUDIENCE",
	}}
	binder := &Binder{Store: store}

	refs, err := binder.Bind(context.Background(), "veo-dev", []manifest.SecretMount{
		{Secret: "IAP_AUDIENCE", Env: "IAP_CLIENT_AUDIENCE"},
		{Secret: "GOOGLE_TOKEN_AUDIENCE", Env: "GOOGLE_TOKEN_AUDIENCE"},
	})

	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, ResolvedRef{
		Secret:  "IAP_AUDIENCE",
		Env:     "IAP_CLIENT_AUDIENCE",
		Ref:     "projects/veo-dev/secrets/IAP_AUDIENCE",
		Version: DefaultVersion,
	}, refs[0], "declaration order is preserved")
	assert.Equal(t, "GOOGLE_TOKEN_AUDIENCE", refs[1].Secret)
}

func TestBinder_Bind_SingleDeclaration(t *testing.T) {
	store := &fakeStore{refs: map[string]string{
		"GOOGLE_TOKEN_AUDIENCE": "projects/p/secrets/GOOGLE_TOKEN_AUDIENCE",
	}}
	binder := &Binder{Store: store}

	refs, err := binder.Bind(context.Background(), "p", []manifest.SecretMount{
		{Secret: "GOOGLE_TOKEN_AUDIENCE", Env: "GOOGLE_TOKEN_AUDIENCE"},
	})

	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestBinder_Bind_MissFailsFast(t *testing.T) {
	store := &fakeStore{refs: map[string]string{
		"GOOGLE_TOKEN_AUDIENCE": "projects/p/secrets/GOOGLE_TOKEN_AUDIENCE",
	}}
	binder := &Binder{Store: store}

	refs, err := binder.Bind(context.Background(), "p", []manifest.SecretMount{
		{Secret: "X", Env: "X"},
		{Secret: "GOOGLE_TOKEN_AUDIENCE", Env: "GOOGLE_TOKEN_AUDIENCE"},
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeSecretNotFound, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "X")
	assert.Nil(t, refs, "no partial result on a miss")
	assert.Equal(t, []string{"X"}, store.lookups, "later declarations are not looked up")
}

func TestBinder_Bind_MissAfterHit(t *testing.T) {
	store := &fakeStore{refs: map[string]string{
		"GOOGLE_TOKEN_AUDIENCE": "projects/p/secrets/GOOGLE_TOKEN_AUDIENCE",
	}}
	binder := &Binder{Store: store}

	refs, err := binder.Bind(context.Background(), "p", []manifest.SecretMount{
		{Secret: "GOOGLE_TOKEN_AUDIENCE", Env: "GOOGLE_TOKEN_AUDIENCE"},
		{Secret: "DB_PASSWORD", Env: "DB_PASSWORD"},
	})

	require.Error(t, err)
	assert.Nil(t, refs, "partial resolutions are discarded")
}

func TestBinder_Bind_NoDeclarations(t *testing.T) {
	store := &fakeStore{}
	binder := &Binder{Store: store}

	refs, err := binder.Bind(context.Background(), "p", nil)

	require.NoError(t, err)
	assert.Nil(t, refs)
	assert.Empty(t, store.lookups, "empty declarations never touch the store")
}

func TestSuspiciousVariables(t *testing.T) {
	tests := []struct {
		name     string
		set      vars.Set
		expected []string
	}{
		{
			name:     "clean set",
			set:      vars.Set{"LOG_LEVEL": "INFO", "ENVIRONMENT": "dev"},
			expected: nil,
		},
		{
			name: "token and password names",
			set: vars.Set{
				"GITHUB_TOKEN": "ghp_abc",
				"DB_PASSWORD":  "hunter2",
				"LOG_LEVEL":    "INFO",
			},
			expected: []string{"DB_PASSWORD", "GITHUB_TOKEN"},
		},
		{
			name:     "case-insensitive match",
			set:      vars.Set{"Api_Key_Extra": "x"},
			expected: []string{"Api_Key_Extra"},
		},
		{
			name:     "empty set",
			set:      nil,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SuspiciousVariables(tt.set))
		})
	}
}
