package provider

import (
	"slices"
	"strings"

	"github.com/slipway/slipway/internal/constants"
	"github.com/slipway/slipway/internal/manifest"
	"github.com/slipway/slipway/internal/secrets"
	"github.com/slipway/slipway/internal/vars"
)

// ArtifactState is the provider-neutral shape of a deployed artifact. Desired
// states are built from the manifest; current states are read back from the
// provider. Both sides are normalized so Equal can compare them field by
// field.
type ArtifactState struct {
	Name           string
	Kind           constants.ArtifactKind
	Image          string
	Runtime        string
	EntryPoint     string
	Source         string
	ServiceAccount string
	Env            vars.Set
	Secrets        []secrets.ResolvedRef
	Audiences      []string
	TriggerTopic   string
	MemoryMiB      int64
	TimeoutSeconds int64
}

// Desired builds the target state for one service from its spec, the resolved
// environment variables, and the secret references bound for it.
func Desired(spec manifest.ServiceSpec, variables vars.Set, refs []secrets.ResolvedRef) (*ArtifactState, error) {
	memory, err := spec.MemoryMiB()
	if err != nil {
		return nil, err
	}
	timeout, err := spec.TimeoutSeconds()
	if err != nil {
		return nil, err
	}

	state := &ArtifactState{
		Name:           spec.Name,
		Kind:           spec.Kind,
		Image:          spec.Image,
		Runtime:        spec.Runtime,
		EntryPoint:     spec.EntryPoint,
		Source:         spec.Source,
		ServiceAccount: spec.ServiceAccount,
		Env:            variables.Clone(),
		Secrets:        slices.Clone(refs),
		Audiences:      slices.Clone(spec.Audiences),
		MemoryMiB:      memory,
		TimeoutSeconds: timeout,
	}
	if spec.Trigger != nil {
		state.TriggerTopic = spec.Trigger.Topic
	}
	state.Normalize()
	return state, nil
}

// Normalize sorts the order-insensitive fields so two states describing the
// same artifact compare equal regardless of declaration order. Providers must
// return CurrentArtifact results in this form.
func (a *ArtifactState) Normalize() {
	slices.Sort(a.Audiences)
	slices.SortFunc(a.Secrets, func(x, y secrets.ResolvedRef) int {
		return strings.Compare(x.Env, y.Env)
	})
}

// Equal reports whether two normalized states describe the same artifact.
// Secret references compare on identity (secret name, env name, version); the
// provider-specific Ref string is informational only.
func (a *ArtifactState) Equal(b *ArtifactState) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Name != b.Name ||
		a.Kind != b.Kind ||
		a.Image != b.Image ||
		a.Runtime != b.Runtime ||
		a.EntryPoint != b.EntryPoint ||
		a.Source != b.Source ||
		a.ServiceAccount != b.ServiceAccount ||
		a.TriggerTopic != b.TriggerTopic ||
		a.MemoryMiB != b.MemoryMiB ||
		a.TimeoutSeconds != b.TimeoutSeconds {
		return false
	}
	if !a.Env.Equal(b.Env) {
		return false
	}
	if !slices.Equal(a.Audiences, b.Audiences) {
		return false
	}
	if len(a.Secrets) != len(b.Secrets) {
		return false
	}
	for i := range a.Secrets {
		if a.Secrets[i].Secret != b.Secrets[i].Secret ||
			a.Secrets[i].Env != b.Secrets[i].Env ||
			a.Secrets[i].Version != b.Secrets[i].Version {
			return false
		}
	}
	return true
}
