// Package secrets resolves declared secret mounts against a secret store and
// detects plain variables that look like they should have been secrets.
package secrets

import (
	"context"
	"log/slog"

	"github.com/slipway/slipway/internal/manifest"
)

// Store is the secret-store collaborator queried by name. Implementations
// return the opaque provider reference for an existing secret, or a
// SECRET_NOT_FOUND error naming the missing one.
type Store interface {
	LookupSecret(ctx context.Context, project, name string) (ref string, err error)
}

// ResolvedRef is one successfully resolved secret declaration, carrying the
// runtime environment variable name it is injected as. Ref is the opaque
// store reference and is informational; identity is (Secret, Env, Version).
type ResolvedRef struct {
	Secret  string
	Env     string
	Ref     string
	Version string
}

// DefaultVersion is used when a declaration does not pin a secret version.
const DefaultVersion = "latest"

// Binder validates secret declarations against a Store.
type Binder struct {
	Store Store
	Log   *slog.Logger
}

// Bind looks up every declaration in order. The first miss aborts with the
// store's SECRET_NOT_FOUND error and no partial result; on success the
// resolved references preserve declaration order.
func (b *Binder) Bind(ctx context.Context, project string, mounts []manifest.SecretMount) ([]ResolvedRef, error) {
	if len(mounts) == 0 {
		return nil, nil
	}

	log := b.Log
	if log == nil {
		log = slog.Default()
	}

	refs := make([]ResolvedRef, 0, len(mounts))
	for _, mount := range mounts {
		ref, err := b.Store.LookupSecret(ctx, project, mount.Secret)
		if err != nil {
			return nil, err
		}

		log.Debug("resolved secret", "secret", mount.Secret, "env", mount.Env)
		refs = append(refs, ResolvedRef{
			Secret:  mount.Secret,
			Env:     mount.Env,
			Ref:     ref,
			Version: DefaultVersion,
		})
	}

	return refs, nil
}
