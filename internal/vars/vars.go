// Package vars implements the layered variable model: a common set merged
// with per-environment overrides into the final set handed to a deploy target.
package vars

import (
	"maps"
	"slices"
)

// Set maps variable names to string values.
type Set map[string]string

// Get returns the value for name and whether it is present.
func (s Set) Get(name string) (string, bool) {
	v, ok := s[name]
	return v, ok
}

// Has reports whether name is present in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the variable names in sorted order for deterministic iteration.
func (s Set) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// Clone returns an independent copy of the set. A nil set clones to an
// empty, non-nil set so callers can always write to the result.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	maps.Copy(out, s)
	return out
}

// Equal reports whether two sets contain exactly the same pairs.
func (s Set) Equal(other Set) bool {
	return maps.Equal(s, other)
}

// Resolve merges the common layer with per-environment overrides. Every key
// in overrides replaces the same key in common; keys present only in common
// pass through unchanged. Neither input is modified and the result is always
// a fresh map.
func Resolve(common, overrides Set) Set {
	merged := make(Set, len(common)+len(overrides))
	maps.Copy(merged, common)
	maps.Copy(merged, overrides)
	return merged
}
