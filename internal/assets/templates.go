// Package assets provides access to files embedded in the slipway binary.
package assets

import _ "embed"

// StarterManifest is the commented manifest template written by
// `slipway init`. It must pass manifest validation as written; init_test
// enforces that.
//
//go:embed manifest.yaml
var StarterManifest string
