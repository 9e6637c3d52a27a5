// Package constants defines global constants used throughout slipway.
// It includes version information, default file names, and shared enums.
package constants

var version = "0.0.0-development" // Updated by CI/CD pipeline at build time

// GetVersion returns the current version of slipway.
func GetVersion() *string {
	return &version
}

// ProjectName is the name of the CLI tool and application
const ProjectName = "slipway"

// DefaultManifestName is the manifest file looked up in the working directory
// when --manifest is not given.
const DefaultManifestName = "slipway.yaml"

// ManifestVersion is the only manifest schema version this build understands.
const ManifestVersion = 1

// EnvPrefix is the prefix for environment variables that override CLI flags.
const EnvPrefix = "SLIPWAY"

// ManagedByLabel is attached to every resource slipway creates so operators
// can tell reconciled resources apart from hand-made ones.
const ManagedByLabel = "managed-by"

// DefaultServiceMemory is the memory limit applied when a service declares
// none. It matches the most common provider default so adopting an existing
// deployment does not force a redeploy.
const DefaultServiceMemory = "512Mi"

// DefaultServiceTimeout is the request/execution timeout applied when a
// service declares none.
const DefaultServiceTimeout = "300s"
