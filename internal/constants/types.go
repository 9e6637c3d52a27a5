package constants

// Provider represents the cloud provider an environment deploys to.
type Provider string

const (
	// GCP is the Google Cloud Platform provider.
	GCP Provider = "gcp"
	// AWS is the Amazon Web Services provider.
	AWS Provider = "aws"
)

// Valid reports whether p names a supported provider.
func (p Provider) Valid() bool {
	return p == GCP || p == AWS
}

// ArtifactKind distinguishes the two deployable resource kinds.
type ArtifactKind string

const (
	// KindService is a long-running HTTP container service.
	KindService ArtifactKind = "service"
	// KindFunction is an event-subscribed function.
	KindFunction ArtifactKind = "function"
)

// Stage identifies a checkpoint of the reconcile pipeline. Stages run strictly
// in the order they are declared here; a failure in one stage prevents all
// later stages from starting.
type Stage string

const (
	// StageConfig covers manifest loading and environment resolution.
	StageConfig Stage = "config"
	// StageSecrets covers secret binding against the secret store.
	StageSecrets Stage = "secrets"
	// StageAPIs enables required provider APIs.
	StageAPIs Stage = "enable-apis"
	// StageIAM grants missing IAM bindings.
	StageIAM Stage = "iam"
	// StageEvents ensures event-delivery topics exist.
	StageEvents Stage = "events"
	// StageDeploy pushes artifacts to the deployment target.
	StageDeploy Stage = "deploy"
)

// MutatingStages returns the stages that issue mutating provider calls, in
// execution order.
func MutatingStages() []Stage {
	return []Stage{StageAPIs, StageIAM, StageEvents, StageDeploy}
}
