package constants

// Exit codes are stable per failing stage so automation can tell a config
// mistake from a permission problem or a failed deploy without parsing output.
const (
	// ExitOK means the reconcile (or dry run) completed.
	ExitOK = 0
	// ExitInternal is an unclassified failure.
	ExitInternal = 1
	// ExitConfig means the manifest was invalid or the environment unknown.
	ExitConfig = 2
	// ExitSecrets means a declared secret is missing from the secret store.
	ExitSecrets = 3
	// ExitAPIs means enabling a required provider API failed.
	ExitAPIs = 4
	// ExitIAM means granting an IAM binding failed.
	ExitIAM = 5
	// ExitEvents means ensuring an event topic failed.
	ExitEvents = 6
	// ExitDeploy means pushing an artifact failed.
	ExitDeploy = 7
)

// ExitCodeForStage maps a pipeline stage to its process exit code.
func ExitCodeForStage(s Stage) int {
	switch s {
	case StageConfig:
		return ExitConfig
	case StageSecrets:
		return ExitSecrets
	case StageAPIs:
		return ExitAPIs
	case StageIAM:
		return ExitIAM
	case StageEvents:
		return ExitEvents
	case StageDeploy:
		return ExitDeploy
	default:
		return ExitInternal
	}
}
