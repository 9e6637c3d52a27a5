package testutil

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slipway/slipway/internal/constants"
	apperrors "github.com/slipway/slipway/internal/errors"
)

// AssertErrorType checks if the error is of a specific type using errors.Is.
func AssertErrorType(t *testing.T, err, target error, _ ...any) bool {
	t.Helper()
	if !stderrors.Is(err, target) {
		return assert.Fail(t, "Error type mismatch", "Expected error type %T, got %T", target, err)
	}
	return true
}

// AssertErrorCode checks if the error carries a specific error code.
func AssertErrorCode(t *testing.T, err error, expectedCode string, _ ...any) bool {
	t.Helper()
	code := apperrors.GetCode(err)
	if code != expectedCode {
		return assert.Fail(t, "Error code mismatch",
			"Expected error code %q, got %q (error: %v)", expectedCode, code, err)
	}
	return true
}

// AssertErrorStage checks if the error is attributed to a specific pipeline
// stage.
func AssertErrorStage(t *testing.T, err error, expectedStage constants.Stage, _ ...any) bool {
	t.Helper()
	stage := apperrors.GetStage(err)
	if stage != expectedStage {
		return assert.Fail(t, "Stage mismatch",
			"Expected stage %q, got %q (error: %v)", expectedStage, stage, err)
	}
	return true
}

// AssertExitCode checks if the error maps to a specific process exit code.
func AssertExitCode(t *testing.T, err error, expected int, _ ...any) bool {
	t.Helper()
	got := apperrors.ExitCode(err)
	if got != expected {
		return assert.Fail(t, "Exit code mismatch",
			"Expected exit code %d, got %d (error: %v)", expected, got, err)
	}
	return true
}
