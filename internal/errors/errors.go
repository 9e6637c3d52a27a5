// Package errors provides error types and handling for slipway.
// Every failure surfaced to the operator carries the pipeline stage it
// happened in, the resource it concerns, and a stable code, so the CLI can
// derive a distinct exit code per failing stage.
package errors

import (
	"errors"
	"fmt"

	"github.com/slipway/slipway/internal/constants"
)

// Error represents a reconcile failure attributed to a pipeline stage.
type Error struct {
	// Code is a stable error code string for programmatic handling
	Code string
	// Stage is the pipeline stage the error belongs to
	Stage constants.Stage
	// Resource identifies the offending resource (API id, secret name, service name, ...)
	Resource string
	// Message is a user-friendly error message
	Message string
	// Cause is the underlying error (for error wrapping)
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Resource != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Resource)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is to match on the error code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code != "" && e.Code == t.Code
	}
	return false
}

// Predefined error codes.
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeSecretNotFound   = "SECRET_NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeResourceConflict = "RESOURCE_CONFLICT"
	CodeDeployFailed     = "DEPLOY_FAILED"
	CodeProviderError    = "PROVIDER_ERROR"
)

// NewConfigError creates a configuration error. Config errors are never
// retried; the operator has to fix the manifest.
func NewConfigError(resource, message string, cause error) *Error {
	return &Error{
		Code:     CodeConfigInvalid,
		Stage:    constants.StageConfig,
		Resource: resource,
		Message:  message,
		Cause:    cause,
	}
}

// NewSecretNotFound creates an error for a declared secret that is missing
// from the secret store. Not retried; the operator has to provision it.
func NewSecretNotFound(name string, cause error) *Error {
	return &Error{
		Code:     CodeSecretNotFound,
		Stage:    constants.StageSecrets,
		Resource: name,
		Message:  "secret not found in secret store",
		Cause:    cause,
	}
}

// NewPermissionError creates an error for a failed IAM grant. Potentially
// transient; re-running the reconcile is safe.
func NewPermissionError(resource, message string, cause error) *Error {
	return &Error{
		Code:     CodePermissionDenied,
		Stage:    constants.StageIAM,
		Resource: resource,
		Message:  message,
		Cause:    cause,
	}
}

// NewConflictError creates an error for a creation that raced with another
// writer and could not be confirmed to match the desired state.
func NewConflictError(stage constants.Stage, resource, message string, cause error) *Error {
	return &Error{
		Code:     CodeResourceConflict,
		Stage:    stage,
		Resource: resource,
		Message:  message,
		Cause:    cause,
	}
}

// NewDeployError creates an error for a failed artifact push. Retryable by
// re-running the reconcile.
func NewDeployError(resource, message string, cause error) *Error {
	return &Error{
		Code:     CodeDeployFailed,
		Stage:    constants.StageDeploy,
		Resource: resource,
		Message:  message,
		Cause:    cause,
	}
}

// NewProviderError wraps a provider call failure that has no more specific
// classification, attributed to the stage that issued the call.
func NewProviderError(stage constants.Stage, resource, message string, cause error) *Error {
	return &Error{
		Code:     CodeProviderError,
		Stage:    stage,
		Resource: resource,
		Message:  message,
		Cause:    cause,
	}
}

// GetCode extracts the error code from an error.
// Returns empty string if the error is not a slipway Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetStage extracts the pipeline stage from an error.
// Returns the empty stage if the error is not a slipway Error.
func GetStage(err error) constants.Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// ExitCode maps an error to the process exit code for its stage.
// Returns ExitOK for nil and ExitInternal for unclassified errors.
func ExitCode(err error) int {
	if err == nil {
		return constants.ExitOK
	}
	var e *Error
	if errors.As(err, &e) {
		return constants.ExitCodeForStage(e.Stage)
	}
	return constants.ExitInternal
}
