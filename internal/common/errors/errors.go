// Package errors provides standardized error handling for the verification gate.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Configuration-time, fatal. Site key or secret absent after resolution.
	ErrCodeMissingCredential ErrorCode = "MISSING_CREDENTIAL"

	// Validation-time, recoverable.
	ErrCodeTokenMissing      ErrorCode = "TOKEN_MISSING"
	ErrCodeRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
	ErrCodePolicyRejected    ErrorCode = "POLICY_REJECTED"
	ErrCodeTokenReplayed     ErrorCode = "TOKEN_REPLAYED"

	// Client-time, recoverable. Challenge script unavailable or execute rejected.
	ErrCodeAcquisitionFailed ErrorCode = "ACQUISITION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewMissingCredentialError creates the fatal configuration error. It must
// surface at initialization, never on a live request path.
func NewMissingCredentialError(field string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingCredential,
		Message:   "Required reCAPTCHA credential is not configured",
		Details:   fmt.Sprintf("missing field: %s", field),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTokenMissingError creates the recoverable empty-token error. No remote
// call is made for this case.
func NewTokenMissingError() *StandardError {
	return &StandardError{
		Code:      ErrCodeTokenMissing,
		Message:   "No verification token was submitted",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRemoteUnavailableError wraps a network, timeout, or transport failure
// talking to the verification service.
func NewRemoteUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemoteUnavailable,
		Message:   "Verification service unreachable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPolicyRejectedError records a policy failure (score, action, hostname)
// after a successful remote call. The reason stays server-side.
func NewPolicyRejectedError(reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodePolicyRejected,
		Message:   "Verification rejected by policy",
		Details:   reason,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTokenReplayedError records a token that was already accepted once.
func NewTokenReplayedError() *StandardError {
	return &StandardError{
		Code:      ErrCodeTokenReplayed,
		Message:   "Verification token was already used",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAcquisitionFailedError records a client-side token acquisition failure.
func NewAcquisitionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAcquisitionFailed,
		Message:   "Token acquisition failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// IsFatal reports whether the error must halt startup. Only configuration
// errors qualify; everything else converts to a rejected decision.
func IsFatal(err error) bool {
	stdErr, ok := err.(*StandardError)
	return ok && stdErr.Code == ErrCodeMissingCredential
}
