package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeStateConflict  ErrorType = "state_conflict"
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeProvisioning   ErrorType = "provisioning"
	ErrorTypeMeetingInvalid ErrorType = "meeting_invalid"
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeTimeout        ErrorType = "timeout"
)

// MedrexError represents a structured error in the teleconsultation system
type MedrexError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *MedrexError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *MedrexError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so wrapped instances compare equal to the sentinels below.
func (e *MedrexError) Is(target error) bool {
	t, ok := target.(*MedrexError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Common error codes
const (
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeStateConflict        = "STATE_CONFLICT"
	ErrCodeNetworkFailure       = "NETWORK_FAILURE"
	ErrCodeProvisioningFailure  = "PROVISIONING_FAILURE"
	ErrCodeMeetingInvalid       = "MEETING_INVALID"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	ErrCodeTimeout              = "TIMEOUT"
)

// Sentinels for errors.Is checks
var (
	ErrStateConflict  = &MedrexError{Type: ErrorTypeStateConflict, Code: ErrCodeStateConflict, Message: "request is not pending"}
	ErrNotFound       = &MedrexError{Type: ErrorTypeNotFound, Code: ErrCodeNotFound, Message: "not found"}
	ErrNetwork        = &MedrexError{Type: ErrorTypeNetwork, Code: ErrCodeNetworkFailure, Message: "remote call failed"}
	ErrProvisioning   = &MedrexError{Type: ErrorTypeProvisioning, Code: ErrCodeProvisioningFailure, Message: "meeting provisioning failed"}
	ErrMeetingInvalid = &MedrexError{Type: ErrorTypeMeetingInvalid, Code: ErrCodeMeetingInvalid, Message: "meeting no longer valid"}
	ErrValidation     = &MedrexError{Type: ErrorTypeValidation, Code: ErrCodeValidationFailed, Message: "validation failed"}
)

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *MedrexError {
	return &MedrexError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(code, message string) *MedrexError {
	return &MedrexError{
		Type:    ErrorTypeAuthentication,
		Code:    code,
		Message: message,
	}
}

// NewAuthorizationError reports an actor acting outside its role
func NewAuthorizationError(message string) *MedrexError {
	return &MedrexError{
		Type:    ErrorTypeAuthorization,
		Code:    ErrCodeForbidden,
		Message: message,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *MedrexError {
	return &MedrexError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// NewStateConflictError reports a transition attempted from a terminal state
func NewStateConflictError(requestID string, status ConsultationStatus) *MedrexError {
	return &MedrexError{
		Type:    ErrorTypeStateConflict,
		Code:    ErrCodeStateConflict,
		Message: fmt.Sprintf("consultation request %s is %s", requestID, status),
		Details: map[string]interface{}{
			"request_id": requestID,
			"status":     string(status),
		},
	}
}

// NewNetworkError wraps a failed remote call
func NewNetworkError(operation string, cause error) *MedrexError {
	return &MedrexError{
		Type:    ErrorTypeNetwork,
		Code:    ErrCodeNetworkFailure,
		Message: operation + " failed",
		Cause:   cause,
	}
}

// NewProvisioningError wraps a meeting creation failure
func NewProvisioningError(cause error) *MedrexError {
	return &MedrexError{
		Type:    ErrorTypeProvisioning,
		Code:    ErrCodeProvisioningFailure,
		Message: "failed to create meeting",
		Cause:   cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *MedrexError {
	return &MedrexError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// TypeOf returns the ErrorType of the first MedrexError in the chain, or internal.
func TypeOf(err error) ErrorType {
	var me *MedrexError
	if errors.As(err, &me) {
		return me.Type
	}
	return ErrorTypeInternal
}
