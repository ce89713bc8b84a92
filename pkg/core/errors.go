package core

import (
	"fmt"
)

// Error is the canonical error shape shared by every layer of the gateway.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest      ErrorType = "invalid_request_error"
	ErrValidation          ErrorType = "validation_error"
	ErrAuthentication      ErrorType = "authentication_error"
	ErrPermission          ErrorType = "permission_error"
	ErrNotFound            ErrorType = "not_found_error"
	ErrInvalidToken        ErrorType = "invalid_or_expired_token"
	ErrConsentRequired     ErrorType = "consent_required"
	ErrDuplicateInvitation ErrorType = "duplicate_invitation"
	ErrInvalidState        ErrorType = "invalid_state"
	ErrSessionActive       ErrorType = "session_already_active"
	ErrUpstream            ErrorType = "upstream_unavailable"
	ErrAPI                 ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

// NewValidationError creates an error for malformed or oversized input.
func NewValidationError(message, param string) *Error {
	return &Error{Type: ErrValidation, Message: message, Param: param}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{Type: ErrAuthentication, Message: message}
}

// NewPermissionError creates a permission error.
func NewPermissionError(message string) *Error {
	return &Error{Type: ErrPermission, Message: message}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewInvalidTokenError reports an invitation or session token that does not
// resolve to a live record.
func NewInvalidTokenError(message string) *Error {
	return &Error{Type: ErrInvalidToken, Message: message}
}

// NewConsentRequiredError reports a join attempt without recorded consent.
func NewConsentRequiredError() *Error {
	return &Error{Type: ErrConsentRequired, Message: "participant consent is required", Param: "consent"}
}

// NewDuplicateInvitationError reports a repeat invitation for an email that
// already holds a live invitation on the project.
func NewDuplicateInvitationError(email string) *Error {
	return &Error{Type: ErrDuplicateInvitation, Message: fmt.Sprintf("an invitation for %s already exists on this project", email), Param: "email"}
}

// NewInvalidStateError reports an illegal lifecycle transition.
func NewInvalidStateError(message string) *Error {
	return &Error{Type: ErrInvalidState, Message: message}
}

// NewSessionActiveError reports an attempt to open a second non-terminal
// session for one participant.
func NewSessionActiveError() *Error {
	return &Error{Type: ErrSessionActive, Message: "a non-terminal session already exists for this participant"}
}

// NewUpstreamError wraps any third-party failure. The underlying detail is
// kept out of the message so it never reaches an end user.
func NewUpstreamError(service string) *Error {
	return &Error{Type: ErrUpstream, Message: fmt.Sprintf("%s is unavailable", service), Code: "upstream_unavailable"}
}

// NewAPIError creates a generic internal error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// IsRetryable returns true if the error is worth retrying upstream.
func (e *Error) IsRetryable() bool {
	return e.Type == ErrUpstream || e.Type == ErrAPI
}
