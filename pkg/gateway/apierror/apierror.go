// Package apierror maps internal errors onto wire errors. Everything a client
// sees goes through FromError, so upstream detail cannot leak by accident.
package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/searcho-ai/searcho/pkg/core"
)

// Envelope is the JSON error body: {"error": {...}}.
type Envelope struct {
	Error *core.Error `json:"error"`
}

// FromError maps an error to the wire error and HTTP status to send.
// Unknown errors are reported as a generic internal error; their detail stays
// in the logs.
func FromError(err error, requestID string) (*core.Error, int) {
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "upstream timeout",
			Code:      "timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request canceled",
			Code:      "canceled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		out := *coreErr
		out.RequestID = requestID
		return &out, statusFromType(coreErr.Type)
	}

	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest, core.ErrValidation, core.ErrConsentRequired:
		return http.StatusBadRequest
	case core.ErrAuthentication, core.ErrInvalidToken:
		return http.StatusUnauthorized
	case core.ErrPermission:
		return http.StatusForbidden
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrDuplicateInvitation, core.ErrInvalidState, core.ErrSessionActive:
		return http.StatusConflict
	case core.ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
