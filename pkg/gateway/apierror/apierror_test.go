package apierror

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/searcho-ai/searcho/pkg/core"
)

func TestFromError_CoreErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{core.NewValidationError("bad", "field"), http.StatusBadRequest},
		{core.NewConsentRequiredError(), http.StatusBadRequest},
		{core.NewAuthenticationError("no"), http.StatusUnauthorized},
		{core.NewInvalidTokenError("dead link"), http.StatusUnauthorized},
		{core.NewPermissionError("no"), http.StatusForbidden},
		{core.NewNotFoundError("gone"), http.StatusNotFound},
		{core.NewDuplicateInvitationError("a@b.c"), http.StatusConflict},
		{core.NewInvalidStateError("nope"), http.StatusConflict},
		{core.NewSessionActiveError(), http.StatusConflict},
		{core.NewUpstreamError("voice backend"), http.StatusBadGateway},
		{core.NewAPIError("broken"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		wireErr, status := FromError(tc.err, "req_1")
		require.Equal(t, tc.status, status, "error: %v", tc.err)
		require.Equal(t, "req_1", wireErr.RequestID)
	}
}

func TestFromError_WrappedCoreError(t *testing.T) {
	err := errors.Join(errors.New("outer"), core.NewNotFoundError("project not found"))
	wireErr, status := FromError(err, "req_2")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, core.ErrNotFound, wireErr.Type)
}

func TestFromError_UnknownErrorIsSuppressed(t *testing.T) {
	wireErr, status := FromError(errors.New("pq: connection refused to 10.0.0.3"), "req_3")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "internal error", wireErr.Message)
	require.NotContains(t, wireErr.Message, "10.0.0.3")
}

func TestFromError_ContextErrors(t *testing.T) {
	_, status := FromError(context.DeadlineExceeded, "")
	require.Equal(t, http.StatusGatewayTimeout, status)

	_, status = FromError(context.Canceled, "")
	require.Equal(t, http.StatusRequestTimeout, status)
}

func TestFromError_DoesNotMutateOriginal(t *testing.T) {
	orig := core.NewNotFoundError("gone")
	wireErr, _ := FromError(orig, "req_4")
	require.Equal(t, "req_4", wireErr.RequestID)
	require.Empty(t, orig.RequestID)
}
