// Package handlers is the HTTP surface of the gateway. Handlers parse and
// render; every rule lives in the services they call.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/searcho-ai/searcho/pkg/core"
	"github.com/searcho-ai/searcho/pkg/gateway/apierror"
	"github.com/searcho-ai/searcho/pkg/gateway/mw"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError renders err as the standard error envelope. Exposed for the
// auth middleware, which rejects before any handler runs.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	writeError(w, r, logger, err)
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	requestID := mw.RequestIDFrom(r.Context())
	wireErr, status := apierror.FromError(err, requestID)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "request_id", requestID, "path", r.URL.Path, "error", err)
	} else {
		logger.Debug("request rejected", "request_id", requestID, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, apierror.Envelope{Error: wireErr})
}

// decodeJSON reads a bounded JSON body. Unknown fields are rejected so typos
// in client payloads surface instead of silently dropping.
func decodeJSON(r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		// An absent body leaves dst at its zero value.
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return core.NewValidationError("request body is too large", "")
		}
		return core.NewInvalidRequestError("request body is not valid JSON")
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, core.NewInvalidRequestErrorWithParam("malformed id in path", name)
	}
	return id, nil
}
