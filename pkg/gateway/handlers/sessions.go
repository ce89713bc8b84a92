package handlers

import (
	"log/slog"
	"net/http"

	"github.com/searcho-ai/searcho/pkg/study"
)

// Sessions serves the token-gated session lifecycle routes.
type Sessions struct {
	Service *study.Sessions
	Logger  *slog.Logger

	MaxBodyBytes int64
}

// Get resolves a session token to its session.
func (h *Sessions) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.Service.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(session))
}

// Begin starts the interview: scheduled -> active.
func (h *Sessions) Begin(w http.ResponseWriter, r *http.Request) {
	session, err := h.Service.Begin(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(session))
}

// End drives the session into a terminal state. Replays are no-ops.
func (h *Sessions) End(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	session, err := h.Service.End(r.Context(), r.PathValue("token"), study.SessionOutcome(req.Outcome))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(session))
}

// AppendMetadata shallow-merges a patch into the session metadata blob.
func (h *Sessions) AppendMetadata(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Metadata map[string]any `json:"metadata"`
	}
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	session, err := h.Service.AppendMetadata(r.Context(), r.PathValue("token"), req.Metadata)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(session))
}
