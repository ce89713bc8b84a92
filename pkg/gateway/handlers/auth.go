package handlers

import (
	"log/slog"
	"net/http"

	"github.com/searcho-ai/searcho/pkg/gateway/auth"
)

// Auth serves the researcher sign-in flow.
type Auth struct {
	Service *auth.Service
	Logger  *slog.Logger
}

// Login returns the hosted sign-in URL the client redirects to.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	url, err := h.Service.LoginURL(r.URL.Query().Get("state"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorization_url": url})
}

// Callback exchanges the authorization code for a researcher session token.
func (h *Auth) Callback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, 16<<10, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	session, err := h.Service.Callback(r.Context(), req.Code)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
		"user": map[string]string{
			"id":    session.UserID,
			"email": session.Email,
		},
	})
}

// Logout deletes the caller's session. Always succeeds.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if len(token) > 7 && token[:7] == "Bearer " {
		token = token[7:]
	} else {
		token = ""
	}
	if err := h.Service.Logout(r.Context(), token); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
