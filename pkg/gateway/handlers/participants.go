package handlers

import (
	"log/slog"
	"net/http"

	"github.com/searcho-ai/searcho/pkg/gateway/auth"
	"github.com/searcho-ai/searcho/pkg/study"
)

// Participants serves the researcher-side invitation surface plus the
// token-gated public flow an invitee walks through.
type Participants struct {
	Service  *study.Participants
	Projects *study.Projects
	Logger   *slog.Logger

	// LinkBase is the public origin shareable invitation links are built on,
	// the same origin the invitation email uses.
	LinkBase     string
	MaxBodyBytes int64
}

// Invite creates a participant and dispatches the invitation email.
// Researcher-only.
func (h *Participants) Invite(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	owner := auth.ResearcherFrom(r.Context()).UserID
	if _, err := h.Projects.Get(r.Context(), owner, projectID); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	var req struct {
		Email        string `json:"email"`
		Name         string `json:"name"`
		StudyType    string `json:"study_type"`
		TargetDevice string `json:"target_device"`
	}
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	participant, err := h.Service.Invite(r.Context(), projectID, req.Email, study.InviteOptions{
		Name:         req.Name,
		StudyType:    req.StudyType,
		TargetDevice: req.TargetDevice,
	})
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewParticipant(participant, h.LinkBase))
}

// List returns the project's participants. Researcher-only.
func (h *Participants) List(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	owner := auth.ResearcherFrom(r.Context()).UserID
	if _, err := h.Projects.Get(r.Context(), owner, projectID); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	participants, err := h.Service.List(r.Context(), projectID)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	views := make([]participantView, 0, len(participants))
	for _, p := range participants {
		views = append(views, viewParticipant(p, h.LinkBase))
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": views})
}

// Resolve answers what an invitation link points at, without mutating
// anything. Public, token-gated.
func (h *Participants) Resolve(w http.ResponseWriter, r *http.Request) {
	participant, title, err := h.Service.Invitation(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, invitationView{
		ProjectTitle: title,
		Name:         participant.Name,
		Status:       participant.Status,
		ExpiresAt:    participant.TokenExpiresAt,
	})
}

// Accept records consent and joins the participant, returning the session the
// client enters the interview with. Public, token-gated.
func (h *Participants) Accept(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Consent bool `json:"consent"`
	}
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	session, err := h.Service.Accept(r.Context(), r.PathValue("token"), req.Consent)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewSession(session))
}

// Decline marks the invitation declined. Public, token-gated.
func (h *Participants) Decline(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Decline(r.Context(), r.PathValue("token")); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
