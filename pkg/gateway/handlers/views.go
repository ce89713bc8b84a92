package handlers

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/searcho-ai/searcho/pkg/study"
)

// The wire views keep the JSON shape stable independent of the domain structs.

type projectView struct {
	ID          uuid.UUID      `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Analysis    map[string]any `json:"analysis,omitempty"`
	Archived    bool           `json:"archived"`
	ArchivedAt  *time.Time     `json:"archived_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func viewProject(p *study.Project) projectView {
	return projectView{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Analysis:    p.Analysis,
		Archived:    p.Archived,
		ArchivedAt:  p.ArchivedAt,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func viewProjects(ps []*study.Project) []projectView {
	out := make([]projectView, 0, len(ps))
	for _, p := range ps {
		out = append(out, viewProject(p))
	}
	return out
}

// participantView is researcher-facing only: it carries the invitation token
// and the shareable link, so the dashboard can resend a link when the email
// never arrived. The public invitationView below never includes either.
type participantView struct {
	ID              uuid.UUID               `json:"id"`
	ProjectID       uuid.UUID               `json:"project_id"`
	Email           string                  `json:"email"`
	Name            string                  `json:"name,omitempty"`
	Status          study.ParticipantStatus `json:"status"`
	InvitationToken string                  `json:"invitation_token"`
	InvitationLink  string                  `json:"invitation_link"`
	TokenExpiresAt  time.Time               `json:"token_expires_at"`
	InvitedAt       time.Time               `json:"invited_at"`
	JoinedAt        *time.Time              `json:"joined_at,omitempty"`
	CompletedAt     *time.Time              `json:"completed_at,omitempty"`
}

func viewParticipant(p *study.Participant, linkBase string) participantView {
	return participantView{
		ID:              p.ID,
		ProjectID:       p.ProjectID,
		Email:           p.Email,
		Name:            p.Name,
		Status:          p.Status,
		InvitationToken: p.InvitationToken,
		InvitationLink:  invitationLink(linkBase, p.InvitationToken),
		TokenExpiresAt:  p.TokenExpiresAt,
		InvitedAt:       p.InvitedAt,
		JoinedAt:        p.JoinedAt,
		CompletedAt:     p.CompletedAt,
	}
}

// invitationLink mirrors the URL the invitation email carries.
func invitationLink(base, token string) string {
	return strings.TrimSuffix(strings.TrimSpace(base), "/") + "/participate/" + token
}

// invitationView is the participant-facing resolve response. It carries no
// other participant's data and no researcher identifiers.
type invitationView struct {
	ProjectTitle string                  `json:"project_title"`
	Name         string                  `json:"name,omitempty"`
	Status       study.ParticipantStatus `json:"status"`
	ExpiresAt    time.Time               `json:"expires_at"`
}

type sessionView struct {
	ID           uuid.UUID           `json:"id"`
	ProjectID    uuid.UUID           `json:"project_id"`
	SessionToken string              `json:"session_token"`
	Status       study.SessionStatus `json:"status"`
	ScheduledAt  time.Time           `json:"scheduled_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	EndedAt      *time.Time          `json:"ended_at,omitempty"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
}

func viewSession(s *study.Session) sessionView {
	return sessionView{
		ID:           s.ID,
		ProjectID:    s.ProjectID,
		SessionToken: s.SessionToken,
		Status:       s.Status,
		ScheduledAt:  s.ScheduledAt,
		StartedAt:    s.StartedAt,
		EndedAt:      s.EndedAt,
		Metadata:     s.Metadata,
	}
}

type questionView struct {
	ID       uuid.UUID  `json:"id"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
	Text     string     `json:"text"`
	Order    int        `json:"order"`
	Section  string     `json:"section,omitempty"`
	Type     string     `json:"type"`
}

func viewQuestion(q *study.Question) questionView {
	return questionView{
		ID:       q.ID,
		ParentID: q.ParentID,
		Text:     q.Text,
		Order:    q.Order,
		Section:  q.Section,
		Type:     q.Type,
	}
}

func viewQuestions(qs []*study.Question) []questionView {
	out := make([]questionView, 0, len(qs))
	for _, q := range qs {
		out = append(out, viewQuestion(q))
	}
	return out
}
