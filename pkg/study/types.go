// Package study holds the research-study domain: projects, participants,
// sessions, and the interview question/response records, together with the
// lifecycle services that are the only writers of participant and session
// status.
package study

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantStatus tracks a participant's journey through a study.
type ParticipantStatus string

const (
	ParticipantInvited   ParticipantStatus = "invited"
	ParticipantJoined    ParticipantStatus = "joined"
	ParticipantCompleted ParticipantStatus = "completed"
	ParticipantDeclined  ParticipantStatus = "declined"
)

// Terminal reports whether no further transition is permitted.
func (s ParticipantStatus) Terminal() bool {
	return s == ParticipantCompleted || s == ParticipantDeclined
}

// SessionStatus tracks one interview run.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transition is permitted.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// SessionOutcome is the terminal state End drives a session into.
type SessionOutcome string

const (
	OutcomeCompleted SessionOutcome = "completed"
	OutcomeCancelled SessionOutcome = "cancelled"
)

// Project is the root aggregate: one research initiative owned by one
// researcher account. Archiving is a reversible soft delete; Delete is
// permanent and cascades to dependents at the store layer.
type Project struct {
	ID          uuid.UUID
	OwnerID     string
	Title       string
	Description string

	// Analysis is the structured blob carrying the discussion guide,
	// template tag, and post-hoc insights.
	Analysis map[string]any

	Archived   bool
	ArchivedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Participant is one invited person on one project. Status is mutated only
// through Participants; handlers never write it directly.
type Participant struct {
	ID        uuid.UUID
	ProjectID uuid.UUID

	Email string
	Name  string

	Status          ParticipantStatus
	InvitationToken string
	TokenExpiresAt  time.Time

	InvitedAt   time.Time
	JoinedAt    *time.Time
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is one scheduled/active/completed interview run, bound to one
// project and at most one participant. Terminal sessions are never deleted.
type Session struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	ParticipantID *uuid.UUID

	SessionToken string
	Status       SessionStatus

	ScheduledAt time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time

	Notes string

	// Metadata carries ancillary artifacts captured around the interview,
	// such as a recorded consent/preamble transcript.
	Metadata map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Question belongs to a project and optionally a session. Follow-ups point at
// their parent question; the tree depth is unconstrained.
type Question struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	SessionID *uuid.UUID
	ParentID  *uuid.UUID

	Text    string
	Order   int
	Section string
	Type    string

	CreatedAt time.Time
}

// Response is one answer captured during a session. Analysis reads only
// responses with IsComplete set.
type Response struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	QuestionID    uuid.UUID
	ParticipantID *uuid.UUID

	Transcription string
	ResponseText  string
	IsComplete    bool

	SentimentScore  *float64
	ConfidenceScore *float64

	Metadata map[string]any

	CreatedAt time.Time
}

// ResearcherSession is a server-validated login session for the researcher
// surface. Presence of a client-side cache entry is never sufficient; every
// project-scoped request is checked against this record.
type ResearcherSession struct {
	Token     string
	UserID    string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
