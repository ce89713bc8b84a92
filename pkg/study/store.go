package study

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is the sentinel every Store implementation returns for a
// missing row. Lookup of an unknown token resolves to this, never a panic.
var ErrNotFound = errors.New("study: not found")

// ErrConflict is returned when an insert trips a uniqueness constraint, such
// as a token collision.
var ErrConflict = errors.New("study: conflict")

// Store is the persistence contract the lifecycle services run against.
// pkg/store/postgres implements it on pgx; pkg/store/memory backs tests and
// local development.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	ListProjects(ctx context.Context, ownerID string, includeArchived bool) ([]*Project, error)
	UpdateProject(ctx context.Context, p *Project) error
	// DeleteProject is permanent and cascades to participants, sessions,
	// questions, and responses.
	DeleteProject(ctx context.Context, id uuid.UUID) error

	CreateParticipant(ctx context.Context, p *Participant) error
	GetParticipant(ctx context.Context, id uuid.UUID) (*Participant, error)
	GetParticipantByToken(ctx context.Context, token string) (*Participant, error)
	ListParticipants(ctx context.Context, projectID uuid.UUID) ([]*Participant, error)
	UpdateParticipant(ctx context.Context, p *Participant) error

	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	GetSessionByToken(ctx context.Context, token string) (*Session, error)
	ListSessionsByParticipant(ctx context.Context, participantID uuid.UUID) ([]*Session, error)
	UpdateSession(ctx context.Context, s *Session) error

	CreateQuestions(ctx context.Context, qs []*Question) error
	ListQuestionsBySession(ctx context.Context, sessionID uuid.UUID) ([]*Question, error)
	CreateResponse(ctx context.Context, r *Response) error
	ListResponsesBySession(ctx context.Context, sessionID uuid.UUID) ([]*Response, error)
	// MarkResponsesComplete flips IsComplete on every response recorded for
	// the question within the session.
	MarkResponsesComplete(ctx context.Context, sessionID, questionID uuid.UUID) error

	CreateResearcherSession(ctx context.Context, s *ResearcherSession) error
	GetResearcherSession(ctx context.Context, token string) (*ResearcherSession, error)
	DeleteResearcherSession(ctx context.Context, token string) error
}
