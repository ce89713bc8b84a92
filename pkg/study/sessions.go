package study

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/searcho-ai/searcho/pkg/core"
	"github.com/searcho-ai/searcho/pkg/tokens"
)

// ParticipantCompleter is the slice of the participant lifecycle the session
// lifecycle calls back into on a completed outcome.
type ParticipantCompleter interface {
	MarkCompleted(ctx context.Context, participantID uuid.UUID) error
}

// Sessions drives the session state machine:
//
//	scheduled -> active -> completed | cancelled
//
// End is idempotent because teardown paths fire more than once in practice.
type Sessions struct {
	store  Store
	logger *slog.Logger

	// completer is set after construction to break the cycle with Participants.
	completer ParticipantCompleter

	now func() time.Time
}

// NewSessions wires the session lifecycle.
func NewSessions(store Store, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{store: store, logger: logger, now: time.Now}
}

// SetCompleter registers the participant callback invoked on completed ends.
func (s *Sessions) SetCompleter(c ParticipantCompleter) { s.completer = c }

// WithClock overrides the time source for tests.
func (s *Sessions) WithClock(now func() time.Time) *Sessions {
	if now != nil {
		s.now = now
	}
	return s
}

// Create opens a scheduled session for a joined participant. At most one
// non-terminal session may exist per participant; a second is rejected.
func (s *Sessions) Create(ctx context.Context, projectID, participantID uuid.UUID) (*Session, error) {
	existing, err := s.store.ListSessionsByParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		if !other.Status.Terminal() {
			return nil, core.NewSessionActiveError()
		}
	}

	now := s.now()
	pid := participantID
	session := &Session{
		ID:            uuid.New(),
		ProjectID:     projectID,
		ParticipantID: &pid,
		SessionToken:  tokens.Issue(tokens.KindSession),
		Status:        SessionScheduled,
		ScheduledAt:   now,
		Metadata:      map[string]any{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session created", "session_id", session.ID, "participant_id", participantID)
	return session, nil
}

// Resolve looks a session token up and applies the ledger validity rule.
// Session tokens do not expire on a clock; they die with their project.
func (s *Sessions) Resolve(ctx context.Context, sessionToken string) (*Session, error) {
	sessionToken = strings.TrimSpace(sessionToken)
	if sessionToken == "" {
		return nil, core.NewInvalidTokenError("session token is required")
	}

	session, err := s.store.GetSessionByToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, core.NewInvalidTokenError("session not found")
		}
		return nil, err
	}

	parentGone := false
	project, err := s.store.GetProject(ctx, session.ProjectID)
	switch {
	case errors.Is(err, ErrNotFound):
		parentGone = true
	case err != nil:
		return nil, err
	default:
		parentGone = project.Archived
	}

	if !tokens.Valid(tokens.Record{Token: session.SessionToken, ParentGone: parentGone}, s.now()) {
		return nil, core.NewInvalidTokenError("this session link is invalid")
	}
	return session, nil
}

// Begin transitions scheduled -> active and stamps started_at. Beginning a
// session in any other state is an InvalidState error; Begin is the one
// transition that is not tolerant of replays.
func (s *Sessions) Begin(ctx context.Context, sessionToken string) (*Session, error) {
	session, err := s.Resolve(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	if session.Status != SessionScheduled {
		return nil, core.NewInvalidStateError("session is not in the scheduled state")
	}

	now := s.now()
	session.Status = SessionActive
	session.StartedAt = &now
	session.UpdatedAt = now
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session started", "session_id", session.ID)
	return session, nil
}

// End drives the session into the requested terminal state and stamps
// ended_at. Ending an already-terminal session is a no-op, not an error:
// teardown paths (tab close, camera cleanup) are observed to fire twice.
// A completed outcome also completes the participant.
func (s *Sessions) End(ctx context.Context, sessionToken string, outcome SessionOutcome) (*Session, error) {
	session, err := s.Resolve(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return session, nil
	}

	now := s.now()
	switch outcome {
	case OutcomeCompleted:
		session.Status = SessionCompleted
	case OutcomeCancelled:
		session.Status = SessionCancelled
	default:
		return nil, core.NewInvalidRequestErrorWithParam("outcome must be completed or cancelled", "outcome")
	}
	session.EndedAt = &now
	session.UpdatedAt = now
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session ended", "session_id", session.ID, "outcome", outcome)

	if outcome == OutcomeCompleted && session.ParticipantID != nil && s.completer != nil {
		if err := s.completer.MarkCompleted(ctx, *session.ParticipantID); err != nil {
			s.logger.Warn("participant completion after session end failed",
				"session_id", session.ID, "participant_id", *session.ParticipantID, "error", err)
		}
	}
	return session, nil
}

// AppendMetadata merges the patch into the session metadata blob. Keys not
// named by the patch are preserved; the merge is shallow.
func (s *Sessions) AppendMetadata(ctx context.Context, sessionToken string, patch map[string]any) (*Session, error) {
	if len(patch) == 0 {
		return nil, core.NewInvalidRequestErrorWithParam("metadata patch must not be empty", "metadata")
	}
	session, err := s.Resolve(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	if session.Metadata == nil {
		session.Metadata = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		session.Metadata[k] = v
	}
	session.UpdatedAt = s.now()
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}
