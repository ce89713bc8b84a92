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

// DefaultInvitationTTL is the invitation token validity window.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// InvitationEmail is what the mailer needs to dispatch an invite.
type InvitationEmail struct {
	To           string
	Name         string
	ProjectTitle string
	Token        string
	ExpiresAt    time.Time
	StudyType    string
	TargetDevice string
}

// Mailer dispatches invitation emails. pkg/mail implements it on Resend.
type Mailer interface {
	SendInvitation(ctx context.Context, msg InvitationEmail) (messageID string, err error)
}

// InviteOptions carries the optional study flavoring forwarded to the email.
type InviteOptions struct {
	Name         string
	StudyType    string
	TargetDevice string
}

// Participants drives the participant state machine:
//
//	invited -> joined -> completed
//	invited -> declined
//
// declined and completed are terminal. All writes to participant status go
// through this service.
type Participants struct {
	store    Store
	sessions *Sessions
	mailer   Mailer
	logger   *slog.Logger

	invitationTTL time.Duration
	now           func() time.Time
}

// NewParticipants wires the participant lifecycle. mailer may be nil, in
// which case invitations are created without dispatching email.
func NewParticipants(store Store, sessions *Sessions, mailer Mailer, logger *slog.Logger) *Participants {
	if logger == nil {
		logger = slog.Default()
	}
	return &Participants{
		store:         store,
		sessions:      sessions,
		mailer:        mailer,
		logger:        logger,
		invitationTTL: DefaultInvitationTTL,
		now:           time.Now,
	}
}

// WithInvitationTTL overrides the 7-day default token window.
func (p *Participants) WithInvitationTTL(ttl time.Duration) *Participants {
	if ttl > 0 {
		p.invitationTTL = ttl
	}
	return p
}

// WithClock overrides the time source for tests.
func (p *Participants) WithClock(now func() time.Time) *Participants {
	if now != nil {
		p.now = now
	}
	return p
}

// Invite creates a participant in the invited state with a fresh invitation
// token and dispatches the invitation email. A repeat invitation for an email
// that already holds a live (non-declined) invitation on the project is
// rejected; the compare is case-insensitive.
func (p *Participants) Invite(ctx context.Context, projectID uuid.UUID, email string, opts InviteOptions) (*Participant, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, core.NewValidationError("a valid participant email is required", "email")
	}

	project, err := p.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, core.NewNotFoundError("project not found")
		}
		return nil, err
	}
	if project.Archived {
		return nil, core.NewInvalidStateError("cannot invite participants to an archived project")
	}

	existing, err := p.store.ListParticipants(ctx, projectID)
	if err != nil {
		return nil, err
	}
	lowered := strings.ToLower(email)
	for _, other := range existing {
		if strings.ToLower(other.Email) == lowered && other.Status != ParticipantDeclined {
			return nil, core.NewDuplicateInvitationError(email)
		}
	}

	now := p.now()
	participant := &Participant{
		ID:              uuid.New(),
		ProjectID:       projectID,
		Email:           email,
		Name:            strings.TrimSpace(opts.Name),
		Status:          ParticipantInvited,
		InvitationToken: tokens.Issue(tokens.KindInvitation),
		TokenExpiresAt:  now.Add(p.invitationTTL),
		InvitedAt:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := p.store.CreateParticipant(ctx, participant); err != nil {
		return nil, err
	}

	if p.mailer != nil {
		msgID, mailErr := p.mailer.SendInvitation(ctx, InvitationEmail{
			To:           participant.Email,
			Name:         participant.Name,
			ProjectTitle: project.Title,
			Token:        participant.InvitationToken,
			ExpiresAt:    participant.TokenExpiresAt,
			StudyType:    opts.StudyType,
			TargetDevice: opts.TargetDevice,
		})
		if mailErr != nil {
			// The invitation stands; the link can still be shared from the
			// dashboard, so a mail outage must not fail the invite.
			p.logger.Warn("invitation email dispatch failed",
				"participant_id", participant.ID, "error", mailErr)
		} else {
			p.logger.Info("invitation email sent",
				"participant_id", participant.ID, "message_id", msgID)
		}
	}

	return participant, nil
}

// ResolveByToken resolves a live invitation token to its participant. A token
// that is unknown, expired, bound to a deleted or archived project, or held
// by a declined participant resolves to InvalidOrExpiredToken.
func (p *Participants) ResolveByToken(ctx context.Context, token string) (*Participant, error) {
	participant, err := p.resolveLive(ctx, token)
	if err != nil {
		return nil, err
	}
	if participant.Status == ParticipantDeclined {
		return nil, core.NewInvalidTokenError("this invitation has been declined")
	}
	return participant, nil
}

// List returns the project's participants, newest first.
func (p *Participants) List(ctx context.Context, projectID uuid.UUID) ([]*Participant, error) {
	return p.store.ListParticipants(ctx, projectID)
}

// Invitation resolves a token for display, pairing the participant with the
// study title the landing page shows.
func (p *Participants) Invitation(ctx context.Context, token string) (*Participant, string, error) {
	participant, err := p.ResolveByToken(ctx, token)
	if err != nil {
		return nil, "", err
	}
	// resolveLive already established the project is live.
	project, err := p.store.GetProject(ctx, participant.ProjectID)
	if err != nil {
		return nil, "", err
	}
	return participant, project.Title, nil
}

// Accept records consent and joins the participant to the study: the
// participant transitions to joined and exactly one new session is created
// for them. The returned session carries the session token the client uses
// to enter the interview.
func (p *Participants) Accept(ctx context.Context, token string, consent bool) (*Session, error) {
	if !consent {
		return nil, core.NewConsentRequiredError()
	}

	participant, err := p.resolveLive(ctx, token)
	if err != nil {
		return nil, err
	}
	// A token whose participant already moved past invited is spent.
	if participant.Status != ParticipantInvited {
		return nil, core.NewInvalidTokenError("this invitation has already been used")
	}

	session, err := p.sessions.Create(ctx, participant.ProjectID, participant.ID)
	if err != nil {
		return nil, err
	}

	now := p.now()
	participant.Status = ParticipantJoined
	participant.JoinedAt = &now
	participant.UpdatedAt = now
	if err := p.store.UpdateParticipant(ctx, participant); err != nil {
		// The join failed, so the session created above must not outlive it: a
		// stranded scheduled session would block this participant's retry.
		if _, endErr := p.sessions.End(ctx, session.SessionToken, OutcomeCancelled); endErr != nil {
			p.logger.Error("session rollback after failed join failed",
				"participant_id", participant.ID, "session_id", session.ID, "error", endErr)
		}
		return nil, err
	}

	p.logger.Info("participant joined",
		"participant_id", participant.ID, "session_id", session.ID)
	return session, nil
}

// Decline moves an invited participant to declined. Declining an already
// declined invitation is a no-op; declining after joining is rejected.
func (p *Participants) Decline(ctx context.Context, token string) error {
	participant, err := p.resolveLive(ctx, token)
	if err != nil {
		return err
	}

	switch participant.Status {
	case ParticipantDeclined:
		return nil
	case ParticipantInvited:
		now := p.now()
		participant.Status = ParticipantDeclined
		participant.UpdatedAt = now
		return p.store.UpdateParticipant(ctx, participant)
	default:
		return core.NewInvalidStateError("invitation can no longer be declined")
	}
}

// MarkCompleted is invoked by the session lifecycle when a session ends with
// the completed outcome. It never returns a lifecycle error: a participant
// already in a terminal state is logged and left untouched.
func (p *Participants) MarkCompleted(ctx context.Context, participantID uuid.UUID) error {
	participant, err := p.store.GetParticipant(ctx, participantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			p.logger.Warn("mark completed: participant not found", "participant_id", participantID)
			return nil
		}
		return err
	}

	switch participant.Status {
	case ParticipantJoined:
		now := p.now()
		participant.Status = ParticipantCompleted
		participant.CompletedAt = &now
		participant.UpdatedAt = now
		return p.store.UpdateParticipant(ctx, participant)
	case ParticipantCompleted, ParticipantDeclined:
		p.logger.Debug("mark completed: participant already terminal",
			"participant_id", participantID, "status", participant.Status)
		return nil
	default:
		p.logger.Warn("mark completed: participant never joined",
			"participant_id", participantID, "status", participant.Status)
		return nil
	}
}

// resolveLive looks a token up and applies the ledger validity rule: the
// record must exist, be unexpired, and its parent project must still be live.
func (p *Participants) resolveLive(ctx context.Context, token string) (*Participant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, core.NewInvalidTokenError("invitation token is required")
	}

	participant, err := p.store.GetParticipantByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, core.NewInvalidTokenError("invitation not found")
		}
		return nil, err
	}

	parentGone := false
	project, err := p.store.GetProject(ctx, participant.ProjectID)
	switch {
	case errors.Is(err, ErrNotFound):
		parentGone = true
	case err != nil:
		return nil, err
	default:
		parentGone = project.Archived
	}

	rec := tokens.Record{
		Token:      participant.InvitationToken,
		ExpiresAt:  participant.TokenExpiresAt,
		ParentGone: parentGone,
	}
	if !tokens.Valid(rec, p.now()) {
		return nil, core.NewInvalidTokenError("this invitation link is invalid or has expired")
	}
	return participant, nil
}
