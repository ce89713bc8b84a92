package study_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/searcho-ai/searcho/pkg/core"
	"github.com/searcho-ai/searcho/pkg/store/memory"
	"github.com/searcho-ai/searcho/pkg/study"
)

func TestInvite_IssuesTokenAndSendsEmail(t *testing.T) {
	e := newEnv(t)
	project := e.newProject(t)
	ctx := context.Background()

	p, err := e.participants.Invite(ctx, project.ID, "jordan@example.com", study.InviteOptions{
		Name:         "Jordan",
		StudyType:    "moderated",
		TargetDevice: "desktop",
	})
	require.NoError(t, err)
	require.Equal(t, study.ParticipantInvited, p.Status)
	require.Regexp(t, `^inv_`, p.InvitationToken)
	require.Equal(t, e.clock.Now().Add(study.DefaultInvitationTTL), p.TokenExpiresAt)

	require.Len(t, e.mailer.sent, 1)
	msg := e.mailer.sent[0]
	require.Equal(t, "jordan@example.com", msg.To)
	require.Equal(t, project.Title, msg.ProjectTitle)
	require.Equal(t, p.InvitationToken, msg.Token)
	require.Equal(t, "moderated", msg.StudyType)
	require.Equal(t, "desktop", msg.TargetDevice)
}

func TestInvite_DuplicateEmailRejectedCaseInsensitive(t *testing.T) {
	e := newEnv(t)
	project := e.newProject(t)
	ctx := context.Background()

	_, err := e.participants.Invite(ctx, project.ID, "sam@example.com", study.InviteOptions{})
	require.NoError(t, err)

	_, err = e.participants.Invite(ctx, project.ID, "Sam@Example.COM", study.InviteOptions{})
	requireErrType(t, err, core.ErrDuplicateInvitation)

	// A declined invitation frees the address for a fresh invite.
	require.NoError(t, e.participants.Decline(ctx, mustToken(t, e, project, "sam@example.com")))

	_, err = e.participants.Invite(ctx, project.ID, "sam@example.com", study.InviteOptions{})
	require.NoError(t, err)
}

func TestInvite_ValidationAndArchivedProject(t *testing.T) {
	e := newEnv(t)
	project := e.newProject(t)
	ctx := context.Background()

	_, err := e.participants.Invite(ctx, project.ID, "not-an-email", study.InviteOptions{})
	requireErrType(t, err, core.ErrValidation)

	_, err = e.projects.Archive(ctx, project.OwnerID, project.ID)
	require.NoError(t, err)

	_, err = e.participants.Invite(ctx, project.ID, "new@example.com", study.InviteOptions{})
	requireErrType(t, err, core.ErrInvalidState)
}

func TestInvite_MailFailureDoesNotFailInvite(t *testing.T) {
	e := newEnv(t)
	project := e.newProject(t)
	e.mailer.err = errors.New("resend: 503")

	p, err := e.participants.Invite(context.Background(), project.ID, "lee@example.com", study.InviteOptions{})
	require.NoError(t, err)
	require.Equal(t, study.ParticipantInvited, p.Status)
}

func TestAccept_RequiresConsent(t *testing.T) {
	e := newEnv(t)
	project := e.newProject(t)
	ctx := context.Background()

	p, err := e.participants.Invite(ctx, project.ID, "casey@example.com", study.InviteOptions{})
	require.NoError(t, err)

	_, err = e.participants.Accept(ctx, p.InvitationToken, false)
	requireErrType(t, err, core.ErrConsentRequired)

	// The refusal left no mark: the participant is still invited and can join.
	got, err := e.participants.ResolveByToken(ctx, p.InvitationToken)
	require.NoError(t, err)
	require.Equal(t, study.ParticipantInvited, got.Status)

	sess, err := e.participants.Accept(ctx, p.InvitationToken, true)
	require.NoError(t, err)
	require.Equal(t, study.SessionScheduled, sess.Status)
	require.Regexp(t, `^sess_`, sess.SessionToken)
	require.NotNil(t, sess.ParticipantID)
	require.Equal(t, p.ID, *sess.ParticipantID)

	got, err = e.store.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, study.ParticipantJoined, got.Status)
	require.NotNil(t, got.JoinedAt)
}

func TestAccept_SpentTokenRejected(t *testing.T) {
	e := newEnv(t)
	project := e.newProject(t)
	ctx := context.Background()

	p, err := e.participants.Invite(ctx, project.ID, "alex@example.com", study.InviteOptions{})
	require.NoError(t, err)

	_, err = e.participants.Accept(ctx, p.InvitationToken, true)
	require.NoError(t, err)

	// Second accept on the same link: the token resolves but the participant
	// has moved past invited, so the link reads as spent.
	_, err = e.participants.Accept(ctx, p.InvitationToken, true)
	requireErrType(t, err, core.ErrInvalidToken)

	sessions, err := e.store.ListSessionsByParticipant(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

// flakyStore fails UpdateParticipant a set number of times, then recovers.
type flakyStore struct {
	study.Store
	updateFailures int
}

func (f *flakyStore) UpdateParticipant(ctx context.Context, p *study.Participant) error {
	if f.updateFailures > 0 {
		f.updateFailures--
		return errors.New("store: connection reset")
	}
	return f.Store.UpdateParticipant(ctx, p)
}

func TestAccept_FailedJoinDoesNotStrandSession(t *testing.T) {
	st := &flakyStore{Store: memory.New(), updateFailures: 1}
	sessions := study.NewSessions(st, nil)
	participants := study.NewParticipants(st, sessions, nil, nil)
	sessions.SetCompleter(participants)
	projects := study.NewProjects(st, nil)
	ctx := context.Background()

	project, err := projects.Create(ctx, "user_researcher", "Checkout study", "Why do users abandon checkout?")
	require.NoError(t, err)
	p, err := participants.Invite(ctx, project.ID, "rey@example.com", study.InviteOptions{})
	require.NoError(t, err)

	_, err = participants.Accept(ctx, p.InvitationToken, true)
	require.Error(t, err)

	// The session created ahead of the failed join was rolled back, so the
	// retry is not blocked by the one-live-session guard.
	sess, err := participants.Accept(ctx, p.InvitationToken, true)
	require.NoError(t, err)
	require.Equal(t, study.SessionScheduled, sess.Status)

	all, err := st.ListSessionsByParticipant(ctx, p.ID)
	require.NoError(t, err)
	live := 0
	for _, s := range all {
		if !s.Status.Terminal() {
			live++
		}
	}
	require.Equal(t, 1, live)
}

func TestDecline_IdempotentAndFinal(t *testing.T) {
	e := newEnv(t)
	project := e.newProject(t)
	ctx := context.Background()

	p, err := e.participants.Invite(ctx, project.ID, "nur@example.com", study.InviteOptions{})
	require.NoError(t, err)

	require.NoError(t, e.participants.Decline(ctx, p.InvitationToken))
	require.NoError(t, e.participants.Decline(ctx, p.InvitationToken))

	// A declined invitation no longer resolves and cannot be accepted.
	_, err = e.participants.ResolveByToken(ctx, p.InvitationToken)
	requireErrType(t, err, core.ErrInvalidToken)
	_, err = e.participants.Accept(ctx, p.InvitationToken, true)
	requireErrType(t, err, core.ErrInvalidToken)
}

func TestDecline_AfterJoinRejected(t *testing.T) {
	e := newEnv(t)
	project := e.newProject(t)
	ctx := context.Background()

	p, err := e.participants.Invite(ctx, project.ID, "val@example.com", study.InviteOptions{})
	require.NoError(t, err)
	_, err = e.participants.Accept(ctx, p.InvitationToken, true)
	require.NoError(t, err)

	err = e.participants.Decline(ctx, p.InvitationToken)
	requireErrType(t, err, core.ErrInvalidState)
}

func TestResolveByToken_ExpiryIsMonotonic(t *testing.T) {
	e := newEnv(t)
	project := e.newProject(t)
	ctx := context.Background()

	p, err := e.participants.Invite(ctx, project.ID, "kim@example.com", study.InviteOptions{})
	require.NoError(t, err)

	e.clock.Advance(study.DefaultInvitationTTL + time.Minute)
	_, err = e.participants.ResolveByToken(ctx, p.InvitationToken)
	requireErrType(t, err, core.ErrInvalidToken)

	// The record is retained for audit but the token never revives.
	kept, err := e.store.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, study.ParticipantInvited, kept.Status)
}

func TestResolveByToken_ArchivedProjectInvalidatesToken(t *testing.T) {
	e := newEnv(t)
	project := e.newProject(t)
	ctx := context.Background()

	p, err := e.participants.Invite(ctx, project.ID, "dana@example.com", study.InviteOptions{})
	require.NoError(t, err)

	_, err = e.projects.Archive(ctx, project.OwnerID, project.ID)
	require.NoError(t, err)
	_, err = e.participants.ResolveByToken(ctx, p.InvitationToken)
	requireErrType(t, err, core.ErrInvalidToken)

	// Unarchiving restores the study, and with it the still-unexpired token.
	_, err = e.projects.Unarchive(ctx, project.OwnerID, project.ID)
	require.NoError(t, err)
	_, err = e.participants.ResolveByToken(ctx, p.InvitationToken)
	require.NoError(t, err)
}

func TestResolveByToken_UnknownToken(t *testing.T) {
	e := newEnv(t)
	_, err := e.participants.ResolveByToken(context.Background(), "inv_does_not_exist")
	requireErrType(t, err, core.ErrInvalidToken)
}

func TestMarkCompleted_TerminalParticipantIsNoop(t *testing.T) {
	e := newEnv(t)
	project := e.newProject(t)
	ctx := context.Background()

	p, err := e.participants.Invite(ctx, project.ID, "remy@example.com", study.InviteOptions{})
	require.NoError(t, err)
	require.NoError(t, e.participants.Decline(ctx, p.InvitationToken))

	// Completion of a declined participant is logged, never an error.
	require.NoError(t, e.participants.MarkCompleted(ctx, p.ID))
	got, err := e.store.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, study.ParticipantDeclined, got.Status)
}

// mustToken finds the invitation token for an email on a project.
func mustToken(t *testing.T, e *env, project *study.Project, email string) string {
	t.Helper()
	all, err := e.store.ListParticipants(context.Background(), project.ID)
	require.NoError(t, err)
	for _, p := range all {
		if p.Email == email {
			return p.InvitationToken
		}
	}
	t.Fatalf("no participant with email %s", email)
	return ""
}
