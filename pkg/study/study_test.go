package study_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/searcho-ai/searcho/pkg/core"
	"github.com/searcho-ai/searcho/pkg/store/memory"
	"github.com/searcho-ai/searcho/pkg/study"
)

// clock is a settable time source shared by all services under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeMailer records dispatched invitations and can be told to fail.
type fakeMailer struct {
	mu   sync.Mutex
	sent []study.InvitationEmail
	err  error
}

func (m *fakeMailer) SendInvitation(_ context.Context, msg study.InvitationEmail) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "msg_test", nil
}

type env struct {
	store        *memory.Store
	clock        *clock
	mailer       *fakeMailer
	projects     *study.Projects
	participants *study.Participants
	sessions     *study.Sessions
	interviews   *study.Interviews
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memory.New()
	ck := newClock()
	mailer := &fakeMailer{}

	sessions := study.NewSessions(st, nil).WithClock(ck.Now)
	participants := study.NewParticipants(st, sessions, mailer, nil).WithClock(ck.Now)
	sessions.SetCompleter(participants)

	return &env{
		store:        st,
		clock:        ck,
		mailer:       mailer,
		projects:     study.NewProjects(st, nil).WithClock(ck.Now),
		participants: participants,
		sessions:     sessions,
		interviews:   study.NewInterviews(st, nil),
	}
}

func (e *env) newProject(t *testing.T) *study.Project {
	t.Helper()
	p, err := e.projects.Create(context.Background(), "user_researcher", "Checkout study", "Why do users abandon checkout?")
	require.NoError(t, err)
	return p
}

func requireErrType(t *testing.T, err error, want core.ErrorType) {
	t.Helper()
	require.Error(t, err)
	var coreErr *core.Error
	require.True(t, errors.As(err, &coreErr), "expected *core.Error, got %T: %v", err, err)
	require.Equal(t, want, coreErr.Type)
}
