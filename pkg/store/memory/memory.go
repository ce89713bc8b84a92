// Package memory is a mutex-guarded in-memory study.Store used by tests and
// local development. Semantics mirror the postgres store, including the
// delete cascade from projects.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/searcho-ai/searcho/pkg/study"
)

type Store struct {
	mu sync.RWMutex

	projects     map[uuid.UUID]*study.Project
	participants map[uuid.UUID]*study.Participant
	sessions     map[uuid.UUID]*study.Session
	questions    map[uuid.UUID]*study.Question
	responses    map[uuid.UUID]*study.Response
	researchers  map[string]*study.ResearcherSession
}

var _ study.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		projects:     make(map[uuid.UUID]*study.Project),
		participants: make(map[uuid.UUID]*study.Participant),
		sessions:     make(map[uuid.UUID]*study.Session),
		questions:    make(map[uuid.UUID]*study.Question),
		responses:    make(map[uuid.UUID]*study.Response),
		researchers:  make(map[string]*study.ResearcherSession),
	}
}

func (s *Store) CreateProject(_ context.Context, p *study.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *Store) GetProject(_ context.Context, id uuid.UUID) (*study.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, study.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListProjects(_ context.Context, ownerID string, includeArchived bool) ([]*study.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*study.Project, 0)
	for _, p := range s.projects {
		if p.OwnerID != ownerID {
			continue
		}
		if p.Archived && !includeArchived {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateProject(_ context.Context, p *study.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		return study.ErrNotFound
	}
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *Store) DeleteProject(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return study.ErrNotFound
	}
	delete(s.projects, id)
	for pid, p := range s.participants {
		if p.ProjectID == id {
			delete(s.participants, pid)
		}
	}
	sessionGone := make(map[uuid.UUID]bool)
	for sid, sess := range s.sessions {
		if sess.ProjectID == id {
			sessionGone[sid] = true
			delete(s.sessions, sid)
		}
	}
	for qid, q := range s.questions {
		if q.ProjectID == id {
			delete(s.questions, qid)
		}
	}
	for rid, r := range s.responses {
		if sessionGone[r.SessionID] {
			delete(s.responses, rid)
		}
	}
	return nil
}

func (s *Store) CreateParticipant(_ context.Context, p *study.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.participants[p.ID] = &cp
	return nil
}

func (s *Store) GetParticipant(_ context.Context, id uuid.UUID) (*study.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, study.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetParticipantByToken(_ context.Context, token string) (*study.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.participants {
		if p.InvitationToken == token {
			cp := *p
			return &cp, nil
		}
	}
	return nil, study.ErrNotFound
}

func (s *Store) ListParticipants(_ context.Context, projectID uuid.UUID) ([]*study.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*study.Participant, 0)
	for _, p := range s.participants {
		if p.ProjectID == projectID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateParticipant(_ context.Context, p *study.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.ID]; !ok {
		return study.ErrNotFound
	}
	cp := *p
	s.participants[p.ID] = &cp
	return nil
}

func (s *Store) CreateSession(_ context.Context, sess *study.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) GetSession(_ context.Context, id uuid.UUID) (*study.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, study.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) GetSessionByToken(_ context.Context, token string) (*study.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.SessionToken == token {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, study.ErrNotFound
}

func (s *Store) ListSessionsByParticipant(_ context.Context, participantID uuid.UUID) ([]*study.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*study.Session, 0)
	for _, sess := range s.sessions {
		if sess.ParticipantID != nil && *sess.ParticipantID == participantID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateSession(_ context.Context, sess *study.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return study.ErrNotFound
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) CreateQuestions(_ context.Context, qs []*study.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range qs {
		cp := *q
		s.questions[q.ID] = &cp
	}
	return nil
}

func (s *Store) ListQuestionsBySession(_ context.Context, sessionID uuid.UUID) ([]*study.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*study.Question, 0)
	for _, q := range s.questions {
		if q.SessionID != nil && *q.SessionID == sessionID {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *Store) CreateResponse(_ context.Context, r *study.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.responses[r.ID] = &cp
	return nil
}

func (s *Store) ListResponsesBySession(_ context.Context, sessionID uuid.UUID) ([]*study.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*study.Response, 0)
	for _, r := range s.responses {
		if r.SessionID == sessionID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MarkResponsesComplete(_ context.Context, sessionID, questionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, r := range s.responses {
		if r.SessionID == sessionID && r.QuestionID == questionID {
			r.IsComplete = true
			found = true
		}
	}
	if !found {
		return study.ErrNotFound
	}
	return nil
}

func (s *Store) CreateResearcherSession(_ context.Context, rs *study.ResearcherSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rs
	s.researchers[rs.Token] = &cp
	return nil
}

func (s *Store) GetResearcherSession(_ context.Context, token string) (*study.ResearcherSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.researchers[strings.TrimSpace(token)]
	if !ok {
		return nil, study.ErrNotFound
	}
	cp := *rs
	return &cp, nil
}

func (s *Store) DeleteResearcherSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.researchers, strings.TrimSpace(token))
	return nil
}
