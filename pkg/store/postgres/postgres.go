// Package postgres implements study.Store on a pgx connection pool. Schema
// management lives in the embedded goose migrations next to this file.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/searcho-ai/searcho/pkg/study"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ study.Store = (*Store)(nil)

// New wraps an existing pool. The caller owns the pool's lifetime.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool and verifies the database is reachable.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Ping reports backend reachability for the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// mapErr translates driver errors into the store sentinels the services
// branch on.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return study.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", study.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

const projectCols = `id, owner_id, title, description, analysis, archived, archived_at, created_at, updated_at`

func scanProject(row pgx.CollectableRow) (*study.Project, error) {
	var p study.Project
	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Analysis,
		&p.Archived, &p.ArchivedAt, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (s *Store) CreateProject(ctx context.Context, p *study.Project) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (`+projectCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.OwnerID, p.Title, p.Description, p.Analysis,
		p.Archived, p.ArchivedAt, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*study.Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+projectCols+` FROM projects WHERE id = $1`, id)
	if err != nil {
		return nil, mapErr(err)
	}
	p, err := pgx.CollectOneRow(rows, scanProject)
	return p, mapErr(err)
}

func (s *Store) ListProjects(ctx context.Context, ownerID string, includeArchived bool) ([]*study.Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+projectCols+` FROM projects
		WHERE owner_id = $1 AND (archived = false OR $2)
		ORDER BY created_at DESC`, ownerID, includeArchived)
	if err != nil {
		return nil, mapErr(err)
	}
	out, err := pgx.CollectRows(rows, scanProject)
	return out, mapErr(err)
}

func (s *Store) UpdateProject(ctx context.Context, p *study.Project) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE projects
		SET title = $2, description = $3, analysis = $4, archived = $5,
		    archived_at = $6, updated_at = $7
		WHERE id = $1`,
		p.ID, p.Title, p.Description, p.Analysis, p.Archived, p.ArchivedAt, p.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return study.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	// Dependents go with it through ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return study.ErrNotFound
	}
	return nil
}

const participantCols = `id, project_id, email, name, status, invitation_token,
	token_expires_at, invited_at, joined_at, completed_at, created_at, updated_at`

func scanParticipant(row pgx.CollectableRow) (*study.Participant, error) {
	var p study.Participant
	err := row.Scan(&p.ID, &p.ProjectID, &p.Email, &p.Name, &p.Status,
		&p.InvitationToken, &p.TokenExpiresAt, &p.InvitedAt, &p.JoinedAt,
		&p.CompletedAt, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (s *Store) CreateParticipant(ctx context.Context, p *study.Participant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO participants (`+participantCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.ProjectID, p.Email, p.Name, p.Status, p.InvitationToken,
		p.TokenExpiresAt, p.InvitedAt, p.JoinedAt, p.CompletedAt, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

func (s *Store) GetParticipant(ctx context.Context, id uuid.UUID) (*study.Participant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+participantCols+` FROM participants WHERE id = $1`, id)
	if err != nil {
		return nil, mapErr(err)
	}
	p, err := pgx.CollectOneRow(rows, scanParticipant)
	return p, mapErr(err)
}

func (s *Store) GetParticipantByToken(ctx context.Context, token string) (*study.Participant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+participantCols+` FROM participants WHERE invitation_token = $1`, token)
	if err != nil {
		return nil, mapErr(err)
	}
	p, err := pgx.CollectOneRow(rows, scanParticipant)
	return p, mapErr(err)
}

func (s *Store) ListParticipants(ctx context.Context, projectID uuid.UUID) ([]*study.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+participantCols+` FROM participants
		WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, mapErr(err)
	}
	out, err := pgx.CollectRows(rows, scanParticipant)
	return out, mapErr(err)
}

func (s *Store) UpdateParticipant(ctx context.Context, p *study.Participant) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE participants
		SET email = $2, name = $3, status = $4, invitation_token = $5,
		    token_expires_at = $6, joined_at = $7, completed_at = $8, updated_at = $9
		WHERE id = $1`,
		p.ID, p.Email, p.Name, p.Status, p.InvitationToken,
		p.TokenExpiresAt, p.JoinedAt, p.CompletedAt, p.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return study.ErrNotFound
	}
	return nil
}

const sessionCols = `id, project_id, participant_id, session_token, status,
	scheduled_at, started_at, ended_at, notes, metadata, created_at, updated_at`

func scanSession(row pgx.CollectableRow) (*study.Session, error) {
	var sess study.Session
	err := row.Scan(&sess.ID, &sess.ProjectID, &sess.ParticipantID,
		&sess.SessionToken, &sess.Status, &sess.ScheduledAt, &sess.StartedAt,
		&sess.EndedAt, &sess.Notes, &sess.Metadata, &sess.CreatedAt, &sess.UpdatedAt)
	return &sess, err
}

func (s *Store) CreateSession(ctx context.Context, sess *study.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sess.ID, sess.ProjectID, sess.ParticipantID, sess.SessionToken, sess.Status,
		sess.ScheduledAt, sess.StartedAt, sess.EndedAt, sess.Notes, sess.Metadata,
		sess.CreatedAt, sess.UpdatedAt)
	return mapErr(err)
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*study.Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = $1`, id)
	if err != nil {
		return nil, mapErr(err)
	}
	sess, err := pgx.CollectOneRow(rows, scanSession)
	return sess, mapErr(err)
}

func (s *Store) GetSessionByToken(ctx context.Context, token string) (*study.Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sessionCols+` FROM sessions WHERE session_token = $1`, token)
	if err != nil {
		return nil, mapErr(err)
	}
	sess, err := pgx.CollectOneRow(rows, scanSession)
	return sess, mapErr(err)
}

func (s *Store) ListSessionsByParticipant(ctx context.Context, participantID uuid.UUID) ([]*study.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE participant_id = $1 ORDER BY created_at`, participantID)
	if err != nil {
		return nil, mapErr(err)
	}
	out, err := pgx.CollectRows(rows, scanSession)
	return out, mapErr(err)
}

func (s *Store) UpdateSession(ctx context.Context, sess *study.Session) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET status = $2, scheduled_at = $3, started_at = $4, ended_at = $5,
		    notes = $6, metadata = $7, updated_at = $8
		WHERE id = $1`,
		sess.ID, sess.Status, sess.ScheduledAt, sess.StartedAt, sess.EndedAt,
		sess.Notes, sess.Metadata, sess.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return study.ErrNotFound
	}
	return nil
}

func (s *Store) CreateQuestions(ctx context.Context, qs []*study.Question) error {
	if len(qs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, q := range qs {
		batch.Queue(`
			INSERT INTO questions (id, project_id, session_id, parent_id,
				question_text, question_order, section, question_type, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			q.ID, q.ProjectID, q.SessionID, q.ParentID,
			q.Text, q.Order, q.Section, q.Type, q.CreatedAt)
	}
	return mapErr(s.pool.SendBatch(ctx, batch).Close())
}

func (s *Store) ListQuestionsBySession(ctx context.Context, sessionID uuid.UUID) ([]*study.Question, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, session_id, parent_id, question_text,
			question_order, section, question_type, created_at
		FROM questions WHERE session_id = $1 ORDER BY question_order`, sessionID)
	if err != nil {
		return nil, mapErr(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*study.Question, error) {
		var q study.Question
		err := row.Scan(&q.ID, &q.ProjectID, &q.SessionID, &q.ParentID,
			&q.Text, &q.Order, &q.Section, &q.Type, &q.CreatedAt)
		return &q, err
	})
	return out, mapErr(err)
}

func (s *Store) CreateResponse(ctx context.Context, r *study.Response) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO responses (id, session_id, question_id, participant_id,
			transcription, response_text, is_complete, sentiment_score,
			confidence_score, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.SessionID, r.QuestionID, r.ParticipantID,
		r.Transcription, r.ResponseText, r.IsComplete, r.SentimentScore,
		r.ConfidenceScore, r.Metadata, r.CreatedAt)
	return mapErr(err)
}

func (s *Store) ListResponsesBySession(ctx context.Context, sessionID uuid.UUID) ([]*study.Response, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, question_id, participant_id, transcription,
			response_text, is_complete, sentiment_score, confidence_score,
			metadata, created_at
		FROM responses WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, mapErr(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*study.Response, error) {
		var r study.Response
		err := row.Scan(&r.ID, &r.SessionID, &r.QuestionID, &r.ParticipantID,
			&r.Transcription, &r.ResponseText, &r.IsComplete, &r.SentimentScore,
			&r.ConfidenceScore, &r.Metadata, &r.CreatedAt)
		return &r, err
	})
	return out, mapErr(err)
}

func (s *Store) MarkResponsesComplete(ctx context.Context, sessionID, questionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE responses SET is_complete = true
		WHERE session_id = $1 AND question_id = $2`, sessionID, questionID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return study.ErrNotFound
	}
	return nil
}

func (s *Store) CreateResearcherSession(ctx context.Context, rs *study.ResearcherSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO researcher_sessions (token, user_id, email, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rs.Token, rs.UserID, rs.Email, rs.ExpiresAt, rs.CreatedAt)
	return mapErr(err)
}

func (s *Store) GetResearcherSession(ctx context.Context, token string) (*study.ResearcherSession, error) {
	var rs study.ResearcherSession
	err := s.pool.QueryRow(ctx, `
		SELECT token, user_id, email, expires_at, created_at
		FROM researcher_sessions WHERE token = $1`, token).
		Scan(&rs.Token, &rs.UserID, &rs.Email, &rs.ExpiresAt, &rs.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rs, nil
}

func (s *Store) DeleteResearcherSession(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM researcher_sessions WHERE token = $1`, token)
	return mapErr(err)
}
