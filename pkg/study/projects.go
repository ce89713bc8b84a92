package study

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/searcho-ai/searcho/pkg/core"
)

// Projects is the root-aggregate CRUD service. Archiving is reversible;
// Delete is permanent and the store cascades it to every dependent row.
type Projects struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewProjects(store Store, logger *slog.Logger) *Projects {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projects{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the time source for tests.
func (p *Projects) WithClock(now func() time.Time) *Projects {
	if now != nil {
		p.now = now
	}
	return p
}

func (p *Projects) Create(ctx context.Context, ownerID, title, description string) (*Project, error) {
	ownerID = strings.TrimSpace(ownerID)
	title = strings.TrimSpace(title)
	if ownerID == "" {
		return nil, core.NewValidationError("project owner is required", "owner_id")
	}
	if title == "" {
		return nil, core.NewValidationError("project title is required", "title")
	}

	now := p.now()
	project := &Project{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       title,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// Get returns the project if it exists and belongs to ownerID.
func (p *Projects) Get(ctx context.Context, ownerID string, id uuid.UUID) (*Project, error) {
	project, err := p.store.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, core.NewNotFoundError("project not found")
		}
		return nil, err
	}
	if project.OwnerID != ownerID {
		// Ownership misses read as absence so project IDs are not probeable.
		return nil, core.NewNotFoundError("project not found")
	}
	return project, nil
}

// GuideSource fetches a project for participant-facing reads. These are
// gated by a resolved session token, not ownership, so no owner check runs.
func (p *Projects) GuideSource(ctx context.Context, id uuid.UUID) (*Project, error) {
	project, err := p.store.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, core.NewNotFoundError("project not found")
		}
		return nil, err
	}
	return project, nil
}

func (p *Projects) List(ctx context.Context, ownerID string, includeArchived bool) ([]*Project, error) {
	return p.store.ListProjects(ctx, ownerID, includeArchived)
}

// Update replaces title/description and, when analysis is non-nil, the
// analysis blob.
func (p *Projects) Update(ctx context.Context, ownerID string, id uuid.UUID, title, description string, analysis map[string]any) (*Project, error) {
	project, err := p.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if t := strings.TrimSpace(title); t != "" {
		project.Title = t
	}
	if d := strings.TrimSpace(description); d != "" {
		project.Description = d
	}
	if analysis != nil {
		project.Analysis = analysis
	}
	project.UpdatedAt = p.now()
	if err := p.store.UpdateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// SaveAnalysis merges keys into the analysis blob without disturbing
// unrelated keys (the discussion guide and post-hoc insights share it).
func (p *Projects) SaveAnalysis(ctx context.Context, id uuid.UUID, patch map[string]any) error {
	project, err := p.store.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return core.NewNotFoundError("project not found")
		}
		return err
	}
	if project.Analysis == nil {
		project.Analysis = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		project.Analysis[k] = v
	}
	project.UpdatedAt = p.now()
	return p.store.UpdateProject(ctx, project)
}

// Archive soft-deletes the project. Archived projects invalidate their
// participant and session tokens but keep every row for a later unarchive.
func (p *Projects) Archive(ctx context.Context, ownerID string, id uuid.UUID) (*Project, error) {
	return p.setArchived(ctx, ownerID, id, true)
}

// Unarchive reverses Archive.
func (p *Projects) Unarchive(ctx context.Context, ownerID string, id uuid.UUID) (*Project, error) {
	return p.setArchived(ctx, ownerID, id, false)
}

func (p *Projects) setArchived(ctx context.Context, ownerID string, id uuid.UUID, archived bool) (*Project, error) {
	project, err := p.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if project.Archived == archived {
		return project, nil
	}
	now := p.now()
	project.Archived = archived
	if archived {
		project.ArchivedAt = &now
	} else {
		project.ArchivedAt = nil
	}
	project.UpdatedAt = now
	if err := p.store.UpdateProject(ctx, project); err != nil {
		return nil, err
	}
	p.logger.Info("project archive state changed", "project_id", id, "archived", archived)
	return project, nil
}

// Delete permanently removes the project and everything under it.
func (p *Projects) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	if _, err := p.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := p.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	p.logger.Info("project deleted", "project_id", id)
	return nil
}
