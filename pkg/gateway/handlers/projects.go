package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/searcho-ai/searcho/pkg/core"
	"github.com/searcho-ai/searcho/pkg/gateway/auth"
	"github.com/searcho-ai/searcho/pkg/insights"
	"github.com/searcho-ai/searcho/pkg/study"
)

// Projects serves the researcher-facing project surface. Every route is
// behind auth.Require, so ResearcherFrom never returns nil here.
type Projects struct {
	Service  *study.Projects
	Insights *insights.Service
	Logger   *slog.Logger

	MaxBodyBytes     int64
	MaxDocumentBytes int64
}

func (h *Projects) owner(r *http.Request) string {
	return auth.ResearcherFrom(r.Context()).UserID
}

func (h *Projects) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	project, err := h.Service.Create(r.Context(), h.owner(r), req.Title, req.Description)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewProject(project))
}

func (h *Projects) List(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	projects, err := h.Service.List(r.Context(), h.owner(r), includeArchived)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": viewProjects(projects)})
}

func (h *Projects) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	project, err := h.Service.Get(r.Context(), h.owner(r), id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProject(project))
}

func (h *Projects) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	var req struct {
		Title       string         `json:"title"`
		Description string         `json:"description"`
		Analysis    map[string]any `json:"analysis"`
	}
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	project, err := h.Service.Update(r.Context(), h.owner(r), id, req.Title, req.Description, req.Analysis)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProject(project))
}

func (h *Projects) Archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

func (h *Projects) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *Projects) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	var project *study.Project
	if archived {
		project, err = h.Service.Archive(r.Context(), h.owner(r), id)
	} else {
		project, err = h.Service.Unarchive(r.Context(), h.owner(r), id)
	}
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProject(project))
}

func (h *Projects) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if err := h.Service.Delete(r.Context(), h.owner(r), id); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Analyze runs the LLM research-plan analysis over the project description
// and persists it into the analysis blob.
func (h *Projects) Analyze(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	project, err := h.Service.Get(r.Context(), h.owner(r), id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	analysis, err := h.Insights.AnalyzeProject(r.Context(), project.Description)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if err := h.Service.SaveAnalysis(r.Context(), id, map[string]any{"plan": analysis}); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// GenerateGuide validates the description, generates a discussion guide, and
// persists it. A thin description short-circuits with the elaboration hint
// instead of a guide.
func (h *Projects) GenerateGuide(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	project, err := h.Service.Get(r.Context(), h.owner(r), id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	validation, err := h.Insights.ValidateProjectInput(r.Context(), project.Description)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if validation.NeedsElaboration {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"validation": validation})
		return
	}

	guide, err := h.Insights.GenerateGuide(r.Context(), project.Title, project.Description)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if err := h.Service.SaveAnalysis(r.Context(), id, map[string]any{"guide": guide}); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"guide": guide})
}

// SuggestQuestions proposes additional questions for one guide section.
func (h *Projects) SuggestQuestions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	var req struct {
		Section  string   `json:"section"`
		Existing []string `json:"existing"`
	}
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	project, err := h.Service.Get(r.Context(), h.owner(r), id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	suggestions, err := h.Insights.SuggestQuestions(r.Context(), project.Description, req.Section, req.Existing)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": suggestions})
}

// UploadDocument ingests a research document (multipart field "file") and
// stores the extracted context in the analysis blob.
func (h *Projects) UploadDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if _, err := h.Service.Get(r.Context(), h.owner(r), id); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxDocumentBytes+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.Logger, core.NewValidationError("a document file is required", "file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.MaxDocumentBytes+1))
	if err != nil {
		writeError(w, r, h.Logger, core.NewValidationError("document could not be read", "file"))
		return
	}

	doc, err := h.Insights.IngestDocument(r.Context(), header.Filename, header.Header.Get("Content-Type"), data, r.FormValue("additional_prompt"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if err := h.Service.SaveAnalysis(r.Context(), id, map[string]any{"document": doc}); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// guideFromAnalysis decodes the stored guide blob back into its typed shape.
func guideFromAnalysis(analysis map[string]any) (study.Guide, bool) {
	raw, ok := analysis["guide"]
	if !ok {
		return study.Guide{}, false
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return study.Guide{}, false
	}
	var guide study.Guide
	if err := json.Unmarshal(buf, &guide); err != nil || len(guide.Sections) == 0 {
		return study.Guide{}, false
	}
	return guide, true
}
