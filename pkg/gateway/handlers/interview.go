package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/searcho-ai/searcho/pkg/core"
	"github.com/searcho-ai/searcho/pkg/insights"
	"github.com/searcho-ai/searcho/pkg/study"
)

// Interview serves the question/response routes of a live session. Every
// route resolves the session token first, so a dead token gates everything.
type Interview struct {
	Sessions   *study.Sessions
	Projects   *study.Projects
	Interviews *study.Interviews
	Insights   *insights.Service
	Logger     *slog.Logger

	MaxBodyBytes int64
}

// InitQuestions seeds the session's question list from the discussion guide.
// The guide may ride the request body; otherwise the one stored on the
// project is used.
func (h *Interview) InitQuestions(w http.ResponseWriter, r *http.Request) {
	session, err := h.Sessions.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	var req struct {
		Guide *study.Guide `json:"guide"`
	}
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	var guide study.Guide
	if req.Guide != nil {
		guide = *req.Guide
	} else {
		stored, err := h.guideForProject(r, session.ProjectID)
		if err != nil {
			writeError(w, r, h.Logger, err)
			return
		}
		guide = stored
	}

	questions, err := h.Interviews.InitializeQuestions(r.Context(), session.ProjectID, session.ID, guide)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"questions": viewQuestions(questions)})
}

// Next returns the first unanswered question plus progress. A null question
// with is_complete set means the interview is over.
func (h *Interview) Next(w http.ResponseWriter, r *http.Request) {
	session, err := h.Sessions.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	next, progress, err := h.Interviews.NextQuestion(r.Context(), session.ID)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	body := map[string]any{"question": nil, "progress": progress}
	if next != nil {
		body["question"] = viewQuestion(next)
	}
	writeJSON(w, http.StatusOK, body)
}

// Progress reports completion over the session's question list.
func (h *Interview) Progress(w http.ResponseWriter, r *http.Request) {
	session, err := h.Sessions.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	progress, err := h.Interviews.SessionProgress(r.Context(), session.ID)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// SaveResponse records one captured answer.
func (h *Interview) SaveResponse(w http.ResponseWriter, r *http.Request) {
	session, err := h.Sessions.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	var req struct {
		QuestionID      uuid.UUID      `json:"question_id"`
		Transcription   string         `json:"transcription"`
		ResponseText    string         `json:"response_text"`
		IsComplete      bool           `json:"is_complete"`
		SentimentScore  *float64       `json:"sentiment_score"`
		ConfidenceScore *float64       `json:"confidence_score"`
		Metadata        map[string]any `json:"metadata"`
	}
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	response, err := h.Interviews.SaveResponse(r.Context(), session.ID, study.ResponseInput{
		QuestionID:      req.QuestionID,
		ParticipantID:   session.ParticipantID,
		Transcription:   req.Transcription,
		ResponseText:    req.ResponseText,
		IsComplete:      req.IsComplete,
		SentimentScore:  req.SentimentScore,
		ConfidenceScore: req.ConfidenceScore,
		Metadata:        req.Metadata,
	})
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": response.ID, "is_complete": response.IsComplete})
}

// CompleteQuestion marks the question's responses complete, advancing the
// interview cursor.
func (h *Interview) CompleteQuestion(w http.ResponseWriter, r *http.Request) {
	session, err := h.Sessions.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	questionID, err := pathUUID(r, "question_id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if err := h.Interviews.CompleteQuestion(r.Context(), session.ID, questionID); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	progress, err := h.Interviews.SessionProgress(r.Context(), session.ID)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// AddFollowUp appends a follow-up question under a parent.
func (h *Interview) AddFollowUp(w http.ResponseWriter, r *http.Request) {
	session, err := h.Sessions.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	questionID, err := pathUUID(r, "question_id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	followUp, err := h.Interviews.AddFollowUp(r.Context(), session.ID, questionID, req.Text)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewQuestion(followUp))
}

// Analyze synthesizes the session's completed responses and stores the result
// on the session metadata.
func (h *Interview) Analyze(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	session, err := h.Sessions.Resolve(r.Context(), token)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	transcripts, err := h.Interviews.CompletedTranscripts(r.Context(), session.ID)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	analysis, err := h.Insights.AnalyzeSession(r.Context(), transcripts)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if _, err := h.Sessions.AppendMetadata(r.Context(), token, map[string]any{"analysis": analysis}); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (h *Interview) guideForProject(r *http.Request, projectID uuid.UUID) (study.Guide, error) {
	project, err := h.Projects.GuideSource(r.Context(), projectID)
	if err != nil {
		return study.Guide{}, err
	}
	guide, ok := guideFromAnalysis(project.Analysis)
	if !ok {
		return study.Guide{}, core.NewInvalidStateError("the project has no discussion guide")
	}
	return guide, nil
}
