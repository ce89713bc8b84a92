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

// Guide is the discussion guide shape questions are seeded from.
type Guide struct {
	Sections []GuideSection `json:"sections"`
}

type GuideSection struct {
	Title     string   `json:"title"`
	Questions []string `json:"questions"`
}

// Progress summarizes how far through the question list a session is.
type Progress struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	IsComplete bool    `json:"is_complete"`
	Percentage float64 `json:"percentage"`
}

// ResponseInput is one captured answer.
type ResponseInput struct {
	QuestionID      uuid.UUID
	ParticipantID   *uuid.UUID
	Transcription   string
	ResponseText    string
	IsComplete      bool
	SentimentScore  *float64
	ConfidenceScore *float64
	Metadata        map[string]any
}

// Interviews manages the question/response records of a live session:
// seeding questions from a discussion guide, walking the participant through
// them in order, and capturing answers as they arrive.
type Interviews struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewInterviews(store Store, logger *slog.Logger) *Interviews {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interviews{store: store, logger: logger, now: time.Now}
}

// InitializeQuestions flattens the guide into ordered question rows bound to
// the project and session. Ordering is section-major, question-minor.
func (i *Interviews) InitializeQuestions(ctx context.Context, projectID, sessionID uuid.UUID, guide Guide) ([]*Question, error) {
	now := i.now()
	sid := sessionID
	questions := make([]*Question, 0, 16)
	order := 1
	for _, section := range guide.Sections {
		title := strings.TrimSpace(section.Title)
		for _, text := range section.Questions {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			questions = append(questions, &Question{
				ID:        uuid.New(),
				ProjectID: projectID,
				SessionID: &sid,
				Text:      text,
				Order:     order,
				Section:   title,
				Type:      "open_ended",
				CreatedAt: now,
			})
			order++
		}
	}
	if len(questions) == 0 {
		return nil, core.NewValidationError("discussion guide contains no questions", "guide")
	}
	if err := i.store.CreateQuestions(ctx, questions); err != nil {
		return nil, err
	}
	i.logger.Info("interview questions initialized", "session_id", sessionID, "count", len(questions))
	return questions, nil
}

// Questions returns the session's questions in interview order.
func (i *Interviews) Questions(ctx context.Context, sessionID uuid.UUID) ([]*Question, error) {
	return i.store.ListQuestionsBySession(ctx, sessionID)
}

// AddFollowUp appends one follow-up question under a parent, ordered after
// every existing question.
func (i *Interviews) AddFollowUp(ctx context.Context, sessionID, parentID uuid.UUID, text string) (*Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.NewValidationError("follow-up text is required", "text")
	}

	questions, err := i.store.ListQuestionsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var parent *Question
	maxOrder := 0
	for _, q := range questions {
		if q.ID == parentID {
			parent = q
		}
		if q.Order > maxOrder {
			maxOrder = q.Order
		}
	}
	if parent == nil {
		return nil, core.NewNotFoundError("parent question not found in session")
	}

	sid := sessionID
	pid := parentID
	followUp := &Question{
		ID:        uuid.New(),
		ProjectID: parent.ProjectID,
		SessionID: &sid,
		ParentID:  &pid,
		Text:      text,
		Order:     maxOrder + 1,
		Section:   parent.Section,
		Type:      "follow_up",
		CreatedAt: i.now(),
	}
	if err := i.store.CreateQuestions(ctx, []*Question{followUp}); err != nil {
		return nil, err
	}
	return followUp, nil
}

// NextQuestion returns the first question without a completed response, plus
// overall progress. A nil question with IsComplete set means the interview
// is done.
func (i *Interviews) NextQuestion(ctx context.Context, sessionID uuid.UUID) (*Question, Progress, error) {
	questions, completed, err := i.questionCompletion(ctx, sessionID)
	if err != nil {
		return nil, Progress{}, err
	}

	var next *Question
	done := 0
	for _, q := range questions {
		if completed[q.ID] {
			done++
			continue
		}
		if next == nil {
			next = q
		}
	}
	return next, buildProgress(done, len(questions)), nil
}

// SaveResponse records one answer. Responses arrive incomplete while the
// participant is mid-turn and are flipped complete on turn end.
func (i *Interviews) SaveResponse(ctx context.Context, sessionID uuid.UUID, input ResponseInput) (*Response, error) {
	if input.QuestionID == uuid.Nil {
		return nil, core.NewValidationError("question id is required", "question_id")
	}
	if strings.TrimSpace(input.Transcription) == "" && strings.TrimSpace(input.ResponseText) == "" {
		return nil, core.NewValidationError("a transcription or response text is required", "transcription")
	}

	response := &Response{
		ID:              uuid.New(),
		SessionID:       sessionID,
		QuestionID:      input.QuestionID,
		ParticipantID:   input.ParticipantID,
		Transcription:   strings.TrimSpace(input.Transcription),
		ResponseText:    strings.TrimSpace(input.ResponseText),
		IsComplete:      input.IsComplete,
		SentimentScore:  input.SentimentScore,
		ConfidenceScore: input.ConfidenceScore,
		Metadata:        input.Metadata,
		CreatedAt:       i.now(),
	}
	if err := i.store.CreateResponse(ctx, response); err != nil {
		return nil, err
	}
	return response, nil
}

// CompleteQuestion marks every response recorded for the question complete,
// making them visible to analysis.
func (i *Interviews) CompleteQuestion(ctx context.Context, sessionID, questionID uuid.UUID) error {
	if err := i.store.MarkResponsesComplete(ctx, sessionID, questionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return core.NewNotFoundError("no responses recorded for question")
		}
		return err
	}
	return nil
}

// SessionProgress reports completion over the session's question list.
func (i *Interviews) SessionProgress(ctx context.Context, sessionID uuid.UUID) (Progress, error) {
	questions, completed, err := i.questionCompletion(ctx, sessionID)
	if err != nil {
		return Progress{}, err
	}
	done := 0
	for _, q := range questions {
		if completed[q.ID] {
			done++
		}
	}
	return buildProgress(done, len(questions)), nil
}

// CompletedTranscripts returns, in question order, the questions that have at
// least one completed response together with those responses' transcripts.
// Incomplete responses are never included; they are not analyzable.
func (i *Interviews) CompletedTranscripts(ctx context.Context, sessionID uuid.UUID) ([]QuestionTranscript, error) {
	questions, err := i.store.ListQuestionsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	responses, err := i.store.ListResponsesBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	byQuestion := make(map[uuid.UUID][]string)
	for _, r := range responses {
		if !r.IsComplete {
			continue
		}
		text := r.Transcription
		if text == "" {
			text = r.ResponseText
		}
		if text == "" {
			continue
		}
		byQuestion[r.QuestionID] = append(byQuestion[r.QuestionID], text)
	}

	out := make([]QuestionTranscript, 0, len(questions))
	for _, q := range questions {
		answers := byQuestion[q.ID]
		if len(answers) == 0 {
			continue
		}
		out = append(out, QuestionTranscript{
			Section:   q.Section,
			Question:  q.Text,
			Responses: answers,
		})
	}
	return out, nil
}

// QuestionTranscript pairs one question with its completed answers.
type QuestionTranscript struct {
	Section   string   `json:"section"`
	Question  string   `json:"question"`
	Responses []string `json:"responses"`
}

func (i *Interviews) questionCompletion(ctx context.Context, sessionID uuid.UUID) ([]*Question, map[uuid.UUID]bool, error) {
	questions, err := i.store.ListQuestionsBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	responses, err := i.store.ListResponsesBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	completed := make(map[uuid.UUID]bool, len(questions))
	for _, r := range responses {
		if r.IsComplete {
			completed[r.QuestionID] = true
		}
	}
	return questions, completed, nil
}

func buildProgress(done, total int) Progress {
	p := Progress{Completed: done, Total: total}
	if total > 0 {
		p.Percentage = float64(done) / float64(total) * 100
		p.IsComplete = done == total
	}
	return p
}
