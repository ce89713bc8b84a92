// Package insights holds the LLM request/response transforms: discussion
// guide generation, project and post-session analysis, and research document
// ingestion. Every transform parses the model output strictly; where a
// transform has a fallback it is a fixed default, never a scrape of malformed
// output.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/searcho-ai/searcho/pkg/core"
	"github.com/searcho-ai/searcho/pkg/study"
)

// MaxDocumentBytes is the research document ceiling. Oversized uploads are
// rejected before any model call.
const MaxDocumentBytes = 20 << 20

var allowedDocumentTypes = map[string]string{
	"application/pdf": "pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
}

type Service struct {
	gen    Generator
	logger *slog.Logger
	now    func() time.Time
}

func NewService(gen Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gen: gen, logger: logger, now: time.Now}
}

// Validation is the pre-generation sanity check on researcher input.
type Validation struct {
	NeedsElaboration bool   `json:"needsElaboration"`
	Reason           string `json:"reason,omitempty"`
}

// ValidateProjectInput asks the model whether the description is concrete
// enough to generate research questions from. Non-research input (lorem
// ipsum, a single word) comes back with NeedsElaboration set.
func (s *Service) ValidateProjectInput(ctx context.Context, description string) (Validation, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Validation{NeedsElaboration: true, Reason: "The project description is empty."}, nil
	}

	prompt := fmt.Sprintf(`You review inputs for a user research tool.
Decide whether the following project description is a genuine research topic
with enough detail to generate interview questions from. Reply with JSON:
{"needsElaboration": bool, "reason": string}.

Description:
%s`, description)

	raw, err := s.gen.Generate(ctx, prompt, nil)
	if err != nil {
		return Validation{}, err
	}
	var v Validation
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Validation{}, core.NewUpstreamError("language model")
	}
	return v, nil
}

// GenerateGuide produces a sectioned discussion guide for the project.
func (s *Service) GenerateGuide(ctx context.Context, title, description string) (study.Guide, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return study.Guide{}, core.NewValidationError("a project description is required", "description")
	}

	prompt := fmt.Sprintf(`You are an experienced UX researcher. Create a
discussion guide for a moderated interview study.

Project: %s
%s

Reply with JSON: {"sections":[{"title":string,"questions":[string]}]}.
Three to five sections, two to four open-ended questions each. Questions must
be neutral and non-leading.`, title, description)

	raw, err := s.gen.Generate(ctx, prompt, nil)
	if err != nil {
		return study.Guide{}, err
	}
	var guide study.Guide
	if err := json.Unmarshal([]byte(raw), &guide); err != nil || len(guide.Sections) == 0 {
		return study.Guide{}, core.NewUpstreamError("language model")
	}
	return guide, nil
}

// SuggestQuestions generates additional questions for one guide section,
// avoiding overlap with the questions already present.
func (s *Service) SuggestQuestions(ctx context.Context, description, section string, existing []string) ([]string, error) {
	if strings.TrimSpace(section) == "" {
		return nil, core.NewValidationError("a section title is required", "section")
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Suggest three open-ended interview questions for the
section %q of a study about:
%s
`, section, strings.TrimSpace(description))
	if len(existing) > 0 {
		b.WriteString("\nDo not repeat or rephrase these existing questions:\n")
		for _, q := range existing {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	b.WriteString(`
Reply with JSON: {"questions":[string]}.`)

	raw, err := s.gen.Generate(ctx, b.String(), nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || len(out.Questions) == 0 {
		return nil, core.NewUpstreamError("language model")
	}
	return out.Questions, nil
}

// ProjectAnalysis is the structured read on a project description.
type ProjectAnalysis struct {
	Summary         string   `json:"summary"`
	ResearchMethods []string `json:"researchMethods"`
	TargetAudience  string   `json:"targetAudience"`
	KeyQuestions    []string `json:"keyQuestions"`
	Timeline        string   `json:"timeline"`
	Insights        []string `json:"insights"`
}

// fallbackProjectAnalysis is returned verbatim when the model reply does not
// parse. A fixed default is honest about the failure; salvaging fragments of
// malformed output is not.
func fallbackProjectAnalysis() ProjectAnalysis {
	return ProjectAnalysis{
		Summary:         "Analysis could not be completed for this description.",
		ResearchMethods: []string{"User interviews"},
		TargetAudience:  "To be defined",
		KeyQuestions:    []string{"What problem does this project solve?"},
		Timeline:        "To be defined",
		Insights:        []string{},
	}
}

// AnalyzeProject turns a project description into a structured research plan.
func (s *Service) AnalyzeProject(ctx context.Context, description string) (ProjectAnalysis, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return ProjectAnalysis{}, core.NewValidationError("a project description is required", "description")
	}

	prompt := fmt.Sprintf(`Analyze this research project description and reply
with JSON: {"summary":string,"researchMethods":[string],"targetAudience":string,
"keyQuestions":[string],"timeline":string,"insights":[string]}.

Description:
%s`, description)

	raw, err := s.gen.Generate(ctx, prompt, nil)
	if err != nil {
		return ProjectAnalysis{}, err
	}
	var analysis ProjectAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil || analysis.Summary == "" {
		s.logger.Warn("project analysis reply did not parse, using fallback")
		return fallbackProjectAnalysis(), nil
	}
	return analysis, nil
}

// SessionAnalysis is the post-interview synthesis.
type SessionAnalysis struct {
	Summary         string   `json:"summary"`
	KeyInsights     []string `json:"keyInsights"`
	Themes          []string `json:"themes"`
	Recommendations []string `json:"recommendations"`
	PainPoints      []string `json:"painPoints"`
	Opportunities   []string `json:"opportunities"`
	UserBehaviors   []string `json:"userBehaviors"`

	AnalyzedAt    time.Time `json:"analyzedAt"`
	ResponseCount int       `json:"responseCount"`
}

// AnalyzeSession synthesizes the completed transcripts of one session. The
// caller feeds it study.Interviews.CompletedTranscripts, so incomplete
// responses never reach the model.
func (s *Service) AnalyzeSession(ctx context.Context, transcripts []study.QuestionTranscript) (SessionAnalysis, error) {
	if len(transcripts) == 0 {
		return SessionAnalysis{}, core.NewValidationError("the session has no completed responses to analyze", "session_id")
	}

	var b strings.Builder
	b.WriteString(`You are a UX research analyst. Synthesize this interview
into JSON: {"summary":string,"keyInsights":[string],"themes":[string],
"recommendations":[string],"painPoints":[string],"opportunities":[string],
"userBehaviors":[string]}.

Interview transcript:
`)
	responses := 0
	for _, t := range transcripts {
		fmt.Fprintf(&b, "\n[%s] Q: %s\n", t.Section, t.Question)
		for _, r := range t.Responses {
			fmt.Fprintf(&b, "A: %s\n", r)
			responses++
		}
	}

	raw, err := s.gen.Generate(ctx, b.String(), nil)
	if err != nil {
		return SessionAnalysis{}, err
	}
	var analysis SessionAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil || analysis.Summary == "" {
		return SessionAnalysis{}, core.NewUpstreamError("language model")
	}
	analysis.AnalyzedAt = s.now()
	analysis.ResponseCount = responses
	return analysis, nil
}

// DocumentInsights is what ingestion extracts from an uploaded research
// document: a summary plus the research framing a project can be seeded from.
type DocumentInsights struct {
	Summary            string   `json:"summary"`
	ResearchAreas      []string `json:"researchAreas"`
	SuggestedQuestions []string `json:"suggestedQuestions"`
	TargetAudience     []string `json:"targetAudience"`
	ProjectSuggestion  string   `json:"projectSuggestion"`
}

// IngestDocument extracts research context from an uploaded PDF or DOCX. An
// additional prompt, when present, steers the analysis. Unsupported types and
// oversized files are rejected before any model call.
func (s *Service) IngestDocument(ctx context.Context, filename, mimeType string, data []byte, additionalPrompt string) (DocumentInsights, error) {
	if _, ok := allowedDocumentTypes[mimeType]; !ok {
		return DocumentInsights{}, core.NewValidationError("only PDF and DOCX documents are supported", "file")
	}
	if len(data) == 0 {
		return DocumentInsights{}, core.NewValidationError("the uploaded document is empty", "file")
	}
	if len(data) > MaxDocumentBytes {
		return DocumentInsights{}, core.NewValidationError("document exceeds the 20 MiB limit", "file")
	}

	var b strings.Builder
	b.WriteString(`You are a document analyst for a user research tool. Analyze
the attached document and extract what a research project could be built on.
Reply with JSON: {"summary":string,"researchAreas":[string],
"suggestedQuestions":[string],"targetAudience":[string],
"projectSuggestion":string}.
`)
	if p := strings.TrimSpace(additionalPrompt); p != "" {
		fmt.Fprintf(&b, "\nAdditional request from the researcher: %s\n", p)
	}
	fmt.Fprintf(&b, "\nFile name: %s\n", filename)

	raw, err := s.gen.Generate(ctx, b.String(), &Document{MIMEType: mimeType, Data: data})
	if err != nil {
		return DocumentInsights{}, err
	}
	var out DocumentInsights
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out.Summary == "" {
		return DocumentInsights{}, core.NewUpstreamError("language model")
	}
	return out, nil
}
