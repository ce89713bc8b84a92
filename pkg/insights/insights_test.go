package insights

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/searcho-ai/searcho/pkg/core"
	"github.com/searcho-ai/searcho/pkg/study"
)

// fakeGenerator returns a canned reply or error and records the call.
type fakeGenerator struct {
	reply  string
	err    error
	calls  int
	prompt string
	doc    *Document
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, doc *Document) (string, error) {
	f.calls++
	f.prompt = prompt
	f.doc = doc
	return f.reply, f.err
}

func requireErrType(t *testing.T, err error, want core.ErrorType) {
	t.Helper()
	var coreErr *core.Error
	require.True(t, errors.As(err, &coreErr), "expected *core.Error, got %T: %v", err, err)
	require.Equal(t, want, coreErr.Type)
}

func TestGenerateGuide_ParsesSections(t *testing.T) {
	gen := &fakeGenerator{reply: `{"sections":[{"title":"Warm-up","questions":["Q1","Q2"]}]}`}
	svc := NewService(gen, nil)

	guide, err := svc.GenerateGuide(context.Background(), "Checkout study", "Why do users abandon checkout?")
	require.NoError(t, err)
	require.Len(t, guide.Sections, 1)
	require.Equal(t, []string{"Q1", "Q2"}, guide.Sections[0].Questions)
	require.Contains(t, gen.prompt, "Why do users abandon checkout?")
}

func TestGenerateGuide_MalformedReplyIsUpstreamError(t *testing.T) {
	gen := &fakeGenerator{reply: `here are your sections: warm-up...`}
	svc := NewService(gen, nil)

	_, err := svc.GenerateGuide(context.Background(), "t", "d")
	requireErrType(t, err, core.ErrUpstream)
}

func TestValidateProjectInput_FlagsThinInput(t *testing.T) {
	gen := &fakeGenerator{reply: `{"needsElaboration":true,"reason":"Too vague to research."}`}
	svc := NewService(gen, nil)

	v, err := svc.ValidateProjectInput(context.Background(), "app")
	require.NoError(t, err)
	require.True(t, v.NeedsElaboration)
	require.Equal(t, "Too vague to research.", v.Reason)

	// Empty input never reaches the model.
	v, err = svc.ValidateProjectInput(context.Background(), "   ")
	require.NoError(t, err)
	require.True(t, v.NeedsElaboration)
	require.Equal(t, 1, gen.calls)
}

func TestSuggestQuestions_CarriesExistingContext(t *testing.T) {
	gen := &fakeGenerator{reply: `{"questions":["New Q1","New Q2","New Q3"]}`}
	svc := NewService(gen, nil)

	qs, err := svc.SuggestQuestions(context.Background(), "desc", "Checkout", []string{"Old Q"})
	require.NoError(t, err)
	require.Len(t, qs, 3)
	require.Contains(t, gen.prompt, "Old Q")
}

func TestAnalyzeProject_FallsBackOnUnparseableReply(t *testing.T) {
	gen := &fakeGenerator{reply: `Sure! Here is the analysis you asked for.`}
	svc := NewService(gen, nil)

	analysis, err := svc.AnalyzeProject(context.Background(), "a real description")
	require.NoError(t, err)
	// The fallback is a fixed shape, not text scraped out of the bad reply.
	require.Equal(t, fallbackProjectAnalysis(), analysis)
	require.NotContains(t, analysis.Summary, "Sure!")
}

func TestAnalyzeProject_ParsesWellFormedReply(t *testing.T) {
	gen := &fakeGenerator{reply: `{"summary":"s","researchMethods":["interviews"],"targetAudience":"shoppers","keyQuestions":["k"],"timeline":"2 weeks","insights":["i"]}`}
	svc := NewService(gen, nil)

	analysis, err := svc.AnalyzeProject(context.Background(), "desc")
	require.NoError(t, err)
	require.Equal(t, "s", analysis.Summary)
	require.Equal(t, []string{"interviews"}, analysis.ResearchMethods)
}

func TestAnalyzeSession_RequiresCompletedResponses(t *testing.T) {
	gen := &fakeGenerator{}
	svc := NewService(gen, nil)

	_, err := svc.AnalyzeSession(context.Background(), nil)
	requireErrType(t, err, core.ErrValidation)
	require.Zero(t, gen.calls)
}

func TestAnalyzeSession_CountsResponses(t *testing.T) {
	gen := &fakeGenerator{reply: `{"summary":"done","keyInsights":[],"themes":[],"recommendations":[],"painPoints":[],"opportunities":[],"userBehaviors":[]}`}
	svc := NewService(gen, nil)

	analysis, err := svc.AnalyzeSession(context.Background(), []study.QuestionTranscript{
		{Section: "A", Question: "Q1", Responses: []string{"r1", "r2"}},
		{Section: "B", Question: "Q2", Responses: []string{"r3"}},
	})
	require.NoError(t, err)
	require.Equal(t, 3, analysis.ResponseCount)
	require.False(t, analysis.AnalyzedAt.IsZero())
	require.Contains(t, gen.prompt, "Q2")
	require.Contains(t, gen.prompt, "r3")
}

func TestIngestDocument_RejectsBeforeModelCall(t *testing.T) {
	gen := &fakeGenerator{}
	svc := NewService(gen, nil)
	ctx := context.Background()

	_, err := svc.IngestDocument(ctx, "notes.txt", "text/plain", []byte("x"), "")
	requireErrType(t, err, core.ErrValidation)

	big := make([]byte, MaxDocumentBytes+1)
	_, err = svc.IngestDocument(ctx, "big.pdf", "application/pdf", big, "")
	requireErrType(t, err, core.ErrValidation)

	_, err = svc.IngestDocument(ctx, "empty.pdf", "application/pdf", nil, "")
	requireErrType(t, err, core.ErrValidation)

	require.Zero(t, gen.calls, "rejections must happen before any model call")
}

func TestIngestDocument_AttachesInlineData(t *testing.T) {
	gen := &fakeGenerator{reply: `{"summary":"a study plan","researchAreas":["onboarding"],
		"suggestedQuestions":["How do new users find the feature?"],
		"targetAudience":["new signups"],"projectSuggestion":"Onboarding friction study"}`}
	svc := NewService(gen, nil)

	out, err := svc.IngestDocument(context.Background(), "plan.pdf", "application/pdf", []byte("%PDF-1.7"), "")
	require.NoError(t, err)
	require.Equal(t, "a study plan", out.Summary)
	require.Equal(t, []string{"onboarding"}, out.ResearchAreas)
	require.Equal(t, []string{"new signups"}, out.TargetAudience)
	require.Equal(t, "Onboarding friction study", out.ProjectSuggestion)
	require.NotNil(t, gen.doc)
	require.Equal(t, "application/pdf", gen.doc.MIMEType)
}

func TestIngestDocument_ThreadsAdditionalPrompt(t *testing.T) {
	gen := &fakeGenerator{reply: `{"summary":"s","researchAreas":[],"suggestedQuestions":[],"targetAudience":[],"projectSuggestion":""}`}
	svc := NewService(gen, nil)

	_, err := svc.IngestDocument(context.Background(), "plan.pdf", "application/pdf",
		[]byte("%PDF-1.7"), "Focus on pricing objections.")
	require.NoError(t, err)
	require.Contains(t, gen.prompt, "Focus on pricing objections.")
	require.Contains(t, gen.prompt, "plan.pdf")

	// No steering text, no dangling section.
	_, err = svc.IngestDocument(context.Background(), "plan.pdf", "application/pdf",
		[]byte("%PDF-1.7"), "   ")
	require.NoError(t, err)
	require.NotContains(t, gen.prompt, "Additional request")
}
