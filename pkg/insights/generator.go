package insights

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"

	"github.com/searcho-ai/searcho/pkg/core"
)

// Document is an optional binary attachment for a generation call.
type Document struct {
	MIMEType string
	Data     []byte
}

// Generator produces one JSON text completion for a prompt. The production
// implementation is Gemini; tests substitute a fake.
type Generator interface {
	Generate(ctx context.Context, prompt string, doc *Document) (string, error)
}

// Gemini generates via google.golang.org/genai with JSON response mode and
// bounded retries on transient failures.
type Gemini struct {
	client  *genai.Client
	model   string
	retries uint64
	backoff time.Duration
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{client: client, model: model, retries: 2, backoff: 500 * time.Millisecond}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string, doc *Document) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if doc != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: doc.MIMEType, Data: doc.Data},
		})
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	var text string
	backoff := retry.WithMaxRetries(g.retries, retry.NewExponential(g.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
		if err != nil {
			return retry.RetryableError(err)
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return "", core.NewUpstreamError("language model")
	}
	return text, nil
}
