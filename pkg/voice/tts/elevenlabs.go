// Package tts renders interviewer prompts to speech.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/searcho-ai/searcho/pkg/core"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io"
	// defaultVoiceID is the stock multilingual voice used when the caller
	// does not pick one.
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	defaultModelID = "eleven_multilingual_v2"
)

// ElevenLabsProvider synthesizes speech over ElevenLabs' HTTP endpoint.
type ElevenLabsProvider struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

func NewElevenLabs(apiKey string) *ElevenLabsProvider {
	return NewElevenLabsWithClient(apiKey, nil)
}

func NewElevenLabsWithClient(apiKey string, client *http.Client) *ElevenLabsProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &ElevenLabsProvider{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: client,
		baseURL:    elevenLabsBaseURL,
	}
}

func (p *ElevenLabsProvider) WithBaseURL(base string) *ElevenLabsProvider {
	base = strings.TrimSpace(base)
	if base != "" {
		p.baseURL = strings.TrimSuffix(base, "/")
	}
	return p
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

// SynthesizeBase64 renders text with the given voice (or the default) and
// returns the audio as base64 for direct playback in the client.
func (p *ElevenLabsProvider) SynthesizeBase64(ctx context.Context, text, voiceID string) (string, error) {
	audio, err := p.Synthesize(ctx, text, voiceID)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(audio), nil
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.NewValidationError("text is required", "text")
	}
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		voiceID = defaultVoiceID
	}

	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": defaultModelID,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := p.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, core.NewUpstreamError("text-to-speech")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("synthesis error %d: %s: %w",
			resp.StatusCode, string(body), core.NewUpstreamError("text-to-speech"))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewUpstreamError("text-to-speech")
	}
	if len(audio) == 0 {
		return nil, core.NewUpstreamError("text-to-speech")
	}
	return audio, nil
}
