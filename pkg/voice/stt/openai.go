// Package stt converts captured participant audio into text.
package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/searcho-ai/searcho/pkg/core"
)

const openAIBaseURL = "https://api.openai.com"

// OpenAIProvider transcribes audio through OpenAI's transcription endpoint.
type OpenAIProvider struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
}

func NewOpenAI(apiKey string) *OpenAIProvider {
	return NewOpenAIWithClient(apiKey, nil)
}

func NewOpenAIWithClient(apiKey string, client *http.Client) *OpenAIProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAIProvider{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: client,
		baseURL:    openAIBaseURL,
		model:      "whisper-1",
	}
}

func (p *OpenAIProvider) WithBaseURL(base string) *OpenAIProvider {
	base = strings.TrimSpace(base)
	if base != "" {
		p.baseURL = strings.TrimSuffix(base, "/")
	}
	return p
}

func (p *OpenAIProvider) Name() string { return "openai" }

// TranscribeBase64 decodes the audio payload the browser captured and returns
// the transcript text. language is an optional BCP-47 hint.
func (p *OpenAIProvider) TranscribeBase64(ctx context.Context, audioBase64, language string) (string, error) {
	if strings.TrimSpace(audioBase64) == "" {
		return "", core.NewValidationError("audio payload is required", "audio")
	}
	audio, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return "", core.NewValidationError("audio payload is not valid base64", "audio")
	}
	return p.Transcribe(ctx, bytes.NewReader(audio), language)
}

// Transcribe sends the audio as a multipart upload.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audio io.Reader, language string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "audio.webm")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	if err := mw.WriteField("model", p.model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if language = strings.TrimSpace(language); language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", core.NewUpstreamError("speech-to-text")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("transcription error %d: %s: %w",
			resp.StatusCode, string(body), core.NewUpstreamError("speech-to-text"))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return out.Text, nil
}
