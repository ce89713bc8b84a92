package handlers

import (
	"context"
	"log/slog"
	"net/http"
)

// Transcriber turns recorded audio into text.
type Transcriber interface {
	TranscribeBase64(ctx context.Context, audioBase64, language string) (string, error)
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	SynthesizeBase64(ctx context.Context, text, voiceID string) (string, error)
}

// Speech serves the non-realtime speech endpoints used around the interview:
// transcribing recorded consents and voicing canned prompts.
type Speech struct {
	STT    Transcriber
	TTS    Synthesizer
	Logger *slog.Logger

	MaxBodyBytes int64
}

func (h *Speech) Transcribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Audio    string `json:"audio"`
		Language string `json:"language"`
	}
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	text, err := h.STT.TranscribeBase64(r.Context(), req.Audio, req.Language)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (h *Speech) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	audio, err := h.TTS.SynthesizeBase64(r.Context(), req.Text, req.Voice)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"audio": audio, "format": "audio/mpeg"})
}
