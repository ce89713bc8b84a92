package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/searcho-ai/searcho/pkg/core"
	"github.com/searcho-ai/searcho/pkg/gateway/lifecycle"
	"github.com/searcho-ai/searcho/pkg/gateway/live"
	"github.com/searcho-ai/searcho/pkg/study"
	"github.com/searcho-ai/searcho/pkg/voice/relay"
)

// Live upgrades a participant connection and relays it against the realtime
// voice backend. The backend credential stays server-side; the client only
// ever presents its session token.
type Live struct {
	Sessions   *study.Sessions
	Projects   *study.Projects
	Interviews *study.Interviews
	Tracker    *live.Tracker
	Life       *lifecycle.Lifecycle
	Logger     *slog.Logger

	UpstreamURL      string
	UpstreamAPIKey   string
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	AllowedOrigins   map[string]struct{}
}

func (h *Live) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Life != nil && h.Life.Draining() {
		writeError(w, r, h.Logger, core.NewAPIError("gateway is shutting down"))
		return
	}

	token := r.URL.Query().Get("session_token")
	session, err := h.Sessions.Resolve(r.Context(), token)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if session.Status.Terminal() {
		writeError(w, r, h.Logger, core.NewInvalidStateError("session has already ended"))
		return
	}
	// A scheduled session is started here; an active one is a reconnect after
	// a dropped socket and proceeds as-is.
	if session.Status == study.SessionScheduled {
		if session, err = h.Sessions.Begin(r.Context(), token); err != nil {
			writeError(w, r, h.Logger, err)
			return
		}
	}

	sessionConfig, err := h.buildSessionConfig(r.Context(), session)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.HandshakeTimeout,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(h.AllowedOrigins) == 0 {
				return true
			}
			_, ok := h.AllowedOrigins[origin]
			return ok
		},
	}
	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.Logger.Warn("websocket upgrade failed", "session_id", session.ID, "error", err)
		return
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+h.UpstreamAPIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	rl := relay.New(clientConn, relay.Config{
		UpstreamURL:    h.UpstreamURL,
		UpstreamHeader: header,
		SessionConfig:  sessionConfig,
		WriteTimeout:   h.WriteTimeout,
		Logger:         h.Logger,
	})

	ls := &liveSession{id: session.ID.String(), conn: clientConn}
	unregister := h.Tracker.Register(ls)
	defer unregister()

	h.Logger.Info("live session connected", "session_id", session.ID)
	if err := rl.Run(r.Context()); err != nil {
		h.Logger.Warn("live session ended with error", "session_id", session.ID, "error", err)
	} else {
		h.Logger.Info("live session disconnected", "session_id", session.ID)
	}
}

// buildSessionConfig assembles the session.update envelope injected upstream
// once the backend announces readiness: the moderator instructions carry the
// study context and question list.
func (h *Live) buildSessionConfig(ctx context.Context, session *study.Session) ([]byte, error) {
	project, err := h.Projects.GuideSource(ctx, session.ProjectID)
	if err != nil {
		return nil, err
	}
	questions, err := h.Interviews.Questions(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	sess := map[string]any{
		"instructions":   moderatorInstructions(project, questions),
		"voice":          "alloy",
		"modalities":     []string{"audio", "text"},
		"turn_detection": map[string]any{"type": "server_vad"},
	}
	sess["input_audio_transcription"] = map[string]any{"model": "whisper-1"}
	return json.Marshal(map[string]any{"type": "session.update", "session": sess})
}

func moderatorInstructions(project *study.Project, questions []*study.Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly, neutral user research moderator running an interview for the study %q.\n", project.Title)
	if project.Description != "" {
		fmt.Fprintf(&b, "Study context: %s\n", project.Description)
	}
	b.WriteString("Ask one question at a time, listen fully, and probe with short follow-ups before moving on. Never suggest answers.\n")
	if len(questions) > 0 {
		b.WriteString("\nDiscussion guide:\n")
		section := ""
		for _, q := range questions {
			if q.Section != "" && q.Section != section {
				section = q.Section
				fmt.Fprintf(&b, "\n%s:\n", section)
			}
			fmt.Fprintf(&b, "%d. %s\n", q.Order, q.Text)
		}
	}
	return b.String()
}

// liveSession adapts one relayed connection to the tracker.
type liveSession struct {
	id   string
	conn *websocket.Conn
}

func (s *liveSession) ID() string { return s.id }

// Cancel closes the client socket; the relay observes the read error and
// tears the upstream down.
func (s *liveSession) Cancel() { _ = s.conn.Close() }
