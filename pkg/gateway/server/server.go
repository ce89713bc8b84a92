// Package server assembles the HTTP surface: routes, middleware order, and
// the dependencies each handler needs.
package server

import (
	"log/slog"
	"net/http"

	"github.com/searcho-ai/searcho/pkg/gateway/auth"
	"github.com/searcho-ai/searcho/pkg/gateway/config"
	"github.com/searcho-ai/searcho/pkg/gateway/handlers"
	"github.com/searcho-ai/searcho/pkg/gateway/lifecycle"
	"github.com/searcho-ai/searcho/pkg/gateway/live"
	"github.com/searcho-ai/searcho/pkg/gateway/mw"
	"github.com/searcho-ai/searcho/pkg/insights"
	"github.com/searcho-ai/searcho/pkg/study"
)

// Deps carries everything the routes need. Optional integrations (insights,
// speech) may be nil; their routes then answer with an upstream error.
type Deps struct {
	Store        study.Store
	Projects     *study.Projects
	Participants *study.Participants
	Sessions     *study.Sessions
	Interviews   *study.Interviews
	Auth         *auth.Service
	Insights     *insights.Service
	STT          handlers.Transcriber
	TTS          handlers.Synthesizer
	Tracker      *live.Tracker
	Life         *lifecycle.Lifecycle
}

type Server struct {
	cfg    config.Config
	deps   Deps
	logger *slog.Logger
	mux    *http.ServeMux
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, deps: deps, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	d := s.deps

	s.mux.Handle("GET /healthz", handlers.Health{})
	s.mux.Handle("GET /readyz", handlers.Ready{Life: d.Life, Store: d.Store})

	authH := &handlers.Auth{Service: d.Auth, Logger: s.logger}
	s.mux.HandleFunc("GET /v1/auth/login", authH.Login)
	s.mux.HandleFunc("POST /v1/auth/callback", authH.Callback)
	s.mux.HandleFunc("POST /v1/auth/logout", authH.Logout)

	projects := &handlers.Projects{
		Service:          d.Projects,
		Insights:         d.Insights,
		Logger:           s.logger,
		MaxBodyBytes:     s.cfg.MaxBodyBytes,
		MaxDocumentBytes: s.cfg.MaxDocumentBytes,
	}
	participants := &handlers.Participants{
		Service:      d.Participants,
		Projects:     d.Projects,
		Logger:       s.logger,
		LinkBase:     s.cfg.PublicBaseURL,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	}

	// Researcher surface: every project-scoped route revalidates the session
	// token server-side.
	s.researcher("POST /v1/projects", projects.Create)
	s.researcher("GET /v1/projects", projects.List)
	s.researcher("GET /v1/projects/{id}", projects.Get)
	s.researcher("PATCH /v1/projects/{id}", projects.Update)
	s.researcher("DELETE /v1/projects/{id}", projects.Delete)
	s.researcher("POST /v1/projects/{id}/archive", projects.Archive)
	s.researcher("POST /v1/projects/{id}/unarchive", projects.Unarchive)
	s.researcher("POST /v1/projects/{id}/analysis", projects.Analyze)
	s.researcher("POST /v1/projects/{id}/guide", projects.GenerateGuide)
	s.researcher("POST /v1/projects/{id}/guide/suggestions", projects.SuggestQuestions)
	s.researcher("POST /v1/projects/{id}/documents", projects.UploadDocument)
	s.researcher("POST /v1/projects/{id}/participants", participants.Invite)
	s.researcher("GET /v1/projects/{id}/participants", participants.List)

	// Participant surface: gated by invitation and session tokens.
	s.mux.HandleFunc("GET /v1/invitations/{token}", participants.Resolve)
	s.mux.HandleFunc("POST /v1/invitations/{token}/accept", participants.Accept)
	s.mux.HandleFunc("POST /v1/invitations/{token}/decline", participants.Decline)

	sessions := &handlers.Sessions{Service: d.Sessions, Logger: s.logger, MaxBodyBytes: s.cfg.MaxBodyBytes}
	s.mux.HandleFunc("GET /v1/sessions/{token}", sessions.Get)
	s.mux.HandleFunc("POST /v1/sessions/{token}/begin", sessions.Begin)
	s.mux.HandleFunc("POST /v1/sessions/{token}/end", sessions.End)
	s.mux.HandleFunc("POST /v1/sessions/{token}/metadata", sessions.AppendMetadata)

	interview := &handlers.Interview{
		Sessions:     d.Sessions,
		Projects:     d.Projects,
		Interviews:   d.Interviews,
		Insights:     d.Insights,
		Logger:       s.logger,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	}
	s.mux.HandleFunc("POST /v1/sessions/{token}/questions", interview.InitQuestions)
	s.mux.HandleFunc("GET /v1/sessions/{token}/questions/next", interview.Next)
	s.mux.HandleFunc("GET /v1/sessions/{token}/progress", interview.Progress)
	s.mux.HandleFunc("POST /v1/sessions/{token}/responses", interview.SaveResponse)
	s.mux.HandleFunc("POST /v1/sessions/{token}/questions/{question_id}/complete", interview.CompleteQuestion)
	s.mux.HandleFunc("POST /v1/sessions/{token}/questions/{question_id}/followups", interview.AddFollowUp)
	s.mux.HandleFunc("POST /v1/sessions/{token}/analysis", interview.Analyze)

	if d.STT != nil && d.TTS != nil {
		speech := &handlers.Speech{
			STT:    d.STT,
			TTS:    d.TTS,
			Logger: s.logger,
			// Base64 audio payloads run well past the JSON body default.
			MaxBodyBytes: s.cfg.MaxDocumentBytes,
		}
		s.mux.HandleFunc("POST /v1/speech/transcriptions", speech.Transcribe)
		s.mux.HandleFunc("POST /v1/speech/audio", speech.Synthesize)
	}

	s.mux.Handle("GET /v1/live", &handlers.Live{
		Sessions:         d.Sessions,
		Projects:         d.Projects,
		Interviews:       d.Interviews,
		Tracker:          d.Tracker,
		Life:             d.Life,
		Logger:           s.logger,
		UpstreamURL:      s.cfg.RealtimeUpstreamURL,
		UpstreamAPIKey:   s.cfg.OpenAIAPIKey,
		WriteTimeout:     s.cfg.LiveWriteTimeout,
		HandshakeTimeout: s.cfg.LiveHandshakeTimeout,
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
	})
}

func (s *Server) researcher(pattern string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, s.deps.Auth.Require(fn, func(w http.ResponseWriter, r *http.Request, err error) {
		handlers.WriteError(w, r, s.logger, err)
	}))
}

// Handler applies the middleware chain. Applied outside-in: RequestID runs
// first so every later layer sees the ID.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg.CORSAllowedOrigins, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
