// Command searcho-gateway runs the research-interview gateway: the REST
// surface, the realtime voice relay, and their graceful shutdown.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/searcho-ai/searcho/internal/dotenv"
	"github.com/searcho-ai/searcho/pkg/gateway/auth"
	"github.com/searcho-ai/searcho/pkg/gateway/config"
	"github.com/searcho-ai/searcho/pkg/gateway/handlers"
	"github.com/searcho-ai/searcho/pkg/gateway/lifecycle"
	"github.com/searcho-ai/searcho/pkg/gateway/live"
	"github.com/searcho-ai/searcho/pkg/gateway/server"
	"github.com/searcho-ai/searcho/pkg/insights"
	"github.com/searcho-ai/searcho/pkg/mail"
	"github.com/searcho-ai/searcho/pkg/store/memory"
	"github.com/searcho-ai/searcho/pkg/store/postgres"
	"github.com/searcho-ai/searcho/pkg/study"
	"github.com/searcho-ai/searcho/pkg/voice/stt"
	"github.com/searcho-ai/searcho/pkg/voice/tts"
)

// gatewayDeps lets tests substitute process-level wiring.
type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	signalNotify func(c chan<- os.Signal, sig ...os.Signal)
	signalStop   func(c chan<- os.Signal)
}

func main() {
	_ = dotenv.LoadFile(".env")

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	deps := gatewayDeps{
		loadConfig:   config.LoadFromEnv,
		signalNotify: signal.Notify,
		signalStop:   signal.Stop,
	}
	if err := run(context.Background(), logger, deps); err != nil {
		logger.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	cfg, err := deps.loadConfig()
	if err != nil {
		return err
	}

	var (
		store  study.Store
		closer func()
	)
	if cfg.DatabaseURL != "" {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		store = pg
		closer = pg.Close
		logger.Info("store ready", "backend", "postgres")
	} else {
		store = memory.New()
		closer = func() {}
		logger.Warn("store ready", "backend", "memory", "note", "data is not persisted")
	}
	defer closer()

	var mailer study.Mailer
	if cfg.ResendAPIKey != "" {
		mailer = mail.NewResend(cfg.ResendAPIKey, cfg.MailFrom, cfg.PublicBaseURL, logger)
	} else {
		logger.Warn("email disabled: SEARCHO_RESEND_API_KEY not set")
	}

	projects := study.NewProjects(store, logger)
	sessionsSvc := study.NewSessions(store, logger)
	participants := study.NewParticipants(store, sessionsSvc, mailer, logger).
		WithInvitationTTL(cfg.InvitationTTL)
	sessionsSvc.SetCompleter(participants)
	interviews := study.NewInterviews(store, logger)

	var insightsSvc *insights.Service
	if cfg.GeminiAPIKey != "" {
		gen, err := insights.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return err
		}
		insightsSvc = insights.NewService(gen, logger)
	} else {
		logger.Warn("insights disabled: SEARCHO_GEMINI_API_KEY not set")
	}

	var provider auth.Provider
	if cfg.WorkOSAPIKey != "" {
		provider = auth.NewWorkOS(cfg.WorkOSAPIKey, cfg.WorkOSClientID, cfg.AuthRedirectURL)
	} else {
		logger.Warn("researcher login disabled: SEARCHO_WORKOS_API_KEY not set")
	}
	authSvc := auth.NewService(store, provider, cfg.ResearcherSessionTTL, logger)

	var (
		sttProvider handlers.Transcriber
		ttsProvider handlers.Synthesizer
	)
	upstreamClient := cfg.UpstreamHTTPClient()
	if cfg.OpenAIAPIKey != "" {
		sttProvider = stt.NewOpenAIWithClient(cfg.OpenAIAPIKey, upstreamClient)
	}
	if cfg.ElevenLabsAPIKey != "" {
		ttsProvider = tts.NewElevenLabsWithClient(cfg.ElevenLabsAPIKey, upstreamClient)
	}

	tracker := live.NewTracker(logger)
	life := lifecycle.New()

	srv := server.New(cfg, server.Deps{
		Store:        store,
		Projects:     projects,
		Participants: participants,
		Sessions:     sessionsSvc,
		Interviews:   interviews,
		Auth:         authSvc,
		Insights:     insightsSvc,
		STT:          sttProvider,
		TTS:          ttsProvider,
		Tracker:      tracker,
		Life:         life,
	}, logger)

	httpSrv := buildHTTPServer(cfg, srv.Handler())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("parent context done")
	}

	return shutdown(logger, cfg, httpSrv, life, tracker)
}

// shutdown drains: stop admitting work, let live interviews finish inside the
// grace period, then cut whatever is left.
func shutdown(logger *slog.Logger, cfg config.Config, httpSrv *http.Server, life *lifecycle.Lifecycle, tracker *live.Tracker) error {
	life.SetDraining()
	logger.Info("draining", "live_sessions", tracker.Count(), "grace", cfg.ShutdownGracePeriod)

	graceCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	if err := tracker.Wait(graceCtx); err != nil {
		logger.Warn("grace period elapsed, canceling live sessions", "remaining", tracker.Count())
		tracker.CancelAll()
	}
	if err := httpSrv.Shutdown(graceCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
		return httpSrv.Close()
	}
	logger.Info("gateway stopped")
	return nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		// No WriteTimeout: the live relay holds its socket open for the whole
		// interview.
		IdleTimeout: 2 * time.Minute,
	}
}
