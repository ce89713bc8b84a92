// Package auth is the researcher login surface: WorkOS-backed sign-in and the
// server-validated session tokens that gate every project-scoped route. A
// cached token on the client is never trusted by itself; each request is
// checked against the stored session record.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/searcho-ai/searcho/pkg/core"
	"github.com/searcho-ai/searcho/pkg/study"
	"github.com/searcho-ai/searcho/pkg/tokens"
)

// Identity is what the login provider resolves an authorization code to.
type Identity struct {
	UserID string
	Email  string
}

// Provider abstracts the hosted login flow. pkg/gateway/auth/workos.go
// implements it on WorkOS AuthKit.
type Provider interface {
	AuthorizationURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (Identity, error)
}

// Service mints and validates researcher sessions.
type Service struct {
	store    study.Store
	provider Provider
	logger   *slog.Logger

	sessionTTL time.Duration
	now        func() time.Time
}

func NewService(store study.Store, provider Provider, sessionTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	return &Service{
		store:      store,
		provider:   provider,
		logger:     logger,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// LoginURL returns the hosted sign-in URL to redirect the researcher to.
func (s *Service) LoginURL(state string) (string, error) {
	if s.provider == nil {
		return "", core.NewAPIError("login is not configured")
	}
	u, err := s.provider.AuthorizationURL(state)
	if err != nil {
		return "", core.NewUpstreamError("login provider")
	}
	return u, nil
}

// Callback exchanges the authorization code and mints a researcher session.
func (s *Service) Callback(ctx context.Context, code string) (*study.ResearcherSession, error) {
	if s.provider == nil {
		return nil, core.NewAPIError("login is not configured")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, core.NewInvalidRequestErrorWithParam("authorization code is required", "code")
	}

	identity, err := s.provider.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("login code exchange failed", "error", err)
		return nil, core.NewAuthenticationError("sign-in could not be completed")
	}

	now := s.now()
	session := &study.ResearcherSession{
		Token:     tokens.Issue(tokens.KindResearcher),
		UserID:    identity.UserID,
		Email:     identity.Email,
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.store.CreateResearcherSession(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("researcher signed in", "user_id", identity.UserID)
	return session, nil
}

// Validate resolves a bearer token to its live researcher session.
func (s *Service) Validate(ctx context.Context, token string) (*study.ResearcherSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, core.NewAuthenticationError("a session token is required")
	}
	if kind, ok := tokens.KindOf(token); !ok || kind != tokens.KindResearcher {
		return nil, core.NewAuthenticationError("invalid session token")
	}

	session, err := s.store.GetResearcherSession(ctx, token)
	if err != nil {
		if errors.Is(err, study.ErrNotFound) {
			return nil, core.NewAuthenticationError("session not found")
		}
		return nil, err
	}
	if !tokens.Valid(tokens.Record{Token: session.Token, ExpiresAt: session.ExpiresAt}, s.now()) {
		return nil, core.NewAuthenticationError("session has expired")
	}
	return session, nil
}

// Logout deletes the session record. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return s.store.DeleteResearcherSession(ctx, token)
}

type ctxKeyResearcher struct{}

// ResearcherFrom extracts the authenticated researcher session, or nil.
func ResearcherFrom(ctx context.Context) *study.ResearcherSession {
	rs, _ := ctx.Value(ctxKeyResearcher{}).(*study.ResearcherSession)
	return rs
}

// Require wraps a handler with bearer-token validation. The authenticated
// session rides the request context.
func (s *Service) Require(next http.Handler, onError func(http.ResponseWriter, *http.Request, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.Validate(r.Context(), bearerToken(r))
		if err != nil {
			onError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyResearcher{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
