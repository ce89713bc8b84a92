package config

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// DatabaseURL is the postgres DSN. Empty selects the in-memory store,
	// which is only suitable for local development.
	DatabaseURL string

	// PublicBaseURL is the origin participant invitation links are built on.
	PublicBaseURL string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Realtime voice backend (websocket).
	RealtimeUpstreamURL string
	OpenAIAPIKey        string

	// LLM transforms.
	GeminiAPIKey string
	GeminiModel  string

	// Speech.
	ElevenLabsAPIKey string

	// Email.
	ResendAPIKey string
	MailFrom     string

	// Researcher login.
	WorkOSAPIKey         string
	WorkOSClientID       string
	AuthRedirectURL      string
	ResearcherSessionTTL time.Duration

	// Invitation token window.
	InvitationTTL time.Duration

	// Request plumbing.
	MaxBodyBytes     int64
	MaxDocumentBytes int64

	// Live relay.
	LiveWriteTimeout     time.Duration
	LiveHandshakeTimeout time.Duration

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults, applied by UpstreamHTTPClient.
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration
}

// UpstreamHTTPClient builds the shared client the speech upstreams use, with
// the connect and response-header deadlines set on the transport. No overall
// request timeout: audio uploads are large and the response-header deadline
// already bounds a stalled upstream.
func (cfg Config) UpstreamHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.UpstreamConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   cfg.UpstreamConnectTimeout,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("SEARCHO_ADDR", ":8080"),
		DatabaseURL:                   envOr("SEARCHO_DATABASE_URL", ""),
		PublicBaseURL:                 envOr("SEARCHO_PUBLIC_BASE_URL", "http://localhost:5173"),
		CORSAllowedOrigins:            make(map[string]struct{}),
		RealtimeUpstreamURL:           envOr("SEARCHO_REALTIME_UPSTREAM_URL", "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview-2024-12-17"),
		OpenAIAPIKey:                  envOr("SEARCHO_OPENAI_API_KEY", ""),
		GeminiAPIKey:                  envOr("SEARCHO_GEMINI_API_KEY", ""),
		GeminiModel:                   envOr("SEARCHO_GEMINI_MODEL", "gemini-2.0-flash"),
		ElevenLabsAPIKey:              envOr("SEARCHO_ELEVENLABS_API_KEY", ""),
		ResendAPIKey:                  envOr("SEARCHO_RESEND_API_KEY", ""),
		MailFrom:                      envOr("SEARCHO_MAIL_FROM", "Searcho <invitations@searcho.ai>"),
		WorkOSAPIKey:                  envOr("SEARCHO_WORKOS_API_KEY", ""),
		WorkOSClientID:                envOr("SEARCHO_WORKOS_CLIENT_ID", ""),
		AuthRedirectURL:               envOr("SEARCHO_AUTH_REDIRECT_URL", ""),
		ResearcherSessionTTL:          envDurationOr("SEARCHO_RESEARCHER_SESSION_TTL", 12*time.Hour),
		InvitationTTL:                 envDurationOr("SEARCHO_INVITATION_TTL", 7*24*time.Hour),
		MaxBodyBytes:                  envInt64Or("SEARCHO_MAX_BODY_BYTES", 1<<20), // 1 MiB
		MaxDocumentBytes:              envInt64Or("SEARCHO_MAX_DOCUMENT_BYTES", 20<<20),
		LiveWriteTimeout:              envDurationOr("SEARCHO_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveHandshakeTimeout:          envDurationOr("SEARCHO_LIVE_HANDSHAKE_TIMEOUT", 10*time.Second),
		ReadHeaderTimeout:             envDurationOr("SEARCHO_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                   envDurationOr("SEARCHO_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:           envDurationOr("SEARCHO_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamConnectTimeout:        envDurationOr("SEARCHO_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("SEARCHO_RESPONSE_HEADER_TIMEOUT", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("SEARCHO_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if strings.TrimSpace(cfg.PublicBaseURL) == "" {
		return Config{}, fmt.Errorf("SEARCHO_PUBLIC_BASE_URL must not be empty")
	}
	if _, err := url.Parse(cfg.PublicBaseURL); err != nil {
		return Config{}, fmt.Errorf("SEARCHO_PUBLIC_BASE_URL is not a valid URL: %v", err)
	}
	if u, err := url.Parse(cfg.RealtimeUpstreamURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return Config{}, fmt.Errorf("SEARCHO_REALTIME_UPSTREAM_URL must be a ws:// or wss:// URL")
	}
	if cfg.ResearcherSessionTTL <= 0 {
		return Config{}, fmt.Errorf("SEARCHO_RESEARCHER_SESSION_TTL must be > 0")
	}
	if cfg.InvitationTTL <= 0 {
		return Config{}, fmt.Errorf("SEARCHO_INVITATION_TTL must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("SEARCHO_MAX_BODY_BYTES must be > 0")
	}
	if cfg.MaxDocumentBytes <= 0 {
		return Config{}, fmt.Errorf("SEARCHO_MAX_DOCUMENT_BYTES must be > 0")
	}
	if cfg.LiveWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("SEARCHO_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("SEARCHO_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("SEARCHO_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("SEARCHO_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("SEARCHO_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("SEARCHO_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("SEARCHO_RESPONSE_HEADER_TIMEOUT must be > 0")
	}
	if (cfg.WorkOSAPIKey == "") != (cfg.WorkOSClientID == "") {
		return Config{}, fmt.Errorf("SEARCHO_WORKOS_API_KEY and SEARCHO_WORKOS_CLIENT_ID must be set together")
	}
	if cfg.WorkOSAPIKey != "" && strings.TrimSpace(cfg.AuthRedirectURL) == "" {
		return Config{}, fmt.Errorf("SEARCHO_AUTH_REDIRECT_URL must be set when WorkOS login is configured")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
