package config

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Addr)
	require.Empty(t, cfg.DatabaseURL)
	require.Equal(t, 7*24*time.Hour, cfg.InvitationTTL)
	require.Equal(t, 12*time.Hour, cfg.ResearcherSessionTTL)
	require.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	require.Equal(t, int64(20<<20), cfg.MaxDocumentBytes)
	require.Empty(t, cfg.CORSAllowedOrigins)
	require.Contains(t, cfg.RealtimeUpstreamURL, "wss://")
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("SEARCHO_ADDR", ":9999")
	t.Setenv("SEARCHO_INVITATION_TTL", "48h")
	t.Setenv("SEARCHO_CORS_ORIGINS", "https://app.searcho.ai, http://localhost:5173")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, 48*time.Hour, cfg.InvitationTTL)
	require.Len(t, cfg.CORSAllowedOrigins, 2)
	require.Contains(t, cfg.CORSAllowedOrigins, "https://app.searcho.ai")
}

func TestLoadFromEnv_MalformedDurationFallsBack(t *testing.T) {
	t.Setenv("SEARCHO_INVITATION_TTL", "not-a-duration")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, 7*24*time.Hour, cfg.InvitationTTL)
}

func TestLoadFromEnv_RejectsBadUpstreamURL(t *testing.T) {
	t.Setenv("SEARCHO_REALTIME_UPSTREAM_URL", "https://not-a-websocket")
	_, err := LoadFromEnv()
	require.Error(t, err)
	require.Contains(t, err.Error(), "SEARCHO_REALTIME_UPSTREAM_URL")
}

func TestLoadFromEnv_WorkOSKeysMustPair(t *testing.T) {
	t.Setenv("SEARCHO_WORKOS_API_KEY", "sk_test")
	_, err := LoadFromEnv()
	require.Error(t, err)
	require.Contains(t, err.Error(), "SEARCHO_WORKOS_CLIENT_ID")

	t.Setenv("SEARCHO_WORKOS_CLIENT_ID", "client_123")
	_, err = LoadFromEnv()
	require.Error(t, err)
	require.Contains(t, err.Error(), "SEARCHO_AUTH_REDIRECT_URL")

	t.Setenv("SEARCHO_AUTH_REDIRECT_URL", "https://app.searcho.ai/callback")
	_, err = LoadFromEnv()
	require.NoError(t, err)
}

func TestUpstreamHTTPClient_AppliesTimeouts(t *testing.T) {
	t.Setenv("SEARCHO_CONNECT_TIMEOUT", "3s")
	t.Setenv("SEARCHO_RESPONSE_HEADER_TIMEOUT", "45s")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	client := cfg.UpstreamHTTPClient()
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	require.Equal(t, 45*time.Second, transport.ResponseHeaderTimeout)
	require.Equal(t, 3*time.Second, transport.TLSHandshakeTimeout)
	require.NotNil(t, transport.DialContext)
	// No overall deadline: uploads may legitimately outlast any fixed budget.
	require.Zero(t, client.Timeout)
}
