package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/searcho-ai/searcho/pkg/gateway/auth"
	"github.com/searcho-ai/searcho/pkg/gateway/config"
	"github.com/searcho-ai/searcho/pkg/gateway/lifecycle"
	"github.com/searcho-ai/searcho/pkg/gateway/live"
	"github.com/searcho-ai/searcho/pkg/gateway/server"
	"github.com/searcho-ai/searcho/pkg/insights"
	"github.com/searcho-ai/searcho/pkg/store/memory"
	"github.com/searcho-ai/searcho/pkg/study"
)

type fakeProvider struct{}

func (fakeProvider) AuthorizationURL(state string) (string, error) {
	return "https://login.example/authorize?state=" + state, nil
}

func (fakeProvider) Exchange(context.Context, string) (auth.Identity, error) {
	return auth.Identity{UserID: "user_researcher", Email: "r@searcho.ai"}, nil
}

// scriptedGenerator replies with its queued responses in order.
type scriptedGenerator struct {
	replies []string
	calls   int
}

func (g *scriptedGenerator) Generate(_ context.Context, _ string, _ *insights.Document) (string, error) {
	if g.calls >= len(g.replies) {
		g.calls++
		return "", errors.New("generator: no scripted reply left")
	}
	reply := g.replies[g.calls]
	g.calls++
	return reply, nil
}

type fakeSTT struct{}

func (fakeSTT) TranscribeBase64(_ context.Context, audio, _ string) (string, error) {
	if audio == "" {
		return "", errors.New("empty audio")
	}
	return "I agree to participate.", nil
}

type fakeTTS struct{}

func (fakeTTS) SynthesizeBase64(_ context.Context, text, _ string) (string, error) {
	return "QVVESU8=", nil // "AUDIO"
}

type env struct {
	ts    *httptest.Server
	store *memory.Store
	gen   *scriptedGenerator
	token string // researcher session token
}

func newEnv(t *testing.T) *env {
	return newEnvWith(t, nil)
}

func newEnvWith(t *testing.T, mutate func(*config.Config)) *env {
	t.Helper()
	store := memory.New()
	gen := &scriptedGenerator{}

	projects := study.NewProjects(store, nil)
	sessions := study.NewSessions(store, nil)
	participants := study.NewParticipants(store, sessions, nil, nil)
	sessions.SetCompleter(participants)
	interviews := study.NewInterviews(store, nil)
	authSvc := auth.NewService(store, fakeProvider{}, 12*time.Hour, nil)

	cfg := config.Config{
		PublicBaseURL:        "https://app.searcho.test",
		MaxBodyBytes:         1 << 20,
		MaxDocumentBytes:     1 << 20,
		RealtimeUpstreamURL:  "ws://127.0.0.1:1/unreachable",
		LiveWriteTimeout:     time.Second,
		LiveHandshakeTimeout: time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := server.New(cfg, server.Deps{
		Store:        store,
		Projects:     projects,
		Participants: participants,
		Sessions:     sessions,
		Interviews:   interviews,
		Auth:         authSvc,
		Insights:     insights.NewService(gen, nil),
		STT:          fakeSTT{},
		TTS:          fakeTTS{},
		Tracker:      live.NewTracker(nil),
		Life:         lifecycle.New(),
	}, nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	e := &env{ts: ts, store: store, gen: gen}
	status, body := e.do(t, http.MethodPost, "/v1/auth/callback", "", map[string]any{"code": "code_abc"})
	require.Equal(t, http.StatusOK, status)
	e.token = body["token"].(string)
	return e
}

// do issues one JSON request and decodes the JSON reply.
func (e *env) do(t *testing.T, method, path, token string, payload any) (int, map[string]any) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

func (e *env) createProject(t *testing.T, title string) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/v1/projects", e.token, map[string]any{
		"title":       title,
		"description": "How do shoppers experience our checkout flow?",
	})
	require.Equal(t, http.StatusCreated, status)
	return body["id"].(string)
}

func (e *env) invite(t *testing.T, projectID, email string) map[string]any {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/v1/projects/"+projectID+"/participants", e.token,
		map[string]any{"email": email, "name": "Jordan"})
	require.Equal(t, http.StatusCreated, status)
	return body
}

// invitationToken reads the token off the researcher participant lists, the
// same place the dashboard builds its shareable links from.
func (e *env) invitationToken(t *testing.T, email string) string {
	t.Helper()
	statusProjects, bodyProjects := e.do(t, http.MethodGet, "/v1/projects?include_archived=true", e.token, nil)
	require.Equal(t, http.StatusOK, statusProjects)
	for _, raw := range bodyProjects["projects"].([]any) {
		id := raw.(map[string]any)["id"].(string)
		status, body := e.do(t, http.MethodGet, "/v1/projects/"+id+"/participants", e.token, nil)
		require.Equal(t, http.StatusOK, status)
		for _, rp := range body["participants"].([]any) {
			p := rp.(map[string]any)
			if p["email"] == email {
				return p["invitation_token"].(string)
			}
		}
	}
	t.Fatalf("no invitation for %s", email)
	return ""
}

func (e *env) joinSession(t *testing.T, projectID, email string) string {
	t.Helper()
	e.invite(t, projectID, email)
	invToken := e.invitationToken(t, email)
	status, body := e.do(t, http.MethodPost, "/v1/invitations/"+invToken+"/accept", "",
		map[string]any{"consent": true})
	require.Equal(t, http.StatusCreated, status)
	return body["session_token"].(string)
}

func TestAuth_ProjectsRequireSession(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodGet, "/v1/projects", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "authentication_error", errBody["type"])
	require.NotEmpty(t, errBody["request_id"])

	status, _ = e.do(t, http.MethodGet, "/v1/projects", e.token, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestAuth_LoginAndLogout(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodGet, "/v1/auth/login?state=xyz", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body["authorization_url"], "state=xyz")

	status, _ = e.do(t, http.MethodPost, "/v1/auth/logout", e.token, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = e.do(t, http.MethodGet, "/v1/projects", e.token, nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestProjects_CRUDAndArchive(t *testing.T) {
	e := newEnv(t)
	id := e.createProject(t, "Checkout study")

	status, body := e.do(t, http.MethodGet, "/v1/projects/"+id, e.token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Checkout study", body["title"])

	status, body = e.do(t, http.MethodPatch, "/v1/projects/"+id, e.token,
		map[string]any{"title": "Checkout study v2"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Checkout study v2", body["title"])

	status, _ = e.do(t, http.MethodPost, "/v1/projects/"+id+"/archive", e.token, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = e.do(t, http.MethodGet, "/v1/projects", e.token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, body["projects"])

	status, body = e.do(t, http.MethodGet, "/v1/projects?include_archived=true", e.token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["projects"], 1)

	status, _ = e.do(t, http.MethodPost, "/v1/projects/"+id+"/unarchive", e.token, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = e.do(t, http.MethodDelete, "/v1/projects/"+id, e.token, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = e.do(t, http.MethodGet, "/v1/projects/"+id, e.token, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestInvitations_PublicFlow(t *testing.T) {
	e := newEnv(t)
	id := e.createProject(t, "Checkout study")
	e.invite(t, id, "jordan@example.com")
	invToken := e.invitationToken(t, "jordan@example.com")

	// Public resolve shows only the landing-page slice.
	status, body := e.do(t, http.MethodGet, "/v1/invitations/"+invToken, "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Checkout study", body["project_title"])
	require.Equal(t, "invited", body["status"])
	require.NotContains(t, body, "email")

	// Consent is mandatory.
	status, body = e.do(t, http.MethodPost, "/v1/invitations/"+invToken+"/accept", "",
		map[string]any{"consent": false})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "consent_required", body["error"].(map[string]any)["type"])

	status, body = e.do(t, http.MethodPost, "/v1/invitations/"+invToken+"/accept", "",
		map[string]any{"consent": true})
	require.Equal(t, http.StatusCreated, status)
	require.Regexp(t, `^sess_`, body["session_token"])

	// The spent link cannot be replayed or declined.
	status, body = e.do(t, http.MethodPost, "/v1/invitations/"+invToken+"/accept", "",
		map[string]any{"consent": true})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "invalid_or_expired_token", body["error"].(map[string]any)["type"])

	status, _ = e.do(t, http.MethodPost, "/v1/invitations/"+invToken+"/decline", "", nil)
	require.Equal(t, http.StatusConflict, status)
}

func TestInvitations_LinkExposedToResearcher(t *testing.T) {
	e := newEnv(t)
	id := e.createProject(t, "Checkout study")

	// The invite response carries the shareable link, so a failed email does
	// not strand the invitation.
	created := e.invite(t, id, "jordan@example.com")
	token := created["invitation_token"].(string)
	require.Regexp(t, `^inv_`, token)
	require.Equal(t, "https://app.searcho.test/participate/"+token, created["invitation_link"])
	require.NotEmpty(t, created["token_expires_at"])

	// The participant list repeats it for the dashboard.
	status, body := e.do(t, http.MethodGet, "/v1/projects/"+id+"/participants", e.token, nil)
	require.Equal(t, http.StatusOK, status)
	listed := body["participants"].([]any)[0].(map[string]any)
	require.Equal(t, token, listed["invitation_token"])
	require.Equal(t, created["invitation_link"], listed["invitation_link"])

	// The public resolve never echoes the credential back.
	status, body = e.do(t, http.MethodGet, "/v1/invitations/"+token, "", nil)
	require.Equal(t, http.StatusOK, status)
	require.NotContains(t, body, "invitation_token")
	require.NotContains(t, body, "invitation_link")
}

func TestInterview_EndToEnd(t *testing.T) {
	e := newEnv(t)
	id := e.createProject(t, "Checkout study")
	sessToken := e.joinSession(t, id, "casey@example.com")

	guide := map[string]any{
		"sections": []map[string]any{
			{"title": "Warm-up", "questions": []string{"Tell me about your last online purchase."}},
			{"title": "Checkout", "questions": []string{"What almost made you abandon the cart?"}},
		},
	}
	status, body := e.do(t, http.MethodPost, "/v1/sessions/"+sessToken+"/questions", "",
		map[string]any{"guide": guide})
	require.Equal(t, http.StatusCreated, status)
	questions := body["questions"].([]any)
	require.Len(t, questions, 2)
	firstID := questions[0].(map[string]any)["id"].(string)

	status, body = e.do(t, http.MethodGet, "/v1/sessions/"+sessToken+"/questions/next", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, firstID, body["question"].(map[string]any)["id"])

	status, _ = e.do(t, http.MethodPost, "/v1/sessions/"+sessToken+"/responses", "", map[string]any{
		"question_id":   firstID,
		"transcription": "I bought a standing desk last week.",
	})
	require.Equal(t, http.StatusCreated, status)

	// The incomplete response does not advance the cursor.
	status, body = e.do(t, http.MethodGet, "/v1/sessions/"+sessToken+"/questions/next", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, firstID, body["question"].(map[string]any)["id"])

	status, body = e.do(t, http.MethodPost, "/v1/sessions/"+sessToken+"/questions/"+firstID+"/complete", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(1), body["completed"])

	status, body = e.do(t, http.MethodGet, "/v1/sessions/"+sessToken+"/questions/next", "", nil)
	require.Equal(t, http.StatusOK, status)
	secondID := body["question"].(map[string]any)["id"].(string)
	require.NotEqual(t, firstID, secondID)

	// Follow-up under the second question.
	status, body = e.do(t, http.MethodPost, "/v1/sessions/"+sessToken+"/questions/"+secondID+"/followups", "",
		map[string]any{"text": "What would have changed your mind?"})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "follow_up", body["type"])

	// Ending completed also completes the participant.
	status, body = e.do(t, http.MethodPost, "/v1/sessions/"+sessToken+"/end", "",
		map[string]any{"outcome": "completed"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "completed", body["status"])

	status, body = e.do(t, http.MethodGet, "/v1/projects/"+id+"/participants", e.token, nil)
	require.Equal(t, http.StatusOK, status)
	participants := body["participants"].([]any)
	require.Len(t, participants, 1)
	require.Equal(t, "completed", participants[0].(map[string]any)["status"])

	// End replays are no-ops.
	status, _ = e.do(t, http.MethodPost, "/v1/sessions/"+sessToken+"/end", "",
		map[string]any{"outcome": "cancelled"})
	require.Equal(t, http.StatusOK, status)
	status, body = e.do(t, http.MethodGet, "/v1/sessions/"+sessToken, "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "completed", body["status"])
}

func TestInterview_AnalysisPersistsToSessionMetadata(t *testing.T) {
	e := newEnv(t)
	id := e.createProject(t, "Checkout study")
	sessToken := e.joinSession(t, id, "sam@example.com")

	guide := map[string]any{"sections": []map[string]any{
		{"title": "Checkout", "questions": []string{"What almost made you abandon the cart?"}},
	}}
	status, body := e.do(t, http.MethodPost, "/v1/sessions/"+sessToken+"/questions", "",
		map[string]any{"guide": guide})
	require.Equal(t, http.StatusCreated, status)
	qid := body["questions"].([]any)[0].(map[string]any)["id"].(string)

	status, _ = e.do(t, http.MethodPost, "/v1/sessions/"+sessToken+"/responses", "", map[string]any{
		"question_id":   qid,
		"transcription": "The shipping cost appeared only at the last step.",
		"is_complete":   true,
	})
	require.Equal(t, http.StatusCreated, status)

	e.gen.replies = []string{`{"summary":"Shipping cost surprise drives abandonment.",
		"keyInsights":["Costs surface too late"],"themes":["pricing transparency"],
		"recommendations":["Show shipping earlier"],"painPoints":["surprise fees"],
		"opportunities":[],"userBehaviors":[]}`}

	status, body = e.do(t, http.MethodPost, "/v1/sessions/"+sessToken+"/analysis", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Shipping cost surprise drives abandonment.", body["summary"])
	require.Equal(t, float64(1), body["responseCount"])

	status, body = e.do(t, http.MethodGet, "/v1/sessions/"+sessToken, "", nil)
	require.Equal(t, http.StatusOK, status)
	metadata := body["metadata"].(map[string]any)
	require.Contains(t, metadata, "analysis")
}

func TestProjects_GuideGeneration(t *testing.T) {
	e := newEnv(t)
	id := e.createProject(t, "Checkout study")

	// Thin input short-circuits with the elaboration hint, no guide call.
	e.gen.replies = []string{`{"needsElaboration":true,"reason":"Too vague."}`}
	status, body := e.do(t, http.MethodPost, "/v1/projects/"+id+"/guide", e.token, nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, true, body["validation"].(map[string]any)["needsElaboration"])
	require.Equal(t, 1, e.gen.calls)

	// A concrete description yields a persisted guide.
	e.gen.calls = 0
	e.gen.replies = []string{
		`{"needsElaboration":false}`,
		`{"sections":[{"title":"Warm-up","questions":["Tell me about your last online purchase."]}]}`,
	}
	status, body = e.do(t, http.MethodPost, "/v1/projects/"+id+"/guide", e.token, nil)
	require.Equal(t, http.StatusOK, status)
	sections := body["guide"].(map[string]any)["sections"].([]any)
	require.Len(t, sections, 1)

	status, body = e.do(t, http.MethodGet, "/v1/projects/"+id, e.token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body["analysis"].(map[string]any), "guide")
}

func TestSpeech_Endpoints(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodPost, "/v1/speech/transcriptions", "",
		map[string]any{"audio": "Zm9v", "language": "en"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "I agree to participate.", body["text"])

	status, body = e.do(t, http.MethodPost, "/v1/speech/audio", "",
		map[string]any{"text": "Welcome to the study."})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "QVVESU8=", body["audio"])
}

func TestLive_RejectsDeadTokenBeforeUpgrade(t *testing.T) {
	e := newEnv(t)

	resp, err := e.ts.Client().Get(e.ts.URL + "/v1/live?session_token=sess_dead")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "invalid_or_expired_token")
}

func TestHealthAndReady(t *testing.T) {
	e := newEnv(t)

	resp, err := e.ts.Client().Get(e.ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status, body := e.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["ready"])
}

func TestErrorEnvelope_MalformedBody(t *testing.T) {
	e := newEnv(t)
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+"/v1/auth/callback",
		strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var envelope struct {
		Error struct {
			Type      string `json:"type"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, "invalid_request_error", envelope.Error.Type)
	require.Regexp(t, `^req_`, envelope.Error.RequestID)
}

