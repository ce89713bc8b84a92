// Package relay bridges one participant websocket to the realtime voice
// backend. The relay is a pass-through: audio appends, buffer clears, audio
// deltas, and turn boundaries cross it unmodified in both directions. Its
// only interventions are keeping the backend credential server-side and
// injecting the interview session configuration once the backend reports
// ready.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/searcho-ai/searcho/pkg/core"
)

// State is the per-relay lifecycle. A relay is single-use.
type State int32

const (
	StateIdle State = iota
	StateBackendConnecting
	StateBackendReady
	StateRelaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBackendConnecting:
		return "backend-connecting"
	case StateBackendReady:
		return "backend-ready"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the slice of *websocket.Conn the relay uses on each side.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens the upstream connection. The default wraps gorilla's dialer.
type Dialer func(ctx context.Context, url string, header http.Header) (Conn, error)

// Config drives one relay instance.
type Config struct {
	// UpstreamURL is the realtime backend websocket endpoint.
	UpstreamURL string
	// UpstreamHeader carries the backend credential. It never reaches the
	// client.
	UpstreamHeader http.Header
	// SessionConfig is the configuration envelope written to the backend
	// exactly once, after ReadySignal is observed.
	SessionConfig []byte
	// ReadySignal is the backend message type marking readiness. Defaults to
	// "session.created".
	ReadySignal string

	Dialer       Dialer
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Relay pumps frames between one client connection and one lazily-dialed
// upstream connection until either side goes away.
type Relay struct {
	client Conn
	cfg    Config
	logger *slog.Logger

	state atomic.Int32

	upstreamMu sync.Mutex
	upstream   Conn

	clientWriteMu   sync.Mutex
	upstreamWriteMu sync.Mutex

	closeOnce sync.Once
}

// New prepares a relay for one client connection. The upstream is not dialed
// until Run.
func New(client Conn, cfg Config) *Relay {
	if cfg.ReadySignal == "" {
		cfg.ReadySignal = "session.created"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = func(ctx context.Context, url string, header http.Header) (Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
			if err != nil {
				return nil, err
			}
			return conn, nil
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, cfg: cfg, logger: logger}
}

// State reports the current lifecycle state.
func (r *Relay) State() State { return State(r.state.Load()) }

func (r *Relay) setState(s State) { r.state.Store(int32(s)) }

// Run dials the backend and relays until either side closes or errors, then
// closes both sides exactly once. The returned error reports why the relay
// stopped; a clean client close returns nil.
func (r *Relay) Run(ctx context.Context) error {
	r.setState(StateBackendConnecting)

	upstream, err := r.cfg.Dialer(ctx, r.cfg.UpstreamURL, r.cfg.UpstreamHeader)
	if err != nil {
		r.logger.Warn("backend dial failed", "error", err)
		r.failUpstream()
		return core.NewUpstreamError("realtime voice backend")
	}
	r.upstreamMu.Lock()
	r.upstream = upstream
	r.upstreamMu.Unlock()

	errCh := make(chan error, 2)
	go func() { errCh <- r.pumpClientToUpstream() }()
	go func() { errCh <- r.pumpUpstreamToClient() }()

	var runErr error
	select {
	case <-ctx.Done():
		r.closeBoth(websocket.CloseGoingAway, "relay shutting down")
	case runErr = <-errCh:
	}
	// The surviving pump exits once its connection is closed.
	<-errCh
	return runErr
}

// pumpClientToUpstream forwards every client frame to the backend unchanged.
func (r *Relay) pumpClientToUpstream() error {
	defer r.closeBoth(websocket.CloseNormalClosure, "")
	for {
		messageType, data, err := r.client.ReadMessage()
		if err != nil {
			// The participant went away; not an upstream failure.
			return nil
		}
		if err := r.writeUpstream(messageType, data); err != nil {
			r.failUpstream()
			return core.NewUpstreamError("realtime voice backend")
		}
	}
}

// pumpUpstreamToClient forwards backend frames to the client. The first
// ready-signal frame additionally triggers the one-time session
// configuration write to the backend.
func (r *Relay) pumpUpstreamToClient() error {
	configured := false
	for {
		r.upstreamMu.Lock()
		upstream := r.upstream
		r.upstreamMu.Unlock()

		messageType, data, err := upstream.ReadMessage()
		if err != nil {
			if r.State() != StateClosed {
				r.failUpstream()
				return core.NewUpstreamError("realtime voice backend")
			}
			return nil
		}

		if !configured && messageType == websocket.TextMessage && r.isReadySignal(data) {
			r.setState(StateBackendReady)
			if len(r.cfg.SessionConfig) > 0 {
				if err := r.writeUpstream(websocket.TextMessage, r.cfg.SessionConfig); err != nil {
					r.failUpstream()
					return core.NewUpstreamError("realtime voice backend")
				}
			}
			configured = true
			r.setState(StateRelaying)
		}

		if err := r.writeClient(messageType, data); err != nil {
			r.closeBoth(websocket.CloseNormalClosure, "")
			return nil
		}
	}
}

func (r *Relay) isReadySignal(data []byte) bool {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Type == r.cfg.ReadySignal
}

func (r *Relay) writeClient(messageType int, data []byte) error {
	r.clientWriteMu.Lock()
	defer r.clientWriteMu.Unlock()
	_ = r.client.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
	return r.client.WriteMessage(messageType, data)
}

func (r *Relay) writeUpstream(messageType int, data []byte) error {
	r.upstreamMu.Lock()
	upstream := r.upstream
	r.upstreamMu.Unlock()
	if upstream == nil {
		return core.NewUpstreamError("realtime voice backend")
	}
	r.upstreamWriteMu.Lock()
	defer r.upstreamWriteMu.Unlock()
	_ = upstream.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
	return upstream.WriteMessage(messageType, data)
}

// failUpstream surfaces a generic unavailability envelope to the client and
// tears the relay down. Backend detail never crosses to the client.
func (r *Relay) failUpstream() {
	if r.State() != StateClosed {
		envelope, _ := json.Marshal(map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    string(core.ErrUpstream),
				"message": "realtime voice backend is unavailable",
			},
		})
		_ = r.writeClient(websocket.TextMessage, envelope)
	}
	r.closeBoth(websocket.CloseInternalServerErr, "upstream unavailable")
}

// closeBoth transitions to closed and closes both sockets. Exactly-once: no
// half-open side survives, no matter which pump got here first.
func (r *Relay) closeBoth(code int, reason string) {
	r.closeOnce.Do(func() {
		r.setState(StateClosed)
		deadline := time.Now().Add(r.cfg.WriteTimeout)
		msg := websocket.FormatCloseMessage(code, reason)

		_ = r.client.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = r.client.Close()

		r.upstreamMu.Lock()
		upstream := r.upstream
		r.upstreamMu.Unlock()
		if upstream != nil {
			_ = upstream.WriteControl(websocket.CloseMessage, msg, deadline)
			_ = upstream.Close()
		}
	})
}
