package handlers

import (
	"context"
	"net/http"

	"github.com/searcho-ai/searcho/pkg/gateway/lifecycle"
)

// Pinger is implemented by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health is the liveness probe. It answers as long as the process serves.
type Health struct{}

func (Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// Ready is the readiness probe: it fails while draining and when the store
// backend is unreachable.
type Ready struct {
	Life  *lifecycle.Lifecycle
	Store any // optionally a Pinger
}

func (h Ready) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	issues := make([]string, 0, 2)
	if h.Life != nil && h.Life.Draining() {
		issues = append(issues, "draining")
	}
	if p, ok := h.Store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			issues = append(issues, "store unreachable")
		}
	}

	status := http.StatusOK
	if len(issues) > 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":  len(issues) == 0,
		"issues": issues,
	})
}
