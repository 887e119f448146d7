package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"classroom-relay/internal/app"
	"classroom-relay/pkg/metrics"
)

// Pinger is a dependency /readyz checks
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Relay   Sessions
	WS      http.Handler
	Records Records           // nil when postgres is disabled
	Ready   map[string]Pinger // named readiness checks
}

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, d Deps) http.Handler {
	mw := NewMiddleware(cfg, logger)
	api := &SessionsAPI{Relay: d.Relay, Records: d.Records}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		st, err := d.Relay.Stats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rooms": st.Rooms, "clients": st.Clients})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		failed := map[string]string{}
		for name, p := range d.Ready {
			if err := p.Ping(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			logger.Warn("http.readyz", "failed", failed)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	// WebSocket endpoint
	mux.Handle("GET /ws", d.WS)

	// Sessions
	mux.HandleFunc("GET /sessions", api.List)
	mux.HandleFunc("POST /sessions", api.Create)
	mux.HandleFunc("GET /sessions/{id}", api.Get)
	mux.HandleFunc("DELETE /sessions/{id}", api.Delete)
	mux.HandleFunc("GET /sessions/{id}/record", api.Record)
	mux.HandleFunc("GET /records", api.ListRecords)

	return mw.Wrap(mux)
}
