package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"nhooyr.io/websocket"

	"classroom-relay/internal/relay"
)

// Relay is the part of *relay.Relay the transport drives
type Relay interface {
	Attach(ctx context.Context, c relay.Client) error
	Detach(ctx context.Context, c relay.Client) error
	Dispatch(ctx context.Context, c relay.Client, raw []byte) error
}

type Hub struct {
	log     *slog.Logger
	rl      Relay
	origins []string
	sendBuf int
}

// NewHub wires websocket connections into the relay
func NewHub(logger *slog.Logger, rl Relay, origins []string, sendBuf int) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{log: logger, rl: rl, origins: originPatterns(origins), sendBuf: sendBuf}
}

// originPatterns turns CORS origins like "http://localhost:3000" into the
// host patterns websocket.Accept matches against
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}

// ServeWS upgrades the request and pumps frames into the relay until the
// client goes away
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := Accept(w, r, h.origins)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := NewConn(conn, h.sendBuf)
	log := h.log.With("conn", c.ID(), "remote", r.RemoteAddr)
	if err := h.rl.Attach(ctx, c); err != nil {
		log.Error("ws.attach", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "relay unavailable")
		return
	}
	log.Info("ws.open")

	go func() {
		c.WriteLoop(ctx)
		cancel()
	}()

	for {
		payload, ok := c.Read(ctx)
		if !ok {
			break
		}
		if err := h.rl.Dispatch(ctx, c, payload); err != nil {
			log.Warn("ws.dispatch", "err", err)
			break
		}
	}

	// the request context may already be gone; detaching must still happen
	if err := h.rl.Detach(context.Background(), c); err != nil {
		log.Warn("ws.detach", "err", err)
	}
	_ = c.Close()
	log.Info("ws.close")
}
