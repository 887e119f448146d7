package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"classroom-relay/internal/relay"
)

const (
	pingEvery    = 20 * time.Second
	writeTimeout = 10 * time.Second
	readLimit    = 1 << 20 // offers with many candidates can be large
)

// Conn is one websocket client as seen by the relay
type Conn struct {
	id  string
	ws  *websocket.Conn
	out chan []byte
}

// Accept upgrades HTTP to websocket for the allowed origins
func Accept(w http.ResponseWriter, r *http.Request, origins []string) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  origins,
		CompressionMode: websocket.CompressionDisabled,
	})
}

// NewConn wraps a websocket with an outbound queue of size buf
func NewConn(ws *websocket.Conn, buf int) *Conn {
	if buf <= 0 {
		buf = 256
	}
	ws.SetReadLimit(readLimit)
	return &Conn{id: uuid.NewString(), ws: ws, out: make(chan []byte, buf)}
}

func (c *Conn) ID() string { return c.id }

// Send queues m without blocking; a full queue drops it
func (c *Conn) Send(m relay.Message) bool {
	b, err := json.Marshal(m)
	if err != nil {
		return false
	}
	select {
	case c.out <- b:
		return true
	default:
		return false
	}
}

// Read blocks until the next text frame. It returns false once the
// connection is closed.
func (c *Conn) Read(ctx context.Context) ([]byte, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, false
		}
		if typ == websocket.MessageText {
			return data, true
		}
	}
}

// WriteLoop drains the outbound queue and pings periodically until ctx
// is done or a write fails
func (c *Conn) WriteLoop(ctx context.Context) {
	t := time.NewTicker(pingEvery)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				return
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close closes the WS connection normally
func (c *Conn) Close() error { return c.ws.Close(websocket.StatusNormalClosure, "bye") }
