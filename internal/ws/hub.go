// Package ws implements the WebSocket hub that streams question and answer
// events to connected UI clients. Each dialogue session holds at most one
// connection; a new connection for the same session supersedes the old one.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/pipeline"
	"github.com/auricle-ai/auricle/internal/service"
	"github.com/auricle-ai/auricle/internal/state"
	"github.com/auricle-ai/auricle/internal/task"
)

const (
	eventWait    = 100 * time.Millisecond
	writeTimeout = 5 * time.Second
)

// Config carries the optional collaborators of the hub.
type Config struct {
	Metrics *observe.Metrics
	Log     *slog.Logger
}

// Hub fans display events out to the client of their session.
type Hub struct {
	registry *state.Registry
	in       *pipeline.Queue[task.Message]

	mu    sync.Mutex
	conns map[string]*websocket.Conn

	metrics *observe.Metrics
	log     *slog.Logger
	ready   atomic.Bool
}

var _ service.Service = (*Hub)(nil)

// NewHub wires a hub consuming the display queue.
func NewHub(registry *state.Registry, in *pipeline.Queue[task.Message], cfg Config) *Hub {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Hub{
		registry: registry,
		in:       in,
		conns:    make(map[string]*websocket.Conn),
		metrics:  cfg.Metrics,
		log:      cfg.Log,
	}
}

// Run drains the display queue and delivers each event to the connection
// registered for its session. Events for sessions without a client are
// discarded.
func (h *Hub) Run(ctx context.Context) error {
	h.ready.Store(true)
	defer h.ready.Store(false)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, ok := h.in.Get(eventWait)
		if !ok {
			continue
		}
		h.metrics.RecordQueueDepth(ctx, h.in.Name(), h.in.Len())
		h.deliver(ctx, msg)
	}
}

// Ready reports whether the hub is draining the display queue.
func (h *Hub) Ready() bool { return h.ready.Load() }

// Handler upgrades the request, registers the connection under the current
// session id, and holds it open until the client disconnects. An existing
// connection for the same session is closed first.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			h.log.Warn("websocket accept failed", "error", err)
			return
		}

		session := h.registry.SessionID()
		h.register(session, conn)
		h.log.Info("websocket client connected", "session_id", session)

		// Reads only serve to detect the close; clients do not send events.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				break
			}
		}

		h.unregister(session, conn)
		conn.Close(websocket.StatusNormalClosure, "")
		h.log.Info("websocket client disconnected", "session_id", session)
	})
}

func (h *Hub) register(session string, conn *websocket.Conn) {
	h.mu.Lock()
	prev := h.conns[session]
	h.conns[session] = conn
	h.mu.Unlock()

	if prev != nil {
		prev.Close(websocket.StatusPolicyViolation, "superseded by a new connection")
	}
}

// unregister removes the connection unless a newer one has already taken
// the session over.
func (h *Hub) unregister(session string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[session] == conn {
		delete(h.conns, session)
	}
}

func (h *Hub) deliver(ctx context.Context, msg task.Message) {
	h.mu.Lock()
	conn := h.conns[msg.Session()]
	h.mu.Unlock()
	if conn == nil {
		return
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, conn, msg); err != nil {
		h.log.Warn("websocket write failed, dropping client",
			"session_id", msg.Session(), "type", msg.MessageType(), "error", err)
		h.unregister(msg.Session(), conn)
		conn.Close(websocket.StatusInternalError, "write failed")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*websocket.Conn)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "shutting down")
	}
}
