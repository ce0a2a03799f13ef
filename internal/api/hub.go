package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/420247jake/the-mind/internal/observability"
	"github.com/420247jake/the-mind/internal/scene"
)

// FrameMessage is pushed to stream clients.
type FrameMessage struct {
	Type  string      `json:"type"`
	Frame scene.Frame `json:"frame"`
}

// Hub renders one frame per interval and fans it out to every connected
// client. Client bookkeeping happens only on the Run goroutine.
type Hub struct {
	render   func() scene.Frame
	upgrader websocket.Upgrader
	metrics  *observability.Collector
	logger   *zap.Logger

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	running    atomic.Bool
	count      atomic.Int64

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewHub creates a hub. metrics may be nil.
func NewHub(render func() scene.Frame, metrics *observability.Collector, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		render: render,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origins are enforced by the CORS layer for the REST routes; the
			// stream is read-only.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metrics:    metrics,
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		done:       make(chan struct{}),
	}
}

// Run is the hub event loop. It closes every client when ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) error {
	h.running.Store(true)
	defer close(h.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Frame stream shutting down", zap.Int("clients", len(h.clients)))
			for c := range h.clients {
				h.remove(c)
			}
			return nil

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount()
			h.logger.Debug("Stream client registered", zap.String("client_id", c.id))
			// New clients get a frame immediately instead of waiting a tick.
			h.send(c, h.encode())

		case c := <-h.unregister:
			h.remove(c)

		case <-ticker.C:
			if len(h.clients) == 0 {
				continue
			}
			data := h.encode()
			for c := range h.clients {
				h.send(c, data)
			}
		}
	}
}

func (h *Hub) encode() []byte {
	data, err := json.Marshal(FrameMessage{Type: "frame", Frame: h.render()})
	if err != nil {
		h.logger.Error("Failed to marshal frame", zap.Error(err))
		return nil
	}
	return data
}

// send never blocks the loop: a client whose buffer is full skips the frame.
func (h *Hub) send(c *Client, data []byte) {
	if data == nil {
		return
	}
	select {
	case c.send <- data:
		h.sent.Add(1)
	default:
		h.dropped.Add(1)
	}
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.setCount()
	h.logger.Debug("Stream client unregistered", zap.String("client_id", c.id))
}

func (h *Hub) setCount() {
	h.count.Store(int64(len(h.clients)))
	if h.metrics != nil {
		h.metrics.StreamClients.Set(float64(len(h.clients)))
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int { return int(h.count.Load()) }

// Stats returns the frames delivered to and dropped for slow clients.
func (h *Hub) Stats() (sent, dropped int64) { return h.sent.Load(), h.dropped.Load() }

// ServeWS upgrades the request and registers a client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.running.Load() || h.stopped() {
		http.Error(w, "frame stream unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr),
		)
		return
	}

	c := newClient(h, conn, h.logger)
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.start()
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
