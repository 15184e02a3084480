package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/djbridge/internal/errors"
	"github.com/conneroisu/djbridge/internal/logging"
	"github.com/conneroisu/djbridge/internal/plugins"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Outgoing messages buffered per client before it is dropped.
	sendBuffer = 64
)

// client is one connected browser tab.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub is the live-update channel: it accepts websocket clients and
// broadcasts payloads to all of them.
type Hub struct {
	clients        map[*client]struct{}
	clientsMutex   sync.RWMutex
	originPatterns []string
	logger         logging.Logger
	closed         bool
}

var _ plugins.HotChannel = (*Hub)(nil)

// NewHub creates a hub accepting cross-origin connections whose Origin host
// matches one of originPatterns (e.g. "localhost:*").
func NewHub(originPatterns []string, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{
		clients:        make(map[*client]struct{}),
		originPatterns: originPatterns,
		logger:         logger,
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Debug(r.Context(), "WebSocket upgrade rejected", "error", err, "origin", r.Header.Get("Origin"))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if hello, err := json.Marshal(plugins.Payload{Type: plugins.PayloadConnected}); err == nil {
		c.send <- hello
	}
	if !h.register(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writePump(ctx, c)
	h.readPump(ctx, c)
}

func (h *Hub) register(c *client) bool {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug(context.Background(), "Client connected", "clients", len(h.clients))
	return true
}

func (h *Hub) unregister(c *client) {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Debug(context.Background(), "Client disconnected", "clients", len(h.clients))
	}
}

// readPump drains the connection so control frames are processed. Clients
// never send anything meaningful.
func (h *Hub) readPump(ctx context.Context, c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				h.logger.Debug(ctx, "WebSocket read ended", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				h.logger.Debug(ctx, "WebSocket write failed", "error", err)
				c.conn.CloseNow()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.conn.CloseNow()
				return
			}
		}
	}
}

// Send broadcasts p to every connected client. Clients whose buffer is full
// are disconnected.
func (h *Hub) Send(p plugins.Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeTransform, "cannot encode payload", err)
	}

	var slow []*client

	h.clientsMutex.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.clientsMutex.RUnlock()

	for _, c := range slow {
		h.unregister(c)
		c.conn.CloseNow()
	}

	h.logger.Debug(context.Background(), "Payload sent", "type", p.Type, "path", p.Path)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
