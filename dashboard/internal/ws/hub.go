package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/activity"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/compute"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/monitor"
	"github.com/obsidianstack/fleetwatch/pkg/types"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 32
)

// Event names carried in Message.Event.
const (
	EventStatus       = "status"
	EventSnapshot     = "snapshot"
	EventConnectivity = "connectivity"
	EventActivity     = "activity"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// SnapshotData is the payload of a snapshot event.
type SnapshotData struct {
	Snapshot *types.Snapshot `json:"snapshot"`
	Metrics  compute.Metrics `json:"metrics"`
}

// ConnectivityData is the payload of a connectivity event.
type ConnectivityData struct {
	Connectivity monitor.Connectivity `json:"connectivity"`
}

// StatusSource provides the full state sent on connect and on every
// heartbeat. *monitor.Monitor implements it.
type StatusSource interface {
	Status() monitor.Status
}

// Hub manages WebSocket client connections and fans monitor notifications
// out to them. It implements monitor.Handler.
type Hub struct {
	source   StatusSource
	interval time.Duration

	mu       sync.RWMutex
	clients  map[*client]struct{}
	presence func(viewers int)

	// presenceMu serialises membership changes with their presence
	// callback, so callbacks see counts in the order they happened.
	presenceMu sync.Mutex
}

// client represents one connected WebSocket client.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that reads full state from src. A positive interval
// makes Run re-send the full status to every client on that period.
func New(src StatusSource, interval time.Duration) *Hub {
	return &Hub{
		source:   src,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
}

// OnPresence installs fn to be called with the viewer count whenever a
// client connects or disconnects. Calls are made one at a time, in the
// order the changes happened. fn must not block or call back into the hub.
func (h *Hub) OnPresence(fn func(viewers int)) {
	h.mu.Lock()
	h.presence = fn
	h.mu.Unlock()
}

// Run sends periodic status heartbeats until ctx is cancelled, then closes
// all active connections.
func (h *Hub) Run(ctx context.Context) {
	var tick <-chan time.Time
	if h.interval > 0 {
		t := time.NewTicker(h.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-tick:
			h.broadcast(EventStatus, h.source.Status())
		}
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// It sends the full status immediately on connect, then streams events.
// Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}

	// Queue the current status before the client becomes visible to
	// broadcasts so it is always the first message.
	if data, err := encode(EventStatus, h.source.Status()); err == nil {
		c.send <- data
	}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnSnapshotUpdated implements monitor.Handler.
func (h *Hub) OnSnapshotUpdated(snap *types.Snapshot, m compute.Metrics) {
	h.broadcast(EventSnapshot, SnapshotData{Snapshot: snap, Metrics: m})
}

// OnConnectivityChanged implements monitor.Handler.
func (h *Hub) OnConnectivityChanged(c monitor.Connectivity) {
	h.broadcast(EventConnectivity, ConnectivityData{Connectivity: c})
}

// OnActivity implements monitor.Handler.
func (h *Hub) OnActivity(e activity.Entry) {
	h.broadcast(EventActivity, e)
}

// --- internal ---------------------------------------------------------------

func encode(event string, data any) ([]byte, error) {
	return json.Marshal(Message{Event: event, Data: data})
}

func (h *Hub) register(c *client) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n, fn := len(h.clients), h.presence
	h.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

func (h *Hub) unregister(c *client) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n, fn := len(h.clients), h.presence
	h.mu.Unlock()
	if ok && fn != nil {
		fn(n)
	}
}

// broadcast never blocks: clients whose buffer is full are disconnected.
func (h *Hub) broadcast(event string, data any) {
	msg, err := encode(event, data)
	if err != nil {
		slog.Error("ws: encode message", "event", event, "err", err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("ws: dropping slow client", "remote", c.conn.RemoteAddr().String())
		h.unregister(c)
	}
}

func (h *Hub) closeAll() {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	fn := h.presence
	h.mu.Unlock()
	if fn != nil {
		fn(0)
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages (pong,
// close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
