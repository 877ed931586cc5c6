package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/warp/settlement-engine/policy"
	"github.com/warp/settlement-engine/settlement"
)

// =============================================================================
// LIVE EVENTS - Websocket push of recomputes and policy changes
// =============================================================================

// Event types pushed to websocket clients.
const (
	EventRecomputed    = "recomputed"
	EventPolicyChanged = "policy_changed"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is one message sent to every connected client.
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	At   time.Time `json:"at"`
}

// Hub fans events out to websocket clients. Run must be running for
// connections to register.
type Hub struct {
	clients map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan Event
	done       chan struct{}

	mu     sync.RWMutex
	logger *zap.Logger
}

type client struct {
	ws   *websocket.Conn
	send chan Event
	hub  *Hub
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run serves registrations and broadcasts until ctx ends, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			// Slow clients are dropped rather than blocking the others.
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event. It never blocks; a full queue drops the event.
func (h *Hub) Broadcast(eventType string, data any) {
	ev := Event{Type: eventType, Data: data, At: time.Now().UTC()}
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("event queue full, dropping event", zap.String("type", eventType))
	}
}

// HandleWebSocket upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{ws: ws, send: make(chan Event, 64), hub: h}
	select {
	case h.register <- c:
	case <-h.done:
		ws.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only tracks liveness; clients do not send commands.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(ev); err != nil {
				c.hub.logger.Warn("websocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WireEvents pushes every published snapshot and every policy change to
// the hub. The returned func detaches the policy subscription.
func WireEvents(hub *Hub, svc *settlement.Service, policies *policy.Store) (unsubscribe func()) {
	svc.OnRecompute(func(snap *settlement.Snapshot) {
		hub.Broadcast(EventRecomputed, toSnapshotDTO(snap))
	})
	return policies.Subscribe(func(c policy.Change) {
		hub.Broadcast(EventPolicyChanged, map[string]any{"kind": c.Kind, "version": c.Version})
	})
}
