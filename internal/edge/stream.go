package edge

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ocx/modelrun/internal/capability"
)

// StreamEvent is one frame relayed to a websocket subscriber: either a
// diffusion preview step or a generated text chunk, tagged so clients can
// dispatch on Type without inspecting the payload shape.
type StreamEvent struct {
	Type        string                  `json:"type"` // "diffusion_step" or "text_chunk"
	RegistryKey string                  `json:"registry_key"`
	Timestamp   time.Time               `json:"timestamp"`
	Diffusion   *capability.DiffusionStep `json:"diffusion,omitempty"`
	Text        *capability.TextChunk     `json:"text,omitempty"`
}

// StreamHub relays capability.DiffusionStep and capability.TextChunk
// stream results out to websocket subscribers: a client registry plus a
// broadcast channel, driven by a single register/unregister/broadcast
// select loop.
type StreamHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan StreamEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewStreamHub creates a hub with corsOrigins controlling which Origin
// headers are accepted on upgrade (empty means allow any).
func NewStreamHub(corsOrigins []string) *StreamHub {
	allowAny := len(corsOrigins) == 0
	originSet := make(map[string]bool, len(corsOrigins))
	for _, o := range corsOrigins {
		originSet[o] = true
		if o == "*" {
			allowAny = true
		}
	}

	return &StreamHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan StreamEvent, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowAny {
					return true
				}
				return originSet[r.Header.Get("Origin")]
			},
		},
	}
}

// Run drives the hub's register/unregister/broadcast loop. Callers start
// it once in its own goroutine alongside the HTTP server.
func (h *StreamHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			slog.Info("edge: stream client connected", "total", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()
			slog.Info("edge: stream client disconnected", "total", len(h.clients))

		case event := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if err := client.WriteJSON(event); err != nil {
					slog.Warn("edge: stream write failed", "error", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleWebSocket upgrades r and registers the connection with the hub,
// reading (and discarding) frames only to detect client disconnects.
func (h *StreamHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("edge: stream upgrade failed", "error", err)
		return
	}
	h.register <- conn

	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// BroadcastDiffusionStep relays one text-to-image generation frame.
func (h *StreamHub) BroadcastDiffusionStep(registryKey string, step capability.DiffusionStep) {
	h.broadcast <- StreamEvent{
		Type:        "diffusion_step",
		RegistryKey: registryKey,
		Timestamp:   time.Now(),
		Diffusion:   &step,
	}
}

// BroadcastTextChunk relays one text-generation token/chunk.
func (h *StreamHub) BroadcastTextChunk(registryKey string, chunk capability.TextChunk) {
	h.broadcast <- StreamEvent{
		Type:        "text_chunk",
		RegistryKey: registryKey,
		Timestamp:   time.Now(),
		Text:        &chunk,
	}
}

// Stats reports the hub's current connection and queue depth, folded
// into /metrics by the caller.
func (h *StreamHub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]int{
		"connected_clients": len(h.clients),
		"broadcast_queue":   len(h.broadcast),
	}
}
