package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ws "github.com/coder/websocket"
)

// Message is a change notification broadcast to connected clients. Seq grows
// by one per broadcast, so a client that sees a gap has missed changes
// (filtered out or dropped) and should refetch what it shows.
type Message struct {
	Seq    uint64         `json:"seq"`
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     string         `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
	At     time.Time      `json:"at"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action, id string, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Stats is a snapshot of the hub for health reporting.
type Stats struct {
	Clients int    `json:"clients"`
	Seq     uint64 `json:"seq"`
	Dropped uint64 `json:"dropped"`
}

// Hub fans change notifications out to WebSocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	seq     uint64
	dropped uint64
	now     func() time.Time
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		now:     time.Now,
		logger:  logger.With("component", "websocket"),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast stamps msg with the next sequence number and queues it for every
// client subscribed to its entity. A client with a full buffer misses it.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	msg.Seq = h.seq
	if msg.At.IsZero() {
		msg.At = h.now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", msg.Type, "error", err)
		return
	}

	for c := range h.clients {
		if !c.wants(msg.Entity) {
			continue
		}
		select {
		case c.send <- data:
		default:
			c.dropped++
			h.dropped++
			if c.dropped == 1 {
				h.logger.Debug("client lagging, dropping messages", "seq", msg.Seq)
			}
		}
	}
}

// Publish builds and broadcasts a message in one call.
func (h *Hub) Publish(entity, action, id string, extra map[string]any) {
	h.Broadcast(NewMessage(entity, action, id, extra))
}

// ack confirms a subscription change to c without advancing the sequence.
func (h *Hub) ack(c *Client, entities []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	if entities == nil {
		entities = []string{}
	}
	data, err := json.Marshal(Message{
		Seq:   h.seq,
		Type:  "subscribed",
		Extra: map[string]any{"entities": entities},
		At:    h.now().UTC(),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Clients: len(h.clients), Seq: h.seq, Dropped: h.dropped}
}

// Close disconnects every client with a going-away status.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if c.conn != nil {
			c.conn.Close(ws.StatusGoingAway, "server shutting down")
		}
	}
	if len(clients) > 0 {
		h.logger.Info("closed websocket clients", "count", len(clients))
	}
}
