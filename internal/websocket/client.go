package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Subscribe is the only message a client sends. An empty Entities list
// restores the default of receiving everything. The hub answers with a
// "subscribed" message carrying the current sequence number.
type Subscribe struct {
	Entities []string `json:"subscribe"`
}

// Client represents a single WebSocket connection.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	send chan []byte

	mu     sync.RWMutex
	filter map[string]bool

	// dropped is guarded by the hub lock.
	dropped uint64
}

func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// SetFilter limits the client to the given entities.
func (c *Client) SetFilter(entities []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(entities) == 0 {
		c.filter = nil
		return
	}
	c.filter = make(map[string]bool, len(entities))
	for _, e := range entities {
		c.filter[e] = true
	}
}

func (c *Client) wants(entity string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter == nil || c.filter[entity]
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump applies subscribe messages and ignores anything else.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var sub Subscribe
	if err := json.Unmarshal(data, &sub); err != nil {
		c.hub.logger.Debug("ignoring client message", "error", err)
		return
	}
	c.SetFilter(sub.Entities)
	c.hub.ack(c, sub.Entities)
}

// writePump drains the send channel and pings periodically.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
