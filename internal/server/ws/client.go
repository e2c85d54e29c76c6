package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// client is one WebSocket connection. send is closed exactly once, by the
// hub, under sendMu.
type client struct {
	hub  *Hub
	conn *websocket.Conn

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	mu   sync.RWMutex
	subs map[string]bool // subscribed channels, may end in '*'
}

// enqueue queues data without blocking. It reports false when the buffer is
// full or the client is already gone.
func (c *client) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// sendHello pushes a status envelope so clients can mark the connection
// healthy before any market event flows.
func (c *client) sendHello() {
	uptime := max(int64(time.Since(c.hub.startedAt).Seconds()), 0)
	msg, err := json.Marshal(map[string]any{
		"channel": "status",
		"event": map[string]any{
			"type":           "hello",
			"mode":           c.hub.mode,
			"uptime_seconds": uptime,
		},
	})
	if err == nil {
		c.enqueue(msg)
	}
}

func (c *client) sendSnapshot(marketID string) {
	if msg, ok := c.hub.snapshot(marketID); ok {
		c.enqueue(msg)
	}
}

// readPump applies subscription changes until the connection closes.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if json.Unmarshal(message, &sub) != nil || sub.Action == "" {
			continue
		}
		for _, marketID := range c.handleSubscription(sub) {
			c.sendSnapshot(marketID)
		}
	}
}

// handleSubscription applies msg and returns the markets whose odds channel
// was newly subscribed by name.
func (c *client) handleSubscription(msg subscribeMsg) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var added []string
	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			if c.subs[ch] {
				continue
			}
			c.subs[ch] = true
			if id, ok := strings.CutPrefix(ch, domain.ChannelOddsPrefix); ok && id != "" && !strings.HasSuffix(id, "*") {
				added = append(added, id)
			}
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
	return added
}

// isSubscribed matches channel against exact and wildcard subscriptions;
// "odds:*" matches "odds:<market-id>".
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// writePump writes queued messages as text frames and pings periodically.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
