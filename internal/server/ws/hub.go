// Package ws pushes live odds and settlement events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must stay below pongWait
	maxMessageSize = 4096
	sendBufferSize = 256

	// snapshotTimeout bounds the odds lookup done for a new subscription.
	snapshotTimeout = 3 * time.Second
)

// busChannels are the signal bus channels the hub relays.
var busChannels = []string{
	domain.ChannelOddsPrefix + "*",
	domain.ChannelSettlement,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS allow-list in front of the API.
		return true
	},
}

// Quoter returns the current odds of a market.
type Quoter interface {
	Quote(ctx context.Context, marketID string) (domain.OddsSnapshot, error)
}

// subscribeMsg is the JSON message a client sends to change subscriptions:
//
//	{"action":"subscribe","channels":["odds:<market-id>"]}
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// envelope wraps a bus payload with the channel it arrived on.
type envelope struct {
	Channel string          `json:"channel"`
	Event   json.RawMessage `json:"event"`
}

// snapshotEvent is sent on a market's odds channel right after a client
// subscribes to it, before any live update.
type snapshotEvent struct {
	Type     string              `json:"type"`
	MarketID string              `json:"market_id"`
	Data     domain.OddsSnapshot `json:"data"`
}

// Config captures runtime metadata sent to clients on connect. Quotes is
// optional; without it subscriptions get no initial snapshot.
type Config struct {
	Mode      string
	StartedAt time.Time
	Quotes    Quoter
}

// Hub fans messages out from the signal bus to the WebSocket clients
// subscribed to their channel. Only Run mutates the client set.
type Hub struct {
	clients    map[*client]struct{}
	broadcast  chan routed
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex

	bus       domain.SignalBus
	quotes    Quoter
	logger    *slog.Logger
	mode      string
	startedAt time.Time
}

// routed is a relayed message together with its concrete channel.
type routed struct {
	channel string
	data    []byte
}

// NewHub creates a hub relaying bus to connected clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan routed, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		quotes:     cfg.Quotes,
		logger:     logger,
		mode:       mode,
		startedAt:  startedAt,
	}
}

// Run relays bus traffic until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range busChannels {
		go h.relay(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", total))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", total))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.isSubscribed(msg.channel) && !c.enqueue(msg.data) {
					h.logger.Warn("ws: dropping message for slow client",
						slog.String("channel", msg.channel),
					)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relay subscribes to one bus channel (or pattern) and forwards every
// message to the broadcast loop.
func (h *Hub) relay(ctx context.Context, pattern string) {
	msgCh, err := h.bus.Subscribe(ctx, pattern)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to channel",
			slog.String("channel", pattern),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: subscribed to channel", slog.String("channel", pattern))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: channel subscription closed", slog.String("channel", pattern))
				return
			}
			channel := channelOf(pattern, data)
			out, err := json.Marshal(envelope{Channel: channel, Event: data})
			if err != nil {
				continue
			}
			select {
			case h.broadcast <- routed{channel: channel, data: out}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// channelOf recovers the concrete channel of a pattern message. Odds events
// carry their market ID, which names the channel they were published on.
func channelOf(pattern string, data []byte) string {
	if !strings.HasSuffix(pattern, "*") {
		return pattern
	}
	var evt struct {
		MarketID string `json:"market_id"`
	}
	if err := json.Unmarshal(data, &evt); err != nil || evt.MarketID == "" {
		return pattern
	}
	return strings.TrimSuffix(pattern, "*") + evt.MarketID
}

// HandleWS upgrades the request and registers the client. Clients start
// subscribed to settlements and to all odds; ?market=<id> narrows odds to
// one market and sends its current snapshot.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	marketID := r.URL.Query().Get("market")
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: initialSubs(marketID),
	}

	h.register <- c
	c.sendHello()
	if marketID != "" {
		c.sendSnapshot(marketID)
	}

	go c.writePump()
	go c.readPump()
}

func initialSubs(marketID string) map[string]bool {
	subs := map[string]bool{domain.ChannelSettlement: true}
	if marketID != "" {
		subs[domain.OddsChannel(marketID)] = true
	} else {
		subs[domain.ChannelOddsPrefix+"*"] = true
	}
	return subs
}

// snapshot renders the current odds of marketID as an odds-channel envelope.
func (h *Hub) snapshot(marketID string) ([]byte, bool) {
	if h.quotes == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	snap, err := h.quotes.Quote(ctx, marketID)
	if err != nil {
		h.logger.Debug("ws: no odds snapshot",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	evt, err := json.Marshal(snapshotEvent{Type: "odds_snapshot", MarketID: marketID, Data: snap})
	if err != nil {
		return nil, false
	}
	out, err := json.Marshal(envelope{Channel: domain.OddsChannel(marketID), Event: evt})
	if err != nil {
		return nil, false
	}
	return out, true
}
