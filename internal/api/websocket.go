package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/config"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/logging"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/platform"
)

// Message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeSnapshot    = "snapshot"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	wsSendBufferSize = 256

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// WSMessage is a server to client frame.
type WSMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Event   string `json:"event,omitempty"`
	Time    string `json:"time,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// wsRequest is a client to server frame.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload selects event channels and, optionally, the lights
// whose events are wanted. An empty Lights list means every light.
// Entry events ignore the light filter.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Lights   []string `json:"lights,omitempty"`
}

// Hub fans host events out to WebSocket clients.
//
// Thread Safety: All methods are safe for concurrent use.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected stream.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// states lists current light snapshots for the subscribe reply.
	states func() []platform.LightState

	mu       sync.RWMutex
	channels map[string]struct{}
	lights   map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are filtered by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub. Call Run to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		if c.conn != nil {
			c.conn.Close() //nolint:errcheck // shutting down
		}
	}
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the call that removes it closes its
// send channel, so calling it twice is safe.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Broadcast sends payload to clients subscribed to channel. uid names the
// light the event is about, or "" for events not tied to one light.
// Slow clients whose buffer is full miss the event.
func (h *Hub) Broadcast(channel, uid string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:    WSTypeEvent,
		Event:   channel,
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Payload: payload,
	})
	if err != nil {
		h.logger.Error("failed to encode websocket event", "event", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(channel, uid) {
			c.trySend(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// relayEvent forwards a host event to the hub. It runs on the host's
// emitting goroutine and never blocks.
func (s *Server) relayEvent(ev platform.Event) {
	switch {
	case ev.State != nil:
		s.hub.Broadcast(string(ev.Type), ev.State.UniqueID, ev.State)
	case ev.Command != nil:
		s.hub.Broadcast(string(ev.Type), ev.Command.UniqueID, ev.Command)
	case ev.Entry != nil:
		s.hub.Broadcast(string(ev.Type), "", ev.Entry)
	}
}

// handleWebSocket upgrades to a WebSocket event stream.
//
// Query parameters:
//   - channels: comma-separated channels to subscribe to on connect,
//     e.g. "light.state_changed,light.command"
//   - lights: comma-separated unique ids limiting light events
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		states:   s.host.States,
		channels: make(map[string]struct{}),
		lights:   make(map[string]struct{}),
	}
	q := r.URL.Query()
	c.subscribe(WSSubscribePayload{
		Channels: splitList(q.Get("channels")),
		Lights:   splitList(q.Get("lights")),
	})

	s.hub.Register(c)
	go c.writePump(s.wsCfg)
	go c.readPump(s.wsCfg)
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close() //nolint:errcheck // already disconnecting
	}()

	ping, pong := wsTimings(cfg)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any frame counts as alive.
		extend() //nolint:errcheck // a failed deadline surfaces on the next read
		c.handle(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ping, pong := wsTimings(cfg)
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // already disconnecting
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(pong)) //nolint:errcheck // write error reported below
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // best effort goodbye
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)

	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &sub) != nil {
			c.reply(req.ID, WSTypeError, map[string]string{"message": "invalid " + req.Type + " payload"})
			return
		}
		if req.Type == WSTypeUnsubscribe {
			c.unsubscribe(sub)
			c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
			return
		}
		c.subscribe(sub)
		c.hub.logger.Debug("websocket client subscribed", "channels", sub.Channels, "lights", sub.Lights)
		c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": sub.Channels})
		if c.wants(string(platform.EventStateChanged), "") || len(sub.Lights) > 0 {
			c.sendSnapshot(req.ID)
		}

	default:
		c.reply(req.ID, WSTypeError, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

// sendSnapshot sends the current state of every light the client follows,
// so a fresh subscriber does not wait for the next poll.
func (c *WSClient) sendSnapshot(id string) {
	if c.states == nil {
		return
	}
	states := []platform.LightState{}
	for _, st := range c.states() {
		if c.followsLight(st.UniqueID) {
			states = append(states, st)
		}
	}
	c.reply(id, WSTypeSnapshot, map[string]any{"lights": states, "count": len(states)})
}

func (c *WSClient) subscribe(sub WSSubscribePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range sub.Channels {
		c.channels[ch] = struct{}{}
	}
	for _, uid := range sub.Lights {
		c.lights[uid] = struct{}{}
	}
}

func (c *WSClient) unsubscribe(sub WSSubscribePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range sub.Channels {
		delete(c.channels, ch)
	}
	for _, uid := range sub.Lights {
		delete(c.lights, uid)
	}
}

// wants reports whether an event on channel about light uid should be
// delivered.
func (c *WSClient) wants(channel, uid string) bool {
	c.mu.RLock()
	_, ok := c.channels[channel]
	c.mu.RUnlock()
	return ok && (uid == "" || c.followsLight(uid))
}

func (c *WSClient) followsLight(uid string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.lights) == 0 {
		return true
	}
	_, ok := c.lights[uid]
	return ok
}

// trySend queues data without blocking. A full buffer drops the frame.
// The hub lock held by callers keeps send open; replies from the read
// pump race with Unregister, hence the recover.
func (c *WSClient) trySend(data []byte) {
	defer func() { recover() }() //nolint:errcheck // send on a channel closed by Unregister
	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) reply(id, kind string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:    kind,
		ID:      id,
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Payload: payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

// wsTimings returns the ping interval and pong wait, with defaults for
// unset config.
func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping, pong = defaultPingInterval, defaultPongTimeout
	if cfg.PingInterval > 0 {
		ping = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		pong = time.Duration(cfg.PongTimeout) * time.Second
	}
	return ping, pong
}
