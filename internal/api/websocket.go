package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/clage-homeserver/internal/command"
	"github.com/nerrad567/clage-homeserver/internal/coordinator"
	"github.com/nerrad567/clage-homeserver/internal/homeserver"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/config"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/logging"
)

// Frame types a client may send.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameGetState    = "get_state"
	FramePing        = "ping"
)

// Frame types the server sends.
const (
	FrameEvent = "event"
	FrameAck   = "ack"
	FrameState = "state"
	FramePong  = "pong"
	FrameError = "error"
)

// Event channels.
const (
	ChannelStateChanged  = "homeserver.state_changed"
	ChannelCommandResult = "homeserver.command_result"
)

// Per-client outbound queue length. A client that falls this far behind
// misses events rather than stalling the broadcaster.
const clientQueueSize = 64

// Frame is one server-to-client WebSocket message.
type Frame struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// inboundFrame is a client-to-server message. The payload is decoded per type.
type inboundFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload selects channels and, optionally, devices. An empty
// DeviceIDs list on subscribe leaves the device filter unchanged.
type SubscribePayload struct {
	Channels  []string `json:"channels"`
	DeviceIDs []string `json:"device_ids,omitempty"`
}

// GetStatePayload names the device whose cached state is requested.
type GetStatePayload struct {
	DeviceID string `json:"device_id"`
}

// StateSource returns the last stored snapshot for a device.
type StateSource func(deviceID string) (homeserver.Snapshot, bool)

// Hub fans coordinator updates and command results out to WebSocket clients.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger
	state  StateSource

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected WebSocket peer and its subscription filter.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
	devices  map[string]struct{} // empty means every device
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the CORS middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates a hub. state may be nil, in which case get_state requests
// are answered with an error frame.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, state StateSource) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		state:   state,
		clients: make(map[*WSClient]struct{}),
	}
}

func newWSClient(h *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, clientQueueSize),
		channels: make(map[string]struct{}),
		devices:  make(map[string]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
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

// Unregister removes a client. The send queue is closed by whichever of
// Unregister and Run removes the client first.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if present {
		close(c.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event for every client subscribed to channel whose
// device filter admits deviceID.
func (h *Hub) Broadcast(channel, deviceID string, payload any) {
	data, err := encodeFrame(Frame{Type: FrameEvent, Channel: channel, DeviceID: deviceID, Payload: payload})
	if err != nil {
		h.logger.Error("encoding websocket event failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.wants(channel, deviceID) {
			c.enqueue(data)
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "device_id", deviceID, "recipients", delivered)
	}
}

func encodeFrame(f Frame) ([]byte, error) {
	f.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(f)
}

// StateChangedEvent is the payload of a homeserver.state_changed event.
type StateChangedEvent struct {
	DeviceID string         `json:"device_id"`
	Trigger  string         `json:"trigger"`
	Fields   map[string]any `json:"fields"`
}

func (s *Server) broadcastUpdate(_ context.Context, u coordinator.Update) {
	s.hub.Broadcast(ChannelStateChanged, u.DeviceID, StateChangedEvent{
		DeviceID: u.DeviceID,
		Trigger:  string(u.Trigger),
		Fields:   u.Snapshot.Fields,
	})
}

// CommandResultEvent is the payload of a homeserver.command_result event.
type CommandResultEvent struct {
	command.Result
	Error string `json:"error,omitempty"`
}

// broadcastResult relays a command outcome. Broadcast commands carry no
// device ID and reach every subscriber of the channel.
func (s *Server) broadcastResult(_ context.Context, res command.Result, err error) {
	ev := CommandResultEvent{Result: res}
	if err != nil {
		ev.Error = err.Error()
	}
	s.hub.Broadcast(ChannelCommandResult, res.DeviceID, ev)
}

// handleWebSocket upgrades the request. Subscriptions may be set up front
// with ?channels=a,b&devices=x,y or later with subscribe frames.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn)
	q := r.URL.Query()
	c.subscribe(SubscribePayload{
		Channels:  splitList(q.Get("channels")),
		DeviceIDs: splitList(q.Get("devices")),
	})

	s.hub.Register(c)
	go c.writeLoop()
	go c.readLoop()
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *WSClient) keepalive() (ping, wait time.Duration) {
	ping = time.Duration(c.hub.cfg.PingInterval) * time.Second
	return ping, ping + time.Duration(c.hub.cfg.PongTimeout)*time.Second
}

func (c *WSClient) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	_, wait := c.keepalive()
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(wait)) }

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	//nolint:errcheck // A failed deadline surfaces as a read error
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		//nolint:errcheck // A failed deadline surfaces as a read error
		extend()
		c.dispatch(data)
	}
}

func (c *WSClient) writeLoop() {
	ping, _ := c.keepalive()
	writeWait := time.Duration(c.hub.cfg.PongTimeout) * time.Second
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // A failed deadline surfaces as a write error
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Peer may already be gone
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch handles one client frame.
func (c *WSClient) dispatch(data []byte) {
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil {
		c.reply(Frame{Type: FrameError, Payload: errorBody("invalid JSON frame")})
		return
	}

	switch in.Type {
	case FramePing:
		c.reply(Frame{Type: FramePong, ID: in.ID})

	case FrameSubscribe, FrameUnsubscribe:
		var sub SubscribePayload
		if err := json.Unmarshal(in.Payload, &sub); err != nil || len(sub.Channels) == 0 {
			c.reply(Frame{Type: FrameError, ID: in.ID, Payload: errorBody(in.Type + " needs a channels list")})
			return
		}
		if in.Type == FrameSubscribe {
			c.subscribe(sub)
			c.hub.logger.Debug("websocket client subscribed", "channels", sub.Channels, "devices", sub.DeviceIDs)
		} else {
			c.unsubscribe(sub.Channels)
		}
		c.reply(Frame{Type: FrameAck, ID: in.ID, Payload: map[string]any{
			in.Type:   sub.Channels,
			"current": c.subscribed(),
		}})

	case FrameGetState:
		c.answerState(in)

	default:
		c.reply(Frame{Type: FrameError, ID: in.ID, Payload: errorBody("unknown frame type: " + in.Type)})
	}
}

func (c *WSClient) answerState(in inboundFrame) {
	var req GetStatePayload
	if err := json.Unmarshal(in.Payload, &req); err != nil || req.DeviceID == "" {
		c.reply(Frame{Type: FrameError, ID: in.ID, Payload: errorBody("get_state needs a device_id")})
		return
	}
	if c.hub.state == nil {
		c.reply(Frame{Type: FrameError, ID: in.ID, DeviceID: req.DeviceID, Payload: errorBody("state is not available")})
		return
	}
	snap, ok := c.hub.state(req.DeviceID)
	if !ok {
		c.reply(Frame{Type: FrameError, ID: in.ID, DeviceID: req.DeviceID, Payload: errorBody("no state for device")})
		return
	}
	c.reply(Frame{Type: FrameState, ID: in.ID, DeviceID: req.DeviceID, Payload: snap.Fields})
}

func errorBody(msg string) map[string]string {
	return map[string]string{"message": msg}
}

func (c *WSClient) subscribe(sub SubscribePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range sub.Channels {
		c.channels[ch] = struct{}{}
	}
	for _, id := range sub.DeviceIDs {
		c.devices[id] = struct{}{}
	}
}

func (c *WSClient) unsubscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.channels, ch)
	}
}

func (c *WSClient) subscribed() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

// wants reports whether an event on channel about deviceID passes the
// client's filter. Events without a device pass any device filter.
func (c *WSClient) wants(channel, deviceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if len(c.devices) == 0 || deviceID == "" {
		return true
	}
	_, ok := c.devices[deviceID]
	return ok
}

func (c *WSClient) reply(f Frame) {
	data, err := encodeFrame(f)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue drops data when the queue is full or already closed.
func (c *WSClient) enqueue(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a queue closed by Unregister
	}()
	select {
	case c.send <- data:
	default:
	}
}
