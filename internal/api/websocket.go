package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/upswatch/internal/infrastructure/config"
	"github.com/nerrad567/upswatch/internal/infrastructure/logging"
	"github.com/nerrad567/upswatch/internal/upsd"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// wsLoginTimeout bounds the daemon round trip for LOGIN/LOGOUT.
	wsLoginTimeout = 5 * time.Second
)

// WSMessage is a message sent to or from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Devices []string `json:"devices"`
}

// LoginTracker counts watchers per device. Each device a WebSocket client
// follows holds one login until the client unsubscribes or disconnects.
type LoginTracker interface {
	Login(ctx context.Context, device string) error
	Logout(ctx context.Context, device string) error
}

// Hub fans daemon events out to WebSocket clients. It implements
// upsd.Sink and is registered with the event dispatcher.
//
// A client either follows named devices (counted as logins) or, when it
// names none, receives every event without logging in.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	tracker LoginTracker
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is a connected WebSocket client.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	kicked  chan string
	all     bool
	devices map[string]struct{}
	mu      sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub. Call SetTracker before serving clients that
// follow devices.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// SetTracker sets the login counter, normally the upsd daemon.
func (h *Hub) SetTracker(t LoginTracker) {
	h.mu.Lock()
	h.tracker = t
	h.mu.Unlock()
}

func (h *Hub) register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	wsClients.Set(float64(n))
	h.logger.Debug("websocket client connected", "clients", n)
}

// unregister removes a client and releases its logins. Only the caller
// that removes the client from the map closes the send channel.
func (h *Hub) unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if !existed {
		return
	}
	close(client.send)
	wsClients.Set(float64(n))

	for _, dev := range client.deviceList() {
		h.logout(dev)
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

func (h *Hub) login(dev string) error {
	h.mu.RLock()
	t := h.tracker
	h.mu.RUnlock()
	if t == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), wsLoginTimeout)
	defer cancel()
	return t.Login(ctx, dev)
}

func (h *Hub) logout(dev string) {
	h.mu.RLock()
	t := h.tracker
	h.mu.RUnlock()
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), wsLoginTimeout)
	defer cancel()
	if err := t.Logout(ctx, dev); err != nil {
		h.logger.Debug("websocket logout failed", "device", dev, "error", err)
	}
}

// HandleEvent implements upsd.Sink. It never blocks: slow clients miss
// events. When a device is removed its followers lose the subscription
// without a logout, and a client left following nothing is disconnected.
func (h *Hub) HandleEvent(ev upsd.Event) {
	msg := WSMessage{
		Type:      WSTypeEvent,
		EventType: string(ev.Kind),
		Timestamp: ev.Time.UTC().Format(time.RFC3339Nano),
		Payload:   ev,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	dev := strings.ToLower(ev.Device)
	for _, client := range clients {
		if !client.follows(dev) {
			continue
		}
		client.trySend(data)
		if ev.Kind != upsd.EventDeviceRemoved {
			continue
		}
		if remaining, followed := client.drop(dev); followed && remaining == 0 {
			client.kick("device removed")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects every client. Logins are not released; the daemon
// is shutting down with the server.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
	wsClients.Set(0)
}

// handleWebSocket upgrades the connection. Each ?device= parameter is
// logged in before the upgrade, so an unknown device fails with 404
// instead of a closed socket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var devices []string
	for _, d := range r.URL.Query()["device"] {
		if d = strings.TrimSpace(d); d != "" {
			devices = append(devices, strings.ToLower(d))
		}
	}

	client := &WSClient{
		hub:     s.hub,
		send:    make(chan []byte, wsSendBufferSize),
		kicked:  make(chan string, 1),
		all:     len(devices) == 0,
		devices: make(map[string]struct{}, len(devices)),
	}
	for _, dev := range devices {
		if _, dup := client.devices[dev]; dup {
			continue
		}
		if err := s.hub.login(dev); err != nil {
			for held := range client.devices {
				s.hub.logout(held)
			}
			s.writeUPSError(w, r, err)
			return
		}
		client.devices[dev] = struct{}{}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		for held := range client.devices {
			s.hub.logout(held)
		}
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client.conn = conn

	s.hub.register(client)
	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := config.Seconds(cfg.PingInterval)
	pongWait := config.Seconds(cfg.PongTimeout)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(config.Seconds(cfg.PingInterval))
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := config.Seconds(cfg.PongTimeout)

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case reason := <-c.kicked:
			c.flush(writeWait)
			//nolint:errcheck // Best-effort close frame before dropping the connection
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, reason),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(msg)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func decodeSubscribe(msg WSMessage) (WSSubscribePayload, error) {
	var sub WSSubscribePayload
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return sub, err
	}
	err = json.Unmarshal(raw, &sub)
	return sub, err
}

// handleSubscribe logs in to each named device. A client that was
// receiving everything switches to following only what it names.
func (c *WSClient) handleSubscribe(msg WSMessage) {
	sub, err := decodeSubscribe(msg)
	if err != nil || len(sub.Devices) == 0 {
		c.sendError(msg.ID, "invalid subscribe payload")
		return
	}

	var added []string
	for _, dev := range sub.Devices {
		dev = strings.ToLower(strings.TrimSpace(dev))
		c.mu.RLock()
		_, have := c.devices[dev]
		c.mu.RUnlock()
		if have || dev == "" {
			continue
		}
		if err := c.hub.login(dev); err != nil {
			c.sendError(msg.ID, err.Error())
			continue
		}
		c.mu.Lock()
		c.devices[dev] = struct{}{}
		c.all = false
		c.mu.Unlock()
		added = append(added, dev)
	}

	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"subscribed": added})
}

func (c *WSClient) handleUnsubscribe(msg WSMessage) {
	sub, err := decodeSubscribe(msg)
	if err != nil {
		c.sendError(msg.ID, "invalid unsubscribe payload")
		return
	}

	var removed []string
	for _, dev := range sub.Devices {
		dev = strings.ToLower(strings.TrimSpace(dev))
		c.mu.Lock()
		_, have := c.devices[dev]
		delete(c.devices, dev)
		c.mu.Unlock()
		if have {
			c.hub.logout(dev)
			removed = append(removed, dev)
		}
	}

	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": removed})
}

func (c *WSClient) follows(dev string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.all {
		return true
	}
	_, ok := c.devices[dev]
	return ok
}

// drop forgets dev without a logout. It reports how many devices remain
// and whether the client was following devices by name at all.
func (c *WSClient) drop(dev string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.all {
		return 0, false
	}
	delete(c.devices, dev)
	return len(c.devices), true
}

func (c *WSClient) deviceList() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.devices))
	for dev := range c.devices {
		out = append(out, dev)
	}
	return out
}

// kick asks writePump to send what is queued and then close the
// connection; readPump then unregisters the client.
func (c *WSClient) kick(reason string) {
	select {
	case c.kicked <- reason:
	default:
	}
}

// flush writes queued messages without waiting for more.
func (c *WSClient) flush(writeWait time.Duration) {
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// trySend queues data without blocking. Closed channels (client gone
// mid-broadcast) and full buffers (slow client) drop the message.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
