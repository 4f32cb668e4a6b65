package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/mcs-device-service/internal/events"
	"github.com/nerrad567/mcs-device-service/internal/infrastructure/config"
	"github.com/nerrad567/mcs-device-service/internal/infrastructure/logging"
	"github.com/nerrad567/mcs-device-service/internal/status"
)

// Stream message types.
const (
	StreamSubscribe   = "subscribe"
	StreamUnsubscribe = "unsubscribe"
	StreamPing        = "ping"
	StreamPong        = "pong"
	StreamEvent       = "event"
	StreamSnapshot    = "snapshot"
	StreamAck         = "ack"
	StreamError       = "error"

	streamSendBuffer = 256

	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30 * time.Second
	defaultWSPongTimeout    = 10 * time.Second
)

// streamChannels are the bus event families a client may follow.
var streamChannels = map[string]struct{}{
	events.ChannelProxyStatus:  {},
	events.ChannelDeviceStatus: {},
	events.ChannelServiceEvent: {},
}

// StreamMessage is one frame on the status stream, in either direction.
//
// Clients send subscribe/unsubscribe with {"channels": [...]} and ping.
// The server sends ack, error, pong, event frames for relayed bus events,
// and one snapshot frame with the cached statuses when a client subscribes
// to proxy.status.
type StreamMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ChannelList is the payload of subscribe, unsubscribe and their acks.
type ChannelList struct {
	Channels []string `json:"channels"`
}

// StatusLister supplies the snapshot sent on subscribe.
type StatusLister interface {
	All() []status.DeviceStatus
}

// Hub fans bus events out to connected status-stream clients. It
// implements events.Relay.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	statuses StatusLister

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// NewHub creates a hub. statuses may be nil, in which case subscribers get
// no initial snapshot.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, statuses StatusLister) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		statuses: statuses,
		clients:  make(map[*streamClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast relays one bus event to the clients following channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeFrame(StreamEvent, "", channel, payload)
	if err != nil {
		h.logger.Error("encoding stream event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.follows(channel) {
			c.enqueue(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("stream event relayed", "channel", channel, "clients", sent)
	}
}

func (h *Hub) add(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("stream client connected", "clients", n)
}

// remove closes the send channel only if c was still registered, so Run
// and a read error never both close it.
func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
	}
	h.logger.Debug("stream client disconnected", "clients", n)
}

// handleWebSocket upgrades to the status stream. Clients receive nothing
// until they subscribe.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, streamSendBuffer),
		channels: make(map[string]struct{}),
	}
	s.hub.add(c)

	limits := newStreamLimits(s.wsCfg)
	go c.writeLoop(limits)
	go c.readLoop(limits)
}

type streamLimits struct {
	maxSize  int64
	ping     time.Duration
	pongWait time.Duration
}

func newStreamLimits(cfg config.WebSocketConfig) streamLimits {
	l := streamLimits{
		maxSize:  defaultWSMaxMessageSize,
		ping:     defaultWSPingInterval,
		pongWait: defaultWSPongTimeout,
	}
	if cfg.MaxMessageSize > 0 {
		l.maxSize = int64(cfg.MaxMessageSize)
	}
	if cfg.PingInterval > 0 {
		l.ping = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		l.pongWait = time.Duration(cfg.PongTimeout) * time.Second
	}
	return l
}

func (l streamLimits) readDeadline() time.Time {
	return time.Now().Add(l.ping + l.pongWait)
}

func (c *streamClient) readLoop(l streamLimits) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(l.maxSize)
	_ = c.conn.SetReadDeadline(l.readDeadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(l.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("stream read error", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(l.readDeadline())
		c.dispatch(data)
	}
}

func (c *streamClient) writeLoop(l streamLimits) {
	ticker := time.NewTicker(l.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(l.pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(l.pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *streamClient) dispatch(data []byte) {
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(StreamError, "", "", errorBody("invalid JSON message"))
		return
	}

	switch msg.Type {
	case StreamSubscribe:
		c.subscribe(msg)
	case StreamUnsubscribe:
		c.unsubscribe(msg)
	case StreamPing:
		c.reply(StreamPong, msg.ID, "", nil)
	default:
		c.reply(StreamError, msg.ID, "", errorBody("unknown message type: "+msg.Type))
	}
}

// channelList decodes the channel list of msg and checks every name
// against streamChannels.
func channelList(msg StreamMessage) ([]string, string) {
	var list ChannelList
	if len(msg.Payload) == 0 || json.Unmarshal(msg.Payload, &list) != nil || len(list.Channels) == 0 {
		return nil, "payload must be {\"channels\": [...]}"
	}

	var unknown []string
	for _, ch := range list.Channels {
		if _, ok := streamChannels[ch]; !ok {
			unknown = append(unknown, ch)
		}
	}
	if len(unknown) > 0 {
		return nil, "unknown channel: " + strings.Join(unknown, ", ")
	}
	return list.Channels, ""
}

// subscribe is all or nothing: one unknown channel rejects the request.
func (c *streamClient) subscribe(msg StreamMessage) {
	chans, problem := channelList(msg)
	if problem != "" {
		c.reply(StreamError, msg.ID, "", errorBody(problem))
		return
	}

	c.mu.Lock()
	for _, ch := range chans {
		c.channels[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("stream client subscribed", "channels", chans)
	c.reply(StreamAck, msg.ID, "", ChannelList{Channels: chans})

	for _, ch := range chans {
		if ch == events.ChannelProxyStatus && c.hub.statuses != nil {
			c.reply(StreamSnapshot, msg.ID, ch, c.hub.statuses.All())
			break
		}
	}
}

func (c *streamClient) unsubscribe(msg StreamMessage) {
	chans, problem := channelList(msg)
	if problem != "" {
		c.reply(StreamError, msg.ID, "", errorBody(problem))
		return
	}

	c.mu.Lock()
	for _, ch := range chans {
		delete(c.channels, ch)
	}
	c.mu.Unlock()

	c.reply(StreamAck, msg.ID, "", ChannelList{Channels: chans})
}

func (c *streamClient) follows(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *streamClient) reply(msgType, id, channel string, payload any) {
	data, err := encodeFrame(msgType, id, channel, payload)
	if err != nil {
		c.hub.logger.Error("encoding stream reply", "type", msgType, "error", err)
		return
	}
	c.enqueue(data)
}

// enqueue drops the frame when the client is slow or already gone.
func (c *streamClient) enqueue(data []byte) {
	defer func() {
		_ = recover() // send on a channel closed by Run
	}()
	select {
	case c.send <- data:
	default:
	}
}

func encodeFrame(msgType, id, channel string, payload any) ([]byte, error) {
	msg := StreamMessage{
		Type:      msgType,
		ID:        id,
		Channel:   channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}

func errorBody(message string) map[string]string {
	return map[string]string{"message": message}
}
