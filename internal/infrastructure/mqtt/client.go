package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mcs-device-service/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the device service event bus.
//
// It provides connection management with a fixed-delay reconnect loop,
// message publishing, and subscriptions whose handlers run on a bounded
// worker pool.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are restored on every reconnection.
//   - At most one reconnect attempt runs at a time.
type Client struct {
	client   pahomqtt.Client
	cfg      config.MQTTConfig
	clientID string
	delay    time.Duration

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	// reconnectMu is held for the whole reconnect loop.
	reconnectMu sync.Mutex

	// reconnectPending is set on every drop and cleared before each
	// connection attempt. A drop reported while the loop holds reconnectMu
	// stays visible to that loop.
	reconnectPending atomic.Bool

	// lifetime bounds the reconnect loop; cancelled by Close.
	lifetime context.Context
	cancel   context.CancelFunc
	closed   bool

	dispatch *dispatcher

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the logging interface used by the client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option configures a Client before its first connection attempt.
type Option func(*Client)

// WithLogger sets the logger used from the first connection attempt on.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on the client's worker pool, never on the paho network
// goroutine. A returned error is logged. A panic is recovered and logged.
type MessageHandler = func(topic string, payload []byte) error

// Connect creates a client and connects it to the broker.
//
// Failed attempts are retried after cfg.Reconnect.Delay, up to
// cfg.Reconnect.MaxAttempts attempts (0 means until ctx ends). Once
// connected, a lost connection is re-established by the same fixed-delay
// loop until Close.
func Connect(ctx context.Context, cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = generateClientID(time.Now())
	}

	c := &Client{
		cfg:           cfg,
		clientID:      clientID,
		delay:         cfg.Reconnect.Delay,
		subscriptions: make(map[string]subscription),
		logger:        noopLogger{},
	}
	if c.delay <= 0 {
		c.delay = defaultReconnectDelay
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lifetime, c.cancel = context.WithCancel(context.Background())
	c.dispatch = newDispatcher(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, c.getLogger)

	pahoOpts := buildClientOptions(cfg, clientID)
	configureLWT(pahoOpts, clientID)
	pahoOpts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	c.client = pahomqtt.NewClient(pahoOpts)

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(c.delay)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.getLogger().Warn("MQTT connect failed, retrying",
				"broker", cfg.Broker.Host,
				"port", cfg.Broker.Port,
				"retry_in", next,
				"error", err,
			)
		}),
	}
	if cfg.Reconnect.MaxAttempts > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxTries(uint(cfg.Reconnect.MaxAttempts)))
	}

	if _, err := backoff.Retry(ctx, c.connectOnce, retryOpts...); err != nil {
		c.cancel()
		c.dispatch.stop()
		if c.client.IsConnectionOpen() {
			c.client.Disconnect(0)
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// OnConnect runs asynchronously and may not have fired yet.
	c.setConnected(c.client.IsConnected())
	c.getLogger().Info("MQTT connected", "broker", cfg.Broker.Host, "port", cfg.Broker.Port, "client_id", clientID)

	return c, nil
}

// connectOnce makes a single connection attempt.
func (c *Client) connectOnce() (struct{}, error) {
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return struct{}{}, fmt.Errorf("timeout after %v", defaultConnectTimeout)
	}
	return struct{}{}, token.Error()
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.setConnected(true)
	c.restoreSubscriptions()
	c.publishOnlineStatus()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when an established connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)
	c.reconnectPending.Store(true)
	c.getLogger().Warn("MQTT connection lost", "error", err)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}

	go c.reconnect()
}

// reconnect runs the reconnect loop unless one is already running. The
// owner re-checks for a pending drop after releasing the lock so a drop
// that lost the TryLock race is never ignored.
func (c *Client) reconnect() {
	for {
		if c.lifetime.Err() != nil || !c.reconnectMu.TryLock() {
			return
		}
		if c.reconnectPending.Load() || !c.client.IsConnected() {
			c.reconnectLoop()
		}
		c.reconnectMu.Unlock()

		if !c.reconnectPending.Load() {
			return
		}
	}
}

// reconnectLoop waits the fixed delay between attempts until the transport
// is up with no drop reported since the last attempt, or until Close.
// Caller holds reconnectMu.
func (c *Client) reconnectLoop() {
	attempt := 0
	for {
		select {
		case <-c.lifetime.Done():
			return
		case <-time.After(c.delay):
		}

		_, err := backoff.Retry(c.lifetime, func() (struct{}, error) {
			attempt++
			c.reconnectPending.Store(false)
			c.getLogger().Info("MQTT reconnecting", "attempt", attempt)
			return c.connectOnce()
		},
			backoff.WithBackOff(backoff.NewConstantBackOff(c.delay)),
			backoff.WithMaxElapsedTime(0),
		)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.getLogger().Error("MQTT reconnect abandoned", "error", err)
			}
			return
		}

		if c.client.IsConnected() && !c.reconnectPending.Load() {
			c.setConnected(true)
			c.getLogger().Info("MQTT reconnected", "attempts", attempt)
			return
		}
		c.getLogger().Warn("MQTT connection lost again during reconnect", "attempts", attempt)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

func (c *Client) publishOnlineStatus() {
	c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, statusPayload("online", c.clientID, ""))
}

// Close publishes a graceful offline status, stops the reconnect loop,
// disconnects and drains queued handlers.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.connMu.Lock()
	if c.closed {
		c.connMu.Unlock()
		return nil
	}
	wasConnected := c.connected && c.client.IsConnected()
	c.closed = true
	c.connMu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	if wasConnected {
		token := c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
			statusPayload("offline", c.clientID, "graceful_shutdown"))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)

	if c.dispatch != nil {
		c.dispatch.stop()
	}
	return nil
}

// HealthCheck reports ErrNotConnected while the connection is down and
// ErrClosed after Close.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if c.isClosed() {
		return ErrClosed
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.closed
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && !c.closed && c.client != nil && c.client.IsConnected()
}

// ClientID returns the MQTT client identifier in use.
func (c *Client) ClientID() string {
	return c.clientID
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// SetOnConnect sets a callback invoked on every (re)connection.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

// wrapHandler queues each message onto the worker pool. The payload is
// copied because paho may reuse the buffer.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		payload := append([]byte(nil), msg.Payload()...)
		if !c.dispatch.submit(job{handler: handler, topic: msg.Topic(), payload: payload}) {
			c.getLogger().Warn("MQTT message dropped, handler queue full",
				"topic", msg.Topic(),
				"queue_size", cap(c.dispatch.jobs),
			)
		}
	}
}
