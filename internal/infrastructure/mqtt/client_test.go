package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mcs-device-service/internal/infrastructure/config"
)

const testBrokerAddr = "127.0.0.1:1883"

// testConfig returns an MQTT configuration pointing at a local broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: fmt.Sprintf("device-service-test-%d", time.Now().UnixNano()),
		},
		QoS:       1,
		KeepAlive: 30 * time.Second,
		Reconnect: config.MQTTReconnectConfig{
			Delay:       50 * time.Millisecond,
			MaxAttempts: 1,
		},
		Dispatch: config.MQTTDispatchConfig{Workers: 2, QueueSize: 8},
	}
}

// connectOrSkip connects to the local broker or skips the test.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testBrokerAddr, 200*time.Millisecond)
	if err != nil {
		t.Skipf("no MQTT broker at %s", testBrokerAddr)
	}
	conn.Close()

	client, err := Connect(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// captureLogger records log calls.
type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *captureLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.log("DEBUG", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.log("INFO", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.log("WARN", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.log("ERROR", msg) }

func (l *captureLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// offlineClient builds a client that was never connected.
func offlineClient(t *testing.T) *Client {
	t.Helper()
	cfg := testConfig()
	c := &Client{
		client:        pahomqtt.NewClient(buildClientOptions(cfg, "offline")),
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
		logger:        noopLogger{},
	}
	c.dispatch = newDispatcher(1, 1, c.getLogger)
	t.Cleanup(c.dispatch.stop)
	return c
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_BrokerRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := testConfig()
	cfg.Broker.Port = port
	cfg.Reconnect.MaxAttempts = 2
	logger := &captureLogger{}

	start := time.Now()
	_, err = Connect(context.Background(), cfg, WithLogger(logger))
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if elapsed := time.Since(start); elapsed < cfg.Reconnect.Delay {
		t.Errorf("Connect() returned after %v, want at least one %v delay", elapsed, cfg.Reconnect.Delay)
	}
	if !logger.contains("retrying") {
		t.Error("retry was not logged")
	}
}

func TestConnect_ContextCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1
	cfg.Reconnect.MaxAttempts = 0
	cfg.Reconnect.Delay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := Connect(ctx, cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Broker(t *testing.T) {
	client := connectOrSkip(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t)

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestCloseNil(t *testing.T) {
	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on empty client error = %v", err)
	}
}

func TestHealthCheck_Offline(t *testing.T) {
	c := offlineClient(t)

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() cancelled error = %v", err)
	}
}

func TestClosedClient(t *testing.T) {
	c := offlineClient(t)
	c.closed = true

	if err := c.Publish("mcs/a", []byte("{}"), 1, false); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() error = %v, want ErrClosed", err)
	}
	handler := func(string, []byte) error { return nil }
	if err := c.Subscribe("mcs/a/+", 1, handler); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe() error = %v, want ErrClosed", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("HealthCheck() error = %v, want ErrClosed", err)
	}
}

func TestGenerateClientID(t *testing.T) {
	id := generateClientID(time.UnixMilli(1700000000123))
	if !regexp.MustCompile(`^device_service_1700000000123_\d+$`).MatchString(id) {
		t.Errorf("generateClientID() = %q", id)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "svc"
	cfg.Auth.Password = "secret"
	opts := buildClientOptions(cfg, "cid")
	configureLWT(opts, "cid")

	if opts.AutoReconnect {
		t.Error("paho auto-reconnect should be disabled")
	}
	if opts.ClientID != "cid" || opts.Username != "svc" {
		t.Errorf("ClientID=%q Username=%q", opts.ClientID, opts.Username)
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.KeepAlive != 30 {
		t.Errorf("KeepAlive = %d, want 30", opts.KeepAlive)
	}
	if opts.WillTopic != "mcs/system/DeviceService/status" || !opts.WillRetained {
		t.Errorf("will topic=%q retained=%v", opts.WillTopic, opts.WillRetained)
	}
}

// =============================================================================
// Publish / Subscribe validation
// =============================================================================

func TestPublish_Validation(t *testing.T) {
	c := offlineClient(t)

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		want    error
	}{
		{"empty topic", "", 0, nil, ErrInvalidTopic},
		{"wildcard topic", "mcs/events/+", 0, nil, ErrInvalidTopic},
		{"bad qos", "mcs/a", 3, nil, ErrInvalidQoS},
		{"too large", "mcs/a", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"offline", "mcs/a", 1, []byte("{}"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := offlineClient(t)
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("mcs/#/x", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("misplaced # error = %v", err)
	}
	if err := c.Subscribe("mcs/a", 5, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe("mcs/a", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("mcs/a/+", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("offline error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Error("failed subscribe was tracked")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

func TestValidateFilter(t *testing.T) {
	valid := []string{"mcs/events/deviceService/+", "mcs/#", "#", "+/status/+"}
	invalid := []string{"", "mcs/#/x", "mcs/dev+", "mcs/a#"}

	for _, f := range valid {
		if err := validateFilter(f); err != nil {
			t.Errorf("validateFilter(%q) error = %v", f, err)
		}
	}
	for _, f := range invalid {
		if err := validateFilter(f); err == nil {
			t.Errorf("validateFilter(%q) expected error", f)
		}
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t)

	topic := fmt.Sprintf("mcs/test/%d/status", time.Now().UnixNano())
	received := make(chan string, 1)
	err := client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topic) {
		t.Error("subscription not tracked")
	}

	if err := client.Publish(topic, []byte(`{"id":"1"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != `{"id":"1"}` {
			t.Errorf("received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
}

// =============================================================================
// Dispatch
// =============================================================================

func TestDispatcher_RunsHandlers(t *testing.T) {
	logger := &captureLogger{}
	d := newDispatcher(2, 16, func() Logger { return logger })

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		ok := d.submit(job{
			topic:   "t",
			handler: func(string, []byte) error { count.Add(1); return nil },
		})
		if !ok {
			t.Fatalf("submit %d rejected", i)
		}
	}
	d.stop()

	if n := count.Load(); n != 10 {
		t.Errorf("handled %d jobs, want 10", n)
	}
	if d.submit(job{handler: func(string, []byte) error { return nil }}) {
		t.Error("submit accepted after stop")
	}
}

func TestDispatcher_RecoversPanicsAndLogsErrors(t *testing.T) {
	logger := &captureLogger{}
	d := newDispatcher(1, 4, func() Logger { return logger })

	d.submit(job{topic: "a", handler: func(string, []byte) error { panic("boom") }})
	d.submit(job{topic: "b", handler: func(string, []byte) error { return errors.New("bad payload") }})
	d.stop()

	if !logger.contains("panic recovered") {
		t.Error("panic was not logged")
	}
	if !logger.contains("handler returned error") {
		t.Error("handler error was not logged")
	}
}

func TestWrapHandler_DropsWhenQueueFull(t *testing.T) {
	logger := &captureLogger{}
	c := &Client{logger: logger}

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	c.dispatch = newDispatcher(1, 1, c.getLogger)
	defer func() {
		close(block)
		c.dispatch.stop()
	}()

	handler := c.wrapHandler(func(string, []byte) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	})

	handler(nil, fakeMessage{topic: "mcs/x", payload: []byte("1")})
	<-started
	handler(nil, fakeMessage{topic: "mcs/x", payload: []byte("2")}) // fills queue
	handler(nil, fakeMessage{topic: "mcs/x", payload: []byte("3")}) // dropped

	if !logger.contains("dropped") {
		t.Error("dropped message was not logged")
	}
}
