package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/mcs-device-service/internal/device"
	"github.com/nerrad567/mcs-device-service/internal/infrastructure/config"
)

func testClient() *Client {
	return NewClient(config.ControllerConfig{
		ProbeTimeout:     200 * time.Millisecond,
		StartTimeout:     200 * time.Millisecond,
		PortCheckTimeout: 200 * time.Millisecond,
	})
}

// hostPort splits a listener address into host and numeric port.
func hostPort(t *testing.T, addr net.Addr) (string, int) {
	t.Helper()
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected address type %T", addr)
	}
	return tcp.IP.String(), tcp.Port
}

// closedPort returns a local port with nothing listening on it.
func closedPort(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, port := hostPort(t, ln.Addr())
	ln.Close()
	return host, port
}

func proxyServer(t *testing.T, handler http.Handler) (string, int) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return hostPort(t, srv.Listener.Addr())
}

// ============================================================================
// ProbeLiveness
// ============================================================================

func TestProbeLiveness_OK(t *testing.T) {
	host, port := proxyServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/health" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"message":"proxy ready"}`))
	}))

	res := testClient().ProbeLiveness(context.Background(), host, port)
	if res.Outcome != OutcomeOK || !res.Success() {
		t.Fatalf("Outcome = %v, want ok (err %v)", res.Outcome, res.Err)
	}
	if res.Message != "proxy ready" {
		t.Errorf("Message = %q, want %q", res.Message, "proxy ready")
	}
}

func TestProbeLiveness_DefaultMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no message field", `{"status":"up"}`},
		{"not json", `pong`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port := proxyServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			res := testClient().ProbeLiveness(context.Background(), host, port)
			if res.Outcome != OutcomeOK || res.Message != "OK" {
				t.Errorf("got %v %q, want ok \"OK\"", res.Outcome, res.Message)
			}
		})
	}
}

func TestProbeLiveness_CustomHealthPath(t *testing.T) {
	host, port := proxyServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"message":"OK"}`))
	}))

	c := NewClient(config.ControllerConfig{HealthPath: "/Health"})
	if res := c.ProbeLiveness(context.Background(), host, port); res.Outcome != OutcomeOK {
		t.Errorf("Outcome = %v, want ok", res.Outcome)
	}
}

func TestProbeLiveness_PortClosed(t *testing.T) {
	host, port := closedPort(t)

	res := testClient().ProbeLiveness(context.Background(), host, port)
	if res.Outcome != OutcomeConnectError || !res.Preflight {
		t.Fatalf("got outcome %v preflight %v, want connect_error/true", res.Outcome, res.Preflight)
	}
	if res.Message != MessagePortClosed {
		t.Errorf("Message = %q", res.Message)
	}
	if !errors.Is(res.Err, ErrPortClosed) {
		t.Errorf("Err = %v, want ErrPortClosed", res.Err)
	}
}

func TestProbeLiveness_NonOK(t *testing.T) {
	host, port := proxyServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	res := testClient().ProbeLiveness(context.Background(), host, port)
	if res.Outcome != OutcomeRemoteError || res.StatusCode != 503 {
		t.Fatalf("got %v code %d, want remote_error 503", res.Outcome, res.StatusCode)
	}
	if res.Message != "HTTP 503" {
		t.Errorf("Message = %q, want HTTP 503", res.Message)
	}
	if !errors.Is(res.Err, ErrUnexpectedStatus) {
		t.Errorf("Err = %v", res.Err)
	}
}

func TestProbeLiveness_OtherSuccessCodeIsNotHealthy(t *testing.T) {
	host, port := proxyServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	res := testClient().ProbeLiveness(context.Background(), host, port)
	if res.Outcome != OutcomeRemoteError || res.StatusCode != http.StatusNoContent {
		t.Fatalf("got %v code %d, want remote_error 204", res.Outcome, res.StatusCode)
	}
}

func TestProbeLiveness_Timeout(t *testing.T) {
	host, port := proxyServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))

	res := testClient().ProbeLiveness(context.Background(), host, port)
	if res.Outcome != OutcomeTimeout || res.Message != MessageTimeout {
		t.Fatalf("got %v %q, want timeout NG_Timeout", res.Outcome, res.Message)
	}
	if res.Preflight {
		t.Error("Preflight = true for an HTTP timeout")
	}
}

func TestProbeLiveness_TransportErrorAfterPreflight(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	host, port := hostPort(t, ln.Addr())

	res := testClient().ProbeLiveness(context.Background(), host, port)
	if res.Outcome != OutcomeConnectError || res.Preflight {
		t.Fatalf("got %v preflight %v, want connect_error/false", res.Outcome, res.Preflight)
	}
	if !strings.HasPrefix(res.Message, "Error: ") {
		t.Errorf("Message = %q, want Error: prefix", res.Message)
	}
}

// ============================================================================
// RequestStart
// ============================================================================

func TestRequestStart_Started(t *testing.T) {
	var got map[string]any
	host, port := proxyServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/start" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"message":"started"}`))
	}))

	d := device.Device{ID: 1, Host: host, Port: port, ControllerType: "E82"}
	res := testClient().RequestStart(context.Background(), d)
	if res.Outcome != OutcomeStarted || res.Message != "started" {
		t.Fatalf("got %v %q, want started", res.Outcome, res.Message)
	}

	if got["id"] != "1" || got["controllerType"] != "E82" || got["host"] != host {
		t.Errorf("start body = %v", got)
	}
	if _, isString := got["port"].(string); !isString {
		t.Errorf("port sent as %T, want string", got["port"])
	}
	if remark, present := got["remark"]; !present || remark != nil {
		t.Errorf("remark = %v (present %v), want null", remark, present)
	}
}

func TestRequestStart_DefaultMessage(t *testing.T) {
	host, port := proxyServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	res := testClient().RequestStart(context.Background(), device.Device{ID: 2, Host: host, Port: port})
	if res.Message != "Proxy service start initiated" {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestRequestStart_NotFound(t *testing.T) {
	host, port := proxyServer(t, http.NotFoundHandler())

	res := testClient().RequestStart(context.Background(), device.Device{ID: 3, Host: host, Port: port})
	if res.Outcome != OutcomeNotFound || res.Message != MessageNotFound {
		t.Fatalf("got %v %q, want not_found", res.Outcome, res.Message)
	}
	if !errors.Is(res.Err, ErrNotFound) {
		t.Errorf("Err = %v", res.Err)
	}
}

func TestRequestStart_RemoteError(t *testing.T) {
	host, port := proxyServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	res := testClient().RequestStart(context.Background(), device.Device{Host: host, Port: port})
	if res.Outcome != OutcomeRemoteError || res.Message != "HTTP 500" {
		t.Errorf("got %v %q", res.Outcome, res.Message)
	}
}

func TestRequestStart_PortClosedSendsNothing(t *testing.T) {
	host, port := closedPort(t)

	res := testClient().RequestStart(context.Background(), device.Device{Host: host, Port: port})
	if res.Outcome != OutcomeConnectError || !res.Preflight {
		t.Errorf("got %v preflight %v", res.Outcome, res.Preflight)
	}
}

func TestClient_NoRetries(t *testing.T) {
	var calls atomic.Int32
	host, port := proxyServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	testClient().ProbeLiveness(context.Background(), host, port)
	testClient().RequestStart(context.Background(), device.Device{Host: host, Port: port})

	if n := calls.Load(); n != 2 {
		t.Errorf("server saw %d requests, want 2", n)
	}
}

func TestOutcome_String(t *testing.T) {
	if OutcomeRemoteError.String() != "remote_error" || Outcome(42).String() != "outcome(42)" {
		t.Error("unexpected Outcome.String output")
	}
}
