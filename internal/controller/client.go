package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/mcs-device-service/internal/device"
	"github.com/nerrad567/mcs-device-service/internal/infrastructure/config"
)

// maxResponseBody bounds how much of a controller response is read.
const maxResponseBody = 64 << 10

// Client issues liveness probes and start requests to proxies.
type Client struct {
	httpClient *http.Client
	dialer     *net.Dialer

	probeTimeout     time.Duration
	startTimeout     time.Duration
	portCheckTimeout time.Duration
	healthPath       string
	startPath        string
}

// NewClient creates a client from controller settings. Zero values fall
// back to the package defaults.
func NewClient(cfg config.ControllerConfig) *Client {
	c := &Client{
		// Deadlines come from per-call contexts.
		httpClient:       &http.Client{},
		dialer:           &net.Dialer{},
		probeTimeout:     cfg.ProbeTimeout,
		startTimeout:     cfg.StartTimeout,
		portCheckTimeout: cfg.PortCheckTimeout,
		healthPath:       cfg.HealthPath,
		startPath:        cfg.StartPath,
	}
	if c.probeTimeout <= 0 {
		c.probeTimeout = 5 * time.Second
	}
	if c.startTimeout <= 0 {
		c.startTimeout = 2 * time.Second
	}
	if c.portCheckTimeout <= 0 {
		c.portCheckTimeout = 200 * time.Millisecond
	}
	if c.healthPath == "" {
		c.healthPath = "/health"
	}
	if c.startPath == "" {
		c.startPath = "/start"
	}
	return c
}

// ProbeLiveness checks the proxy's port and then GETs its health path.
func (c *Client) ProbeLiveness(ctx context.Context, host string, port int) Result {
	if err := c.checkPort(ctx, host, port); err != nil {
		return preflightFailure(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, baseURL(host, port)+c.healthPath, nil)
	if err != nil {
		return transportFailure(err)
	}

	code, msg, err := c.do(req)
	if err != nil {
		return classifyTransport(reqCtx, err)
	}
	if code != http.StatusOK {
		return statusFailure(code)
	}
	return Result{Outcome: OutcomeOK, Message: msgOr(msg, defaultProbeMessage), StatusCode: code}
}

// startRequest is the JSON body of a start call. All values are strings.
type startRequest struct {
	ID             string  `json:"id"`
	ControllerType string  `json:"controllerType"`
	Host           string  `json:"host"`
	Port           string  `json:"port"`
	Remark         *string `json:"remark"`
}

// RequestStart asks the proxy to start (or keep running) its service.
func (c *Client) RequestStart(ctx context.Context, d device.Device) Result {
	if err := c.checkPort(ctx, d.Host, d.Port); err != nil {
		return preflightFailure(err)
	}

	body := startRequest{
		ID:             strconv.FormatInt(d.ID, 10),
		ControllerType: d.ControllerType,
		Host:           d.Host,
		Port:           strconv.Itoa(d.Port),
	}
	if d.Remark != "" {
		remark := d.Remark
		body.Remark = &remark
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return transportFailure(fmt.Errorf("encoding start request: %w", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.startTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, baseURL(d.Host, d.Port)+c.startPath, bytes.NewReader(payload))
	if err != nil {
		return transportFailure(err)
	}
	req.Header.Set("Content-Type", "application/json")

	code, msg, err := c.do(req)
	if err != nil {
		return classifyTransport(reqCtx, err)
	}
	switch code {
	case http.StatusOK:
		return Result{Outcome: OutcomeStarted, Message: msgOr(msg, defaultStartMessage), StatusCode: code}
	case http.StatusNotFound:
		return Result{Outcome: OutcomeNotFound, Message: MessageNotFound, StatusCode: code, Err: ErrNotFound}
	default:
		return statusFailure(code)
	}
}

// checkPort opens and immediately closes a TCP connection.
func (c *Client) checkPort(ctx context.Context, host string, port int) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.portCheckTimeout)
	defer cancel()

	conn, err := c.dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return conn.Close()
}

// do sends req and returns the status code and the body's "message" field,
// if the body is a JSON object that has one.
func (c *Client) do(req *http.Request) (int, string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, "", fmt.Errorf("reading response: %w", err)
	}

	var body struct {
		Message *string `json:"message"`
	}
	if json.Unmarshal(data, &body) != nil || body.Message == nil {
		return resp.StatusCode, "", nil
	}
	return resp.StatusCode, *body.Message, nil
}

func classifyTransport(reqCtx context.Context, err error) Result {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return timeoutFailure(err)
	}
	return transportFailure(err)
}

func baseURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func msgOr(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}
