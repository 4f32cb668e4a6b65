package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/mcs-device-service/internal/device"
	"github.com/nerrad567/mcs-device-service/internal/events"
	"github.com/nerrad567/mcs-device-service/internal/infrastructure/config"
	"github.com/nerrad567/mcs-device-service/internal/infrastructure/logging"
	"github.com/nerrad567/mcs-device-service/internal/monitor"
	"github.com/nerrad567/mcs-device-service/internal/status"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by the database and the MQTT client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// MonitorControl is the part of the monitor the API drives.
type MonitorControl interface {
	ResetSnapshot()
	Stats() monitor.Stats
}

// CommandPublisher sends operator commands onto the bus.
type CommandPublisher interface {
	ServiceEvent(action string, p events.Payload) bool
}

// Deps holds the dependencies required by the API server.
//
// DB and MQTT are optional; pass untyped nils when absent.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Devices  device.Repository
	Statuses *status.Cache
	Monitor  MonitorControl
	Events   CommandPublisher
	DB       HealthChecker
	MQTT     HealthChecker
	Hub      *Hub // if set, the server uses this hub instead of creating its own
	Version  string
}

// Server is the HTTP API server.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	devices  device.Repository
	statuses *status.Cache
	monitor  MonitorControl
	events   CommandPublisher
	db       HealthChecker
	mqtt     HealthChecker
	version  string

	server      *http.Server
	listener    net.Listener
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Devices == nil:
		return nil, fmt.Errorf("device repository is required")
	case deps.Statuses == nil:
		return nil, fmt.Errorf("status cache is required")
	case deps.Monitor == nil:
		return nil, fmt.Errorf("monitor is required")
	case deps.Events == nil:
		return nil, fmt.Errorf("event publisher is required")
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		devices:  deps.Devices,
		statuses: deps.Statuses,
		monitor:  deps.Monitor,
		events:   deps.Events,
		db:       deps.DB,
		mqtt:     deps.MQTT,
		version:  deps.Version,
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}
	return s, nil
}

// Start binds the listener and serves in a background goroutine.
// It returns an error if the address cannot be bound.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger, s.statuses)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
