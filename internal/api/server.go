package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/fritz-presence/internal/auth"
	"github.com/nerrad567/fritz-presence/internal/bridge"
	"github.com/nerrad567/fritz-presence/internal/device"
	"github.com/nerrad567/fritz-presence/internal/fritzbox"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/config"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the part of the synchroniser the API drives.
type Bridge interface {
	PollNow(ctx context.Context) (bridge.PollResult, error)
	RunAdmin(ctx context.Context, level int) (bridge.AdminResult, error)
	WakeDevice(ctx context.Context, mac string) error
	NextPoll() time.Time
}

// HostSource lists router hosts through a named filter.
type HostSource interface {
	Hosts(ctx context.Context, filter string) ([]fritzbox.Host, error)
	FilterNames() []string
}

// HealthChecker is implemented by every backing connection.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Bridge   Bridge
	Hosts    HostSource

	// Health lists named checks reported by /health. A failing check
	// marks the service degraded, it does not fail the request.
	Health map[string]HealthChecker

	// Hub is shared with the bridge, which broadcasts into it.
	Hub     *Hub
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	auth     *auth.Authenticator
	registry *device.Registry
	bridge   Bridge
	hosts    HostSource
	health   map[string]HealthChecker
	hub      *Hub
	tickets  *ticketStore
	version  string

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// Parameters:
//   - deps: Logger, Registry, Bridge and Hosts are required
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("device registry is required")
	case deps.Bridge == nil:
		return nil, fmt.Errorf("bridge is required")
	case deps.Hosts == nil:
		return nil, fmt.Errorf("host source is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		auth:     auth.NewAuthenticator(deps.Security),
		registry: deps.Registry,
		bridge:   deps.Bridge,
		hosts:    deps.Hosts,
		health:   deps.Health,
		hub:      hub,
		tickets:  newTicketStore(),
		version:  deps.Version,
	}, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background until Close.
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
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
