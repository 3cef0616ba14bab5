package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/clage-homeserver/internal/audit"
	"github.com/nerrad567/clage-homeserver/internal/command"
	"github.com/nerrad567/clage-homeserver/internal/coordinator"
	"github.com/nerrad567/clage-homeserver/internal/device"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/config"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/logging"
	"github.com/nerrad567/clage-homeserver/internal/setup"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by infrastructure clients reported on
// /health (MQTT, InfluxDB, SQLite).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Registry    *device.Registry
	Coordinator *coordinator.Coordinator
	Dispatcher  *command.Dispatcher
	Setup       *setup.Flow                   // optional: runtime add/remove
	History     device.StateHistoryRepository // optional: snapshot history
	Audit       *audit.Recorder               // optional: change trail
	Checks      map[string]HealthChecker      // optional: reported on /health
	Version     string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	registry   *device.Registry
	coord      *coordinator.Coordinator
	dispatcher *command.Dispatcher
	setup      *setup.Flow
	history    device.StateHistoryRepository
	audit      *audit.Recorder
	checks     map[string]HealthChecker
	version    string
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
	listenOnce sync.Once
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. The WebSocket hub
// exists from here on, so listeners registered with RegisterListeners
// can broadcast before the listener is up.
//
// Parameters:
//   - deps: Required dependencies (logger, registry, coordinator, dispatcher)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("command dispatcher is required")
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		registry:   deps.Registry,
		coord:      deps.Coordinator,
		dispatcher: deps.Dispatcher,
		setup:      deps.Setup,
		history:    deps.History,
		audit:      deps.Audit,
		checks:     deps.Checks,
		version:    deps.Version,
		hub:        NewHub(deps.WS, deps.Logger, deps.Coordinator.Store().Get),
	}, nil
}

// RegisterListeners subscribes the WebSocket hub to coordinator updates and
// command results. Calls after the first are no-ops.
func (s *Server) RegisterListeners() {
	s.listenOnce.Do(func() {
		s.coord.AddListener(s.broadcastUpdate)
		s.dispatcher.AddListener(s.broadcastResult)
	})
}

// Start begins listening for HTTP connections.
//
// It registers the hub's listeners, starts the hub and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.RegisterListeners()
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
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

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
