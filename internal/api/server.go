package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-knxlink/internal/link"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// LinkSource exposes the running link. *link.Service satisfies it.
type LinkSource interface {
	LinkID() string
	Health() link.HealthMessage
	Status() *link.ChannelStatus
}

// SessionStore reads the session journal. *link.Journal satisfies it.
type SessionStore interface {
	RecentSessions(ctx context.Context, linkID string, limit int) ([]link.Session, error)
	Commands(ctx context.Context, sessionID string) ([]link.CommandRecord, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Link    LinkSource
	Journal SessionStore // optional: session endpoints answer 503 without it
	Metrics http.Handler // optional: /metrics is not mounted without it
	Events  *Hub         // optional: /api/v1/events is not mounted without it
	Version string
}

// Server is the knxlink HTTP server.
//
// Thread Safety: All methods are safe for concurrent use.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	link    LinkSource
	journal SessionStore
	metrics http.Handler
	events  *Hub
	version string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Link == nil {
		return nil, fmt.Errorf("link is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		link:    deps.Link,
		journal: deps.Journal,
		metrics: deps.Metrics,
		events:  deps.Events,
		version: deps.Version,
	}, nil
}

// Start binds the listener and serves in a background goroutine.
// The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for the listen call
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// Event stream clients are disconnected first. It then waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if s.events != nil {
		s.events.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
