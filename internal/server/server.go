package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/catalog-authz/internal/authz"
	"github.com/vyrodovalexey/catalog-authz/internal/catalog"
	"github.com/vyrodovalexey/catalog-authz/internal/config"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
	"github.com/vyrodovalexey/catalog-authz/internal/route"
	"github.com/vyrodovalexey/catalog-authz/internal/server/middleware"
)

// Operational endpoints. They are served outside the authorization gate.
const (
	PathHealthz = "/healthz"
	PathReadyz  = "/readyz"
)

// ReadinessCheckRoutes is the readiness check set once the route table
// has been validated against the registered routes.
const ReadinessCheckRoutes = "routes"

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions.
var ginModeOnce sync.Once

// Deps are the components the server wires together.
type Deps struct {
	Gate    *authz.Gate
	Catalog *catalog.Handler
	Table   *route.Table
	Metrics *observability.Metrics
	Health  *Checker
	Logger  observability.Logger
}

// Server is the catalog API HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	health     *Checker
	logger     observability.Logger
	cfg        *config.Config

	mu       sync.Mutex
	listener net.Listener
}

// New builds the server. It fails if the route table and the registered
// protected routes disagree.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Gate == nil || deps.Catalog == nil || deps.Table == nil {
		return nil, errors.New("server requires a gate, a catalog handler and a route table")
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Health == nil {
		deps.Health = NewChecker("")
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Tracing(cfg.Service.Name),
		middleware.Logging(deps.Logger),
		middleware.Recovery(deps.Logger),
		middleware.Metrics(deps.Metrics),
		middleware.CORSWithConfig(middleware.CatalogCORSConfig(cfg.CORS.AllowedOrigin)),
	)

	engine.GET(PathHealthz, deps.Health.HealthHandler())
	engine.GET(PathReadyz, deps.Health.ReadinessHandler())
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = config.DefaultMetricsPath
		}
		engine.GET(path, gin.WrapH(deps.Metrics.Handler()))
	}

	gate := deps.Gate.Middleware()
	protected := engine.Group("/", gate)
	declared := deps.Catalog.Register(protected)

	// Anything else also goes through the gate, so an unknown path is
	// indistinguishable from a forbidden one.
	engine.NoRoute(gate)

	if err := deps.Table.Validate(declared); err != nil {
		deps.Health.MarkNotReady(ReadinessCheckRoutes, err.Error())
		return nil, fmt.Errorf("route table does not match registered routes: %w", err)
	}
	deps.Health.MarkReady(ReadinessCheckRoutes, fmt.Sprintf("%d protected routes", len(declared)))

	s := &Server{
		engine: engine,
		health: deps.Health,
		logger: deps.Logger,
		cfg:    cfg,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           engine,
		ReadTimeout:       cfg.Server.ReadTimeout.Duration(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:      cfg.Server.WriteTimeout.Duration(),
	}
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the listening address once Start has bound it.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves until Shutdown. It returns nil after
// a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", ln.Addr().String()),
		observability.Duration("read_timeout", s.httpServer.ReadTimeout),
		observability.Duration("write_timeout", s.httpServer.WriteTimeout),
	)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	s.health.MarkNotReady("shutdown", "server is shutting down")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}
