package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openbiocards/biocard-core/internal/auth"
	"github.com/openbiocards/biocard-core/internal/crypto"
	"github.com/openbiocards/biocard-core/internal/infrastructure/config"
	"github.com/openbiocards/biocard-core/internal/infrastructure/logging"
	"github.com/openbiocards/biocard-core/internal/profile"
	"github.com/openbiocards/biocard-core/internal/system"
	"github.com/openbiocards/biocard-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Users        auth.UserRepository
	System       *system.Service
	Profiles     profile.Repository
	Crypto       *crypto.Manager
	ClientTokens *crypto.ClientTokenIssuer
	Monitor      *telemetry.Monitor
	Version      string
}

// Server is the HTTP API server for BioCard Core.
//
// It manages the HTTP listener, routes, and middleware pipeline.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	users        auth.UserRepository
	system       *system.Service
	profiles     profile.Repository
	crypto       *crypto.Manager
	clientTokens *crypto.ClientTokenIssuer
	monitor      *telemetry.Monitor
	version      string
	startedAt    time.Time
	server       *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.System == nil {
		return nil, fmt.Errorf("system service is required")
	}
	if deps.Profiles == nil {
		return nil, fmt.Errorf("profile repository is required")
	}
	if deps.Crypto == nil {
		return nil, fmt.Errorf("crypto manager is required")
	}
	if deps.ClientTokens == nil {
		return nil, fmt.Errorf("client token issuer is required")
	}
	if deps.Monitor == nil {
		return nil, fmt.Errorf("telemetry monitor is required")
	}

	return &Server{
		cfg:          deps.Config,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		users:        deps.Users,
		system:       deps.System,
		profiles:     deps.Profiles,
		crypto:       deps.Crypto,
		clientTokens: deps.ClientTokens,
		monitor:      deps.Monitor,
		version:      deps.Version,
		startedAt:    time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
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
