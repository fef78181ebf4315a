package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gatehouse/internal/audit"
	"github.com/nerrad567/gatehouse/internal/auth"
	"github.com/nerrad567/gatehouse/internal/infrastructure/config"
	"github.com/nerrad567/gatehouse/internal/infrastructure/logging"
	"github.com/nerrad567/gatehouse/internal/notify"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// resetDeliveryTimeout bounds one background reset-link delivery.
const resetDeliveryTimeout = 10 * time.Second

// UserAdmin is the account administration surface behind the ADMIN endpoints.
// *auth.SQLiteCredentialStore satisfies it.
type UserAdmin interface {
	CreateUser(ctx context.Context, user *auth.User) error
	UpdateProfile(ctx context.Context, user *auth.User) error
	FindUsers(ctx context.Context, filter auth.UserFilter) (*auth.UserPage, error)
	GetByIdentity(ctx context.Context, username string) (*auth.User, error)
	AssignRoles(ctx context.Context, username string, roles []auth.RoleID) error
	SetStatus(ctx context.Context, username string, status auth.Status) error
}

// HealthChecker is implemented by every infrastructure component.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Sessions *auth.SessionAuthenticator
	Gate     *auth.PermissionGate
	Reset    *auth.ResetManager
	Users    UserAdmin

	// Optional. Notifier defaults to a log-only dispatcher and Metrics to
	// a fresh registry without database stats.
	Notifier  notify.Dispatcher
	Audit     *audit.Recorder
	AuditLogs audit.Repository
	Metrics   *Metrics
	Health    map[string]HealthChecker

	StoreTimeout time.Duration
	Version      string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	sessions     *auth.SessionAuthenticator
	gate         *auth.PermissionGate
	reset        *auth.ResetManager
	users        UserAdmin
	notifier     notify.Dispatcher
	audit        *audit.Recorder
	auditLogs    audit.Repository
	metrics      *Metrics
	health       map[string]HealthChecker
	limiter      *clientLimiter
	storeTimeout time.Duration
	version      string
	server       *http.Server
	cancel       context.CancelFunc // cancels background goroutines on Close()
	deliveries   sync.WaitGroup     // reset links still being handed to the notifier
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sessions == nil || deps.Gate == nil || deps.Reset == nil {
		return nil, fmt.Errorf("session authenticator, permission gate and reset manager are required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}

	s := &Server{
		cfg:          deps.Config,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		sessions:     deps.Sessions,
		gate:         deps.Gate,
		reset:        deps.Reset,
		users:        deps.Users,
		notifier:     deps.Notifier,
		audit:        deps.Audit,
		auditLogs:    deps.AuditLogs,
		metrics:      deps.Metrics,
		health:       deps.Health,
		storeTimeout: deps.StoreTimeout,
		version:      deps.Version,
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogDispatcher(deps.Logger.Logger)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if rl := deps.Security.RateLimit; rl.Enabled && rl.RequestsPerMinute > 0 {
		s.limiter = newClientLimiter(rl.RequestsPerMinute, rl.Burst)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.limiter != nil {
		go s.limiter.sweepLoop(srvCtx)
	}

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
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections. Pending reset-link
// deliveries are waited for before it returns.
func (s *Server) Close() error {
	defer s.deliveries.Wait()

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

// storeContext bounds a direct store call made by a handler.
func (s *Server) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}
