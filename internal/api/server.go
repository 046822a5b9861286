// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chain-portfolio/internal/adapter"
	"github.com/chain-portfolio/internal/auth"
	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/models"
	"github.com/chain-portfolio/internal/service"
	"github.com/chain-portfolio/internal/tracker"
	"github.com/chain-portfolio/internal/types"
)

// Service interfaces for dependency injection and testing

// PortfolioServiceInterface defines the single-wallet portfolio operations
type PortfolioServiceInterface interface {
	GetPortfolio(ctx context.Context, input service.GetPortfolioInput) (*types.Portfolio, error)
	SupportedChains() []adapter.ChainInfo
}

// WalletServiceInterface defines tracked wallet CRUD
type WalletServiceInterface interface {
	List(ctx context.Context, userID string) ([]*models.Wallet, error)
	Add(ctx context.Context, userID string, input service.AddWalletInput) (*models.Wallet, error)
	Remove(ctx context.Context, userID, id string) error
}

// DashboardServiceInterface defines merged multi-wallet views
type DashboardServiceInterface interface {
	ForUser(ctx context.Context, userID string) (*tracker.View, error)
	ForWallets(ctx context.Context, inputs []service.WalletInput) (*tracker.View, error)
}

// AlertServiceInterface defines alert CRUD and evaluation
type AlertServiceInterface interface {
	List(ctx context.Context, userID string) ([]*models.Alert, error)
	Create(ctx context.Context, userID string, input service.CreateAlertInput) (*models.Alert, error)
	Update(ctx context.Context, userID string, input service.UpdateAlertInput) (*models.Alert, error)
	Delete(ctx context.Context, userID, id string) error
	CheckAlerts(ctx context.Context, userID, email string) (*service.CheckResult, error)
}

// SnapshotServiceInterface defines the snapshot job and history
type SnapshotServiceInterface interface {
	Run(ctx context.Context) (*service.SnapshotRunResult, error)
	History(ctx context.Context, userID string, days int) (*service.SnapshotHistory, error)
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Services bundles the service layer the server exposes
type Services struct {
	Portfolio PortfolioServiceInterface
	Wallets   WalletServiceInterface
	Dashboard DashboardServiceInterface
	Alerts    AlertServiceInterface
	Snapshots SnapshotServiceInterface
	Verifier  *auth.Verifier
	// HealthChecks are probed by /health, keyed by dependency name
	HealthChecks map[string]HealthCheck
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	services   Services
	validate   *validator.Validate
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RPS             int // Requests per second per client
	Burst           int
	CronSecret      string
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, services Services) *Server {
	if services.Verifier == nil {
		services.Verifier = auth.NewVerifier("", "")
	}
	s := &Server{
		router:   mux.NewRouter(),
		services: services,
		validate: newValidator(),
		config:   config,
	}

	s.setupRouter()

	return s
}

// newValidator reports field errors by their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RPS, s.config.Burst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter)) // Rate limiting after CORS
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Preflight requests are answered by CORSMiddleware
	s.router.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	session := func(h http.HandlerFunc) http.HandlerFunc {
		return RequireSession(s.services.Verifier, h)
	}

	// Public endpoints
	api.HandleFunc("/portfolio", s.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/chains", s.handleListChains).Methods("GET")
	api.HandleFunc("/dashboard", s.handleLocalDashboard).Methods("POST")

	// Wallet endpoints
	api.HandleFunc("/wallets", session(s.handleListWallets)).Methods("GET")
	api.HandleFunc("/wallets", session(s.handleAddWallet)).Methods("POST")
	api.HandleFunc("/wallets", session(s.handleRemoveWallet)).Methods("DELETE")
	api.HandleFunc("/dashboard", session(s.handleUserDashboard)).Methods("GET")

	// Alert endpoints
	api.HandleFunc("/alerts", session(s.handleListAlerts)).Methods("GET")
	api.HandleFunc("/alerts", session(s.handleCreateAlert)).Methods("POST")
	api.HandleFunc("/alerts", session(s.handleUpdateAlert)).Methods("PATCH")
	api.HandleFunc("/alerts", session(s.handleDeleteAlert)).Methods("DELETE")
	api.HandleFunc("/alerts/check", session(s.handleCheckAlerts)).Methods("POST")

	// Snapshot endpoints
	api.HandleFunc("/snapshots", session(s.handleSnapshotHistory)).Methods("GET")
	api.HandleFunc("/cron/snapshot", RequireCronSecret(s.config.CronSecret, s.handleCronSnapshot)).Methods("GET", "POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(s.services.HealthChecks))
	for name, check := range s.services.HealthChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	respondJSON(w, code, map[string]interface{}{
		"status":  status,
		"service": "chain-portfolio",
		"checks":  checks,
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
