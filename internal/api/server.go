package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/septivank/solar-dashboard/internal/auth"
	"github.com/septivank/solar-dashboard/internal/customers"
	"github.com/septivank/solar-dashboard/internal/db"
	"go.uber.org/zap"
)

// CustomerService is the customer registry as seen by handlers
type CustomerService interface {
	List(ctx context.Context) ([]db.Customer, error)
	ListSummaries(ctx context.Context) ([]db.CustomerSummary, error)
	Create(ctx context.Context, in customers.NewCustomer) (*db.Customer, error)
	CountNewThisWeek(ctx context.Context) (int, error)
}

// ReadingService computes daily first readings
type ReadingService interface {
	DailyFirst(ctx context.Context, customer string, year, month int) (map[string]*float64, error)
}

// IdentifierLister lists the customer identifiers accepted by ReadingService
type IdentifierLister interface {
	Identifiers(ctx context.Context) ([]string, error)
}

// Pinger checks store connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig holds the server's collaborators
type ServerConfig struct {
	Addr        string
	Customers   CustomerService
	Readings    ReadingService
	Identifiers IdentifierLister
	Store       Pinger
	Credentials auth.CredentialVerifier
	Sessions    *auth.SessionManager
	Limiter     *auth.LoginLimiter
	APIKey      string
	Logger      *zap.Logger
}

// Server is the dashboard HTTP surface
type Server struct {
	server      *http.Server
	router      *mux.Router
	customers   CustomerService
	readings    ReadingService
	identifiers IdentifierLister
	store       Pinger
	credentials auth.CredentialVerifier
	sessions    *auth.SessionManager
	limiter     *auth.LoginLimiter
	logger      *zap.Logger
}

// NewServer creates the server and registers every route
func NewServer(cfg ServerConfig) *Server {
	router := mux.NewRouter()

	s := &Server{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router:      router,
		customers:   cfg.Customers,
		readings:    cfg.Readings,
		identifiers: cfg.Identifiers,
		store:       cfg.Store,
		credentials: cfg.Credentials,
		sessions:    cfg.Sessions,
		limiter:     cfg.Limiter,
		logger:      cfg.Logger,
	}

	router.Use(s.requestIDMiddleware)
	router.Use(s.metricsMiddleware)
	router.Use(s.loggingMiddleware)

	// Public
	router.HandleFunc("/", s.index).Methods(http.MethodGet)
	router.HandleFunc(auth.LoginPath, s.loginForm).Methods(http.MethodGet)
	router.HandleFunc(auth.LoginPath, s.login).Methods(http.MethodPost)
	router.HandleFunc("/test-db", s.testDB).Methods(http.MethodGet)
	router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Machine clients
	machine := router.PathPrefix("/api/v1").Subrouter()
	machine.Use(auth.APIKeyMiddleware(cfg.APIKey, cfg.Logger))
	machine.HandleFunc("/customers", s.listCustomerSummaries).Methods(http.MethodGet)

	// Browser session
	browser := router.NewRoute().Subrouter()
	browser.Use(cfg.Sessions.RequireSession)
	browser.HandleFunc("/logout", s.logout).Methods(http.MethodGet)
	browser.HandleFunc("/dashboard", s.dashboard).Methods(http.MethodGet)
	browser.HandleFunc("/api/customers", s.listCustomerIdentifiers).Methods(http.MethodGet)
	browser.HandleFunc("/api/customers/full", s.listCustomerSummaries).Methods(http.MethodGet)
	browser.HandleFunc("/customers", s.registerCustomer).Methods(http.MethodPost)
	browser.HandleFunc("/api/daily-readings", s.dailyReadings).Methods(http.MethodGet)

	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.server.Addr
}

// Serve blocks serving requests on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
	return s.server.Serve(ln)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
