// Package api provides the read-only HTTP API over generated reports.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reserve-snapshot/internal/logging"
	"github.com/reserve-snapshot/internal/models"
	"github.com/reserve-snapshot/internal/report"
	"github.com/reserve-snapshot/internal/storage"
)

// ReportStore reads persisted reports
type ReportStore interface {
	List() ([]report.Info, error)
	Latest() (*report.Info, error)
	ReadRaw(reportDate string) ([]byte, error)
	Read(reportDate string) (*models.PoRSnapshot, error)
}

// HistoryReader reads recorded report figures
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]storage.ReserveHistoryEntry, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	reports    ReportStore
	history    HistoryReader
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int // Per client IP, 0 disables limiting
	Burst             int
}

// NewServer creates a new API server instance. history may be nil, in which
// case /api/history answers 503.
func NewServer(config *ServerConfig, reports ReportStore, history HistoryReader) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		reports: reports,
		history: history,
		config:  config,
	}

	s.setupRouter()

	return s
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
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
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	// Report endpoints
	api.HandleFunc("/reports", s.handleListReports).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/reports/latest", s.handleLatestReport).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/reports/{date}", s.handleGetReport).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/reports/{date}/verify", s.handleVerifyReport).Methods(http.MethodGet, http.MethodOptions)

	// History endpoints
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet, http.MethodOptions)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "proof-of-reserve",
	})
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server")
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}
