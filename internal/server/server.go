package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/optionsentry/optionsentry/internal/server/handler"
	"github.com/optionsentry/optionsentry/internal/server/middleware"
	"github.com/optionsentry/optionsentry/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AuthToken   string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Monitors *handler.MonitorHandler
	Orders   *handler.OrderHandler
}

// Server is the headless HTTP + WebSocket API for the risk monitor.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux.
// It wires up middleware (auth, logging, CORS) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Monitor lifecycle endpoints.
	mux.HandleFunc("GET /api/accounts", handlers.Monitors.ListAccounts)
	mux.HandleFunc("POST /api/accounts/{id}/monitor/start", handlers.Monitors.StartMonitor)
	mux.HandleFunc("POST /api/accounts/{id}/monitor/stop", handlers.Monitors.StopMonitor)
	mux.HandleFunc("GET /api/accounts/{id}/snapshot", handlers.Monitors.GetSnapshot)
	mux.HandleFunc("POST /api/accounts/{id}/close", handlers.Monitors.ClosePositions)

	// Risk configuration endpoints.
	mux.HandleFunc("PUT /api/accounts/{id}/trailing-stop", handlers.Monitors.ConfigureTrailingStop)
	mux.HandleFunc("PUT /api/accounts/{id}/take-profit", handlers.Monitors.ConfigureTakeProfit)

	// Close-order endpoints.
	mux.HandleFunc("GET /api/accounts/{id}/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("POST /api/accounts/{id}/orders/refresh", handlers.Orders.RefreshOrders)
	mux.HandleFunc("DELETE /api/accounts/{id}/orders/{orderID}", handlers.Orders.CancelOrder)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain: auth innermost, CORS outermost so preflight
	// requests never hit the auth check.
	var h http.Handler = mux
	h = middleware.Auth(cfg.AuthToken)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
