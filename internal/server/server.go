// Package server exposes the prediction market over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stakehouse/internal/domain"
	"github.com/alanyoungcy/stakehouse/internal/server/handler"
	"github.com/alanyoungcy/stakehouse/internal/server/middleware"
	"github.com/alanyoungcy/stakehouse/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client per RateWindow. Zero disables
	// rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Stakes  *handler.StakeHandler
	Payouts *handler.PayoutHandler
	Prices  *handler.PriceHandler
}

// Server is the HTTP + WebSocket API server for the prediction market.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (rate limit, CORS, logging, auth) wired around it.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market lifecycle.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.ResolveMarket)
	mux.HandleFunc("POST /api/markets/{id}/seed", handlers.Markets.SeedMarket)

	// Staking.
	mux.HandleFunc("POST /api/markets/{id}/stakes", handlers.Stakes.PlaceStake)
	mux.HandleFunc("GET /api/markets/{id}/stakes", handlers.Stakes.ListMarketStakes)
	mux.HandleFunc("GET /api/markets/{id}/stakes/{user}", handlers.Stakes.GetUserStake)
	mux.HandleFunc("GET /api/users/{user}/stakes", handlers.Stakes.ListUserStakes)

	// Prices.
	mux.HandleFunc("GET /api/markets/{id}/prices", handlers.Prices.GetPrices)
	mux.HandleFunc("GET /api/markets/{id}/history", handlers.Prices.GetHistory)

	// Claims and leaderboard.
	mux.HandleFunc("GET /api/markets/{id}/claimable", handlers.Payouts.GetClaimable)
	mux.HandleFunc("POST /api/markets/{id}/claims", handlers.Payouts.Claim)
	mux.HandleFunc("GET /api/markets/{id}/payouts", handlers.Payouts.ListPayouts)
	mux.HandleFunc("GET /api/leaderboard", handlers.Payouts.Leaderboard)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}

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
