package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/auctionlabs/auctiond/internal/domain"
	"github.com/auctionlabs/auctiond/internal/server/handler"
	"github.com/auctionlabs/auctiond/internal/server/middleware"
	"github.com/auctionlabs/auctiond/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	AdminAPIKey string // if empty, admin endpoints are disabled

	// Rate limiting, applied per client IP. Zero RateLimit disables it.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Users     *handler.UserHandler
	Auctions  *handler.AuctionHandler
	Orders    *handler.OrderHandler
	Referrals *handler.ReferralHandler
	Admin     *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server for the auction house.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limiting, auth, logging, CORS) and attaches
// the WebSocket hub. The limiter may be nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// User registration and lookup.
	mux.HandleFunc("POST /api/users", handlers.Users.Register)
	mux.HandleFunc("GET /api/users/{address}", handlers.Users.Lookup)

	// Auction lifecycle.
	mux.HandleFunc("POST /api/auctions", handlers.Auctions.Initiate)
	mux.HandleFunc("GET /api/auctions", handlers.Auctions.List)
	mux.HandleFunc("GET /api/auctions/{id}", handlers.Auctions.Get)
	mux.HandleFunc("GET /api/auctions/{id}/seconds-remaining", handlers.Auctions.SecondsRemaining)
	mux.HandleFunc("POST /api/auctions/{id}/precalculate", handlers.Auctions.Precalculate)
	mux.HandleFunc("POST /api/auctions/{id}/settle", handlers.Auctions.Settle)

	// Bidding and claims.
	mux.HandleFunc("POST /api/auctions/{id}/orders", handlers.Orders.Place)
	mux.HandleFunc("DELETE /api/auctions/{id}/orders", handlers.Orders.Cancel)
	mux.HandleFunc("GET /api/auctions/{id}/orders/contains", handlers.Orders.Contains)
	mux.HandleFunc("POST /api/auctions/{id}/claims", handlers.Orders.Claim)

	// Referral codes and rewards.
	mux.HandleFunc("POST /api/referrals", handlers.Referrals.Register)
	mux.HandleFunc("GET /api/referrals/{code}", handlers.Referrals.CodeOwner)
	mux.HandleFunc("GET /api/referrals/owner/{address}", handlers.Referrals.AddressCode)
	mux.HandleFunc("GET /api/referrals/owner/{address}/balance", handlers.Referrals.Balance)
	mux.HandleFunc("POST /api/referrals/withdrawals", handlers.Referrals.Withdraw)

	// Operator endpoints, behind their own key.
	if cfg.AdminAPIKey != "" && handlers.Admin != nil {
		adminMux := http.NewServeMux()
		adminMux.HandleFunc("GET /api/admin/fees", handlers.Admin.Fees)
		adminMux.HandleFunc("PUT /api/admin/fees", handlers.Admin.SetFees)
		adminMux.HandleFunc("GET /api/admin/referrals/withdraw-switch", handlers.Admin.WithdrawSwitch)
		adminMux.HandleFunc("PUT /api/admin/referrals/withdraw-switch", handlers.Admin.SetWithdrawSwitch)
		mux.Handle("/api/admin/", middleware.Auth(cfg.AdminAPIKey)(adminMux))
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey, cfg.AdminAPIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}
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
