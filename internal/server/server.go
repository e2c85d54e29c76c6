package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/server/handler"
	"github.com/alanyoungcy/poolbet/internal/server/middleware"
	"github.com/alanyoungcy/poolbet/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Audit, Archives and Settlements are optional and only routed when set.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Markets     *handler.MarketHandler
	Bets        *handler.BetHandler
	Accounts    *handler.AccountHandler
	Audit       *handler.AuditHandler
	Archives    *handler.ArchiveHandler
	Settlements *handler.SettlementFeedHandler
}

// Server is the HTTP + WebSocket API of the betting service.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub when one is given. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Markets and settlement.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/odds", handlers.Markets.GetOdds)
	mux.HandleFunc("GET /api/markets/{id}/bets", handlers.Markets.ListBets)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.Resolve)
	mux.HandleFunc("POST /api/markets/{id}/void", handlers.Markets.Void)
	mux.HandleFunc("POST /api/markets/{id}/reopen", handlers.Markets.Reopen)

	// Bets and cash-out.
	mux.HandleFunc("POST /api/bets", handlers.Bets.PlaceBet)
	mux.HandleFunc("GET /api/bets/{id}", handlers.Bets.GetBet)
	mux.HandleFunc("GET /api/bets/{id}/cashout", handlers.Bets.QuoteCashout)
	mux.HandleFunc("POST /api/bets/{id}/cashout", handlers.Bets.CashOut)

	// Accounts.
	mux.HandleFunc("POST /api/accounts", handlers.Accounts.Open)
	mux.HandleFunc("GET /api/accounts/{id}", handlers.Accounts.Get)
	mux.HandleFunc("POST /api/accounts/{id}/deposit", handlers.Accounts.Deposit)
	mux.HandleFunc("POST /api/accounts/{id}/withdraw", handlers.Accounts.Withdraw)
	mux.HandleFunc("GET /api/accounts/{id}/ledger", handlers.Accounts.Ledger)
	mux.HandleFunc("GET /api/accounts/{id}/bets", handlers.Accounts.Bets)

	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.List)
		mux.HandleFunc("GET /api/markets/{id}/audit", handlers.Audit.ListMarket)
	}
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives/{day}", handlers.Archives.GetDay)
	}
	if handlers.Settlements != nil {
		mux.HandleFunc("GET /api/settlements", handlers.Settlements.List)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
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
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
