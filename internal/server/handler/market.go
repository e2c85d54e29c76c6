package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/pricing"
	"github.com/alanyoungcy/poolbet/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, p service.CreateMarketParams) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	ListBets(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Bet, error)
	Quote(ctx context.Context, marketID string) (domain.OddsSnapshot, error)
	Reopen(ctx context.Context, marketID string) (domain.Market, error)
}

// SettlementService resolves and voids markets.
type SettlementService interface {
	Resolve(ctx context.Context, marketID, winner string) (pricing.Settlement, error)
	Void(ctx context.Context, marketID string) (pricing.Settlement, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets    MarketService
	settlement SettlementService
	logger     *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given services and logger.
func NewMarketHandler(markets MarketService, settlement SettlementService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets:    markets,
		settlement: settlement,
		logger:     logger,
	}
}

// CreateMarket opens a new market.
// POST /api/markets {"question": "...", "outcomes": ["YES", "NO"], "ends_at": "RFC3339"}
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req service.CreateMarketParams
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.markets.CreateMarket(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListMarkets returns markets with pagination, optionally filtered by status.
// GET /api/markets?status=OPEN&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	status := domain.MarketStatus(strings.ToUpper(r.URL.Query().Get("status")))
	switch status {
	case "", domain.MarketStatusOpen, domain.MarketStatusResolved, domain.MarketStatusCanceled:
	default:
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	markets, err := h.markets.ListMarkets(r.Context(), status, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(markets, opts))
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.GetMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetOdds returns the current odds snapshot of a market.
// GET /api/markets/{id}/odds
func (h *MarketHandler) GetOdds(w http.ResponseWriter, r *http.Request) {
	snap, err := h.markets.Quote(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "quote odds", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListBets returns the bets placed on a market, newest first.
// GET /api/markets/{id}/bets
func (h *MarketHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	bets, err := h.markets.ListBets(r.Context(), pathParam(r, "id"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list market bets", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(bets, opts))
}

type resolveRequest struct {
	Winner string `json:"winner"`
}

// Resolve settles a market on the winning outcome.
// POST /api/markets/{id}/resolve {"winner": "YES"}
func (h *MarketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Winner) == "" {
		writeError(w, http.StatusBadRequest, "winner is required")
		return
	}

	id := pathParam(r, "id")
	s, err := h.settlement.Resolve(r.Context(), id, req.Winner)
	if err != nil {
		writeServiceError(w, r, h.logger, "resolve market", err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: market resolved",
		slog.String("market_id", id),
		slog.String("winner", req.Winner),
	)
	writeJSON(w, http.StatusOK, s)
}

// Void cancels a market and refunds every active stake.
// POST /api/markets/{id}/void
func (h *MarketHandler) Void(w http.ResponseWriter, r *http.Request) {
	s, err := h.settlement.Void(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "void market", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Reopen returns a settled market with no bets to OPEN.
// POST /api/markets/{id}/reopen
func (h *MarketHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.Reopen(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "reopen market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
