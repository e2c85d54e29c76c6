package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/service"
)

// BetService places and reads bets.
type BetService interface {
	PlaceBet(ctx context.Context, p service.PlaceBetParams) (domain.Bet, error)
	GetBet(ctx context.Context, id string) (domain.Bet, error)
}

// CashoutService values and executes early exits.
type CashoutService interface {
	Quote(ctx context.Context, betID string) (service.CashoutQuote, error)
	CashOut(ctx context.Context, betID, accountID string) (service.CashoutResult, error)
}

// BetHandler serves bet and cash-out endpoints.
type BetHandler struct {
	bets    BetService
	cashout CashoutService
	logger  *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, cashout CashoutService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:    bets,
		cashout: cashout,
		logger:  logger,
	}
}

// PlaceBet stakes an amount on one outcome.
// POST /api/bets {"account_id": "...", "market_id": "...", "side": "YES", "amount": "25.00"}
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req service.PlaceBetParams
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AccountID == "" || req.MarketID == "" || req.Side == "" {
		writeError(w, http.StatusBadRequest, "account_id, market_id and side are required")
		return
	}

	bet, err := h.bets.PlaceBet(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

// GetBet returns a single bet.
// GET /api/bets/{id}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	bet, err := h.bets.GetBet(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get bet", err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// QuoteCashout returns the current early-exit value of a bet.
// GET /api/bets/{id}/cashout
func (h *BetHandler) QuoteCashout(w http.ResponseWriter, r *http.Request) {
	q, err := h.cashout.Quote(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "quote cashout", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type cashoutRequest struct {
	AccountID string `json:"account_id"`
}

// CashOut closes a bet early at the current value.
// POST /api/bets/{id}/cashout {"account_id": "..."}
func (h *BetHandler) CashOut(w http.ResponseWriter, r *http.Request) {
	var req cashoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	res, err := h.cashout.CashOut(r.Context(), pathParam(r, "id"), req.AccountID)
	if err != nil {
		writeServiceError(w, r, h.logger, "cash out", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
