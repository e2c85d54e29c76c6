package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// AccountService manages balances.
type AccountService interface {
	Open(ctx context.Context, name string) (domain.Account, error)
	Get(ctx context.Context, id string) (domain.Account, error)
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (domain.LedgerEntry, error)
	Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (domain.LedgerEntry, error)
	History(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.LedgerEntry, error)
	Bets(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Bet, error)
}

// AccountHandler serves account endpoints.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

type openAccountRequest struct {
	Name string `json:"name"`
}

// Open creates an account.
// POST /api/accounts {"name": "..."}
func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.accounts.Open(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, r, h.logger, "open account", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// Get returns an account with its balance.
// GET /api/accounts/{id}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.accounts.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Deposit credits an account.
// POST /api/accounts/{id}/deposit {"amount": "50.00"}
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "deposit", h.accounts.Deposit)
}

// Withdraw debits an account if the balance covers the amount.
// POST /api/accounts/{id}/withdraw {"amount": "20.00"}
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "withdraw", h.accounts.Withdraw)
}

func (h *AccountHandler) move(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	fn func(context.Context, string, decimal.Decimal) (domain.LedgerEntry, error),
) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := fn(r.Context(), pathParam(r, "id"), req.Amount)
	if err != nil {
		writeServiceError(w, r, h.logger, action, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Ledger returns the account's balance journal, newest first.
// GET /api/accounts/{id}/ledger
func (h *AccountHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	entries, err := h.accounts.History(r.Context(), pathParam(r, "id"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "account ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(entries, opts))
}

// Bets returns the account's bets, newest first.
// GET /api/accounts/{id}/bets
func (h *AccountHandler) Bets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	bets, err := h.accounts.Bets(r.Context(), pathParam(r, "id"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "account bets", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(bets, opts))
}
