package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/pricing"
	"github.com/alanyoungcy/poolbet/internal/server/handler"
	"github.com/alanyoungcy/poolbet/internal/service"
	"github.com/alanyoungcy/poolbet/internal/store/sqlite"
)

const testAPIKey = "test-key"

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	engine, err := pricing.New(pricing.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	markets := sqlite.NewMarketStore(db)
	bets := sqlite.NewBetStore(db)
	tx := sqlite.NewTxRunner(db)
	audit := sqlite.NewAuditStore(db)
	collab := service.Collaborators{Audit: audit}

	marketSvc := service.NewMarketService(markets, bets, tx, engine, collab, logger)
	betSvc := service.NewBetService(bets, tx, engine, decimal.Zero, collab, logger)
	settleSvc := service.NewSettlementService(tx, nil, engine, collab, logger)
	cashoutSvc := service.NewCashoutService(markets, bets, tx, engine, collab, logger)
	accountSvc := service.NewAccountService(sqlite.NewAccountStore(db), sqlite.NewLedgerStore(db), bets, tx, service.DefaultLimits(), collab, logger)

	handlers := Handlers{
		Health:   handler.NewHealthHandler(map[string]handler.HealthCheck{"database": db.Ping}, logger),
		Status:   handler.NewStatusHandler("server", pricing.DefaultConfig(), time.Now()),
		Markets:  handler.NewMarketHandler(marketSvc, settleSvc, logger),
		Bets:     handler.NewBetHandler(betSvc, cashoutSvc, logger),
		Accounts: handler.NewAccountHandler(accountSvc, logger),
		Audit:    handler.NewAuditHandler(audit, logger),
	}
	srv := NewServer(Config{Port: 0, APIKey: testAPIKey}, handlers, nil, nil, logger)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestHealthSkipsAuth(t *testing.T) {
	h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, body %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list = %d, want 401", rec.Code)
	}
}

func TestBettingFlow(t *testing.T) {
	h := newTestServer(t)

	var market struct {
		ID string `json:"id"`
	}
	code := do(t, h, http.MethodPost, "/api/markets", map[string]any{
		"question": "Who wins?",
		"outcomes": []string{"YES", "NO"},
		"ends_at":  time.Now().Add(time.Hour).Format(time.RFC3339),
	}, &market)
	if code != http.StatusCreated {
		t.Fatalf("create market = %d", code)
	}

	var account struct {
		ID      string          `json:"id"`
		Balance decimal.Decimal `json:"balance"`
	}
	if code := do(t, h, http.MethodPost, "/api/accounts", map[string]string{"name": "ana"}, &account); code != http.StatusCreated {
		t.Fatalf("open account = %d", code)
	}
	if code := do(t, h, http.MethodPost, "/api/accounts/"+account.ID+"/deposit", map[string]string{"amount": "100"}, nil); code != http.StatusOK {
		t.Fatalf("deposit = %d", code)
	}

	var bet struct {
		ID          string          `json:"id"`
		OddsAtEntry decimal.Decimal `json:"odds_at_entry"`
	}
	code = do(t, h, http.MethodPost, "/api/bets", map[string]string{
		"account_id": account.ID, "market_id": market.ID, "side": "YES", "amount": "60",
	}, &bet)
	if code != http.StatusCreated {
		t.Fatalf("place bet = %d", code)
	}
	if !bet.OddsAtEntry.Equal(decimal.NewFromInt(2)) {
		t.Errorf("odds at entry = %s, want 2 on an empty pool", bet.OddsAtEntry)
	}

	var errBody struct {
		Error string `json:"error"`
	}
	tests := []struct {
		name     string
		side     string
		amount   string
		wantCode int
		wantMsg  string
	}{
		{"over balance", "YES", "500", http.StatusPaymentRequired, "insufficient balance"},
		{"undeclared outcome", "MAYBE", "5", http.StatusUnprocessableEntity, "invalid outcome"},
		{"zero stake", "NO", "0", http.StatusBadRequest, "invalid amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := do(t, h, http.MethodPost, "/api/bets", map[string]string{
				"account_id": account.ID, "market_id": market.ID, "side": tt.side, "amount": tt.amount,
			}, &errBody)
			if code != tt.wantCode || !strings.HasPrefix(errBody.Error, tt.wantMsg) {
				t.Errorf("got %d %q, want %d %q", code, errBody.Error, tt.wantCode, tt.wantMsg)
			}
		})
	}

	var odds struct {
		TotalPool decimal.Decimal            `json:"total_pool"`
		Odds      map[string]decimal.Decimal `json:"odds"`
	}
	if code := do(t, h, http.MethodGet, "/api/markets/"+market.ID+"/odds", nil, &odds); code != http.StatusOK {
		t.Fatalf("odds = %d", code)
	}
	if !odds.TotalPool.Equal(decimal.NewFromInt(60)) {
		t.Errorf("total pool = %s, want 60", odds.TotalPool)
	}

	if code := do(t, h, http.MethodPost, "/api/markets/"+market.ID+"/resolve", map[string]string{"winner": "YES"}, nil); code != http.StatusOK {
		t.Fatalf("resolve = %d", code)
	}

	code = do(t, h, http.MethodPost, "/api/bets", map[string]string{
		"account_id": account.ID, "market_id": market.ID, "side": "NO", "amount": "5",
	}, &errBody)
	if code != http.StatusConflict || errBody.Error != "market closed" {
		t.Errorf("bet after resolve = %d %q, want 409 market closed", code, errBody.Error)
	}

	// 60 staked at the floor: 60 x 1.01 = 60.60 back on a 40.00 balance.
	if code := do(t, h, http.MethodGet, "/api/accounts/"+account.ID, nil, &account); code != http.StatusOK {
		t.Fatalf("get account = %d", code)
	}
	if !account.Balance.Equal(decimal.RequireFromString("100.60")) {
		t.Errorf("balance = %s, want 100.60", account.Balance)
	}

	var ledger struct {
		Items []json.RawMessage `json:"items"`
	}
	if code := do(t, h, http.MethodGet, "/api/accounts/"+account.ID+"/ledger", nil, &ledger); code != http.StatusOK {
		t.Fatalf("ledger = %d", code)
	}
	if len(ledger.Items) != 3 {
		t.Errorf("ledger has %d entries, want deposit, bet and win", len(ledger.Items))
	}

	var trail struct {
		Items []struct {
			Event    string `json:"event"`
			MarketID string `json:"market_id"`
		} `json:"items"`
	}
	if code := do(t, h, http.MethodGet, "/api/markets/"+market.ID+"/audit", nil, &trail); code != http.StatusOK {
		t.Fatalf("audit = %d", code)
	}
	if len(trail.Items) == 0 || trail.Items[len(trail.Items)-1].Event != "market_created" {
		t.Fatalf("audit trail = %+v, want it to start with market_created", trail.Items)
	}
	for _, e := range trail.Items {
		if e.MarketID != market.ID {
			t.Errorf("audit entry %s belongs to market %q", e.Event, e.MarketID)
		}
	}
}

func TestNotFoundAndBadInput(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
	}{
		{"unknown market", http.MethodGet, "/api/markets/nope", nil, http.StatusNotFound},
		{"unknown bet", http.MethodGet, "/api/bets/nope", nil, http.StatusNotFound},
		{"resolve unknown market", http.MethodPost, "/api/markets/nope/resolve", map[string]string{"winner": "YES"}, http.StatusNotFound},
		{"resolve without winner", http.MethodPost, "/api/markets/nope/resolve", map[string]string{}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/accounts", map[string]string{"nickname": "x"}, http.StatusBadRequest},
		{"one outcome", http.MethodPost, "/api/markets", map[string]any{
			"question": "q", "outcomes": []string{"YES"}, "ends_at": time.Now().Add(time.Hour),
		}, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/api/markets?status=DONE", nil, http.StatusBadRequest},
		{"small deposit", http.MethodPost, "/api/accounts/nope/deposit", map[string]string{"amount": "1"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := do(t, h, tt.method, tt.path, tt.body, nil); code != tt.wantCode {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, code, tt.wantCode)
			}
		})
	}
}
