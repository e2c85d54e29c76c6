package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

func setupTestDB(t *testing.T) *Client {
	t.Helper()
	c, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func seedMarket(t *testing.T, c *Client, id string, outcomes ...string) domain.Market {
	t.Helper()
	now := time.Now()
	m, err := domain.NewMarket(id, "Who wins?", outcomes, now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}
	if err := NewMarketStore(c).Create(context.Background(), m); err != nil {
		t.Fatalf("Create market: %v", err)
	}
	return m
}

func seedAccount(t *testing.T, c *Client, id string, balance string) {
	t.Helper()
	ctx := context.Background()
	if err := NewAccountStore(c).Create(ctx, domain.Account{ID: id, Name: id, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Create account: %v", err)
	}
	if balance == "" {
		return
	}
	err := NewTxRunner(c).RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Credit(ctx, id, decimal.RequireFromString(balance))
		return err
	})
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
}

func TestMarketCreateAndGet(t *testing.T) {
	c := setupTestDB(t)
	ctx := context.Background()
	seedMarket(t, c, "m1", "Mario", "Luigi", "Peach")

	got, err := NewMarketStore(c).GetByID(ctx, "m1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if len(got.Outcomes) != 3 || got.Outcomes[0] != "Mario" || got.Outcomes[2] != "Peach" {
		t.Errorf("Expected outcomes in declaration order, got %v", got.Outcomes)
	}
	if got.Status != domain.MarketStatusOpen {
		t.Errorf("Expected OPEN, got %s", got.Status)
	}
	if !got.TotalPool.IsZero() || !got.PoolsConsistent() {
		t.Errorf("Expected empty consistent pools, got %v total %s", got.Pools, got.TotalPool)
	}

	if err := NewMarketStore(c).Create(ctx, got); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists on duplicate create, got %v", err)
	}
	if _, err := NewMarketStore(c).GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMarketListByStatus(t *testing.T) {
	c := setupTestDB(t)
	ctx := context.Background()
	seedMarket(t, c, "a", "YES", "NO")
	seedMarket(t, c, "b", "YES", "NO")

	err := NewTxRunner(c).RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.SetMarketStatus(ctx, "a", domain.MarketStatusResolved, "YES", time.Now())
	})
	if err != nil {
		t.Fatalf("SetMarketStatus: %v", err)
	}

	store := NewMarketStore(c)
	open, err := store.List(ctx, domain.MarketStatusOpen, domain.ListOpts{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(open) != 1 || open[0].ID != "b" {
		t.Errorf("Expected only market b open, got %+v", open)
	}

	settled, err := store.ListSettledBefore(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ListSettledBefore failed: %v", err)
	}
	if len(settled) != 1 || settled[0].ResolutionResult != "YES" || settled[0].SettledAt == nil {
		t.Errorf("Expected resolved market a, got %+v", settled)
	}

	all, err := store.List(ctx, "", domain.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected limit to apply, got %d markets", len(all))
	}
}

func TestAddStakeKeepsPoolsConsistent(t *testing.T) {
	c := setupTestDB(t)
	ctx := context.Background()
	seedMarket(t, c, "m1", "YES", "NO")

	err := NewTxRunner(c).RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.AddStake(ctx, "m1", "YES", decimal.RequireFromString("12.34")); err != nil {
			return err
		}
		return tx.AddStake(ctx, "m1", "NO", decimal.RequireFromString("0.66"))
	})
	if err != nil {
		t.Fatalf("AddStake: %v", err)
	}

	m, err := NewMarketStore(c).GetByID(ctx, "m1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !m.TotalPool.Equal(decimal.RequireFromString("13")) || !m.PoolsConsistent() {
		t.Errorf("Expected total 13 and consistent pools, got %v total %s", m.Pools, m.TotalPool)
	}

	err = NewTxRunner(c).RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.AddStake(ctx, "m1", "MAYBE", decimal.NewFromInt(1))
	})
	if !errors.Is(err, domain.ErrInvalidOutcome) {
		t.Errorf("Expected ErrInvalidOutcome, got %v", err)
	}
}

func TestDebitIsConditional(t *testing.T) {
	c := setupTestDB(t)
	ctx := context.Background()
	seedAccount(t, c, "alice", "50")

	runner := NewTxRunner(c)
	err := runner.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Debit(ctx, "alice", decimal.RequireFromString("50.01"))
		return err
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	err = runner.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Debit(ctx, "bob", decimal.NewFromInt(1))
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for unknown account, got %v", err)
	}

	var after decimal.Decimal
	err = runner.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		after, err = tx.Debit(ctx, "alice", decimal.NewFromInt(50))
		return err
	})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if !after.IsZero() {
		t.Errorf("Expected zero balance, got %s", after)
	}
}

func TestRunInTxRollsBack(t *testing.T) {
	c := setupTestDB(t)
	ctx := context.Background()
	seedMarket(t, c, "m1", "YES", "NO")
	seedAccount(t, c, "alice", "100")

	boom := errors.New("boom")
	err := NewTxRunner(c).RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Debit(ctx, "alice", decimal.NewFromInt(40)); err != nil {
			return err
		}
		if err := tx.AddStake(ctx, "m1", "YES", decimal.NewFromInt(40)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	a, err := NewAccountStore(c).GetByID(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !a.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance 100 after rollback, got %s", a.Balance)
	}
	m, _ := NewMarketStore(c).GetByID(ctx, "m1")
	if !m.TotalPool.IsZero() {
		t.Errorf("Expected empty pool after rollback, got %s", m.TotalPool)
	}
}

func TestBetLifecycle(t *testing.T) {
	c := setupTestDB(t)
	ctx := context.Background()
	seedMarket(t, c, "m1", "YES", "NO")
	seedAccount(t, c, "alice", "")

	placed := time.Now().Truncate(time.Microsecond)
	bet := domain.Bet{
		ID:              "b1",
		MarketID:        "m1",
		AccountID:       "alice",
		Side:            "YES",
		Amount:          decimal.RequireFromString("10.50"),
		OddsAtEntry:     decimal.RequireFromString("2.123456"),
		PotentialPayout: decimal.RequireFromString("22.29"),
		Status:          domain.BetStatusActive,
		Payout:          decimal.Zero,
		PlacedAt:        placed,
	}

	runner := NewTxRunner(c)
	err := runner.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.InsertBet(ctx, bet)
	})
	if err != nil {
		t.Fatalf("InsertBet: %v", err)
	}

	got, err := NewBetStore(c).GetByID(ctx, "b1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.OddsAtEntry.Equal(bet.OddsAtEntry) || !got.Amount.Equal(bet.Amount) {
		t.Errorf("Expected odds %s amount %s, got %s %s", bet.OddsAtEntry, bet.Amount, got.OddsAtEntry, got.Amount)
	}
	if !got.PlacedAt.Equal(placed) {
		t.Errorf("Expected placed_at %v, got %v", placed, got.PlacedAt)
	}

	err = runner.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		active, err := tx.LockActiveBets(ctx, "m1")
		if err != nil {
			return err
		}
		if len(active) != 1 {
			t.Errorf("Expected 1 active bet, got %d", len(active))
		}
		return tx.SettleBet(ctx, "b1", domain.BetStatusWon, decimal.RequireFromString("22.29"), time.Now())
	})
	if err != nil {
		t.Fatalf("SettleBet: %v", err)
	}

	err = runner.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.SettleBet(ctx, "b1", domain.BetStatusLost, decimal.Zero, time.Now())
	})
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("Expected settled bet to be immutable, got %v", err)
	}

	bets, err := NewBetStore(c).ListByAccount(ctx, "alice", domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListByAccount: %v", err)
	}
	if len(bets) != 1 || bets[0].Status != domain.BetStatusWon || bets[0].SettledAt == nil {
		t.Errorf("Expected one WON bet, got %+v", bets)
	}
}

func TestLedgerAndAudit(t *testing.T) {
	c := setupTestDB(t)
	ctx := context.Background()
	seedAccount(t, c, "alice", "")

	err := NewTxRunner(c).RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		bal, err := tx.Credit(ctx, "alice", decimal.NewFromInt(25))
		if err != nil {
			return err
		}
		return tx.AppendLedger(ctx, domain.LedgerEntry{
			ID: "l1", AccountID: "alice", Kind: domain.LedgerDeposit,
			Amount: decimal.NewFromInt(25), BalanceAfter: bal, CreatedAt: time.Now(),
		})
	})
	if err != nil {
		t.Fatalf("Credit+AppendLedger: %v", err)
	}

	entries, err := NewLedgerStore(c).ListByAccount(ctx, "alice", domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListByAccount: %v", err)
	}
	if len(entries) != 1 || !entries[0].BalanceAfter.Equal(decimal.NewFromInt(25)) || entries[0].MarketID != "" {
		t.Errorf("Unexpected ledger: %+v", entries)
	}

	audit := NewAuditStore(c)
	if err := audit.Log(ctx, "market_resolved", map[string]any{"market_id": "m1"}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := audit.Log(ctx, "archive.markets", map[string]any{"count": 2}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	all, err := audit.List(ctx, "", domain.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].Event != "archive.markets" || all[0].MarketID != "" {
		t.Errorf("Unexpected audit log: %+v", all)
	}

	logged, err := audit.List(ctx, "m1", domain.ListOpts{})
	if err != nil {
		t.Fatalf("List(m1): %v", err)
	}
	if len(logged) != 1 || logged[0].MarketID != "m1" || logged[0].Detail["market_id"] != "m1" {
		t.Errorf("Unexpected market audit log: %+v", logged)
	}
}
