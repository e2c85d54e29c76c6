package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/pricing"
	"github.com/alanyoungcy/poolbet/internal/store/sqlite"
)

type testEnv struct {
	markets    *MarketService
	bets       *BetService
	settlement *SettlementService
	cashout    *CashoutService
	accounts   *AccountService

	marketStore *sqlite.MarketStore
	audit       *sqlite.AuditStore
	cache       *fakeCache
	bus         *fakeBus
	locks       *fakeLocks
	notifier    *fakeNotifier
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	engine, err := pricing.New(pricing.DefaultConfig())
	if err != nil {
		t.Fatalf("pricing.New: %v", err)
	}

	env := &testEnv{
		marketStore: sqlite.NewMarketStore(db),
		audit:       sqlite.NewAuditStore(db),
		cache:       newFakeCache(),
		bus:         newFakeBus(),
		locks:       newFakeLocks(),
		notifier:    &fakeNotifier{},
	}
	collab := Collaborators{Cache: env.cache, Bus: env.bus, Audit: env.audit, Notifier: env.notifier}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bets := sqlite.NewBetStore(db)
	tx := sqlite.NewTxRunner(db)

	env.markets = NewMarketService(env.marketStore, bets, tx, engine, collab, logger)
	env.bets = NewBetService(bets, tx, engine, decimal.Zero, collab, logger)
	env.settlement = NewSettlementService(tx, env.locks, engine, collab, logger)
	env.cashout = NewCashoutService(env.marketStore, bets, tx, engine, collab, logger)
	env.accounts = NewAccountService(sqlite.NewAccountStore(db), sqlite.NewLedgerStore(db), bets, tx, DefaultLimits(), collab, logger)
	return env
}

func (e *testEnv) market(t *testing.T, outcomes ...string) domain.Market {
	t.Helper()
	m, err := e.markets.CreateMarket(context.Background(), CreateMarketParams{
		Question: "Who wins the race?",
		Outcomes: outcomes,
		EndsAt:   time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	return m
}

func (e *testEnv) account(t *testing.T, name, deposit string) domain.Account {
	t.Helper()
	ctx := context.Background()
	a, err := e.accounts.Open(ctx, name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if deposit != "" {
		if _, err := e.accounts.Deposit(ctx, a.ID, d(deposit)); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
	}
	return a
}

func (e *testEnv) bet(t *testing.T, accountID, marketID, side, amount string) domain.Bet {
	t.Helper()
	b, err := e.bets.PlaceBet(context.Background(), PlaceBetParams{
		AccountID: accountID, MarketID: marketID, Side: side, Amount: d(amount),
	})
	if err != nil {
		t.Fatalf("PlaceBet(%s %s on %s): %v", accountID, amount, side, err)
	}
	return b
}

func (e *testEnv) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	a, err := e.accounts.Get(context.Background(), accountID)
	if err != nil {
		t.Fatalf("Get account: %v", err)
	}
	return a.Balance
}

func TestPlaceBetLocksPreIncrementOdds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.market(t, "Mario", "Luigi")

	a := env.account(t, "a", "1000")
	b := env.account(t, "b", "3000")
	c := env.account(t, "c", "100")

	first := env.bet(t, a.ID, m.ID, "Mario", "1000")
	if !first.OddsAtEntry.Equal(d("2")) {
		t.Errorf("first bet odds = %s, want default 2", first.OddsAtEntry)
	}
	env.bet(t, b.ID, m.ID, "Luigi", "3000")

	late := env.bet(t, c.ID, m.ID, "Mario", "100")
	if !late.OddsAtEntry.Equal(d("2.6")) || !late.PotentialPayout.Equal(d("260")) {
		t.Errorf("late bet odds %s potential %s, want 2.6 and 260", late.OddsAtEntry, late.PotentialPayout)
	}

	got, err := env.markets.GetMarket(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if !got.TotalPool.Equal(d("4100")) || !got.PoolsConsistent() {
		t.Errorf("pools %v total %s, want consistent 4100", got.Pools, got.TotalPool)
	}
	if !env.balance(t, c.ID).IsZero() {
		t.Errorf("balance after stake = %s, want 0", env.balance(t, c.ID))
	}

	snap, err := env.cache.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("expected odds snapshot cached after bet: %v", err)
	}
	if !snap.TotalPool.Equal(d("4100")) {
		t.Errorf("cached total pool = %s, want 4100", snap.TotalPool)
	}
}

func TestPlaceBetFailuresLeaveNoTrace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.market(t, "YES", "NO")
	a := env.account(t, "a", "50")

	tests := []struct {
		name   string
		params PlaceBetParams
		want   error
	}{
		{name: "insufficient balance", params: PlaceBetParams{AccountID: a.ID, MarketID: m.ID, Side: "YES", Amount: d("60")}, want: domain.ErrInsufficientFunds},
		{name: "invalid outcome", params: PlaceBetParams{AccountID: a.ID, MarketID: m.ID, Side: "MAYBE", Amount: d("10")}, want: domain.ErrInvalidOutcome},
		{name: "zero stake", params: PlaceBetParams{AccountID: a.ID, MarketID: m.ID, Side: "YES", Amount: d("0")}, want: domain.ErrInvalidAmount},
		{name: "unknown market", params: PlaceBetParams{AccountID: a.ID, MarketID: "nope", Side: "YES", Amount: d("10")}, want: domain.ErrNotFound},
		{name: "unknown account", params: PlaceBetParams{AccountID: "ghost", MarketID: m.ID, Side: "YES", Amount: d("10")}, want: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.bets.PlaceBet(ctx, tt.params)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if !env.balance(t, a.ID).Equal(d("50")) {
		t.Errorf("balance = %s, want untouched 50", env.balance(t, a.ID))
	}
	got, _ := env.markets.GetMarket(ctx, m.ID)
	if !got.TotalPool.IsZero() {
		t.Errorf("total pool = %s, want 0", got.TotalPool)
	}
}

func TestPlaceBetRejectsClosedMarkets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.account(t, "a", "100")

	voided := env.market(t, "YES", "NO")
	if _, err := env.settlement.Void(ctx, voided.ID); err != nil {
		t.Fatalf("Void: %v", err)
	}
	_, err := env.bets.PlaceBet(ctx, PlaceBetParams{AccountID: a.ID, MarketID: voided.ID, Side: "YES", Amount: d("10")})
	if !errors.Is(err, domain.ErrInvalidMarketState) {
		t.Errorf("bet on voided market: expected ErrInvalidMarketState, got %v", err)
	}

	expired := env.market(t, "YES", "NO")
	env.bets.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = env.bets.PlaceBet(ctx, PlaceBetParams{AccountID: a.ID, MarketID: expired.ID, Side: "YES", Amount: d("10")})
	if !errors.Is(err, domain.ErrInvalidMarketState) {
		t.Errorf("bet after end time: expected ErrInvalidMarketState, got %v", err)
	}
}

// scenarioMarket builds Mario 1000 / Luigi 3000 from four bettors.
func scenarioMarket(t *testing.T, env *testEnv) (domain.Market, map[string]domain.Account) {
	t.Helper()
	m := env.market(t, "Mario", "Luigi")
	stakes := []struct{ name, side, amount string }{
		{"mario_big", "Mario", "900"},
		{"mario_small", "Mario", "100"},
		{"luigi_big", "Luigi", "2900"},
		{"luigi_small", "Luigi", "100"},
	}
	accounts := make(map[string]domain.Account, len(stakes))
	for _, s := range stakes {
		a := env.account(t, s.name, s.amount)
		env.bet(t, a.ID, m.ID, s.side, s.amount)
		accounts[s.name] = a
	}
	return m, accounts
}

func TestResolvePaysWinners(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m, accounts := scenarioMarket(t, env)

	s, err := env.settlement.Resolve(ctx, m.ID, "Mario")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !s.TotalPaid.Equal(d("2600")) {
		t.Errorf("total paid = %s, want 2600", s.TotalPaid)
	}

	want := map[string]string{
		"mario_big":   "2340",
		"mario_small": "260",
		"luigi_big":   "0",
		"luigi_small": "0",
	}
	for name, balance := range want {
		if got := env.balance(t, accounts[name].ID); !got.Equal(d(balance)) {
			t.Errorf("%s balance = %s, want %s", name, got, balance)
		}
	}

	got, _ := env.markets.GetMarket(ctx, m.ID)
	if got.Status != domain.MarketStatusResolved || got.ResolutionResult != "Mario" {
		t.Errorf("market = %s/%q, want RESOLVED/Mario", got.Status, got.ResolutionResult)
	}

	bets, err := env.accounts.Bets(ctx, accounts["luigi_small"].ID, domain.ListOpts{})
	if err != nil {
		t.Fatalf("Bets: %v", err)
	}
	if len(bets) != 1 || bets[0].Status != domain.BetStatusLost || !bets[0].Payout.IsZero() {
		t.Errorf("losing bet = %+v, want LOST with no payout", bets)
	}

	if len(env.bus.streams[domain.StreamSettlement]) != 1 {
		t.Errorf("expected one settlement stream entry, got %d", len(env.bus.streams[domain.StreamSettlement]))
	}
	if len(env.notifier.events) != 1 || env.notifier.events[0] != domain.EventMarketResolved {
		t.Errorf("notifications = %v, want [%s]", env.notifier.events, domain.EventMarketResolved)
	}
}

func TestResolveAppliesOddsFloor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m, accounts := scenarioMarket(t, env)

	s, err := env.settlement.Resolve(ctx, m.ID, "Luigi")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := env.balance(t, accounts["luigi_small"].ID); !got.Equal(d("101")) {
		t.Errorf("luigi_small balance = %s, want 101", got)
	}
	if got := env.balance(t, accounts["luigi_big"].ID); !got.Equal(d("2929")) {
		t.Errorf("luigi_big balance = %s, want 2929", got)
	}
	if !s.Shortfall.Equal(d("430")) {
		t.Errorf("shortfall = %s, want 430", s.Shortfall)
	}
	if len(env.notifier.events) != 2 || env.notifier.events[1] != domain.EventSettlementGap {
		t.Errorf("notifications = %v, want resolution then shortfall", env.notifier.events)
	}
}

func TestResolveRejectsRepeatAndUnknownOutcome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m, _ := scenarioMarket(t, env)

	if _, err := env.settlement.Resolve(ctx, m.ID, "Peach"); !errors.Is(err, domain.ErrInvalidOutcome) {
		t.Fatalf("expected ErrInvalidOutcome, got %v", err)
	}
	got, _ := env.markets.GetMarket(ctx, m.ID)
	if got.Status != domain.MarketStatusOpen {
		t.Fatalf("failed resolution left market %s, want OPEN", got.Status)
	}

	if _, err := env.settlement.Resolve(ctx, m.ID, "Mario"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := env.settlement.Resolve(ctx, m.ID, "Mario"); !errors.Is(err, domain.ErrInvalidMarketState) {
		t.Errorf("second resolve: expected ErrInvalidMarketState, got %v", err)
	}
	if _, err := env.settlement.Void(ctx, m.ID); !errors.Is(err, domain.ErrInvalidMarketState) {
		t.Errorf("void after resolve: expected ErrInvalidMarketState, got %v", err)
	}
}

func TestResolveWhileLocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.market(t, "YES", "NO")

	unlock, err := env.locks.Acquire(ctx, "settlement:"+m.ID, time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer unlock()

	if _, err := env.settlement.Resolve(ctx, m.ID, "YES"); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("expected ErrConcurrencyConflict, got %v", err)
	}
}

func TestVoidRefundsExactStakes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m, accounts := scenarioMarket(t, env)

	s, err := env.settlement.Void(ctx, m.ID)
	if err != nil {
		t.Fatalf("Void: %v", err)
	}
	if !s.TotalRefunded.Equal(d("4000")) {
		t.Errorf("refunded = %s, want the whole pool 4000", s.TotalRefunded)
	}

	want := map[string]string{"mario_big": "900", "mario_small": "100", "luigi_big": "2900", "luigi_small": "100"}
	for name, balance := range want {
		if got := env.balance(t, accounts[name].ID); !got.Equal(d(balance)) {
			t.Errorf("%s balance = %s, want %s", name, got, balance)
		}
	}

	got, _ := env.markets.GetMarket(ctx, m.ID)
	if got.Status != domain.MarketStatusCanceled || got.ResolutionResult != "" {
		t.Errorf("market = %s/%q, want CANCELED with no result", got.Status, got.ResolutionResult)
	}

	ledger, err := env.accounts.History(ctx, accounts["mario_small"].ID, domain.ListOpts{})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(ledger) != 3 || ledger[0].Kind != domain.LedgerRefund {
		t.Errorf("ledger = %+v, want deposit, bet, refund", ledger)
	}
}

func TestCashOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.market(t, "Mario", "Luigi")
	a := env.account(t, "a", "1000")
	b := env.account(t, "b", "3000")
	c := env.account(t, "c", "100")
	env.bet(t, a.ID, m.ID, "Mario", "1000")
	env.bet(t, b.ID, m.ID, "Luigi", "3000")
	cb := env.bet(t, c.ID, m.ID, "Mario", "100")

	q, err := env.cashout.Quote(ctx, cb.ID)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	// 260 × 1100/4100 × 0.9
	if !q.Value.Equal(d("62.78")) {
		t.Errorf("quote = %s, want 62.78", q.Value)
	}

	if _, err := env.cashout.CashOut(ctx, cb.ID, a.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("cash-out by another account: expected ErrForbidden, got %v", err)
	}

	res, err := env.cashout.CashOut(ctx, cb.ID, c.ID)
	if err != nil {
		t.Fatalf("CashOut: %v", err)
	}
	if !res.Value.Equal(q.Value) || !res.Balance.Equal(q.Value) {
		t.Errorf("cashed out %s with balance %s, want %s", res.Value, res.Balance, q.Value)
	}
	if res.Value.GreaterThan(cb.PotentialPayout) {
		t.Errorf("cash-out %s exceeds potential %s", res.Value, cb.PotentialPayout)
	}

	if _, err := env.cashout.CashOut(ctx, cb.ID, c.ID); !errors.Is(err, domain.ErrCashoutUnavailable) {
		t.Errorf("second cash-out: expected ErrCashoutUnavailable, got %v", err)
	}

	got, _ := env.markets.GetMarket(ctx, m.ID)
	if !got.TotalPool.Equal(d("4100")) {
		t.Errorf("total pool after cash-out = %s, want unchanged 4100", got.TotalPool)
	}

	s, err := env.settlement.Resolve(ctx, m.ID, "Mario")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, p := range s.Payouts {
		if p.BetID == cb.ID {
			t.Errorf("cashed-out bet %s was settled again", cb.ID)
		}
	}
	if got := env.balance(t, c.ID); !got.Equal(q.Value) {
		t.Errorf("balance after settlement = %s, want only the cash-out %s", got, q.Value)
	}
}

func TestReopen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	empty := env.market(t, "YES", "NO")
	if _, err := env.markets.Reopen(ctx, empty.ID); !errors.Is(err, domain.ErrInvalidMarketState) {
		t.Errorf("reopen open market: expected ErrInvalidMarketState, got %v", err)
	}
	if _, err := env.settlement.Void(ctx, empty.ID); err != nil {
		t.Fatalf("Void: %v", err)
	}
	m, err := env.markets.Reopen(ctx, empty.ID)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if m.Status != domain.MarketStatusOpen || m.SettledAt != nil {
		t.Errorf("reopened market = %s settled_at=%v, want OPEN", m.Status, m.SettledAt)
	}

	withBets := env.market(t, "YES", "NO")
	a := env.account(t, "a", "10")
	env.bet(t, a.ID, withBets.ID, "YES", "10")
	if _, err := env.settlement.Void(ctx, withBets.ID); err != nil {
		t.Fatalf("Void: %v", err)
	}
	if _, err := env.markets.Reopen(ctx, withBets.ID); !errors.Is(err, domain.ErrInvalidMarketState) {
		t.Errorf("reopen market with bets: expected ErrInvalidMarketState, got %v", err)
	}
}

func TestQuoteServesFromCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.market(t, "YES", "NO")

	first, err := env.markets.Quote(ctx, m.ID)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !first.Odds["YES"].Equal(d("2")) {
		t.Errorf("empty pool odds = %s, want 2", first.Odds["YES"])
	}
	if _, err := env.cache.Get(ctx, m.ID); err != nil {
		t.Fatalf("expected snapshot cached after quote: %v", err)
	}

	a := env.account(t, "a", "100")
	env.bet(t, a.ID, m.ID, "YES", "100")

	after, err := env.markets.Quote(ctx, m.ID)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !after.TotalPool.Equal(d("100")) || !after.Odds["YES"].Equal(d("1.01")) {
		t.Errorf("quote after bet = total %s odds %s, want 100 and 1.01", after.TotalPool, after.Odds["YES"])
	}

	if _, err := env.markets.Quote(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountLimits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.account(t, "a", "")

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{name: "deposit below minimum", run: func() error { _, err := env.accounts.Deposit(ctx, a.ID, d("9.99")); return err }, want: domain.ErrInvalidAmount},
		{name: "sub-cent deposit", run: func() error { _, err := env.accounts.Deposit(ctx, a.ID, d("10.001")); return err }, want: domain.ErrInvalidAmount},
		{name: "withdraw below minimum", run: func() error { _, err := env.accounts.Withdraw(ctx, a.ID, d("19.99")); return err }, want: domain.ErrInvalidAmount},
		{name: "withdraw more than balance", run: func() error { _, err := env.accounts.Withdraw(ctx, a.ID, d("20")); return err }, want: domain.ErrInsufficientFunds},
		{name: "deposit to unknown account", run: func() error { _, err := env.accounts.Deposit(ctx, "ghost", d("10")); return err }, want: domain.ErrNotFound},
		{name: "open without name", run: func() error { _, err := env.accounts.Open(ctx, "  "); return err }, want: domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := env.accounts.Deposit(ctx, a.ID, d("30")); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	entry, err := env.accounts.Withdraw(ctx, a.ID, d("20"))
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if !entry.Amount.Equal(d("-20")) || !entry.BalanceAfter.Equal(d("10")) {
		t.Errorf("withdraw entry = %s after %s, want -20 after 10", entry.Amount, entry.BalanceAfter)
	}
}

func TestConcurrentBetsKeepEveryIncrement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.market(t, "YES", "NO")

	const bettors = 20
	ids := make([]string, bettors)
	for i := range ids {
		ids[i] = env.account(t, "bettor", "10").ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, bettors)
	for i, id := range ids {
		side := "YES"
		if i%2 == 1 {
			side = "NO"
		}
		wg.Add(1)
		go func(id, side string) {
			defer wg.Done()
			_, err := env.bets.PlaceBet(ctx, PlaceBetParams{AccountID: id, MarketID: m.ID, Side: side, Amount: d("10")})
			errs <- err
		}(id, side)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("PlaceBet: %v", err)
		}
	}

	got, _ := env.markets.GetMarket(ctx, m.ID)
	if !got.TotalPool.Equal(d("200")) || !got.Pool("YES").Equal(d("100")) || !got.PoolsConsistent() {
		t.Errorf("pools %v total %s, want 100/100 of 200", got.Pools, got.TotalPool)
	}
}
