package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/config"
)

func sqliteConfig(mode string) *config.Config {
	cfg := config.Defaults()
	cfg.Mode = mode
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLitePath = ":memory:"
	cfg.Redis.Addr = ""
	return &cfg
}

func TestWireSQLiteWithoutRedis(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, cleanup, err := Wire(context.Background(), sqliteConfig("server"), logger)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.MarketStore == nil || deps.BetStore == nil || deps.TxRunner == nil {
		t.Fatal("stores not wired")
	}
	if err := deps.DBPing(context.Background()); err != nil {
		t.Fatalf("DBPing: %v", err)
	}
	if deps.SignalBus != nil || deps.OddsCache != nil || deps.LockManager != nil || deps.RateLimiter != nil {
		t.Error("redis collaborators should stay nil without redis.addr")
	}
	if deps.RedisPing != nil {
		t.Error("RedisPing should be nil without redis.addr")
	}
	if deps.Archiver != nil || deps.BlobReader != nil {
		t.Error("archive storage should not be wired in server mode")
	}
	if deps.Notifier == nil {
		t.Error("notifier should always be wired")
	}
}

func TestNeedsS3(t *testing.T) {
	tests := []struct {
		mode    string
		enabled bool
		want    bool
	}{
		{"server", true, false},
		{"seed", true, false},
		{"archive", false, true},
		{"full", false, false},
		{"full", true, true},
	}
	for _, tt := range tests {
		cfg := config.Defaults()
		cfg.Mode = tt.mode
		cfg.Archive.Enabled = tt.enabled
		if got := needsS3(&cfg); got != tt.want {
			t.Errorf("needsS3(%s, enabled=%v) = %v, want %v", tt.mode, tt.enabled, got, tt.want)
		}
	}
}

func TestPricingConfigFromDefaults(t *testing.T) {
	cfg := config.Defaults()
	pc := PricingConfig(&cfg)
	if !pc.CommissionRate.Equal(decimal.RequireFromString("0.35")) {
		t.Errorf("commission = %s", pc.CommissionRate)
	}
	if !pc.MinOdds.Equal(decimal.RequireFromString("1.01")) {
		t.Errorf("min odds = %s", pc.MinOdds)
	}
	if !pc.CashoutFee.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("cashout fee = %s", pc.CashoutFee)
	}
	if err := pc.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
