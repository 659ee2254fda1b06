package risk

import (
	"context"
	"strings"
	"testing"
	"time"

	"binance-ats/config"
	"binance-ats/internal/store"
)

func newGuard(t *testing.T, cfg config.RunnerConfig) *Guard {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewGuard(s, cfg)
}

func TestGuardCooldown(t *testing.T) {
	ctx := context.Background()
	g := newGuard(t, config.RunnerConfig{Cooldown: 6 * time.Hour})
	sw := Switches{TradingEnabled: true}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	ok, reason, err := g.CanOpen(ctx, sw, "BTCUSDT", "long", now)
	if err != nil || !ok {
		t.Fatalf("first open should pass: ok=%v reason=%q err=%v", ok, reason, err)
	}

	if err := g.RecordOpen(ctx, "BTCUSDT", "long", now, 1); err != nil {
		t.Fatalf("RecordOpen: %v", err)
	}

	ok, reason, err = g.CanOpen(ctx, sw, "BTCUSDT", "long", now.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if ok || !strings.HasPrefix(reason, "cooldown") {
		t.Errorf("expected cooldown rejection, got ok=%v reason=%q", ok, reason)
	}

	ok, _, _ = g.CanOpen(ctx, sw, "ETHUSDT", "long", now.Add(2*time.Hour))
	if !ok {
		t.Error("cooldown must be per symbol")
	}

	ok, _, _ = g.CanOpen(ctx, sw, "BTCUSDT", "long", now.Add(7*time.Hour))
	if !ok {
		t.Error("cooldown should have expired")
	}
}

func TestGuardHourlyBudget(t *testing.T) {
	ctx := context.Background()
	g := newGuard(t, config.RunnerConfig{MaxNewPerHour: 2})
	sw := Switches{TradingEnabled: true}
	now := time.Date(2024, 6, 1, 12, 10, 0, 0, time.UTC)

	if left, _ := g.Remaining(ctx, now); left != 2 {
		t.Errorf("remaining = %d, want 2", left)
	}

	for _, sym := range []string{"AUSDT", "BUSDT"} {
		if err := g.RecordOpen(ctx, sym, "long", now, 1); err != nil {
			t.Fatal(err)
		}
	}

	ok, reason, err := g.CanOpen(ctx, sw, "CUSDT", "long", now.Add(20*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if ok || !strings.HasPrefix(reason, "hourly budget") {
		t.Errorf("expected budget rejection, got ok=%v reason=%q", ok, reason)
	}
	if left, _ := g.Remaining(ctx, now); left != 0 {
		t.Errorf("remaining = %d, want 0", left)
	}

	ok, _, _ = g.CanOpen(ctx, sw, "CUSDT", "long", now.Add(time.Hour))
	if !ok {
		t.Error("budget should reset at the next hour")
	}
}

func TestGuardHonoursSwitches(t *testing.T) {
	g := newGuard(t, config.RunnerConfig{})
	ok, reason, err := g.CanOpen(context.Background(), Switches{}, "BTCUSDT", "long", time.Now())
	if err != nil || ok || reason != "trading disabled" {
		t.Errorf("got ok=%v reason=%q err=%v", ok, reason, err)
	}
	if left, _ := g.Remaining(context.Background(), time.Now()); left != -1 {
		t.Errorf("unlimited budget should report -1, got %d", left)
	}
}
