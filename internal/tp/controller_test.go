package tp

import (
	"math"
	"testing"

	"hedgegrid/internal/core"
	"hedgegrid/internal/exchange"
)

func TestTargetFixedLong(t *testing.T) {
	// Scenario 2 from spec §8.
	cfg := Config{Mode: "fixed", UpnlProfitPct: 0.004}
	target := Target(cfg, core.SideLong, 50000, 0.01, 0.01)
	want := 50200.0
	if math.Abs(target-want) > 1e-6 {
		t.Errorf("Target = %v, want %v", target, want)
	}
}

func TestTargetFixedShort(t *testing.T) {
	cfg := Config{Mode: "fixed", UpnlProfitPct: 0.004}
	target := Target(cfg, core.SideShort, 50000, 0.01, 0.01)
	want := 49800.0
	if math.Abs(target-want) > 1e-6 {
		t.Errorf("Target = %v, want %v", target, want)
	}
}

func TestTargetDynamicScalesWithSize(t *testing.T) {
	cfg := Config{Mode: "dynamic", MinUpnlProfitPct: 0.002, MaxUpnlProfitPct: 0.01}
	small := Target(cfg, core.SideLong, 50000, 0.001, 0.01)
	large := Target(cfg, core.SideLong, 50000, 0.01, 0.01)
	if !(large < small) {
		t.Errorf("expected larger position to get a nearer target: small=%v large=%v", small, large)
	}
}

func TestSignificantWallRequiresBothThresholds(t *testing.T) {
	levels := []exchange.OrderBookLevel{
		{Price: 50100, Size: 1000}, // near, big
		{Price: 50110, Size: 10},
	}
	wall, found := SignificantWall(levels, 50000, 50, 1.5, 0.01, 2)
	if !found || wall.Price != 50100 {
		t.Fatalf("expected wall at 50100, got %+v found=%v", wall, found)
	}
}

func TestSignificantWallRejectsOutsideProximity(t *testing.T) {
	levels := []exchange.OrderBookLevel{
		{Price: 60000, Size: 100000},
	}
	_, found := SignificantWall(levels, 50000, 50, 1.0, 0.01, 1)
	if found {
		t.Error("expected wall outside atr proximity to be rejected")
	}
}

func TestExtendTowardWallClampsToMaxDeviation(t *testing.T) {
	wall := Wall{Price: 51000, Size: 999}
	got := ExtendTowardWall(core.SideLong, 50200, wall, true, 0.005)
	want := 50200 * 1.005
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("ExtendTowardWall = %v, want clamp to %v", got, want)
	}
}

func TestClampToMarketWhenCrossed(t *testing.T) {
	book := exchange.OrderBook{Bids: []exchange.OrderBookLevel{{Price: 50300, Size: 1}}}
	price, postOnly := ClampToMarket(core.SideLong, 50200, book)
	if postOnly {
		t.Error("expected non-post-only when target is already crossable")
	}
	if price != 50300 {
		t.Errorf("expected clamp to best bid 50300, got %v", price)
	}
}

func TestClampToMarketWhenNotCrossed(t *testing.T) {
	book := exchange.OrderBook{Bids: []exchange.OrderBookLevel{{Price: 50100, Size: 1}}}
	price, postOnly := ClampToMarket(core.SideLong, 50200, book)
	if !postOnly {
		t.Error("expected post-only when target is not yet crossable")
	}
	if price != 50200 {
		t.Errorf("expected target unchanged, got %v", price)
	}
}

func TestNeedsReplaceOnQtyMismatch(t *testing.T) {
	current := &core.TPState{Price: 50200, Qty: 0.01}
	if !NeedsReplace(current, 50200, 0.02, 0.01) {
		t.Error("expected replace on qty mismatch")
	}
}

func TestNeedsReplaceNilIsAlwaysReplace(t *testing.T) {
	if !NeedsReplace(nil, 50200, 0.01, 0.01) {
		t.Error("expected replace when no current TP exists")
	}
}

func TestNeedsReplaceFalseWhenMatching(t *testing.T) {
	current := &core.TPState{Price: 50200, Qty: 0.01}
	if NeedsReplace(current, 50200.005, 0.01, 0.01) {
		t.Error("expected no replace within price tolerance")
	}
}
