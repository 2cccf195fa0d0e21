package store

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSymbolStateRoundTrip(t *testing.T) {
	s := openTestStore(t)

	in := &SymbolStateModel{
		Symbol:           "BTCUSDT",
		ActiveGridsLong:  true,
		ActiveGridsShort: false,
	}
	if err := s.SaveSymbolState(in); err != nil {
		t.Fatalf("SaveSymbolState: %v", err)
	}

	out, err := s.SymbolState("BTCUSDT")
	if err != nil {
		t.Fatalf("SymbolState: %v", err)
	}
	if out == nil {
		t.Fatal("expected a saved snapshot, got nil")
	}
	if !out.ActiveGridsLong || out.ActiveGridsShort {
		t.Errorf("unexpected grid state: long=%v short=%v", out.ActiveGridsLong, out.ActiveGridsShort)
	}

	missing, err := s.SymbolState("ETHUSDT")
	if err != nil {
		t.Fatalf("SymbolState(missing): %v", err)
	}
	if missing != nil {
		t.Error("expected nil for an unknown symbol")
	}
}

func TestGridPlanHistoryOrdering(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordGridPlan("BTCUSDT", "long", []float64{100, 99}, []float64{0.1, 0.1}); err != nil {
		t.Fatalf("RecordGridPlan: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := s.RecordGridPlan("BTCUSDT", "long", []float64{101, 100}, []float64{0.1, 0.1}); err != nil {
		t.Fatalf("RecordGridPlan: %v", err)
	}

	plans, err := s.LatestGridPlans("BTCUSDT", 10)
	if err != nil {
		t.Fatalf("LatestGridPlans: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}
	if plans[0].Levels != `[101,100]` {
		t.Errorf("expected newest plan first, got %s", plans[0].Levels)
	}
}

func TestTPStateClear(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveTPState(&TPStateModel{Symbol: "BTCUSDT", Side: "long", OrderID: "o1", Price: 51000, Qty: 0.01}); err != nil {
		t.Fatalf("SaveTPState: %v", err)
	}
	if err := s.ClearTPState("BTCUSDT", "long"); err != nil {
		t.Fatalf("ClearTPState: %v", err)
	}

	var count int64
	s.db.Model(&TPStateModel{}).Where("symbol = ? AND side = ?", "BTCUSDT", "long").Count(&count)
	if count != 0 {
		t.Errorf("expected TP state cleared, found %d rows", count)
	}
}

func TestEquityHistoryAscending(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().Add(-time.Hour)
	if err := s.SaveEquitySnapshot(&EquitySnapshotModel{Timestamp: base, TotalEquity: 1000}); err != nil {
		t.Fatalf("SaveEquitySnapshot: %v", err)
	}
	if err := s.SaveEquitySnapshot(&EquitySnapshotModel{Timestamp: base.Add(time.Minute), TotalEquity: 1010}); err != nil {
		t.Fatalf("SaveEquitySnapshot: %v", err)
	}

	history, err := s.EquityHistory(10)
	if err != nil {
		t.Fatalf("EquityHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(history))
	}
	if history[0].TotalEquity != 1000 || history[1].TotalEquity != 1010 {
		t.Errorf("expected ascending order, got %v then %v", history[0].TotalEquity, history[1].TotalEquity)
	}
}
