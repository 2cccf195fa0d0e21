package scheduler

import (
	"context"
	"testing"
	"time"

	"hedgegrid/config"
	"hedgegrid/internal/core"
	"hedgegrid/internal/exchange"
	"hedgegrid/internal/signal"
)

// fakePort is a minimal exchange.Port fake: positions come from the
// positions field, every price/precision call succeeds, and
// creates/cancels are recorded.
type fakePort struct {
	exchange.Port
	price      float64
	positions  map[string]map[core.Side]core.Position
	created    []exchange.CreateOrderRequest
	canceled   []string
	cancelAllN int
}

func (f *fakePort) CreateLimit(ctx context.Context, req exchange.CreateOrderRequest) (core.Order, error) {
	f.created = append(f.created, req)
	return core.Order{ID: req.LinkID, Symbol: req.Symbol, Side: req.Side, Price: req.Price, Qty: req.Qty, ReduceOnly: req.ReduceOnly}, nil
}

func (f *fakePort) CreateReduceOnlyLimit(ctx context.Context, req exchange.CreateOrderRequest) (core.Order, error) {
	return f.CreateLimit(ctx, req)
}

func (f *fakePort) CreateNormalLimit(ctx context.Context, req exchange.CreateOrderRequest) (core.Order, error) {
	return f.CreateLimit(ctx, req)
}

func (f *fakePort) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, nil
}

func (f *fakePort) Precision(ctx context.Context, symbol string) (core.Precision, error) {
	return core.Precision{PriceTick: 0.1, QtyStep: 0.001, MinQty: 0.001}, nil
}

func (f *fakePort) MaxLeverage(ctx context.Context, symbol string) (int, error) {
	return 10, nil
}

func (f *fakePort) AllPositions(ctx context.Context) (map[string]map[core.Side]core.Position, error) {
	return f.positions, nil
}

func (f *fakePort) OpenOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	return nil, nil
}

func (f *fakePort) OrderBook(ctx context.Context, symbol string) (exchange.OrderBook, error) {
	return exchange.OrderBook{
		Bids: []exchange.OrderBookLevel{{Price: f.price - 1, Size: 1}},
		Asks: []exchange.OrderBookLevel{{Price: f.price + 1, Size: 1}},
	}, nil
}

func (f *fakePort) CancelAll(ctx context.Context, symbol string) error {
	f.cancelAllN++
	return nil
}

func (f *fakePort) CancelAllEntries(ctx context.Context, symbol string) error {
	return nil
}

func (f *fakePort) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.canceled = append(f.canceled, orderID)
	return nil
}

type fakeSignal struct{}

func (fakeSignal) Read(symbol string) (signal.Reading, error) {
	return signal.Reading{MFI: signal.LabelNeutral, Trend: signal.LabelNeutral}, nil
}

func baseConfig(symbols ...string) *config.Config {
	cfg := &config.Config{SymbolsAllowed: symbols}
	cfg.SetDefaults()
	cfg.Grid = config.GridConfig{Levels: 3, Strength: 1, OuterPriceDistance: 0.02, MinBufferPct: 0.002, MaxBufferPct: 0.01, ReissueThreshold: 0.005}
	cfg.Exposure = config.ExposureConfig{WalletExposureLimit: 0.1, LeverageLong: 10, LeverageShort: 10}
	return cfg
}

// TestTerminatesWhenAbsentFromPositionsBeyondThreshold covers spec §8
// scenario 6 at the scheduler boundary: for a symbol with no open
// position on either side for longer than the termination threshold,
// tick reports that the worker must terminate.
func TestTerminatesWhenAbsentFromPositionsBeyondThreshold(t *testing.T) {
	fp := &fakePort{price: 50000, positions: map[string]map[core.Side]core.Position{}}
	cfg := baseConfig("BTCUSDT")
	s := New(cfg, fp, fakeSignal{}, nil, func(ctx context.Context) (float64, error) { return 10000, nil })
	s.timers.AbsentFromPositionsThreshold = 0 // fire immediately once observed

	ctx := context.Background()
	terminate, reason := s.tick(ctx, "BTCUSDT")
	if !terminate {
		t.Fatalf("expected termination, got none (reason=%q)", reason)
	}
}

// TestPositionCloseClearsSideWithoutAffectingOther is the scheduler-level
// half of spec §8 scenario 6: long qty goes to zero while short still
// holds a position — only the long side's state is cleared.
func TestPositionCloseClearsSideWithoutAffectingOther(t *testing.T) {
	fp := &fakePort{
		price: 50000,
		positions: map[string]map[core.Side]core.Position{
			"BTCUSDT": {
				core.SideShort: {Side: core.SideShort, Qty: 0.02, EntryPrice: 50100},
			},
		},
	}
	cfg := baseConfig("BTCUSDT")
	s := New(cfg, fp, fakeSignal{}, nil, func(ctx context.Context) (float64, error) { return 10000, nil })

	ctx := context.Background()
	st := s.stateFor("BTCUSDT")
	st.ActiveGridsLong = true
	st.ActiveGridsShort = true

	terminate, _ := s.tick(ctx, "BTCUSDT")
	if terminate {
		t.Fatalf("symbol still holds a short position, should not terminate")
	}
	if st.ActiveGridsLong {
		t.Error("long side should be cleared once flat")
	}
}

func TestAdmissionCapBoundsConcurrentSymbols(t *testing.T) {
	fp := &fakePort{price: 50000, positions: map[string]map[core.Side]core.Position{}}
	cfg := baseConfig("BTCUSDT", "ETHUSDT")
	s := New(cfg, fp, fakeSignal{}, nil, func(ctx context.Context) (float64, error) { return 10000, nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.admit(ctx, "BTCUSDT")
	s.admit(ctx, "ETHUSDT")
	s.admit(ctx, "SOLUSDT") // over the cap of 2, must be rejected

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.admitted) != 2 {
		t.Errorf("expected admission cap of 2, got %d admitted", len(s.admitted))
	}
	if s.admitted["SOLUSDT"] {
		t.Error("SOLUSDT should not have been admitted over the cap")
	}
	for _, c := range s.cancel {
		c()
	}
	time.Sleep(10 * time.Millisecond)
}
