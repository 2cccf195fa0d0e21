// Package core holds the domain types and process-resident state every
// other package operates on: symbols, positions, orders, grid plans, and
// the per-symbol state that is created lazily and destroyed when a
// scheduler worker terminates.
package core

import "time"

// Side is a position or order side.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// PositionIdx is the hedge-mode position slot: 1 for long, 2 for short.
type PositionIdx int

const (
	PositionIdxLong  PositionIdx = 1
	PositionIdxShort PositionIdx = 2
)

// PositionIdxFor returns the hedge-mode slot for side.
func PositionIdxFor(side Side) PositionIdx {
	if side == SideLong {
		return PositionIdxLong
	}
	return PositionIdxShort
}

// Precision is immutable per symbol and cached process-wide once fetched.
type Precision struct {
	PriceTick float64
	QtyStep   float64
	MinQty    float64
}

// Symbol is an opaque exchange symbol string plus its cached precision
// and leverage ceiling.
type Symbol struct {
	Name        string
	Precision   Precision
	MaxLeverage int
}

// Position is one side of a hedge-mode pair. Qty is always >= 0; a flat
// side (Qty == 0) has no meaningful EntryPrice — callers must never let
// EntryPrice drive grid or TP math when Qty == 0.
type Position struct {
	Side         Side
	Qty          float64
	EntryPrice   float64 // undefined (must not be read) when Qty == 0
	RealizedPnL  float64
	UnrealizedPnL float64
	LiqPrice     float64 // 0 = none reported
}

// Flat reports whether the position carries no size.
func (p Position) Flat() bool { return p.Qty == 0 }

// OrderStatus is the lifecycle state of a resting order.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "new"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
)

// Order is a resting or historical order on the exchange.
type Order struct {
	ID          string
	Symbol      string
	Side        Side
	Price       float64
	Qty         float64
	Status      OrderStatus
	ReduceOnly  bool
	PositionIdx PositionIdx
	LinkID      string
	PlacedAt    time.Time
}

// GridPlan is the planner's current layout for both sides of one symbol.
// The non-crossing invariant (max(LevelsLong) < min(LevelsShort)) is
// enforced by the planner before a GridPlan is ever returned; callers may
// assume it holds.
type GridPlan struct {
	LevelsLong   []float64
	AmountsLong  []float64
	BufferLong   float64

	LevelsShort  []float64
	AmountsShort []float64
	BufferShort  float64
}

// TPState records the single reduce-only order a side currently has
// resting, so the TP Controller can detect a qty/price mismatch and
// replace it rather than duplicate it.
type TPState struct {
	OrderID    string
	Price      float64
	Qty        float64
	LastUpdate time.Time
}

// SymbolState is the per-symbol process-resident state a scheduler
// worker owns for exactly as long as it runs. Created lazily on first
// tick, discarded when the worker terminates.
type SymbolState struct {
	Symbol Symbol

	FilledLevelsBuy  map[float64]bool
	FilledLevelsSell map[float64]bool

	ActiveGridsLong  bool
	ActiveGridsShort bool

	LastPriceForReissueLong  float64
	LastPriceForReissueShort float64

	LastTPUpdateLong  time.Time
	LastTPUpdateShort time.Time

	TPLong  *TPState
	TPShort *TPState

	AutoReduceActiveLong  bool
	AutoReduceActiveShort bool
	AutoReduceOrderIDs    map[string]bool

	LastActiveLongOrderTime  time.Time
	LastActiveShortOrderTime time.Time
	PositionClosedTime       time.Time
	LastEntrySignalTime      time.Time

	OrderIDs []string

	LastOrderPlacedAt time.Time
}

// NewSymbolState creates a fresh, empty state for sym.
func NewSymbolState(sym Symbol) *SymbolState {
	return &SymbolState{
		Symbol:           sym,
		FilledLevelsBuy:  make(map[float64]bool),
		FilledLevelsSell: make(map[float64]bool),
		AutoReduceOrderIDs: make(map[string]bool),
	}
}
