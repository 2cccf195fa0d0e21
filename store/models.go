// Package store is the persistence layer (SPEC_FULL §4.11): a durable
// record of grid plans, symbol state, TP state, auto-reduce events and
// the equity curve, for operator visibility and crash recovery of
// link-id identity. No part of the core state machine requires reading
// it back — spec §6 is explicit that "Persisted state: none required by
// the core" — this package exists because the teacher always carries a
// persistence layer, not because correctness depends on it.
//
// Grounded on the teacher's store/grid.go (GORM model shape, one struct
// per table with a TableName method) and store/store.go (dual
// SQLite/Postgres backing).
package store

import "time"

// SymbolStateModel mirrors internal/core.SymbolState for one symbol at
// the time of the last write — a snapshot, not a log.
type SymbolStateModel struct {
	Symbol string `json:"symbol" gorm:"primaryKey"`

	ActiveGridsLong  bool `json:"active_grids_long"`
	ActiveGridsShort bool `json:"active_grids_short"`

	AutoReduceActiveLong  bool `json:"auto_reduce_active_long"`
	AutoReduceActiveShort bool `json:"auto_reduce_active_short"`

	LastActiveLongOrderTime  time.Time `json:"last_active_long_order_time"`
	LastActiveShortOrderTime time.Time `json:"last_active_short_order_time"`
	PositionClosedTime       time.Time `json:"position_closed_time"`
	LastEntrySignalTime      time.Time `json:"last_entry_signal_time"`

	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (SymbolStateModel) TableName() string { return "symbol_states" }

// GridPlanModel is one planned grid layout for one side of one symbol,
// written each time the Grid Planner recomputes it — an audit trail of
// what was offered to the market, independent of what filled.
type GridPlanModel struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Symbol    string    `json:"symbol" gorm:"index;not null"`
	Side      string    `json:"side" gorm:"not null"` // long | short
	Levels    string    `json:"levels"`               // JSON-encoded []float64
	Amounts   string    `json:"amounts"`              // JSON-encoded []float64
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (GridPlanModel) TableName() string { return "grid_plans" }

// TPStateModel is the single active TP order tracked per side, per
// spec §4.5's quantity-matched single-order invariant.
type TPStateModel struct {
	Symbol     string    `json:"symbol" gorm:"primaryKey"`
	Side       string    `json:"side" gorm:"primaryKey"`
	OrderID    string    `json:"order_id"`
	Price      float64   `json:"price"`
	Qty        float64   `json:"qty"`
	LastUpdate time.Time `json:"last_update"`
}

func (TPStateModel) TableName() string { return "tp_states" }

// AutoReduceEventModel records one auto-reduce trigger, for the
// operator alert history and post-hoc review of drawdown protection
// behavior (spec §4.6).
type AutoReduceEventModel struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Symbol    string    `json:"symbol" gorm:"index;not null"`
	Side      string    `json:"side" gorm:"not null"`
	Variant   string    `json:"variant"` // simple | grid_hardened
	Qty       float64   `json:"qty"`
	Price     float64   `json:"price"`
	OrderID   string    `json:"order_id"`
	Equity    float64   `json:"equity"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (AutoReduceEventModel) TableName() string { return "auto_reduce_events" }

// EquitySnapshotModel is a periodic account-equity sample, kept for
// plotting a return curve — the same purpose the teacher's
// store/equity.go serves, renamed to this engine's process-wide
// (rather than per-trader) account model.
type EquitySnapshotModel struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Timestamp     time.Time `json:"timestamp" gorm:"index"`
	TotalEquity   float64   `json:"total_equity"`
	Balance       float64   `json:"balance"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	PositionCount int       `json:"position_count"`
}

func (EquitySnapshotModel) TableName() string { return "equity_snapshots" }
