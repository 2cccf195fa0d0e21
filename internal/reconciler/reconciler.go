// Package reconciler implements the Order Reconciler (spec §4.4): each
// tick, per side, it diffs the planned grid levels against the live
// open orders and issues exactly the orders needed to converge, without
// ever double-issuing the same price/side/reduce-flag in one tick.
//
// Grounded on trader/order_sync.go's tick-based diff pattern and its
// "state mismatch is idempotent success" recovery style.
package reconciler

import (
	"context"
	"time"

	"hedgegrid/internal/core"
	"hedgegrid/internal/exchange"
	"hedgegrid/internal/xerr"
)

// Level is one planned grid level to reconcile against live orders.
type Level struct {
	Price float64
	Qty   float64
}

// Plan describes what one side's tick should converge to.
type Plan struct {
	Side   core.Side
	Levels []Level
}

// EntryGate collects the preconditions spec §4.4 requires before any
// entry order may be placed this tick.
type EntryGate struct {
	SignalAllows        bool
	AutoReduceActive    bool
	EntryDuringAutoReduce bool
	IntervalAllows      bool // can_place_order gate result
}

// Allowed implements spec §4.4's entry gate: strategy preconditions AND
// (auto-reduce inactive OR entry_during_autoreduce) AND the per-symbol
// min-interval gate.
func (g EntryGate) Allowed() bool {
	if !g.SignalAllows {
		return false
	}
	if g.AutoReduceActive && !g.EntryDuringAutoReduce {
		return false
	}
	return g.IntervalAllows
}

// Tick reconciles one side of one symbol against live open orders.
// When plan has no levels, every resting entry order on that side is
// cancelled and the side is cleared rather than reconciled (spec §4.4's
// clear rule; the state-machine terminology for this is
// StateCancelAndClear).
func Tick(ctx context.Context, port exchange.Port, retry exchange.RetryPolicy, symbol string, plan Plan, openOrders []core.Order, gate EntryGate, linkIDFor func(price float64) string) error {
	sideOrders := filterSide(openOrders, plan.Side)

	if len(plan.Levels) == 0 {
		return cancelAll(ctx, port, retry, symbol, sideOrders)
	}

	if !gate.Allowed() {
		// No new entries this tick, but existing resting orders are left
		// alone — the gate only blocks new placement, not cancellation.
		return nil
	}

	represented := make(map[float64]bool, len(sideOrders))
	for _, o := range sideOrders {
		represented[roundKey(o.Price)] = true
	}

	issued := make(map[float64]bool, len(plan.Levels))
	for _, lvl := range plan.Levels {
		key := roundKey(lvl.Price)
		if represented[key] || issued[key] {
			continue // never double-issue the same price/side in one tick
		}
		issued[key] = true

		req := exchange.CreateOrderRequest{
			Symbol:      symbol,
			Side:        plan.Side,
			Price:       lvl.Price,
			Qty:         lvl.Qty,
			PositionIdx: core.PositionIdxFor(plan.Side),
			PostOnly:    true,
			ReduceOnly:  false,
			LinkID:      linkIDFor(lvl.Price),
		}
		err := retry.Do(ctx, func() error {
			_, err := port.CreateLimit(ctx, req)
			return err
		})
		if err != nil && !xerr.IsStateMismatch(err) {
			return err
		}
		// A "duplicate" state-mismatch response means the order already
		// exists on the exchange (e.g. a prior create succeeded but the
		// response was lost) — idempotent success, the next OpenOrders
		// read will pick it up.
	}
	return nil
}

func cancelAll(ctx context.Context, port exchange.Port, retry exchange.RetryPolicy, symbol string, orders []core.Order) error {
	for _, o := range orders {
		o := o
		err := retry.Do(ctx, func() error {
			return port.CancelOrder(ctx, symbol, o.ID)
		})
		if err != nil && !xerr.IsStateMismatch(err) {
			return err
		}
	}
	return nil
}

func filterSide(orders []core.Order, side core.Side) []core.Order {
	out := make([]core.Order, 0, len(orders))
	for _, o := range orders {
		if o.Side == side && !o.ReduceOnly {
			out = append(out, o)
		}
	}
	return out
}

// roundKey rounds a price to a stable comparison key so float noise
// doesn't cause spurious double-issuance.
func roundKey(price float64) float64 {
	return float64(int64(price*1e6)) / 1e6
}

// CanPlaceOrder wraps core.MinIntervalGate.Allow with the current time,
// matching spec §4.7's 60s default gate.
func CanPlaceOrder(gate *core.MinIntervalGate, symbol string, now time.Time) bool {
	return gate.Allow(symbol, now.UnixNano())
}
