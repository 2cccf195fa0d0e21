// Package autoreduce implements the Auto-Reduce Controller (spec §4.6):
// Simple (laddered reduce-only orders) and Grid-hardened (single
// post-only order at best bid/ask) variants, triggered on unrealized
// loss beyond configured thresholds.
//
// Grounded on trader/auto_trader_grid.go's emergencyExit/drawdown-check
// logic, retargeted from a full-close action to laddered reduce-only
// orders that leave the rest of the position intact.
package autoreduce

import (
	"math"

	"hedgegrid/internal/core"
)

// Config controls trigger thresholds (spec §6).
type Config struct {
	Variant            string // "simple" | "grid_hardened"
	StartPct           float64 // auto_reduce_start_pct
	UpnlThresholdLong  float64
	UpnlThresholdShort float64
	MaxPosBalancePct   float64
	LadderSteps        int
}

// UnrealizedPnLPct returns the position's unrealized PnL as a fraction
// of its notional value (negative = loss).
func UnrealizedPnLPct(pos core.Position) float64 {
	if pos.Qty == 0 || pos.EntryPrice == 0 {
		return 0
	}
	notional := pos.Qty * pos.EntryPrice
	if notional == 0 {
		return 0
	}
	return pos.UnrealizedPnL / notional
}

// ShouldTrigger implements spec §4.6's Simple-variant trigger condition:
// uPnL drawdown exceeds the side's threshold, AND position value exceeds
// maxPosBalancePct of equity, AND price has moved at least startPct
// adverse to entry.
func ShouldTrigger(cfg Config, side core.Side, pos core.Position, equity, currentPrice float64) bool {
	if pos.Flat() {
		return false
	}
	threshold := cfg.UpnlThresholdLong
	if side == core.SideShort {
		threshold = cfg.UpnlThresholdShort
	}
	if UnrealizedPnLPct(pos) > -threshold {
		return false
	}
	posValue := pos.Qty * currentPrice
	if equity > 0 && posValue/equity <= cfg.MaxPosBalancePct {
		return false
	}
	adverseMove := (pos.EntryPrice - currentPrice) / pos.EntryPrice
	if side == core.SideShort {
		adverseMove = (currentPrice - pos.EntryPrice) / pos.EntryPrice
	}
	return adverseMove >= cfg.StartPct
}

// ReduceOrder is one laddered reduce-only order to place.
type ReduceOrder struct {
	Price float64
	Qty   float64
	Level int
}

// LadderSimple builds the Simple variant's ladder of reduce-only orders.
// Each rung is priced progressively further from currentPrice (in the
// direction that remains a valid reduction: sells above current price
// for a long reduction, buys below current price for a short
// reduction — spec §8's "AR orders never cross market in wrong
// direction" invariant) and sized at max(dynamicAmount, minQty).
func LadderSimple(cfg Config, side core.Side, pos core.Position, currentPrice, qtyStep, minQty float64) []ReduceOrder {
	steps := cfg.LadderSteps
	if steps <= 0 {
		steps = 1
	}
	rungQty := roundStep(pos.Qty/float64(steps), qtyStep)
	if rungQty < minQty {
		rungQty = minQty
	}

	orders := make([]ReduceOrder, 0, steps)
	remaining := pos.Qty
	for i := 0; i < steps && remaining > 0; i++ {
		qty := rungQty
		if qty > remaining {
			qty = remaining
		}
		spacingPct := 0.001 * float64(i+1)
		var price float64
		if side == core.SideLong {
			price = currentPrice * (1 + spacingPct) // sell above current price
		} else {
			price = currentPrice * (1 - spacingPct) // buy below current price
		}
		orders = append(orders, ReduceOrder{Price: price, Qty: qty, Level: i})
		remaining -= qty
	}
	return orders
}

// GridHardened builds the Grid-hardened variant's single post-only
// reduce-only order at the best bid (to reduce a long) or best ask (to
// reduce a short).
func GridHardened(side core.Side, pos core.Position, bestBid, bestAsk, qtyStep float64) ReduceOrder {
	price := bestBid
	if side == core.SideShort {
		price = bestAsk
	}
	return ReduceOrder{Price: price, Qty: roundStep(pos.Qty, qtyStep), Level: 0}
}

// ValidDirection reports whether a reduce order's price is on the
// correct side of currentPrice for its direction — the invariant spec
// §8 requires: long-reduction sells must be above current price,
// short-reduction buys must be below current price.
func ValidDirection(side core.Side, price, currentPrice float64) bool {
	if side == core.SideLong {
		return price > currentPrice
	}
	return price < currentPrice
}

func roundStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step) * step
}
