// Package tp implements the Take-Profit Controller (spec §4.5):
// exactly one reduce-only order per open side, matching the live
// position qty, with Quickscalp fixed/dynamic targets and optional
// order-book-wall assistance.
//
// Grounded on trader/grid_regime.go's ATR-based breakout/wall detection
// pattern and trader/auto_trader_grid.go's clamp-to-market-on-cross
// behavior (spec §9's "take whatever the market gives right now", see
// DESIGN.md Open Question #3).
package tp

import (
	"math"

	"hedgegrid/internal/core"
	"hedgegrid/internal/exchange"
)

// Config controls target computation (spec §6, §4.5).
type Config struct {
	Mode               string // "fixed" | "dynamic"
	UpnlProfitPct      float64
	MinUpnlProfitPct   float64
	MaxUpnlProfitPct   float64
	WallAssist         bool
	WallMaxDeviation   float64
	WallBaseFactor     float64
	WallATRProximity   float64
	RefreshIntervalSec int
}

// Target computes the raw (pre-wall-assist, pre-clamp) TP price for one
// side, per spec §4.5's Quickscalp fixed/dynamic formulas.
func Target(cfg Config, side core.Side, entry, qty, maxQtyForScale float64) float64 {
	pct := cfg.UpnlProfitPct
	if cfg.Mode == "dynamic" {
		pct = dynamicPct(cfg, qty, maxQtyForScale)
	}
	if side == core.SideLong {
		return entry * (1 + pct)
	}
	return entry * (1 - pct)
}

// dynamicPct scales linearly within [MinUpnlProfitPct, MaxUpnlProfitPct]
// by position size: larger positions get a nearer (smaller) target.
func dynamicPct(cfg Config, qty, maxQty float64) float64 {
	if maxQty <= 0 {
		return cfg.MaxUpnlProfitPct
	}
	frac := qty / maxQty
	if frac > 1 {
		frac = 1
	}
	// Near bound (min pct) scales toward the far bound (max pct) as size
	// shrinks. One pct is returned; no separate post-only or normal
	// attempt is made per bound (ClampToMarket alone decides post-only).
	return cfg.MaxUpnlProfitPct - (cfg.MaxUpnlProfitPct-cfg.MinUpnlProfitPct)*frac
}

// Wall is a level of resting liquidity large enough to count as
// "significant" per spec §4.5's ATR-based detector.
type Wall struct {
	Price float64
	Size  float64
}

// SignificantWall scans book levels on the side the position would
// exit into (asks for a long exit, bids for a short exit) and returns
// the nearest level that qualifies: size exceeds baseFactor*ATR-scaled
// volume AND baseFactor*average(top N sizes), within atrProximityPct of
// currentPrice.
func SignificantWall(levels []exchange.OrderBookLevel, currentPrice, atr, baseFactor, atrProximityPct float64, topN int) (Wall, bool) {
	if len(levels) == 0 {
		return Wall{}, false
	}
	n := topN
	if n > len(levels) {
		n = len(levels)
	}
	avgTopN := 0.0
	for _, l := range levels[:n] {
		avgTopN += l.Size
	}
	avgTopN /= float64(n)

	atrVolumeThreshold := baseFactor * atr
	sizeThreshold := baseFactor * avgTopN

	for _, l := range levels {
		if math.Abs(l.Price-currentPrice)/currentPrice > atrProximityPct {
			continue
		}
		if l.Size > atrVolumeThreshold && l.Size > sizeThreshold {
			return Wall{Price: l.Price, Size: l.Size}, true
		}
	}
	return Wall{}, false
}

// ExtendTowardWall moves the raw target toward wall.Price, but never
// past maxDeviation beyond the raw target, per spec §4.5.
func ExtendTowardWall(side core.Side, rawTarget float64, wall Wall, found bool, maxDeviation float64) float64 {
	if !found {
		return rawTarget
	}
	limit := rawTarget * (1 + maxDeviation)
	if side == core.SideShort {
		limit = rawTarget * (1 - maxDeviation)
	}
	if side == core.SideLong {
		if wall.Price > limit {
			return limit
		}
		if wall.Price > rawTarget {
			return wall.Price
		}
		return rawTarget
	}
	if wall.Price < limit {
		return limit
	}
	if wall.Price < rawTarget {
		return wall.Price
	}
	return rawTarget
}

// ClampToMarket implements the "take whatever the market gives right
// now" rule: if target is already crossable against the live book, the
// order is placed as a normal (non-post-only) limit at the best
// available price instead of chasing the original target.
func ClampToMarket(side core.Side, target float64, book exchange.OrderBook) (price float64, postOnly bool) {
	if side == core.SideLong {
		bestBid, ok := book.BestBid()
		if ok && target <= bestBid {
			return bestBid, false
		}
		return target, true
	}
	bestAsk, ok := book.BestAsk()
	if ok && target >= bestAsk {
		return bestAsk, false
	}
	return target, true
}

// NeedsReplace reports whether the current TP state no longer matches
// the live position and must be cancelled and reissued, per spec §4.5's
// "exactly one reduce-only order matching qty and target price".
func NeedsReplace(current *core.TPState, wantPrice, wantQty float64, priceTolerance float64) bool {
	if current == nil {
		return true
	}
	if math.Abs(current.Qty-wantQty) > 1e-12 {
		return true
	}
	if math.Abs(current.Price-wantPrice) > priceTolerance {
		return true
	}
	return false
}
