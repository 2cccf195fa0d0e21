// Package grid builds and reissues layered limit-entry grids (spec
// §4.3). Pure functions over floats plus two small decision helpers;
// no exchange I/O.
package grid

import (
	"math"

	"hedgegrid/internal/core"
	"hedgegrid/internal/sizing"
)

// Config is the grid-shape configuration (spec §6 table).
type Config struct {
	Levels             int
	Strength           float64
	OuterPriceDistance float64
	MinBufferPct       float64
	MaxBufferPct       float64
	ReissueThreshold   float64
	EnforceFullGrid    bool
}

// DynamicBuffer computes the position-aware buffer (spec §4.3): when
// flat, the buffer is the configured minimum; when in position, it
// grows linearly with how far price has moved from entry, up to the
// configured maximum.
func DynamicBuffer(cfg Config, price, entry float64, inPosition bool) float64 {
	if !inPosition || entry == 0 {
		return cfg.MinBufferPct
	}
	delta := math.Abs(price-entry) / entry
	buf := cfg.MinBufferPct + (cfg.MaxBufferPct-cfg.MinBufferPct)*delta
	if buf > cfg.MaxBufferPct {
		return cfg.MaxBufferPct
	}
	if buf < cfg.MinBufferPct {
		return cfg.MinBufferPct
	}
	return buf
}

// levelFactor is f_i = (i/(N-1))^strength, spec §4.3. For N==1 every
// level collapses to the outer bound's factor (1.0) since there is no
// spread to distribute across a single level.
func levelFactor(i, n int, strength float64) float64 {
	if n <= 1 {
		return 1.0
	}
	return math.Pow(float64(i)/float64(n-1), strength)
}

// levels computes one side's N price levels between price-buffer and
// the outer bound, per spec §4.3's L_i formula.
func levels(n int, strength, price, buffer, outer float64, long bool) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		f := levelFactor(i, n, strength)
		if long {
			inner := price - price*buffer
			out[i] = inner - (price-outer)*f
		} else {
			inner := price + price*buffer
			out[i] = inner + (outer-price)*f
		}
	}
	return out
}

// Plan builds a GridPlan for one symbol at the current price, given
// each side's in-position state and entry price (entry is ignored when
// the side is flat). It enforces the non-crossing invariant by
// recomputing OuterPriceDistance when the naive levels would cross, per
// spec §4.3.
func Plan(cfg Config, symbol string, price float64, qtyStep float64,
	longInPosition bool, longEntry float64,
	shortInPosition bool, shortEntry float64,
) core.GridPlan {
	bufferLong := DynamicBuffer(cfg, price, longEntry, longInPosition)
	bufferShort := DynamicBuffer(cfg, price, shortEntry, shortInPosition)

	outerLong := price * (1 - cfg.OuterPriceDistance)
	outerShort := price * (1 + cfg.OuterPriceDistance)

	levelsLong := levels(cfg.Levels, cfg.Strength, price, bufferLong, outerLong, true)
	levelsShort := levels(cfg.Levels, cfg.Strength, price, bufferShort, outerShort, false)

	if crosses(levelsLong, levelsShort) {
		// Recompute outer_price_distance = (L_short[0] - L_long[-1]) /
		// (2*price) and rebuild both sides with it, per spec §4.3.
		newDist := (levelsShort[0] - levelsLong[len(levelsLong)-1]) / (2 * price)
		if newDist < 0 {
			newDist = 0
		}
		cfg.OuterPriceDistance = newDist
		outerLong = price * (1 - cfg.OuterPriceDistance)
		outerShort = price * (1 + cfg.OuterPriceDistance)
		levelsLong = levels(cfg.Levels, cfg.Strength, price, bufferLong, outerLong, true)
		levelsShort = levels(cfg.Levels, cfg.Strength, price, bufferShort, outerShort, false)
	}

	return core.GridPlan{
		LevelsLong:   levelsLong,
		AmountsLong:  make([]float64, len(levelsLong)),
		BufferLong:   bufferLong,
		LevelsShort:  levelsShort,
		AmountsShort: make([]float64, len(levelsShort)),
		BufferShort:  bufferShort,
	}
}

// PlanWithNotional is Plan plus the sizing step: it computes each
// side's per-level amounts from the given side notional budgets, via
// the Sizing Engine (spec §4.2). This is the function callers normally
// use; Plan alone is exposed for tests that only care about level
// geometry.
func PlanWithNotional(cfg Config, symbol string, price float64, qtyStep float64,
	longInPosition bool, longEntry float64, longNotional float64,
	shortInPosition bool, shortEntry float64, shortNotional float64,
) core.GridPlan {
	plan := Plan(cfg, symbol, price, qtyStep, longInPosition, longEntry, shortInPosition, shortEntry)
	ratios := sizing.LevelRatios(cfg.Levels, cfg.Strength)
	plan.AmountsLong = sizing.LevelAmounts(symbol, ratios, longNotional, price, qtyStep, cfg.EnforceFullGrid)
	plan.AmountsShort = sizing.LevelAmounts(symbol, ratios, shortNotional, price, qtyStep, cfg.EnforceFullGrid)
	return plan
}

func crosses(levelsLong, levelsShort []float64) bool {
	if len(levelsLong) == 0 || len(levelsShort) == 0 {
		return false
	}
	return maxOf(levelsLong) >= minOf(levelsShort)
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}
