// Package sizing computes per-level grid order amounts (spec §4.2). Pure
// functions over floats; no exchange I/O, same as the teacher's own
// pure-function packages (market/feature_engine.go, trader/grid_regime.go).
package sizing

import "math"

// MinNotionalFloor returns the minimum-notional floor for level i
// (0-indexed) of a symbol, per spec §4.2 rule 2: BTC 100.5, ETH 20.1,
// else 6, growing linearly per level.
func MinNotionalFloor(symbol string, level int) float64 {
	base := 6.0
	switch {
	case isBTC(symbol):
		base = 100.5
	case isETH(symbol):
		base = 20.1
	}
	return base * float64(level+1)
}

func isBTC(symbol string) bool {
	return hasPrefix(symbol, "BTC")
}

func isETH(symbol string) bool {
	return hasPrefix(symbol, "ETH")
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// SideNotional computes N_side = equity * exposureLimit * leverage. A
// leverage of 0 means "use the venue max", which the caller resolves
// before calling this function.
func SideNotional(equity, exposureLimit float64, leverage int) float64 {
	return equity * exposureLimit * float64(leverage)
}

// TotalNotional applies spec §4.2 rule: total = min(sideNotional,
// enforceFullGrid ? sum(floors) : sideNotional). When enforceFullGrid is
// false the side notional is returned unchanged; when true, the smaller
// of the side notional and the sum of the floors is returned.
func TotalNotional(sideNotional float64, floors []float64, enforceFullGrid bool) float64 {
	if !enforceFullGrid {
		return sideNotional
	}
	sum := 0.0
	for _, f := range floors {
		sum += f
	}
	return math.Min(sideNotional, sum)
}

// LevelRatios returns the power-law weighting r_i = (i+1)^strength /
// sum((j+1)^strength) for N levels.
func LevelRatios(n int, strength float64) []float64 {
	if n <= 0 {
		return nil
	}
	weights := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		w := math.Pow(float64(i+1), strength)
		weights[i] = w
		sum += w
	}
	ratios := make([]float64, n)
	for i := range weights {
		if sum == 0 {
			ratios[i] = 1.0 / float64(n)
			continue
		}
		ratios[i] = weights[i] / sum
	}
	return ratios
}

// RoundToStep rounds qty down to the nearest multiple of step (qty_step
// precision). A step of 0 is treated as "no rounding".
func RoundToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step) * step
}

// LevelAmounts computes each level's qty: r_i * totalNotional / price,
// rounded to qtyStep, then raised to that level's minimum-notional floor
// (converted to qty via price). When enforceFullGrid is set, any
// remaining notional budget after floor-raising is redistributed to the
// smallest level first (spec §4.2 residual-redistribution rule).
func LevelAmounts(symbol string, ratios []float64, totalNotional, price, qtyStep float64, enforceFullGrid bool) []float64 {
	n := len(ratios)
	amounts := make([]float64, n)
	floors := make([]float64, n)
	spent := 0.0

	for i, r := range ratios {
		notional := r * totalNotional
		qty := RoundToStep(notional/price, qtyStep)
		floorQty := RoundToStep(MinNotionalFloor(symbol, i)/price, qtyStep)
		floors[i] = floorQty
		if qty < floorQty {
			qty = floorQty
		}
		amounts[i] = qty
		spent += qty * price
	}

	if !enforceFullGrid {
		return amounts
	}

	residual := totalNotional - spent
	if residual <= 0 {
		return amounts
	}
	// Redistribute remaining budget starting from the smallest level.
	order := smallestFirst(amounts)
	for _, idx := range order {
		if residual <= 0 {
			break
		}
		add := RoundToStep(residual/price, qtyStep)
		if add <= 0 {
			continue
		}
		amounts[idx] += add
		residual -= add * price
	}
	return amounts
}

func smallestFirst(amounts []float64) []int {
	idx := make([]int, len(amounts))
	for i := range idx {
		idx[i] = i
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && amounts[idx[j]] < amounts[idx[j-1]]; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}
