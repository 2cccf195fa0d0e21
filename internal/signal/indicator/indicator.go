// Package indicator is a reference Signal Source implementation over raw
// OHLCV candles. Grounded on market/feature_engine.go's RSI/SMA/
// volatility calculations (teacher), generalized to also produce MFI,
// EMA, ATR, and the ERI-trend label the Signal Source contract names.
package indicator

import (
	"fmt"
	"math"

	"hedgegrid/internal/signal"
)

// Candle is one OHLCV bar.
type Candle struct {
	Open, High, Low, Close, Volume float64
}

// Source is a signal.Source backed by an in-memory candle feed that the
// caller supplies through Update; exchange.Port has no kline method, so
// the candles come from outside this module.
type Source struct {
	candles map[string][]Candle
}

// NewSource builds an indicator.Source with no candles loaded yet.
func NewSource() *Source {
	return &Source{candles: make(map[string][]Candle)}
}

// Update replaces the candle history for symbol.
func (s *Source) Update(symbol string, candles []Candle) {
	s.candles[symbol] = candles
}

// Read implements signal.Source.
func (s *Source) Read(symbol string) (signal.Reading, error) {
	candles, ok := s.candles[symbol]
	if !ok || len(candles) < 20 {
		return signal.Reading{}, fmt.Errorf("indicator: insufficient candle history for %s", symbol)
	}

	closes := closesOf(candles)
	volumes := volumesOf(candles)

	rsi := RSI(closes, 14)
	mfi := MFI(candles, 14)
	emaFast := EMA(closes, 9)
	emaSlow := EMA(closes, 21)
	atr := ATR(candles, 14)

	currentVol := volumes[len(volumes)-1]
	avgVol5 := average(volumes[max(0, len(volumes)-6) : len(volumes)-1])

	return signal.Reading{
		MFI:             labelFromOscillator(mfi),
		Trend:           labelFromOscillator(rsi),
		EMATrend:        labelFromEMACross(emaFast, emaSlow),
		ERITrend:        labelFromERI(candles, atr),
		OneMinuteVolume: currentVol,
		FiveMinDistance: avgVol5,
	}, nil
}

func labelFromOscillator(v float64) signal.Label {
	switch {
	case v >= 60:
		return signal.LabelLong
	case v <= 40:
		return signal.LabelShort
	default:
		return signal.LabelNeutral
	}
}

func labelFromEMACross(fast, slow float64) signal.Label {
	switch {
	case fast > slow:
		return signal.LabelBullish
	case fast < slow:
		return signal.LabelBearish
	default:
		return signal.LabelNeutral
	}
}

// labelFromERI derives an Elder-Ray-Index-style bull/bear-power trend
// label: bull power is high - EMA(close,13), bear power is low -
// EMA(close,13); whichever magnitude dominates sets the label. ATR only
// guards the result: a zero ATR yields Neutral.
func labelFromERI(candles []Candle, atr float64) signal.Label {
	closes := closesOf(candles)
	ema13 := EMA(closes, 13)
	last := candles[len(candles)-1]
	bull := last.High - ema13
	bear := last.Low - ema13
	if atr == 0 {
		return signal.LabelNeutral
	}
	switch {
	case bull > 0 && math.Abs(bear) < bull:
		return signal.LabelBullish
	case bear < 0 && math.Abs(bull) < math.Abs(bear):
		return signal.LabelBearish
	default:
		return signal.LabelNeutral
	}
}

// RSI computes the Relative Strength Index over period.
func RSI(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 50
	}
	var gains, losses []float64
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}
	if len(gains) > period {
		gains = gains[len(gains)-period:]
		losses = losses[len(losses)-period:]
	}
	avgGain := average(gains)
	avgLoss := average(losses)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MFI computes the Money Flow Index over period.
func MFI(candles []Candle, period int) float64 {
	if len(candles) <= period {
		return 50
	}
	typicalPrices := make([]float64, len(candles))
	for i, c := range candles {
		typicalPrices[i] = (c.High + c.Low + c.Close) / 3
	}
	var posFlow, negFlow float64
	start := len(candles) - period
	if start < 1 {
		start = 1
	}
	for i := start; i < len(candles); i++ {
		moneyFlow := typicalPrices[i] * candles[i].Volume
		if typicalPrices[i] > typicalPrices[i-1] {
			posFlow += moneyFlow
		} else if typicalPrices[i] < typicalPrices[i-1] {
			negFlow += moneyFlow
		}
	}
	if negFlow == 0 {
		return 100
	}
	ratio := posFlow / negFlow
	return 100 - (100 / (1 + ratio))
}

// EMA computes the exponential moving average over period, seeded with
// a simple average of the first period closes.
func EMA(closes []float64, period int) float64 {
	if len(closes) < period {
		return average(closes)
	}
	k := 2.0 / float64(period+1)
	ema := average(closes[:period])
	for _, c := range closes[period:] {
		ema = c*k + ema*(1-k)
	}
	return ema
}

// ATR computes the Average True Range over period.
func ATR(candles []Candle, period int) float64 {
	if len(candles) < 2 {
		return 0
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		high, low, prevClose := candles[i].High, candles[i].Low, candles[i-1].Close
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trs = append(trs, tr)
	}
	if len(trs) > period {
		trs = trs[len(trs)-period:]
	}
	return average(trs)
}

func closesOf(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func volumesOf(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
