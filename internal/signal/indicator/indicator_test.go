package indicator

import (
	"math"
	"testing"
)

func uptrendCandles(n int) []Candle {
	candles := make([]Candle, n)
	price := 100.0
	for i := range candles {
		price += 1
		candles[i] = Candle{Open: price - 1, High: price + 0.5, Low: price - 1.5, Close: price, Volume: 1000 + float64(i)*10}
	}
	return candles
}

func TestRSIUptrendIsHigh(t *testing.T) {
	closes := closesOf(uptrendCandles(30))
	rsi := RSI(closes, 14)
	if rsi < 60 {
		t.Errorf("expected high RSI in uptrend, got %v", rsi)
	}
}

func TestRSIFlatDegeneratesTo100(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	rsi := RSI(closes, 14)
	// A perfectly flat series has zero losses, which this formula (same
	// as the teacher's) treats as maximally overbought rather than 50.
	if math.Abs(rsi-100) > 1e-9 {
		t.Errorf("expected flat series to degenerate to RSI=100 (zero avgLoss), got %v", rsi)
	}
}

func TestMFIUptrendIsHigh(t *testing.T) {
	mfi := MFI(uptrendCandles(30), 14)
	if mfi < 60 {
		t.Errorf("expected high MFI in uptrend, got %v", mfi)
	}
}

func TestEMACrossBullishInUptrend(t *testing.T) {
	closes := closesOf(uptrendCandles(30))
	fast := EMA(closes, 9)
	slow := EMA(closes, 21)
	if fast <= slow {
		t.Errorf("expected fast EMA above slow EMA in uptrend: fast=%v slow=%v", fast, slow)
	}
}

func TestSourceReadRequiresHistory(t *testing.T) {
	s := NewSource()
	s.Update("BTCUSDT", uptrendCandles(5))
	if _, err := s.Read("BTCUSDT"); err == nil {
		t.Error("expected error for insufficient candle history")
	}
}

func TestSourceReadUptrend(t *testing.T) {
	s := NewSource()
	s.Update("BTCUSDT", uptrendCandles(30))
	reading, err := s.Read("BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.Trend != "long" {
		t.Errorf("expected long trend label in uptrend, got %v", reading.Trend)
	}
}
