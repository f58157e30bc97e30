package features

import (
	"math"
	"testing"

	"SwingDesk/internal/domain/models"
)

func TestEMAConstantSeries(t *testing.T) {
	vals := make([]float64, 30)
	for i := range vals {
		vals[i] = 42
	}
	out := EMA(vals, 10)
	if !math.IsNaN(out[8]) {
		t.Fatalf("expected NaN before warmup, got %v", out[8])
	}
	for i := 9; i < len(out); i++ {
		if out[i] != 42 {
			t.Fatalf("ema[%d]=%v", i, out[i])
		}
	}
}

func TestRSIMonotonicRise(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	out := RSI(closes, 14)
	if !math.IsNaN(out[13]) {
		t.Fatalf("expected NaN at 13")
	}
	if Last(out) != 100 {
		t.Fatalf("expected 100 for a pure uptrend, got %v", Last(out))
	}
}

func TestATRConstantRange(t *testing.T) {
	candles := make([]models.Candle, 20)
	for i := range candles {
		candles[i] = models.Candle{Open: 10, High: 11, Low: 9, Close: 10}
	}
	if got := Last(ATR(candles, 14)); math.Abs(got-2) > 1e-9 {
		t.Fatalf("expected atr 2, got %v", got)
	}
}

func TestPivotsNeedFullWindow(t *testing.T) {
	vals := []float64{5, 1, 2, 3, 9, 3, 2, 1, 5}
	highs := PivotHighs(vals, 3)
	if len(highs) != 1 || highs[0] != 4 {
		t.Fatalf("unexpected pivots %v", highs)
	}
	if lows := PivotLows(vals, 3); len(lows) != 0 {
		t.Fatalf("edge minima must not be pivots: %v", lows)
	}
}

func TestClusterLevels(t *testing.T) {
	got := ClusterLevels([]float64{110.2, 100, 100.4, 110}, 0.005)
	if len(got) != 2 {
		t.Fatalf("expected two clusters, got %v", got)
	}
	if math.Abs(got[0]-100.2) > 1e-9 || math.Abs(got[1]-110.1) > 1e-9 {
		t.Fatalf("unexpected clusters %v", got)
	}
	if ClusterLevels(nil, 0.005) != nil {
		t.Fatalf("expected nil for no levels")
	}
}
