package features

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"SwingDesk/internal/domain/models"
)

// Series column extractors.

func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func Highs(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func Lows(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

func Volumes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA returns the simple moving average. Entries before period-1 are NaN.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		out[i] = stat.Mean(values[i-period+1:i+1], nil)
	}
	return out
}

// EMA returns the exponential moving average seeded with the SMA of the first
// period values. Entries before period-1 are NaN.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	prev := stat.Mean(values[:period], nil)
	out[period-1] = prev
	alpha := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		prev += alpha * (values[i] - prev)
		out[i] = prev
	}
	return out
}

// wilder smooths values[start:] with Wilder's moving average seeded by the
// mean of the first period values from start.
func wilder(values []float64, start, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values)-start < period {
		return out
	}
	first := start + period - 1
	prev := stat.Mean(values[start:first+1], nil)
	out[first] = prev
	p := float64(period)
	for i := first + 1; i < len(values); i++ {
		prev = (prev*(p-1) + values[i]) / p
		out[i] = prev
	}
	return out
}

// RSI returns Wilder's relative strength index. Entries before period are NaN.
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain := wilder(gains, 1, period)
	avgLoss := wilder(losses, 1, period)
	out := nanSlice(n)
	for i := range out {
		g, l := avgGain[i], avgLoss[i]
		if math.IsNaN(g) || math.IsNaN(l) {
			continue
		}
		switch {
		case l == 0 && g == 0:
			out[i] = 50
		case l == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+g/l)
		}
	}
	return out
}

// TrueRange returns the per-bar true range; the first bar uses high-low.
func TrueRange(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			pc := candles[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-pc), math.Abs(c.Low-pc)))
		}
		out[i] = tr
	}
	return out
}

// ATR returns Wilder's average true range. Entries before period-1 are NaN.
func ATR(candles []models.Candle, period int) []float64 {
	return wilder(TrueRange(candles), 0, period)
}

// Last returns the final element or NaN for an empty slice.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// Highest returns the maximum of values[from:to].
func Highest(values []float64, from, to int) float64 { return floats.Max(values[from:to]) }

// Lowest returns the minimum of values[from:to].
func Lowest(values []float64, from, to int) float64 { return floats.Min(values[from:to]) }

// PivotHighs returns indices whose value equals the maximum of the centred
// window of 2w+1 values. Indices without a full window are never pivots.
func PivotHighs(values []float64, w int) []int {
	var out []int
	for i := w; i+w < len(values); i++ {
		if values[i] == floats.Max(values[i-w:i+w+1]) {
			out = append(out, i)
		}
	}
	return out
}

// PivotLows is the mirror of PivotHighs.
func PivotLows(values []float64, w int) []int {
	var out []int
	for i := w; i+w < len(values); i++ {
		if values[i] == floats.Min(values[i-w:i+w+1]) {
			out = append(out, i)
		}
	}
	return out
}

// ClusterLevels merges price levels lying within tol (fractional) of the
// current cluster representative. The result is ascending.
func ClusterLevels(levels []float64, tol float64) []float64 {
	if len(levels) == 0 {
		return nil
	}
	sorted := append([]float64(nil), levels...)
	sort.Float64s(sorted)
	out := []float64{sorted[0]}
	for _, lv := range sorted[1:] {
		rep := out[len(out)-1]
		if math.Abs(lv-rep)/rep > tol {
			out = append(out, lv)
		} else {
			out[len(out)-1] = (rep + lv) / 2
		}
	}
	return out
}
