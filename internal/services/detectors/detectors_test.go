package detectors

import (
	"testing"
	"time"

	"SwingDesk/internal/domain/models"
)

var day0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, o, h, l, c, v float64) models.Candle {
	return models.Candle{Time: day0.AddDate(0, 0, i), Open: o, High: h, Low: l, Close: c, Volume: v}
}

// flatSeries returns n bars closing at 100 with a one point range.
func flatSeries(n int) []models.Candle {
	out := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, bar(i, 100, 100.5, 99.5, 100, 100000))
	}
	return out
}

// closesSeries builds bars with open=close and a half point wick each side.
func closesSeries(closes []float64) []models.Candle {
	out := make([]models.Candle, 0, len(closes))
	for i, c := range closes {
		out = append(out, bar(i, c, c+0.5, c-0.5, c, 1000))
	}
	return out
}

// uptrendWithLateCross returns 120 bars: an 80 bar advance, a shallow
// pullback that drags the 20 EMA just under the 50 EMA, and a last bar
// breakout that crosses it back above with a wide gap.
func uptrendWithLateCross() []models.Candle {
	closes := make([]float64, 0, 120)
	for i := 0; i < 80; i++ {
		closes = append(closes, 100+0.5*float64(i))
	}
	top := closes[79]
	for j := 1; j <= 39; j++ {
		closes = append(closes, top-0.25*float64(j))
	}
	return closesSeries(append(closes, closes[118]+55))
}

func divergenceCloses() []float64 {
	closes := make([]float64, 0, 60)
	for i := 0; i < 35; i++ {
		if i%2 == 1 {
			closes = append(closes, 100.5)
		} else {
			closes = append(closes, 99.5)
		}
	}
	return append(closes,
		98, 95, 92, 89, 86,
		88, 90, 92, 93, 94,
		93.5, 93, 92, 91, 90, 89, 88, 87, 86.5, 85.5,
		86.5, 87.5, 88.5, 89.5, 90.5,
	)
}

func TestShortSeriesYieldsNothing(t *testing.T) {
	ds, err := New(nil, models.TimeframeDaily)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, d := range ds {
		need := d.(interface{ MinBars() int }).MinBars()
		for _, n := range []int{0, 1, 10, need - 1} {
			if s := d.Evaluate(flatSeries(n)); s != nil {
				t.Fatalf("%s: expected nil on %d bars, got %+v", d.ID(), n, s)
			}
		}
	}
	if got := MinLookback(ds); got != 25 {
		t.Fatalf("expected the volume surge lookback of 25, got %d", got)
	}
}

func TestVolumeSurgeLookbackBoundary(t *testing.T) {
	d := NewVolumeSurge(DefaultVolumeSurgeParams())
	surge := func(n int) []models.Candle {
		series := flatSeries(n)
		series[n-1] = bar(n-1, 100, 106, 99.5, 105.5, 500000)
		return series
	}
	if s := d.Evaluate(surge(d.MinBars() - 1)); s != nil {
		t.Fatalf("one bar short of the lookback should yield nothing, got %+v", s)
	}
	if s := d.Evaluate(surge(d.MinBars())); s == nil {
		t.Fatalf("expected a signal at exactly %d bars", d.MinBars())
	}
}

func TestTrendCrossoverLookbackBoundary(t *testing.T) {
	d := NewTrendCrossover(DefaultTrendCrossoverParams())
	series := uptrendWithLateCross()
	if s := d.Evaluate(series[len(series)-d.MinBars()+1:]); s != nil {
		t.Fatalf("one bar short of the lookback should yield nothing, got %+v", s)
	}
}

func TestEvaluateDoesNotMutateInput(t *testing.T) {
	ds, _ := New(nil, models.TimeframeDaily)
	series := closesSeries(divergenceCloses())
	before := append([]models.Candle(nil), series...)
	for _, d := range ds {
		_ = d.Evaluate(series)
	}
	for i := range series {
		if series[i] != before[i] {
			t.Fatalf("bar %d mutated", i)
		}
	}
}

func TestNewRejectsUnknownDetector(t *testing.T) {
	if _, err := New([]string{"astrology"}, models.TimeframeDaily); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTrendCrossoverLongOnUptrendCross(t *testing.T) {
	series := uptrendWithLateCross()
	if series[119].Close <= series[0].Close {
		t.Fatalf("fixture should trend up")
	}

	s := NewTrendCrossover(DefaultTrendCrossoverParams()).Evaluate(series)
	if s == nil {
		t.Fatalf("expected signal")
	}
	if s.Direction != models.Long {
		t.Fatalf("expected LONG, got %s", s.Direction)
	}
	if s.Strength < 0.9 {
		t.Fatalf("expected strength >= 0.9, got %v", s.Strength)
	}
	if gap := s.Metadata["gap_pct"].(float64); gap < 2 {
		t.Fatalf("expected an average gap of at least 2%%, got %v", gap)
	}
	if s.Entry != 184.75 {
		t.Fatalf("entry %v", s.Entry)
	}
	if s.Stop >= 128.75 || s.Target <= 184.75 {
		t.Fatalf("unexpected levels stop=%v target=%v", s.Stop, s.Target)
	}
	if s.DetectorID != TrendCrossoverID || s.Timeframe != models.TimeframeDaily {
		t.Fatalf("unexpected identity %+v", s)
	}
}

func TestTrendCrossoverLongOnSpike(t *testing.T) {
	series := flatSeries(119)
	series = append(series, bar(119, 100, 151, 99.5, 150, 300000))

	s := NewTrendCrossover(DefaultTrendCrossoverParams()).Evaluate(series)
	if s == nil || s.Direction != models.Long || s.Entry != 150 {
		t.Fatalf("expected LONG signal at 150, got %+v", s)
	}
	if s.Stop >= 99.5 || s.Target <= 150 {
		t.Fatalf("unexpected levels stop=%v target=%v", s.Stop, s.Target)
	}
}

func TestTrendCrossoverShortOnLastBarCross(t *testing.T) {
	series := flatSeries(119)
	series = append(series, bar(119, 100, 100.5, 49, 50, 300000))

	s := NewTrendCrossover(DefaultTrendCrossoverParams()).Evaluate(series)
	if s == nil || s.Direction != models.Short {
		t.Fatalf("expected SHORT signal, got %+v", s)
	}
	if s.Stop <= 100.5 || s.Target >= 50 {
		t.Fatalf("unexpected levels stop=%v target=%v", s.Stop, s.Target)
	}
}

func TestTrendCrossoverNoCrossOnFlatSeries(t *testing.T) {
	if s := NewTrendCrossover(DefaultTrendCrossoverParams()).Evaluate(flatSeries(120)); s != nil {
		t.Fatalf("expected nil, got %+v", s)
	}
}

func TestVolumeSurgeFlatVolumeYieldsNothing(t *testing.T) {
	series := flatSeries(60)
	series[59] = bar(59, 99.6, 106, 99.5, 105.5, 100000)
	if s := NewVolumeSurge(DefaultVolumeSurgeParams()).Evaluate(series); s != nil {
		t.Fatalf("expected nil on flat volume, got %+v", s)
	}
}

func TestVolumeSurgeLongOnDecisiveBar(t *testing.T) {
	series := flatSeries(30)
	series[29] = bar(29, 100, 106, 99.5, 105.5, 500000)

	s := NewVolumeSurge(DefaultVolumeSurgeParams()).Evaluate(series)
	if s == nil || s.Direction != models.Long {
		t.Fatalf("expected LONG signal, got %+v", s)
	}
	if s.Strength != 1 {
		t.Fatalf("expected capped strength, got %v", s.Strength)
	}
	if s.Stop >= 99.5 {
		t.Fatalf("stop should sit below the bar low, got %v", s.Stop)
	}
}

func TestVolumeSurgeIgnoresDoji(t *testing.T) {
	series := flatSeries(30)
	series[29] = bar(29, 100, 106, 94, 100.5, 500000)
	if s := NewVolumeSurge(DefaultVolumeSurgeParams()).Evaluate(series); s != nil {
		t.Fatalf("expected nil for small body, got %+v", s)
	}
}

func TestMomentumDivergenceBullish(t *testing.T) {
	series := closesSeries(divergenceCloses())

	s := NewMomentumDivergence(DefaultMomentumDivergenceParams()).Evaluate(series)
	if s == nil || s.Direction != models.Long {
		t.Fatalf("expected LONG signal, got %+v", s)
	}
	if s.Strength <= 0 || s.Strength > 1 {
		t.Fatalf("strength out of range: %v", s.Strength)
	}
	if s.Stop >= 85 {
		t.Fatalf("stop should sit below the second pivot, got %v", s.Stop)
	}
	if s.Metadata["type"] != "bullish_divergence" {
		t.Fatalf("unexpected metadata %v", s.Metadata)
	}
}

func TestMomentumDivergenceBearish(t *testing.T) {
	closes := divergenceCloses()
	for i := range closes {
		closes[i] = 200 - closes[i]
	}
	s := NewMomentumDivergence(DefaultMomentumDivergenceParams()).Evaluate(closesSeries(closes))
	if s == nil || s.Direction != models.Short {
		t.Fatalf("expected SHORT signal, got %+v", s)
	}
	if s.Stop <= 115 {
		t.Fatalf("stop should sit above the second pivot, got %v", s.Stop)
	}
}

func TestLevelBreakoutAboveResistance(t *testing.T) {
	series := make([]models.Candle, 0, 100)
	for i := 0; i < 99; i++ {
		h := 101.0
		if i%15 == 7 {
			h = 110
		}
		series = append(series, bar(i, 100, h, 99, 100, 1000))
	}
	series = append(series, bar(99, 101, 113, 100.5, 112, 3000))

	s := NewLevelBreakout(DefaultLevelBreakoutParams()).Evaluate(series)
	if s == nil || s.Direction != models.Long {
		t.Fatalf("expected LONG signal, got %+v", s)
	}
	if s.Metadata["broken_level"] != 110.0 {
		t.Fatalf("expected broken level 110, got %v", s.Metadata["broken_level"])
	}
	if s.Stop >= 110 || s.Target <= 112 {
		t.Fatalf("unexpected levels stop=%v target=%v", s.Stop, s.Target)
	}
	if s.Strength != 1 {
		t.Fatalf("expected capped strength, got %v", s.Strength)
	}
}

func TestLevelBreakoutBelowSupport(t *testing.T) {
	series := make([]models.Candle, 0, 100)
	for i := 0; i < 99; i++ {
		l := 99.0
		if i%15 == 7 {
			l = 90
		}
		series = append(series, bar(i, 100, 101, l, 100, 1000))
	}
	series = append(series, bar(99, 99, 99.5, 87, 88, 3000))

	s := NewLevelBreakout(DefaultLevelBreakoutParams()).Evaluate(series)
	if s == nil || s.Direction != models.Short {
		t.Fatalf("expected SHORT signal, got %+v", s)
	}
	if s.Metadata["broken_level"] != 90.0 {
		t.Fatalf("expected broken level 90, got %v", s.Metadata["broken_level"])
	}
}

func TestLevelBreakoutNeedsVolume(t *testing.T) {
	series := make([]models.Candle, 0, 100)
	for i := 0; i < 99; i++ {
		h := 101.0
		if i%15 == 7 {
			h = 110
		}
		series = append(series, bar(i, 100, h, 99, 100, 1000))
	}
	series = append(series, bar(99, 101, 113, 100.5, 112, 1000))
	if s := NewLevelBreakout(DefaultLevelBreakoutParams()).Evaluate(series); s != nil {
		t.Fatalf("expected nil without volume confirmation, got %+v", s)
	}
}
