package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"SwingDesk/internal/domain/models"
	domsvc "SwingDesk/internal/domain/service"
)

func TestAggregatorWeightsAgreeingSignals(t *testing.T) {
	a := &stubDetector{id: "trend_crossover", bySymbol: map[string]*models.Signal{"ABC": longSignal(0.8, 100, 110, 95)}}
	b := &stubDetector{id: "volume_surge", bySymbol: map[string]*models.Signal{"ABC": longSignal(0.6, 100, 112, 96)}}
	agg := NewSignalAggregator([]domsvc.Detector{a, b}, 2.0, nil, nil)

	snap := &models.WeightSnapshot{Weights: map[string]float64{
		"trend_crossover/daily": 1.5,
		"volume_surge/daily":    0.5,
	}}
	ev := agg.Evaluate("ABC", testBars("ABC", 5), snap)
	if ev.Verdict != VerdictCandidate || ev.Candidate == nil {
		t.Fatalf("expected candidate, got %+v", ev)
	}
	c := ev.Candidate
	if c.CompositeScore != 0.75 {
		t.Fatalf("expected composite 0.75, got %v", c.CompositeScore)
	}
	if c.Entry != 100 || c.Target != 110 || c.Stop != 95 || c.RiskReward != 2 {
		t.Fatalf("levels should come from the strongest signal, got %+v", c)
	}
	if len(c.Signals) != 2 || c.Direction != models.Long {
		t.Fatalf("unexpected candidate %+v", c)
	}
}

func TestAggregatorConflictAndRiskRewardFail(t *testing.T) {
	long := &stubDetector{id: "trend_crossover", bySymbol: map[string]*models.Signal{"ABC": longSignal(0.7, 100, 110, 95)}}
	short := &stubDetector{id: "reversal", bySymbol: map[string]*models.Signal{"ABC": shortSignal(0.9, 100, 90, 105)}}
	weak := &stubDetector{id: "breakout", bySymbol: map[string]*models.Signal{
		"ABC": longSignal(0.5, 100, 104, 95),
		"XYZ": longSignal(0.5, 100, 104, 95),
	}}
	agg := NewSignalAggregator([]domsvc.Detector{long, short, weak}, 2.0, nil, nil)

	ev := agg.Evaluate("ABC", testBars("ABC", 5), nil)
	if ev.Verdict != VerdictConflict || ev.Candidate != nil {
		t.Fatalf("expected conflict, got %+v", ev)
	}

	ev = agg.Evaluate("XYZ", testBars("XYZ", 5), nil)
	if ev.Verdict != VerdictNoSignal {
		t.Fatalf("expected no signal, got %v", ev.Verdict)
	}
	if len(ev.RiskRewardFail) != 1 || ev.RiskRewardFail[0] != "breakout" {
		t.Fatalf("expected breakout rr failure, got %v", ev.RiskRewardFail)
	}
}

func TestAggregatorRecoversDetectorPanic(t *testing.T) {
	bad := &stubDetector{id: "broken", panics: true}
	good := &stubDetector{id: "volume_surge", bySymbol: map[string]*models.Signal{"ABC": longSignal(0.6, 100, 112, 96)}}
	agg := NewSignalAggregator([]domsvc.Detector{bad, good}, 2.0, nil, nil)

	ev := agg.Evaluate("ABC", testBars("ABC", 5), nil)
	if ev.Verdict != VerdictCandidate {
		t.Fatalf("healthy detector should still produce a candidate, got %v", ev.Verdict)
	}
	err, ok := ev.Failures["broken"]
	if !ok || !errors.Is(err, models.ErrDetectorFailure) {
		t.Fatalf("expected recorded detector failure, got %v", ev.Failures)
	}
	if ev.Candidate.CompositeScore != 0.6 {
		t.Fatalf("expected composite of the single signal, got %v", ev.Candidate.CompositeScore)
	}
}

func TestScreeningRanksAndCounts(t *testing.T) {
	det := &stubDetector{id: "trend_crossover", bySymbol: map[string]*models.Signal{
		"AAA": longSignal(0.5, 100, 110, 95),
		"BBB": longSignal(0.9, 50, 60, 45),
		"DDD": longSignal(0.9, 50, 60, 45),
	}}
	market := &fakeMarket{
		bars: map[string][]models.Candle{
			"AAA": testBars("AAA", 10),
			"BBB": testBars("BBB", 10),
			"DDD": testBars("DDD", 3),
			"EEE": testBars("EEE", 10),
		},
		errs: map[string]error{"CCC": errors.New("upstream 502")},
	}
	agg := NewSignalAggregator([]domsvc.Detector{det}, 2.0, nil, nil)
	uc := NewScreeningUseCase(
		ScreeningConfig{MinBars: 5, Workers: 2},
		NewCandlesUseCase(market),
		agg,
		NewWeightBook(nil, nil, nil, nil),
		nil, nil, nil,
	)
	uc.now = func() time.Time { return testNow }

	res, err := uc.Run(context.Background(), ScreenParams{Universe: []string{"AAA", "BBB", "CCC", "DDD", "AAA", "EEE"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	r := res.Report
	if r.Universe != 5 || r.FetchErrors != 1 || r.InsufficientBars != 1 || r.NoSignal != 1 || r.Candidates != 2 {
		t.Fatalf("unexpected report %+v", r)
	}
	if res.Candidates[0].Instrument != "BBB" || res.Candidates[1].Instrument != "AAA" {
		t.Fatalf("candidates should be ranked by score, got %s, %s", res.Candidates[0].Instrument, res.Candidates[1].Instrument)
	}
	if _, ok := res.Errors["CCC"]; !ok {
		t.Fatalf("expected fetch error for CCC, got %v", res.Errors)
	}
	if res.RunID == "" || res.WeightsVersion != 0 {
		t.Fatalf("unexpected run metadata %+v", res)
	}
}

func TestCandlesNormalizesSeries(t *testing.T) {
	bars := testBars("ABC", 3)
	dup := bars[1]
	dup.Close = dup.Open
	market := &fakeMarket{bars: map[string][]models.Candle{"ABC": {bars[2], bars[0], bars[1], dup}}}

	got, err := NewCandlesUseCase(market).GetCandles(context.Background(), GetCandlesParams{
		Symbol: "ABC", From: testNow.AddDate(0, 0, -10), To: testNow,
	})
	if err != nil {
		t.Fatalf("get candles: %v", err)
	}
	if got.Count != 3 || !got.Candles[0].Time.Before(got.Candles[1].Time) {
		t.Fatalf("expected three ascending bars, got %+v", got.Candles)
	}
	if got.Candles[1].Close != dup.Close {
		t.Fatalf("duplicate timestamp should keep the last bar seen")
	}

	bad := testBars("BAD", 2)
	bad[1].High = bad[1].Low - 1
	market.bars["BAD"] = bad
	_, err = NewCandlesUseCase(market).GetCandles(context.Background(), GetCandlesParams{
		Symbol: "BAD", From: testNow.AddDate(0, 0, -10), To: testNow,
	})
	if !errors.Is(err, models.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}
