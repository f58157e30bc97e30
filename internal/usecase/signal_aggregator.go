package usecase

import (
	"fmt"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	domsvc "SwingDesk/internal/domain/service"
	applogger "SwingDesk/pkg/logger"
)

// Verdict classifies what the aggregator concluded for one instrument.
type Verdict int

const (
	VerdictNoSignal Verdict = iota
	VerdictConflict
	VerdictCandidate
)

// Evaluation is the aggregator output for one instrument.
type Evaluation struct {
	Verdict        Verdict
	Candidate      *models.Candidate
	RiskRewardFail []string
	Failures       map[string]error
}

// SignalAggregator runs every detector on a series and fuses agreeing
// signals into a candidate.
type SignalAggregator struct {
	detectors []domsvc.Detector
	minRR     float64
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

func NewSignalAggregator(detectors []domsvc.Detector, minRiskReward float64, metrics domrepo.Metrics, l *applogger.Logger) *SignalAggregator {
	if minRiskReward <= 0 {
		minRiskReward = 2.0
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &SignalAggregator{detectors: detectors, minRR: minRiskReward, metrics: metrics, l: l}
}

// DetectorIDs lists the configured detectors.
func (a *SignalAggregator) DetectorIDs() []string {
	out := make([]string, 0, len(a.detectors))
	for _, d := range a.detectors {
		out = append(out, d.ID())
	}
	return out
}

// Evaluate collects valid signals for the instrument and builds a candidate
// when they all agree on direction. Weights come from the given snapshot.
func (a *SignalAggregator) Evaluate(instrument string, series []models.Candle, weights *models.WeightSnapshot) Evaluation {
	var (
		ev    Evaluation
		valid []models.Signal
	)
	for _, d := range a.detectors {
		s, err := a.safeEvaluate(d, series)
		if err != nil {
			if ev.Failures == nil {
				ev.Failures = map[string]error{}
			}
			ev.Failures[d.ID()] = err
			if a.metrics != nil {
				a.metrics.RecordDetectorFailure(d.ID())
			}
			a.l.Warn("aggregator.detector_failure",
				applogger.String("instrument", instrument),
				applogger.String("detector", d.ID()),
				applogger.Error(err))
			continue
		}
		if s == nil {
			continue
		}
		if !s.Valid(a.minRR) {
			if s.Strength > 0 {
				ev.RiskRewardFail = append(ev.RiskRewardFail, d.ID())
			}
			continue
		}
		valid = append(valid, *s)
	}

	if len(valid) == 0 {
		ev.Verdict = VerdictNoSignal
		return ev
	}
	dir := valid[0].Direction
	for _, s := range valid[1:] {
		if s.Direction != dir {
			ev.Verdict = VerdictConflict
			return ev
		}
	}

	var num, den float64
	best := 0
	for i, s := range valid {
		w := weights.Weight(s.DetectorID, s.Timeframe)
		num += s.Strength * w
		den += w
		if s.Strength > valid[best].Strength {
			best = i
		}
	}
	composite := 0.0
	if den > 0 {
		composite = num / den
	}
	lead := valid[best]
	ev.Verdict = VerdictCandidate
	ev.Candidate = &models.Candidate{
		Instrument:     instrument,
		Direction:      dir,
		CompositeScore: models.Strength(composite),
		Entry:          lead.Entry,
		Target:         lead.Target,
		Stop:           lead.Stop,
		RiskReward:     models.Price(lead.RiskReward()),
		Signals:        valid,
		Timeframe:      lead.Timeframe,
	}
	return ev
}

func (a *SignalAggregator) safeEvaluate(d domsvc.Detector, series []models.Candle) (s *models.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = fmt.Errorf("%w: %s: %v", models.ErrDetectorFailure, d.ID(), r)
		}
	}()
	return d.Evaluate(series), nil
}
