package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	applogger "SwingDesk/pkg/logger"
)

// ScreeningConfig controls a screening run.
type ScreeningConfig struct {
	Universe          []string
	Interval          domrepo.Interval
	LookbackDays      int
	MinBars           int
	Workers           int
	InstrumentTimeout time.Duration
}

// ScreeningUseCase evaluates a universe of instruments and ranks the candidates.
type ScreeningUseCase struct {
	cfg      ScreeningConfig
	candles  *CandlesUseCase
	agg      *SignalAggregator
	weights  *WeightBook
	notifier domrepo.Notifier
	metrics  domrepo.Metrics
	l        *applogger.Logger
	now      func() time.Time
}

func NewScreeningUseCase(
	cfg ScreeningConfig,
	candles *CandlesUseCase,
	agg *SignalAggregator,
	weights *WeightBook,
	notifier domrepo.Notifier,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *ScreeningUseCase {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 180
	}
	if cfg.MinBars <= 0 {
		cfg.MinBars = 60
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.InstrumentTimeout <= 0 {
		cfg.InstrumentTimeout = 15 * time.Second
	}
	if cfg.Interval == "" {
		cfg.Interval = domrepo.DefaultInterval()
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &ScreeningUseCase{
		cfg:      cfg,
		candles:  candles,
		agg:      agg,
		weights:  weights,
		notifier: notifier,
		metrics:  metrics,
		l:        l,
		now:      time.Now,
	}
}

type ScreenParams struct {
	Universe []string
	To       time.Time
}

type instrumentOutcome struct {
	eval         Evaluation
	fetchErr     error
	insufficient bool
}

// Run screens the universe. Per-instrument failures are counted in the report
// and never abort the run.
func (uc *ScreeningUseCase) Run(ctx context.Context, p ScreenParams) (*models.ScreeningResult, error) {
	start := uc.now()
	universe := dedupe(p.Universe)
	if len(universe) == 0 {
		universe = dedupe(uc.cfg.Universe)
	}
	to := p.To
	if to.IsZero() {
		to = start
	}
	from := to.AddDate(0, 0, -uc.cfg.LookbackDays)
	snap := uc.weights.Snapshot()

	res := &models.ScreeningResult{
		RunID:          uuid.NewString(),
		StartedAt:      start,
		WeightsVersion: snap.Version,
		Candidates:     []models.Candidate{},
		Report:         models.ScreeningReport{Universe: len(universe), RiskRewardFail: map[string]int{}},
		Errors:         map[string]string{},
	}
	l := uc.l.With(applogger.String("run_id", res.RunID))

	outcomes := make([]instrumentOutcome, len(universe))
	var g errgroup.Group
	g.SetLimit(uc.cfg.Workers)
	for i, sym := range universe {
		i, sym := i, sym
		g.Go(func() error {
			outcomes[i] = uc.screenOne(ctx, sym, from, to, snap)
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		sym := universe[i]
		switch {
		case o.fetchErr != nil:
			res.Report.FetchErrors++
			res.Errors[sym] = o.fetchErr.Error()
			l.Warn("screening.fetch_failed", applogger.String("instrument", sym), applogger.Error(o.fetchErr))
			continue
		case o.insufficient:
			res.Report.InsufficientBars++
			l.Debug("screening.insufficient_bars", applogger.String("instrument", sym))
			continue
		}
		for _, id := range o.eval.RiskRewardFail {
			res.Report.RiskRewardFail[id]++
		}
		if n := len(o.eval.Failures); n > 0 {
			res.Report.DetectorFailures += n
			for id, err := range o.eval.Failures {
				res.Errors[sym+"/"+id] = err.Error()
			}
		}
		switch o.eval.Verdict {
		case VerdictNoSignal:
			res.Report.NoSignal++
		case VerdictConflict:
			res.Report.ConsensusConflict++
			l.Debug("screening.consensus_conflict", applogger.String("instrument", sym))
		case VerdictCandidate:
			res.Candidates = append(res.Candidates, *o.eval.Candidate)
		}
	}

	sort.SliceStable(res.Candidates, func(i, j int) bool {
		return res.Candidates[i].CompositeScore > res.Candidates[j].CompositeScore
	})
	res.Report.Candidates = len(res.Candidates)
	res.Duration = uc.now().Sub(start)
	if len(res.Errors) == 0 {
		res.Errors = nil
	}

	if uc.metrics != nil {
		uc.metrics.RecordScreening(res.Report, res.Duration.Seconds())
	}
	l.Info("screening.completed",
		applogger.Int("universe", res.Report.Universe),
		applogger.Int("candidates", res.Report.Candidates),
		applogger.Int("fetch_errors", res.Report.FetchErrors),
		applogger.Int("insufficient_bars", res.Report.InsufficientBars),
		applogger.Int("no_signal", res.Report.NoSignal),
		applogger.Int("consensus_conflict", res.Report.ConsensusConflict),
		applogger.Int("detector_failures", res.Report.DetectorFailures),
		applogger.Any("rr_fail", res.Report.RiskRewardFail),
		applogger.Int64("weights_version", res.WeightsVersion),
		applogger.Duration("duration_ms", res.Duration))

	if uc.notifier != nil && len(res.Candidates) > 0 {
		if err := uc.notifier.NotifyCandidates(ctx, res); err != nil {
			l.Warn("screening.notify_failed", applogger.Error(err))
		}
	}
	if err := ctx.Err(); err != nil {
		l.Warn("screening.interrupted", applogger.Int("candidates", len(res.Candidates)), applogger.Error(err))
	}
	return res, nil
}

func (uc *ScreeningUseCase) screenOne(ctx context.Context, sym string, from, to time.Time, snap *models.WeightSnapshot) instrumentOutcome {
	ictx, cancel := context.WithTimeout(ctx, uc.cfg.InstrumentTimeout)
	defer cancel()

	got, err := uc.candles.GetCandles(ictx, GetCandlesParams{Symbol: sym, From: from, To: to, Interval: uc.cfg.Interval})
	if err != nil {
		return instrumentOutcome{fetchErr: err}
	}
	if got.Count < uc.cfg.MinBars {
		return instrumentOutcome{insufficient: true}
	}
	return instrumentOutcome{eval: uc.agg.Evaluate(sym, got.Candles, snap)}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
