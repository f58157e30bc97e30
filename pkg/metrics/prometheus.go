package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SwingDesk/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	screeningRuns     prometheus.Counter
	screeningDuration prometheus.Histogram
	instruments       *prometheus.CounterVec
	rrFail            *prometheus.CounterVec
	candidates        prometheus.Gauge
	detectorFailures  *prometheus.CounterVec
	calibrations      prometheus.Counter
	weightChanges     prometheus.Counter
	reconcileEvents   *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	latency           *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder { return NewWithRegistry(prometheus.DefaultRegisterer) }

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		screeningRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "swingdesk_screening_runs_total",
			Help: "Completed screening runs",
		}),
		screeningDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "swingdesk_screening_duration_seconds",
			Help:    "Wall time of a screening run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		instruments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swingdesk_screening_instruments_total",
			Help: "Screened instruments by outcome",
		}, []string{"outcome"}),
		rrFail: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swingdesk_screening_rr_fail_total",
			Help: "Signals discarded for insufficient risk reward, by detector",
		}, []string{"detector"}),
		candidates: f.NewGauge(prometheus.GaugeOpts{
			Name: "swingdesk_screening_candidates",
			Help: "Candidates produced by the last screening run",
		}),
		detectorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swingdesk_detector_failures_total",
			Help: "Detector evaluations that failed",
		}, []string{"detector"}),
		calibrations: f.NewCounter(prometheus.CounterOpts{
			Name: "swingdesk_calibration_runs_total",
			Help: "Completed calibrator passes",
		}),
		weightChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "swingdesk_calibration_weight_changes_total",
			Help: "Trust weights changed by the calibrator",
		}),
		reconcileEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swingdesk_reconcile_events_total",
			Help: "Ledger reconcile events by kind",
		}, []string{"kind"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swingdesk_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swingdesk_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// RecordScreening records the diagnostics of one screening run.
func (r *Recorder) RecordScreening(report models.ScreeningReport, seconds float64) {
	r.screeningRuns.Inc()
	r.screeningDuration.Observe(seconds)
	r.instruments.WithLabelValues("fetch_error").Add(float64(report.FetchErrors))
	r.instruments.WithLabelValues("insufficient_bars").Add(float64(report.InsufficientBars))
	r.instruments.WithLabelValues("no_signal").Add(float64(report.NoSignal))
	r.instruments.WithLabelValues("consensus_conflict").Add(float64(report.ConsensusConflict))
	r.instruments.WithLabelValues("candidate").Add(float64(report.Candidates))
	for id, n := range report.RiskRewardFail {
		r.rrFail.WithLabelValues(id).Add(float64(n))
	}
	r.candidates.Set(float64(report.Candidates))
}

// RecordDetectorFailure counts one failed detector evaluation.
func (r *Recorder) RecordDetectorFailure(detector string) {
	r.detectorFailures.WithLabelValues(detector).Inc()
}

// RecordCalibration records one calibrator pass.
func (r *Recorder) RecordCalibration(changed int) {
	r.calibrations.Inc()
	r.weightChanges.Add(float64(changed))
}

// RecordReconcile records the outcome of one reconcile pass.
func (r *Recorder) RecordReconcile(created, closed, errors int, fundChanged bool) {
	r.reconcileEvents.WithLabelValues("created").Add(float64(created))
	r.reconcileEvents.WithLabelValues("closed").Add(float64(closed))
	r.reconcileEvents.WithLabelValues("error").Add(float64(errors))
	if fundChanged {
		r.reconcileEvents.WithLabelValues("fund_change").Inc()
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
