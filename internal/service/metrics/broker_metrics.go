package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	brokerOnce    sync.Once
	brokerLatency *prometheus.HistogramVec
	brokerCalls   *prometheus.CounterVec
	brokerRetries *prometheus.CounterVec
)

func initBroker() {
	brokerOnce.Do(func() {
		brokerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "swingdesk",
			Subsystem: "broker",
			Name:      "latency_seconds",
			Help:      "Broker REST latency per endpoint class, rate limit wait excluded.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"class"})
		brokerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swingdesk",
			Subsystem: "broker",
			Name:      "calls_total",
			Help:      "Broker REST calls per endpoint class and result.",
		}, []string{"class", "result"})
		brokerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swingdesk",
			Subsystem: "broker",
			Name:      "retries_total",
			Help:      "Broker REST calls repeated after a transient failure.",
		}, []string{"class"})
	})
}

// ObserveBrokerCall records one broker request.
func ObserveBrokerCall(class string, took time.Duration, err error) {
	initBroker()
	result := "ok"
	if err != nil {
		result = "error"
	}
	brokerLatency.WithLabelValues(class).Observe(took.Seconds())
	brokerCalls.WithLabelValues(class, result).Inc()
}

func BrokerRetry(class string) {
	initBroker()
	brokerRetries.WithLabelValues(class).Inc()
}
