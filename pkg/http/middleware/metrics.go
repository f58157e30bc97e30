package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	applogger "SwingDesk/pkg/logger"
)

var (
	httpOnce     sync.Once
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
)

func initHTTPMetrics() {
	httpOnce.Do(func() {
		httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swingdesk_http_requests_total",
			Help: "HTTP requests by route template, method and status.",
		}, []string{"route", "method", "status"})
		httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swingdesk_http_request_duration_seconds",
			Help:    "HTTP latency by route template. Screening and sync fan out to the broker.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"route", "method"})
		httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "swingdesk_http_in_flight_requests",
			Help: "Requests currently being served.",
		})
	})
}

// Metrics counts requests per route template. Server errors are logged, and
// so are requests slower than slow when slow > 0.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	initHTTPMetrics()
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpInFlight.Inc()
			defer httpInFlight.Dec()
			start := time.Now()

			// render here so the recorded status is the one sent
			if err := next(c); err != nil {
				c.Error(err)
			}

			took := time.Since(start)
			route, method, status := routeOf(c), c.Request().Method, c.Response().Status
			httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			httpLatency.WithLabelValues(route, method).Observe(took.Seconds())

			if status >= 500 || (slow > 0 && took >= slow) {
				log := l.Warn
				if status >= 500 {
					log = l.Error
				}
				log("http.request_done",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Int("status", status),
					applogger.Duration("took", took))
			}
			return nil
		}
	}
}

func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}
