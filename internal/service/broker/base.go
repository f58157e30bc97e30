package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	svcmetrics "SwingDesk/internal/service/metrics"
	"SwingDesk/internal/service/ratelimit"
	xhttp "SwingDesk/pkg/http"
)

// restBase centralizes authenticated GET requests against the broker REST API.
type restBase struct {
	client   *xhttp.Client
	limiter  *ratelimit.Limiter
	attempts int
	backoff  time.Duration
	limits   map[string]Limit
}

const maxRetryAfter = 30 * time.Second

// Limit is a token bucket setting for one endpoint class.
type Limit struct {
	Burst  float64
	PerSec float64
}

// RateLimits builds per-class limits from requests-per-second settings.
// Zero values keep the broker defaults.
func RateLimits(historicalPerSec, quotePerSec float64) map[string]Limit {
	out := make(map[string]Limit, 2)
	if historicalPerSec > 0 {
		out[classHistorical] = Limit{Burst: historicalPerSec, PerSec: historicalPerSec}
	}
	if quotePerSec > 0 {
		out[classQuote] = Limit{Burst: quotePerSec, PerSec: quotePerSec}
	}
	return out
}

func newRestBase(cfg Config) *restBase {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	limits := map[string]Limit{
		classHistorical: {Burst: 3, PerSec: 3},
		classQuote:      {Burst: 1, PerSec: 1},
		classDefault:    {Burst: 10, PerSec: 10},
	}
	for k, v := range cfg.Limits {
		limits[k] = v
	}
	var client *xhttp.Client
	if cfg.BaseURL != "" {
		client = xhttp.NewClient(cfg.BaseURL, timeout, http.Header{
			"X-Kite-Version": {"3"},
			"Authorization":  {fmt.Sprintf("token %s:%s", cfg.APIKey, cfg.AccessToken)},
		})
	}
	return &restBase{
		client:   client,
		limiter:  ratelimit.New(),
		attempts: attempts,
		backoff:  backoff,
		limits:   limits,
	}
}

// GetJSON issues one GET to path under baseURL and decodes the response into dest.
func (b *restBase) GetJSON(ctx context.Context, class, path string, query url.Values, dest any) error {
	if b.client == nil {
		return fmt.Errorf("broker http client not initialized")
	}
	lim := b.limits[class]
	if err := b.limiter.Wait(ctx, class, lim.Burst, lim.PerSec); err != nil {
		return fmt.Errorf("rate limit %s: %w", class, err)
	}
	start := time.Now()
	err := b.client.Get(ctx, path, query, dest)
	svcmetrics.ObserveBrokerCall(class, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return nil
}

// GetJSONWithRetry repeats GetJSON with linear backoff while the failure is
// transient. A Retry-After longer than the backoff is honoured up to maxRetryAfter.
func (b *restBase) GetJSONWithRetry(ctx context.Context, class, path string, query url.Values, dest any) error {
	var err error
	for i := 1; i <= b.attempts; i++ {
		err = b.GetJSON(ctx, class, path, query, dest)
		if err == nil || !xhttp.IsRetryable(err) || i == b.attempts {
			return err
		}
		svcmetrics.BrokerRetry(class)
		wait := time.Duration(i) * b.backoff
		if ra := min(xhttp.RetryAfter(err), maxRetryAfter); ra > wait {
			wait = ra
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
