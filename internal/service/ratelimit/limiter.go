package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL = 10 * time.Minute
	defaultMaxKeys = 10000
)

// Limiter keeps one token bucket per key. Buckets are created on first use
// with the capacity and refill rate passed by the caller, and dropped once
// they sit idle and full, since a fresh bucket behaves the same.
type Limiter struct {
	mu        sync.Mutex
	m         map[string]*entry
	idleTTL   time.Duration
	maxKeys   int
	lastSweep time.Time
	now       func() time.Time
}

type entry struct {
	b        *rate.Limiter
	lastSeen time.Time
}

type Option func(*Limiter)

// WithIdleTTL sets how long a bucket must go unused before it may be evicted.
func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.idleTTL = d
		}
	}
}

// WithMaxKeys caps the number of live buckets. When the cap is reached the
// least recently used bucket is evicted.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxKeys = n
		}
	}
}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		m:       make(map[string]*entry),
		idleTTL: defaultIdleTTL,
		maxKeys: defaultMaxKeys,
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) bucket(key string, capacity, refillPerSec float64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}
	e, ok := l.m[key]
	if !ok {
		if len(l.m) >= l.maxKeys {
			l.evictOldest()
		}
		burst := int(capacity)
		if burst < 1 {
			burst = 1
		}
		e = &entry{b: rate.NewLimiter(rate.Limit(refillPerSec), burst)}
		l.m[key] = e
	}
	e.lastSeen = now
	return e.b
}

// sweep drops buckets idle for at least idleTTL that have refilled.
func (l *Limiter) sweep(now time.Time) {
	l.lastSweep = now
	for k, e := range l.m {
		if now.Sub(e.lastSeen) < l.idleTTL {
			continue
		}
		if e.b.TokensAt(now) >= float64(e.b.Burst()) {
			delete(l.m, k)
		}
	}
}

func (l *Limiter) evictOldest() {
	var (
		oldest string
		at     time.Time
		found  bool
	)
	for k, e := range l.m {
		if !found || e.lastSeen.Before(at) {
			oldest, at, found = k, e.lastSeen, true
		}
	}
	if found {
		delete(l.m, oldest)
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	return l.bucket(key, capacity, refillPerSec).AllowN(l.now(), 1)
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string, capacity, refillPerSec float64) error {
	return l.bucket(key, capacity, refillPerSec).Wait(ctx)
}
