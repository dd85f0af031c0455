package worker

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long a key's limiter survives without requests.
const DefaultIdleTTL = 10 * time.Minute

// Limiter paces requests per key. Outgoing backend calls are keyed by host,
// incoming API requests by client address. Limiters for keys that go idle
// are evicted; keys given a rate through SetRate are kept.
type Limiter struct {
	mu        sync.Mutex
	keys      *gocache.Cache
	overrides map[string]*rate.Limiter
	limit     rate.Limit
	burst     int
}

// NewLimiter creates a limiter allowing requestsPerSecond per key with the
// given burst. A non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	return NewLimiterWithTTL(requestsPerSecond, burst, DefaultIdleTTL)
}

// NewLimiterWithTTL is NewLimiter with an explicit idle eviction time.
func NewLimiterWithTTL(requestsPerSecond float64, burst int, idle time.Duration) *Limiter {
	if burst <= 0 {
		burst = 5
	}
	if idle <= 0 {
		idle = DefaultIdleTTL
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{
		keys:      gocache.New(idle, idle),
		overrides: make(map[string]*rate.Limiter),
		limit:     limit,
		burst:     burst,
	}
}

// Wait blocks until a request to rawURL's host may proceed.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}
	return l.WaitKey(ctx, host)
}

// WaitKey blocks until a request for key may proceed or ctx ends.
func (l *Limiter) WaitKey(ctx context.Context, key string) error {
	return l.get(key).Wait(ctx)
}

// AllowKey reports whether a request for key may proceed now, consuming a
// token when it may.
func (l *Limiter) AllowKey(key string) bool {
	return l.get(key).Allow()
}

// SetRate overrides the rate for one key.
func (l *Limiter) SetRate(key string, requestsPerSecond float64, burst int) {
	if burst <= 0 {
		burst = l.burst
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[key] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	l.keys.Delete(key)
}

// Len returns the number of keys currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys.DeleteExpired()
	return l.keys.ItemCount() + len(l.overrides)
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.overrides[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	if v, ok := l.keys.Get(key); ok {
		lim = v.(*rate.Limiter)
	}
	// Re-set on every use so the idle window slides.
	l.keys.SetDefault(key, lim)
	return lim
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return u.Host, nil
}
