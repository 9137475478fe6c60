package httpx

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aussiebroadwan/curb/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the client-side pacing parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// DefaultRateLimit stays well under what the vendor API tolerates for a
// single account. Allows 60 requests per minute with a burst of 10.
var DefaultRateLimit = RateLimitConfig{
	RequestsPerWindow: 60,
	Window:            time.Minute,
	Burst:             10,
}

// Limit converts the config into a token bucket refill rate.
func (c RateLimitConfig) Limit() rate.Limit {
	if c.RequestsPerWindow <= 0 || c.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// RateLimitTransport paces outgoing requests per destination host. Requests
// wait for a token instead of failing, and the wait honours the request
// context so cancellation still works.
type RateLimitTransport struct {
	Base http.RoundTripper

	config   RateLimitConfig
	limiters sync.Map // map[string]*rate.Limiter
}

// NewRateLimitTransport wraps base, falling back to http.DefaultTransport.
func NewRateLimitTransport(base http.RoundTripper, config RateLimitConfig) *RateLimitTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	return &RateLimitTransport{Base: base, config: config}
}

// getLimiter retrieves or creates the limiter for the given host
func (t *RateLimitTransport) getLimiter(host string) *rate.Limiter {
	if limiter, ok := t.limiters.Load(host); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(t.config.Limit(), t.config.Burst)
	actual, _ := t.limiters.LoadOrStore(host, limiter)
	return actual.(*rate.Limiter)
}

func (t *RateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	limiter := t.getLimiter(req.URL.Host)

	if !limiter.Allow() {
		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()

		slogx.FromContext(ctx).Debug("rate limit: delaying request",
			"host", req.URL.Host,
			"path", req.URL.Path,
			"delay_ms", delay.Milliseconds(),
		)

		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	return t.Base.RoundTrip(req)
}

// CloseIdleConnections forwards to the wrapped transport.
func (t *RateLimitTransport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if ci, ok := t.Base.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}
