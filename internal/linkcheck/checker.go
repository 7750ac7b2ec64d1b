// Package linkcheck verifies that cited source URLs still resolve.
package linkcheck

import (
	"context"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/policy-tracker/internal/model"
)

// Options configures a Checker.
type Options struct {
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
	// PerHostRate is the starting requests/second allowed per host.
	PerHostRate rate.Limit
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("linkcheck: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// Checker issues HEAD requests (falling back to GET) with per-host
// adaptive rate limiting and retries on 429 and 5xx.
type Checker struct {
	client *http.Client
	opts   Options

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// New creates a Checker.
func New(opts Options) *Checker {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.PerHostRate == 0 {
		opts.PerHostRate = 2
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "policy-tracker/1.0"
	}
	return &Checker{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

func (c *Checker) limiterFor(host string) *AdaptiveLimiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(c.opts.PerHostRate, 1)
		c.limiters[host] = lim
	}
	return lim
}

// Check reports whether rawURL answers with a non-error status. A 4xx
// answer is a definitive false with no error; exhausted retries and
// malformed URLs return false with an error.
func (c *Checker) Check(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false, eris.Errorf("linkcheck: invalid url %q", rawURL)
	}
	lim := c.limiterFor(u.Host)

	method := http.MethodHead
	var lastErr error
	for attempt := range c.opts.MaxRetries {
		if err := lim.Wait(ctx); err != nil {
			return false, eris.Wrap(err, "linkcheck: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			return false, eris.Wrap(err, "linkcheck: create request")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.backoff(ctx, attempt)
			continue
		}
		_ = resp.Body.Close()

		switch {
		case method == http.MethodHead &&
			(resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented):
			// HEAD refused; the next attempt uses GET.
			method = http.MethodGet
			lastErr = eris.Errorf("http %d for HEAD %s", resp.StatusCode, rawURL)
			continue
		case resp.StatusCode == http.StatusTooManyRequests:
			lim.OnRateLimit()
			lastErr = eris.Errorf("http 429 from %s", rawURL)
			c.backoff(ctx, attempt)
			continue
		case resp.StatusCode >= 500:
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, rawURL)
			c.backoff(ctx, attempt)
			continue
		}

		lim.OnSuccess()
		return resp.StatusCode < 400, nil
	}
	return false, eris.Wrap(lastErr, "linkcheck: all retries exhausted")
}

// Annotate sets Accessible on every source with a URL. Check errors are
// logged and recorded as inaccessible.
func (c *Checker) Annotate(ctx context.Context, sources []model.Source) {
	for i := range sources {
		if sources[i].URL == "" {
			continue
		}
		ok, err := c.Check(ctx, sources[i].URL)
		if err != nil {
			zap.L().Debug("linkcheck: source unreachable",
				zap.String("url", sources[i].URL),
				zap.Error(err),
			)
		}
		sources[i].Accessible = &ok
	}
}

func (c *Checker) backoff(ctx context.Context, attempt int) {
	d := time.Duration(float64(c.opts.BaseBackoff) * math.Pow(2, float64(attempt)))
	d = min(d, 30*time.Second)
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
