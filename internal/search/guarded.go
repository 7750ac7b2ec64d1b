package search

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/policy-tracker/internal/metrics"
	"github.com/sells-group/policy-tracker/internal/resilience"
)

// GuardOptions configures a Guarded service. Nil fields are skipped.
type GuardOptions struct {
	Breaker *resilience.CircuitBreaker
	Limiter *rate.Limiter
	// Retry defaults to a single attempt.
	Retry   resilience.RetryConfig
	Metrics *metrics.Metrics
}

// Guarded wraps a Service with rate limiting, a circuit breaker, an opt-in
// retry policy, logging and metrics.
type Guarded struct {
	next Service
	opts GuardOptions
}

// NewGuarded wraps next.
func NewGuarded(next Service, opts GuardOptions) *Guarded {
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger(next.Name())
	}
	return &Guarded{next: next, opts: opts}
}

// Name implements Service.
func (g *Guarded) Name() string { return g.next.Name() }

// Search implements Service.
func (g *Guarded) Search(ctx context.Context, req Request) (*Response, error) {
	log := zap.L().With(zap.String("provider", g.next.Name()))
	start := time.Now()

	resp, err := resilience.Do(ctx, g.opts.Retry, func(ctx context.Context) (*Response, error) {
		if g.opts.Limiter != nil {
			if err := g.opts.Limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "search: rate limiter")
			}
		}
		if g.opts.Breaker == nil {
			return g.next.Search(ctx, req)
		}
		return resilience.Execute(ctx, g.opts.Breaker, func(ctx context.Context) (*Response, error) {
			return g.next.Search(ctx, req)
		})
	})
	elapsed := time.Since(start)

	var searches int
	if resp != nil {
		searches = resp.Usage.WebSearches
	}
	g.opts.Metrics.ObserveSearch(g.next.Name(), elapsed, searches, err)

	if err != nil {
		log.Warn("search: request failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, eris.Wrapf(err, "search: %s", g.next.Name())
	}

	log.Debug("search: request complete",
		zap.String("model", resp.Model),
		zap.Duration("elapsed", elapsed),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Int("web_searches", resp.Usage.WebSearches),
		zap.Float64("cost_usd", resp.CostUSD),
	)
	return resp, nil
}
