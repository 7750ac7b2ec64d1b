// Package search is the client side of the web-search-capable language
// model the agents query.
package search

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/cost"
	"github.com/sells-group/policy-tracker/internal/metrics"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/resilience"
	"github.com/sells-group/policy-tracker/pkg/anthropic"
	"github.com/sells-group/policy-tracker/pkg/perplexity"
)

// ErrEmptyResponse is returned when the provider answered without any text.
var ErrEmptyResponse = eris.New("search: empty response")

// Request is one prompt sent to the search service.
type Request struct {
	// System carries stable instructions; providers may cache it.
	System    string
	Prompt    string
	MaxTokens int
}

// Response is the provider's free-form answer.
type Response struct {
	Text      string
	Model     string
	Usage     model.TokenUsage
	Citations []string
	CostUSD   float64
}

// Service answers prompts, searching the web as needed.
type Service interface {
	Search(ctx context.Context, req Request) (*Response, error)
	// Name identifies the provider in logs and metrics.
	Name() string
}

// New builds the configured provider wrapped in a Guarded service.
func New(cfg *config.Config, m *metrics.Metrics) (Service, error) {
	calc := cost.NewCalculator(cost.RatesFromConfig(cfg.Pricing))
	timeout := time.Duration(cfg.Search.TimeoutSecs) * time.Second

	var svc Service
	switch cfg.Search.Provider {
	case "anthropic":
		client := anthropic.NewClient(cfg.Anthropic.Key, anthropic.WithTimeout(timeout))
		svc = NewAnthropicService(client, AnthropicOptions{
			Model:   cfg.Anthropic.Model,
			MaxUses: int64(cfg.Anthropic.WebSearchMaxUses),
			Country: "MX",
		}, calc)
	case "perplexity":
		client := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
			perplexity.WithTimeout(timeout),
		)
		svc = NewPerplexityService(client, cfg.Perplexity.Model, "month", calc)
	default:
		return nil, eris.Errorf("search: unknown provider %q", cfg.Search.Provider)
	}

	var limiter *rate.Limiter
	if rpm := cfg.Search.RequestsPerMinute; rpm > 0 {
		limiter = rate.NewLimiter(rate.Limit(rpm/60), 1)
	}

	breakerCfg := resilience.NewCircuitConfig(cfg.Search.CircuitFailureThreshold, cfg.Search.CircuitResetSecs)
	breakerCfg.OnStateChange = func(name string, _, to resilience.CircuitState) {
		m.SetCircuitState(name, int(to))
	}

	return NewGuarded(svc, GuardOptions{
		Breaker: resilience.NewCircuitBreaker(svc.Name(), breakerCfg),
		Limiter: limiter,
		Retry:   resilience.NewRetryConfig(cfg.Search.MaxAttempts, cfg.Search.InitialBackoffMs, cfg.Search.MaxBackoffMs),
		Metrics: m,
	}), nil
}
