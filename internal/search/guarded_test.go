package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/metrics"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/resilience"
)

func TestGuarded_PassesThrough(t *testing.T) {
	next := &mockService{}
	want := &Response{Text: "{}", Usage: model.TokenUsage{WebSearches: 2}}
	next.On("Search", mock.Anything, Request{Prompt: "p"}).Return(want, nil).Once()

	g := NewGuarded(next, GuardOptions{
		Breaker: resilience.NewCircuitBreaker("mock", resilience.CircuitBreakerConfig{}),
		Limiter: rate.NewLimiter(rate.Inf, 1),
		Metrics: metrics.New(),
	})

	got, err := g.Search(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, "mock", g.Name())
	next.AssertExpectations(t)
}

func TestGuarded_NoRetryByDefault(t *testing.T) {
	next := &mockService{}
	next.On("Search", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("503"), 503)).Once()

	g := NewGuarded(next, GuardOptions{})

	_, err := g.Search(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search: mock")
	next.AssertNumberOfCalls(t, "Search", 1)
}

func TestGuarded_RetriesWhenConfigured(t *testing.T) {
	next := &mockService{}
	next.On("Search", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("503"), 503)).Once()
	next.On("Search", mock.Anything, mock.Anything).
		Return(&Response{Text: "ok"}, nil).Once()

	g := NewGuarded(next, GuardOptions{
		Retry: resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})

	resp, err := g.Search(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	next.AssertNumberOfCalls(t, "Search", 2)
}

func TestGuarded_OpenCircuitSkipsProvider(t *testing.T) {
	next := &mockService{}
	next.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("down")).Once()

	g := NewGuarded(next, GuardOptions{
		Breaker: resilience.NewCircuitBreaker("mock", resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}),
	})

	_, err := g.Search(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)

	_, err = g.Search(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	next.AssertNumberOfCalls(t, "Search", 1)
}

func TestGuarded_LimiterHonoursContext(t *testing.T) {
	next := &mockService{}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow())

	g := NewGuarded(next, GuardOptions{Limiter: limiter})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.Search(ctx, Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	next.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestNew(t *testing.T) {
	cfg := &config.Config{
		Anthropic:  config.AnthropicConfig{Key: "k", Model: "claude-sonnet-4-5-20250929", WebSearchMaxUses: 3},
		Perplexity: config.PerplexityConfig{Key: "k", BaseURL: "http://localhost", Model: "sonar"},
		Search:     config.SearchConfig{Provider: "anthropic", TimeoutSecs: 30, RequestsPerMinute: 10, MaxAttempts: 1},
	}

	svc, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", svc.Name())

	cfg.Search.Provider = "perplexity"
	svc, err = New(cfg, metrics.New())
	require.NoError(t, err)
	assert.Equal(t, "perplexity", svc.Name())

	cfg.Search.Provider = "other"
	_, err = New(cfg, nil)
	require.Error(t, err)
}
