package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/policy-tracker/internal/config"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku":  {Input: 1.00, Output: 5.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
			"sonnet": {Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		},
		WebSearchPerThousand: 10.00,
		Perplexity:           PerplexityRate{PerQuery: 0.005, PerMTok: 1.00},
	}
}

func TestAnthropic(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name  string
		model string
		usage Usage
		want  float64
	}{
		{
			name:  "sonnet tokens only",
			model: "sonnet",
			usage: Usage{InputTokens: 1_000_000, OutputTokens: 100_000},
			want:  3.00 + 1.50,
		},
		{
			name:  "haiku with cache",
			model: "haiku",
			usage: Usage{InputTokens: 1000, CacheWriteTokens: 2000, CacheReadTokens: 10_000},
			want:  0.001 + 0.0025 + 0.001,
		},
		{
			name:  "web searches",
			model: "sonnet",
			usage: Usage{WebSearches: 5},
			want:  0.05,
		},
		{
			name:  "unknown model pays only searches",
			model: "mystery",
			usage: Usage{InputTokens: 1_000_000, WebSearches: 2},
			want:  0.02,
		},
		{
			name:  "zero usage",
			model: "sonnet",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Anthropic(tt.model, tt.usage), 1e-9)
		})
	}
}

func TestPerplexity(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, 0.005, calc.Perplexity(Usage{}), 1e-9)
	assert.InDelta(t, 0.005+0.002, calc.Perplexity(Usage{InputTokens: 1500, OutputTokens: 500}), 1e-9)
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()

	assert.Contains(t, rates.Anthropic, "claude-sonnet-4-5-20250929")
	assert.Contains(t, rates.Anthropic, "claude-haiku-4-5-20251001")
	assert.Greater(t, rates.WebSearchPerThousand, 0.0)
	assert.Greater(t, rates.Perplexity.PerQuery, 0.0)
}

func TestRatesFromConfig(t *testing.T) {
	t.Parallel()

	rates := RatesFromConfig(config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{
			"claude-sonnet-4-5-20250929": {Input: 2.5, Output: 12},
			"custom-model":               {Input: 1, Output: 2},
		},
		WebSearchPerThousand: 8,
		Perplexity:           config.PerplexityPricing{PerQuery: 0.01},
	})

	sonnet := rates.Anthropic["claude-sonnet-4-5-20250929"]
	assert.Equal(t, 2.5, sonnet.Input)
	assert.Equal(t, 12.0, sonnet.Output)
	assert.Equal(t, 0.1, sonnet.CacheReadMul)

	custom := rates.Anthropic["custom-model"]
	assert.Equal(t, 1.25, custom.CacheWriteMul)
	assert.Equal(t, 8.0, rates.WebSearchPerThousand)
	assert.Equal(t, 0.01, rates.Perplexity.PerQuery)
	assert.Equal(t, 1.0, rates.Perplexity.PerMTok)

	// DefaultRates must not be mutated by overlaying.
	assert.Equal(t, 3.0, DefaultRates().Anthropic["claude-sonnet-4-5-20250929"].Input)
}
