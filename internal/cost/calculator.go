// Package cost prices search-service usage so each run log carries its spend.
package cost

import "github.com/sells-group/policy-tracker/internal/config"

// Rates holds per-provider pricing.
type Rates struct {
	Anthropic map[string]ModelRate
	// WebSearchPerThousand is the Anthropic server-side search price.
	WebSearchPerThousand float64
	Perplexity           PerplexityRate
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input         float64
	Output        float64
	CacheWriteMul float64
	CacheReadMul  float64
}

// PerplexityRate holds Perplexity pricing.
type PerplexityRate struct {
	PerQuery float64
	PerMTok  float64
}

// Usage is the billable consumption of one search call.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheWriteTokens int
	CacheReadTokens  int
	WebSearches      int
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Anthropic prices a Messages API call including its web searches. Unknown
// models price their tokens at zero but still pay for searches.
func (c *Calculator) Anthropic(model string, u Usage) float64 {
	search := float64(u.WebSearches) / 1000 * c.rates.WebSearchPerThousand

	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return search
	}
	perTok := func(n int, price float64) float64 { return float64(n) / 1e6 * price }

	return perTok(u.InputTokens, rate.Input) +
		perTok(u.OutputTokens, rate.Output) +
		perTok(u.CacheWriteTokens, rate.Input*rate.CacheWriteMul) +
		perTok(u.CacheReadTokens, rate.Input*rate.CacheReadMul) +
		search
}

// Perplexity prices one chat completion: a flat request fee plus tokens.
func (c *Calculator) Perplexity(u Usage) float64 {
	tokens := float64(u.InputTokens+u.OutputTokens) / 1e6 * c.rates.Perplexity.PerMTok
	return c.rates.Perplexity.PerQuery + tokens
}

// DefaultRates returns the built-in pricing.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 1.00, Output: 5.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-opus-4-1-20250805": {
				Input: 15.00, Output: 75.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		WebSearchPerThousand: 10.00,
		Perplexity:           PerplexityRate{PerQuery: 0.005, PerMTok: 1.00},
	}
}

// RatesFromConfig overlays configured pricing on DefaultRates.
func RatesFromConfig(p config.PricingConfig) Rates {
	rates := DefaultRates()
	for model, mp := range p.Anthropic {
		r := rates.Anthropic[model]
		r.Input, r.Output = mp.Input, mp.Output
		if r.CacheWriteMul == 0 {
			r.CacheWriteMul, r.CacheReadMul = 1.25, 0.1
		}
		rates.Anthropic[model] = r
	}
	if p.WebSearchPerThousand > 0 {
		rates.WebSearchPerThousand = p.WebSearchPerThousand
	}
	if p.Perplexity.PerQuery > 0 {
		rates.Perplexity.PerQuery = p.Perplexity.PerQuery
	}
	if p.Perplexity.PerMTok > 0 {
		rates.Perplexity.PerMTok = p.Perplexity.PerMTok
	}
	return rates
}
