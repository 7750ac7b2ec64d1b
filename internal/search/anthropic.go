package search

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-tracker/internal/cost"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/resilience"
	"github.com/sells-group/policy-tracker/pkg/anthropic"
)

// AnthropicOptions configures the Messages API call.
type AnthropicOptions struct {
	Model string
	// MaxUses bounds web searches per request; 0 leaves it to the API.
	MaxUses        int64
	Country        string
	BlockedDomains []string
}

// AnthropicService queries Claude with the server-side web search tool.
type AnthropicService struct {
	client anthropic.Client
	opts   AnthropicOptions
	calc   *cost.Calculator
}

// NewAnthropicService creates an AnthropicService.
func NewAnthropicService(client anthropic.Client, opts AnthropicOptions, calc *cost.Calculator) *AnthropicService {
	return &AnthropicService{client: client, opts: opts, calc: calc}
}

// Name implements Service.
func (s *AnthropicService) Name() string { return "anthropic" }

// Search implements Service.
func (s *AnthropicService) Search(ctx context.Context, req Request) (*Response, error) {
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.opts.Model,
		MaxTokens: int64(req.MaxTokens),
		System:    anthropic.CachedSystemBlocks(req.System, "5m"),
		Messages:  []anthropic.Message{{Role: "user", Content: req.Prompt}},
		WebSearch: &anthropic.WebSearch{
			MaxUses:        s.opts.MaxUses,
			BlockedDomains: s.opts.BlockedDomains,
			Country:        s.opts.Country,
		},
	})
	if err != nil {
		return nil, classifyAnthropic(err)
	}

	text := resp.Text()
	if text == "" {
		return nil, eris.Wrapf(ErrEmptyResponse, "anthropic stop_reason=%s", resp.StopReason)
	}

	out := &Response{
		Text:  text,
		Model: resp.Model,
		Usage: model.TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			WebSearches:  int(resp.Usage.WebSearchRequests),
		},
	}
	for _, c := range resp.Citations() {
		out.Citations = append(out.Citations, c.URL)
	}
	if s.calc != nil {
		out.CostUSD = s.calc.Anthropic(s.opts.Model, cost.Usage{
			InputTokens:      int(resp.Usage.InputTokens),
			OutputTokens:     int(resp.Usage.OutputTokens),
			CacheWriteTokens: int(resp.Usage.CacheCreationInputTokens),
			CacheReadTokens:  int(resp.Usage.CacheReadInputTokens),
			WebSearches:      int(resp.Usage.WebSearchRequests),
		})
	}
	return out, nil
}

// classifyAnthropic marks API errors with retryable statuses as transient.
func classifyAnthropic(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}
