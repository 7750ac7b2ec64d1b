package search

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-tracker/internal/cost"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/pkg/perplexity"
)

// PerplexityService queries a Sonar model, which grounds every answer in a
// web search.
type PerplexityService struct {
	client  perplexity.Client
	model   string
	recency string
	calc    *cost.Calculator
}

// NewPerplexityService creates a PerplexityService. recency may be "" for no
// recency filter.
func NewPerplexityService(client perplexity.Client, model, recency string, calc *cost.Calculator) *PerplexityService {
	return &PerplexityService{client: client, model: model, recency: recency, calc: calc}
}

// Name implements Service.
func (s *PerplexityService) Name() string { return "perplexity" }

// Search implements Service.
func (s *PerplexityService) Search(ctx context.Context, req Request) (*Response, error) {
	var msgs []perplexity.Message
	if req.System != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, perplexity.Message{Role: "user", Content: req.Prompt})

	chatReq := perplexity.ChatCompletionRequest{
		Model:               s.model,
		Messages:            msgs,
		SearchRecencyFilter: s.recency,
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		chatReq.MaxTokens = &maxTokens
	}

	resp, err := s.client.ChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	text := resp.Content()
	if text == "" {
		return nil, eris.Wrap(ErrEmptyResponse, "perplexity")
	}

	searches := resp.Usage.NumSearchQueries
	if searches == 0 {
		searches = 1
	}
	out := &Response{
		Text:      text,
		Model:     resp.Model,
		Citations: resp.Sources(),
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			WebSearches:  searches,
		},
	}
	if out.Model == "" {
		out.Model = s.model
	}
	if s.calc != nil {
		out.CostUSD = s.calc.Perplexity(cost.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		})
	}
	return out, nil
}
