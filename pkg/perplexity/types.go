// Package perplexity is a minimal client for the Sonar chat-completions API,
// whose answers are grounded in a live web search.
package perplexity

// ChatCompletionRequest is the request body for POST /chat/completions.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	// SearchRecencyFilter limits web results to "day", "week", "month" or "year".
	SearchRecencyFilter string            `json:"search_recency_filter,omitempty"`
	SearchDomainFilter  []string          `json:"search_domain_filter,omitempty"`
	WebSearchOptions    *WebSearchOptions `json:"web_search_options,omitempty"`
}

// WebSearchOptions tunes how much retrieved context the model sees.
type WebSearchOptions struct {
	// SearchContextSize is "low", "medium" or "high".
	SearchContextSize string `json:"search_context_size,omitempty"`
}

// Message is one turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the response from POST /chat/completions.
type ChatCompletionResponse struct {
	ID            string         `json:"id"`
	Model         string         `json:"model"`
	Choices       []Choice       `json:"choices"`
	Usage         Usage          `json:"usage"`
	Citations     []string       `json:"citations,omitempty"`
	SearchResults []SearchResult `json:"search_results,omitempty"`
}

// Choice is a single completion choice.
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
}

// SearchResult is a web page the answer was grounded on.
type SearchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Date  string `json:"date,omitempty"`
}

// Usage reports token and search consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	NumSearchQueries int `json:"num_search_queries,omitempty"`
}

// Content returns the first choice's message content, or "".
func (r *ChatCompletionResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Sources returns every cited URL once, citations first, then search
// results that were not cited.
func (r *ChatCompletionResponse) Sources() []string {
	seen := make(map[string]bool, len(r.Citations)+len(r.SearchResults))
	var out []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, c := range r.Citations {
		add(c)
	}
	for _, sr := range r.SearchResults {
		add(sr.URL)
	}
	return out
}
