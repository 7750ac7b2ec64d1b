package model

import (
	"strings"
	"time"
)

// AgentType names one of the tracking orchestrators.
type AgentType string

const (
	AgentDetection AgentType = "deteccion"
	AgentMonitor   AgentType = "monitoreo"
	AgentRecap     AgentType = "recap"
	AgentCases     AgentType = "casos"
)

// AllAgents lists every orchestrator.
var AllAgents = []AgentType{AgentDetection, AgentMonitor, AgentRecap, AgentCases}

var agentAliases = map[string]AgentType{
	"detection":  AgentDetection,
	"detect":     AgentDetection,
	"monitor":    AgentMonitor,
	"monitoring": AgentMonitor,
	"cases":      AgentCases,
	"judicial":   AgentCases,
}

// ParseAgentType resolves the canonical or English name of an agent.
func ParseAgentType(raw string) (AgentType, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range AllAgents {
		if string(a) == v {
			return a, true
		}
	}
	a, ok := agentAliases[v]
	return a, ok
}

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerCron   Trigger = "cron"
)

// ParseTrigger defaults to TriggerManual.
func ParseTrigger(raw string) Trigger {
	if Trigger(strings.ToLower(raw)) == TriggerCron {
		return TriggerCron
	}
	return TriggerManual
}

// TokenUsage tracks search-service consumption for a run.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	WebSearches  int `json:"web_searches"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.WebSearches += other.WebSearches
}

// AgentRunLog is the audit record of one orchestrator invocation.
type AgentRunLog struct {
	ID           string     `json:"id"`
	Agent        AgentType  `json:"tipo"`
	Trigger      Trigger    `json:"trigger"`
	StartedAt    time.Time  `json:"timestamp"`
	DurationMs   int64      `json:"duracion_ms"`
	Success      bool       `json:"exito"`
	ItemsFound   int        `json:"items_encontrados"`
	ItemsUpdated int        `json:"items_actualizados"`
	Errors       []string   `json:"errores"`
	RawResponse  string     `json:"respuesta_raw,omitempty"`
	Usage        TokenUsage `json:"uso"`
	CostUSD      float64    `json:"costo_usd"`
	CreatedAt    time.Time  `json:"created_at"`
}

// RunResult is what an orchestrator returns to its caller.
type RunResult struct {
	Agent        AgentType `json:"agent"`
	Success      bool      `json:"success"`
	ItemsFound   int       `json:"itemsFound"`
	ItemsUpdated int       `json:"updatesFound"`
	RecapID      string    `json:"recapId,omitempty"`
	Title        string    `json:"title,omitempty"`
	Skipped      bool      `json:"skipped,omitempty"`
	Message      string    `json:"message,omitempty"`
	Errors       []string  `json:"errors"`
	DurationMs   int64     `json:"durationMs"`
}
