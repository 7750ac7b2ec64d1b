package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate AlertType = "agent_failure_rate"
	AlertStaleAgent  AlertType = "agent_stale"
	AlertCostOverrun AlertType = "cost_overrun"
)

// minRunsForRate is the number of runs an agent needs before its failure
// rate is judged.
const minRunsForRate = 3

// DailyAgents are the agents expected to succeed at least every
// StaleAfterHours. The recap runs monthly and is not watched.
var DailyAgents = []model.AgentType{model.AgentDetection, model.AgentMonitor, model.AgentCases}

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType       `json:"type"`
	Agent     model.AgentType `json:"agent,omitempty"`
	Severity  string          `json:"severity"`
	Message   string          `json:"message"`
	Details   map[string]any  `json:"details,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	watch  []model.AgentType
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
// Staleness is checked for DailyAgents.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		watch:  DailyAgents,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	for _, st := range snap.Agents {
		if st.Runs >= minRunsForRate && st.FailureRate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertFailureRate,
				Agent:    st.Agent,
				Severity: "high",
				Message: fmt.Sprintf(
					"Agent %s failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d runs in last %dh)",
					st.Agent, st.FailureRate*100, a.cfg.FailureRateThreshold*100,
					st.Failures, st.Runs, snap.LookbackHours,
				),
				Details: map[string]any{
					"failure_rate": st.FailureRate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       st.Failures,
					"runs":         st.Runs,
				},
				Timestamp: now,
			})
		}

		if a.cfg.StaleAfterHours <= 0 || !slices.Contains(a.watch, st.Agent) {
			continue
		}
		staleAfter := time.Duration(a.cfg.StaleAfterHours) * time.Hour
		if st.LastSuccess != nil && now.Sub(*st.LastSuccess) <= staleAfter {
			continue
		}
		msg := fmt.Sprintf("Agent %s has no successful run in the last %dh", st.Agent, a.cfg.StaleAfterHours)
		details := map[string]any{"stale_after_hours": a.cfg.StaleAfterHours, "runs": st.Runs}
		if st.LastSuccess != nil {
			details["last_success_at"] = st.LastSuccess.Format(time.RFC3339)
		}
		alerts = append(alerts, Alert{
			Type:      AlertStaleAgent,
			Agent:     st.Agent,
			Severity:  "medium",
			Message:   msg,
			Details:   details,
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.TotalCostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Search cost $%.2f exceeds threshold $%.2f in last %dh",
				snap.TotalCostUSD, a.cfg.CostThresholdUSD, snap.LookbackHours,
			),
			Details: map[string]any{
				"cost_usd":      snap.TotalCostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"total_runs":    snap.TotalRuns,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("agent", string(alert.Agent)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
