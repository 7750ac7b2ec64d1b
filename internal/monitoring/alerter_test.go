package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/model"
)

func ptrTime(t time.Time) *time.Time { return &t }

// healthySnapshot has every daily agent succeeding recently.
func healthySnapshot() *Snapshot {
	recent := ptrTime(testNow.Add(-2 * time.Hour))
	return &Snapshot{
		Agents: []AgentStats{
			{Agent: model.AgentDetection, Runs: 10, Failures: 1, FailureRate: 0.1, LastSuccess: recent},
			{Agent: model.AgentMonitor, Runs: 10, LastSuccess: recent},
			{Agent: model.AgentRecap},
			{Agent: model.AgentCases, Runs: 5, LastSuccess: recent},
		},
		TotalRuns:     25,
		TotalCostUSD:  3.5,
		LookbackHours: 72,
		CollectedAt:   testNow,
	}
}

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		FailureRateThreshold: 0.5,
		StaleAfterHours:      48,
		CostThresholdUSD:     100,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	alerts := NewAlerter(testMonitoringConfig()).Evaluate(healthySnapshot())
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	snap := healthySnapshot()
	det := snap.Agent(model.AgentDetection)
	det.Runs, det.Failures, det.FailureRate = 4, 3, 0.75

	alerts := NewAlerter(testMonitoringConfig()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.Equal(t, model.AgentDetection, alerts[0].Agent)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "75.0%")
	assert.Equal(t, testNow, alerts[0].Timestamp)
}

func TestAlerter_Evaluate_MinimumRunsRequired(t *testing.T) {
	snap := healthySnapshot()
	det := snap.Agent(model.AgentDetection)
	det.Runs, det.Failures, det.FailureRate = 2, 2, 1.0

	alerts := NewAlerter(testMonitoringConfig()).Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_StaleAgent(t *testing.T) {
	snap := healthySnapshot()
	snap.Agent(model.AgentMonitor).LastSuccess = ptrTime(testNow.Add(-49 * time.Hour))
	snap.Agent(model.AgentCases).LastSuccess = nil

	alerts := NewAlerter(testMonitoringConfig()).Evaluate(snap)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertStaleAgent, alerts[0].Type)
	assert.Equal(t, model.AgentMonitor, alerts[0].Agent)
	assert.Contains(t, alerts[0].Details, "last_success_at")
	assert.Equal(t, model.AgentCases, alerts[1].Agent)
	assert.NotContains(t, alerts[1].Details, "last_success_at")
	assert.Contains(t, alerts[1].Message, "48h")
}

func TestAlerter_Evaluate_RecapNeverStale(t *testing.T) {
	snap := healthySnapshot()
	assert.Nil(t, snap.Agent(model.AgentRecap).LastSuccess)
	for _, a := range NewAlerter(testMonitoringConfig()).Evaluate(snap) {
		assert.NotEqual(t, model.AgentRecap, a.Agent)
	}
}

func TestAlerter_Evaluate_StaleDisabled(t *testing.T) {
	snap := healthySnapshot()
	snap.Agent(model.AgentCases).LastSuccess = nil
	cfg := testMonitoringConfig()
	cfg.StaleAfterHours = 0

	assert.Empty(t, NewAlerter(cfg).Evaluate(snap))
}

func TestAlerter_Evaluate_CostOverrun(t *testing.T) {
	snap := healthySnapshot()
	snap.TotalCostUSD = 250

	alerts := NewAlerter(testMonitoringConfig()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCostOverrun, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "$250.00")

	cfg := testMonitoringConfig()
	cfg.CostThresholdUSD = 0
	assert.Empty(t, NewAlerter(cfg).Evaluate(snap))
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertFailureRate, Agent: model.AgentDetection, Severity: "high", Message: "uno"},
		{Type: AlertStaleAgent, Agent: model.AgentCases, Severity: "medium", Message: "dos"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}}))
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertCostOverrun}}))
}
