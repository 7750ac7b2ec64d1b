package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/policy-tracker/internal/monitoring"
)

var (
	healthJSON   bool
	healthNotify bool
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Summarize recent agent runs and evaluate alert thresholds",
	Long:  "Collects per-agent run statistics over monitoring.lookback_hours and evaluates the alert rules. Exits non-zero when any alert fires.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := monitoring.NewCollector(st).Collect(ctx, cfg.Monitoring.LookbackHours)
		if err != nil {
			return err
		}
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		if healthNotify {
			alerter.SendAlerts(ctx, alerts)
		}

		if healthJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(struct {
				*monitoring.Snapshot
				Alerts []monitoring.Alert `json:"alerts"`
			}{snap, alerts}); err != nil {
				return eris.Wrap(err, "health: encode")
			}
		} else {
			formatHealth(os.Stdout, snap, alerts)
		}

		if len(alerts) > 0 {
			return eris.Errorf("health: %d alert(s) triggered", len(alerts))
		}
		return nil
	},
}

func formatHealth(out io.Writer, snap *monitoring.Snapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\tlast %dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Runs:\t%d (%d failed)\n", snap.TotalRuns, snap.TotalFailures)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.2f\n\n", snap.TotalCostUSD)

	_, _ = fmt.Fprintln(w, "AGENT\tRUNS\tFAILED\tFAIL_RATE\tLAST_SUCCESS")
	for _, a := range snap.Agents {
		last := "never"
		if a.LastSuccess != nil {
			last = a.LastSuccess.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.0f%%\t%s\n", a.Agent, a.Runs, a.Failures, a.FailureRate*100, last)
	}

	if len(alerts) > 0 {
		_, _ = fmt.Fprintln(w)
		for _, a := range alerts {
			_, _ = fmt.Fprintf(w, "ALERT [%s]\t%s\n", a.Severity, a.Message)
		}
	}
	_ = w.Flush()
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "print the snapshot as JSON")
	healthCmd.Flags().BoolVar(&healthNotify, "notify", false, "send triggered alerts to monitoring.webhook_url")
	rootCmd.AddCommand(healthCmd)
}
