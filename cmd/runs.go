package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect agent run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agent runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := runsFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		logs, err := st.ListAgentRunLogs(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(logs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, logs)
		return nil
	},
}

func runsFilterFromFlags(cmd *cobra.Command) (store.RunLogFilter, error) {
	agentName, _ := cmd.Flags().GetString("agent")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := store.RunLogFilter{Limit: limit}
	if agentName != "" {
		agent, ok := model.ParseAgentType(agentName)
		if !ok {
			return filter, eris.Errorf("unknown agent %q", agentName)
		}
		filter.Agent = agent
	}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}
	return filter, nil
}

func init() {
	runsListCmd.Flags().String("agent", "", "filter by agent (deteccion, monitoreo, recap, casos)")
	runsListCmd.Flags().Duration("since", 0, "only runs started within this window (e.g. 24h, 168h)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of run logs to w.
func formatRunsList(out io.Writer, logs []model.AgentRunLog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tAGENT\tTRIGGER\tRESULT\tFOUND\tUPDATED\tSTARTED\tDURATION\tCOST\tFIRST_ERROR")
	_, _ = fmt.Fprintln(w, "--\t-----\t-------\t------\t-----\t-------\t-------\t--------\t----\t-----------")

	for _, l := range logs {
		result := "ok"
		if !l.Success {
			result = "failed"
		}
		firstErr := ""
		if len(l.Errors) > 0 {
			firstErr = truncate(strings.ReplaceAll(l.Errors[0], "\n", " "), 60)
		}
		dur := (time.Duration(l.DurationMs) * time.Millisecond).Round(100 * time.Millisecond)

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t$%.4f\t%s\n",
			truncateID(l.ID),
			l.Agent,
			l.Trigger,
			result,
			l.ItemsFound,
			l.ItemsUpdated,
			l.StartedAt.Format("2006-01-02 15:04"),
			dur,
			l.CostUSD,
			firstErr,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
