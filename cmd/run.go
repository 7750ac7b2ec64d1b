package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/model"
)

var runTrigger string

var runCmd = &cobra.Command{
	Use:   "run <agent>",
	Short: "Run one agent now",
	Long:  "Runs deteccion, monitoreo, recap or casos once (English names are accepted) and prints the run result as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, ok := model.ParseAgentType(args[0])
		if !ok {
			return eris.Errorf("unknown agent %q", args[0])
		}

		ctx := cmd.Context()
		env, err := initTracker(ctx, "agents")
		if err != nil {
			return err
		}
		defer env.Close()

		res, runErr := env.Runner.Run(ctx, agent, model.ParseTrigger(runTrigger))
		if res != nil {
			if err := writeResult(os.Stdout, res); err != nil {
				return err
			}
		}
		if runErr != nil {
			return eris.Wrapf(runErr, "run %s", agent)
		}

		zap.L().Info("run complete",
			zap.String("agent", string(agent)),
			zap.Bool("success", res.Success),
			zap.Int("items_found", res.ItemsFound),
			zap.Int("items_updated", res.ItemsUpdated),
		)
		return nil
	},
}

func writeResult(w io.Writer, res *model.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(res), "write result")
}

func init() {
	runCmd.Flags().StringVar(&runTrigger, "trigger", string(model.TriggerManual), "trigger recorded in the run log (manual or cron)")
	rootCmd.AddCommand(runCmd)
}
