package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/api"
	"github.com/sells-group/policy-tracker/internal/monitoring"
	"github.com/sells-group/policy-tracker/internal/scheduler"
)

var (
	servePort     int
	serveSchedule bool
	serveAlerts   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent trigger server",
	Long:  "Serves the bearer-protected agent endpoints, /health and /metrics. With --schedule the agents also run on the configured cron specs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initTracker(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if serveSchedule {
			sched, err := scheduler.New(ctx, env.Runner, scheduler.Specs(cfg.Schedule))
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()
		}

		if serveAlerts {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.NewServer(cfg.Server, env.Runner, env.Store, env.Metrics).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Bool("schedule", serveSchedule),
			zap.Bool("alerts", serveAlerts),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", false, "run agents on the configured cron specs")
	serveCmd.Flags().BoolVar(&serveAlerts, "alerts", false, "run periodic health checks and send webhook alerts")
	rootCmd.AddCommand(serveCmd)
}
