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

	"github.com/kraigferns/feedback-intel/internal/monitoring"
	"github.com/kraigferns/feedback-intel/internal/schedule"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the feedback API, enrichment workers and scheduled import",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if env.Local != nil {
			env.Local.Run(ctx)
			if _, err := env.Local.Recover(ctx); err != nil {
				return err
			}
		}

		if cfg.Import.Schedule != "" {
			sched, err := schedule.New(cfg.Import.Schedule, env.Importer)
			if err != nil {
				return err
			}
			sched.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				sched.Stop(stopCtx)
			}()
		}

		collector := monitoring.NewCollector(env.Store, time.Duration(cfg.Monitoring.StalledAfterMins)*time.Minute)
		if cfg.Monitoring.CheckIntervalSecs > 0 {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		handler := buildRouter(env.Store, env.Intake, env.Importer, collector, cfg.Server.AllowedOrigins)
		return startServer(ctx, resolvePort(servePort, cfg.Server.Port), handler)
	},
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler until ctx is cancelled, then shuts down
// gracefully.
func startServer(ctx context.Context, port int, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
