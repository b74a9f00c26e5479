package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"symptom-triage/internal/app"
	"symptom-triage/internal/platform/config"
	"symptom-triage/internal/platform/telemetry"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP triage service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if p, _ := cmd.Flags().GetString("port"); p != "" {
				cfg.Port = p
			}
			if p := rulesPath(cmd); p != "" {
				cfg.RulesFile = p
			}

			if _, err := telemetry.Init(telemetry.Config{
				DSN:         cfg.Sentry.DSN,
				Environment: cfg.Sentry.Environment,
				Release:     cfg.Sentry.Release,
				Debug:       cfg.Sentry.Debug,
			}); err != nil {
				return err
			}
			defer telemetry.Flush(2 * time.Second)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				telemetry.Capture(err)
				return err
			}
			defer a.Close()
			return a.Serve(ctx, ":"+cfg.Port, cfg.ShutdownTimeout)
		},
	}
	cmd.Flags().String("port", "", "Listen port (overrides PORT)")
	return cmd
}
