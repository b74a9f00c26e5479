package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"symptom-triage/internal/app"
	"symptom-triage/internal/platform/config"
	"symptom-triage/internal/platform/telemetry"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Printf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if _, err := telemetry.Init(telemetry.Config{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		Debug:       cfg.Sentry.Debug,
	}); err != nil {
		log.Printf("Failed to init error reporting: %v", err)
	}
	defer telemetry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		telemetry.Capture(err)
		telemetry.Flush(2 * time.Second)
		log.Fatalf("Startup failed: %v", err)
	}
	defer a.Close()

	if err := a.Serve(ctx, ":"+cfg.Port, cfg.ShutdownTimeout); err != nil {
		log.Printf("Server error: %v", err)
	}
}
