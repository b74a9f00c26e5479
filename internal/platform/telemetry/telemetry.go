// Package telemetry reports errors and panics to Sentry.
package telemetry

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
)

type Config struct {
	DSN         string
	Environment string
	Release     string
	Debug       bool
	// Transport overrides event delivery. Nil uses the SDK default.
	Transport sentry.Transport
}

// Init binds a Sentry client to the global hub. Without a DSN telemetry
// stays off and Init reports false.
func Init(cfg Config) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
		Transport:        cfg.Transport,
	})
	if err != nil {
		return false, fmt.Errorf("sentry init: %w", err)
	}
	log.Printf("Sentry error reporting enabled (%s)", cfg.Environment)
	return true, nil
}

// Capture sends err to Sentry. It is a no-op before Init.
func Capture(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// Flush waits for queued events to be delivered.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// Middleware reports panics and re-raises them for the outer recoverer.
func Middleware(next http.Handler) http.Handler {
	return sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(next)
}
