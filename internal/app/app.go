// Package app assembles the triage service from configuration.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"symptom-triage/internal/consultation"
	"symptom-triage/internal/diagnosis"
	"symptom-triage/internal/llm"
	"symptom-triage/internal/platform/config"
	"symptom-triage/internal/platform/database"
	"symptom-triage/internal/platform/supabase"
	"symptom-triage/internal/platform/telegram"
	"symptom-triage/internal/platform/telemetry"
	"symptom-triage/internal/report"
	"symptom-triage/internal/sessioncache"
	"symptom-triage/internal/triage"
)

// App holds the wired service and the resources it owns.
type App struct {
	Engine  *triage.Engine
	Service consultation.Service

	handler http.Handler
	health  func(ctx context.Context) error
	closers []func() error
}

// LoadEngine builds the engine from the rules file, or from the embedded
// tables when path is empty.
func LoadEngine(path string) (*triage.Engine, error) {
	rules := triage.DefaultRules()
	if path != "" {
		var err error
		if rules, err = triage.LoadRules(path); err != nil {
			return nil, err
		}
		log.Printf("Loaded triage rules %s from %s", rules.Version, path)
	}
	return triage.NewEngine(rules)
}

// New connects the configured store, cache, LLM and delivery channels.
// Close releases whatever New opened, including on a failed New.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	if err := a.build(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	engine, err := LoadEngine(cfg.RulesFile)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	a.Engine = engine

	repo, profiles, err := a.openStore(ctx, cfg)
	if err != nil {
		return err
	}

	cache, err := a.openCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}

	var generator consultation.DiagnosisGenerator
	if cfg.LLM.Enabled() {
		provider, err := llm.New(ctx, cfg.LLM)
		if err != nil {
			return err
		}
		generator = diagnosis.NewLLMGenerator(provider, cfg.Diagnosis)
		log.Printf("Diagnosis summaries use %s", provider.ModelID())
	}

	var tg report.TelegramClient
	if cfg.Telegram.Token != "" {
		tg = telegram.NewClient(cfg.Telegram.Token)
	}
	if cfg.Telegram.DoctorChatID == 0 {
		log.Println("Warning: DOCTOR_CHAT_ID is not set. Reports and alerts will not be sent.")
	}
	var fonts []string
	if cfg.FontPath != "" {
		fonts = []string{cfg.FontPath}
	}
	reportSvc := report.NewService(tg, cfg.Telegram.DoctorChatID, fonts...)

	a.Service = consultation.NewService(engine, repo, consultation.Options{
		Profiles:    profiles,
		Cache:       cache,
		Generator:   generator,
		Reports:     reportSvc,
		Notifier:    reportSvc,
		Policy:      cfg.Persist,
		ReportError: telemetry.Capture,
	})
	a.handler = a.router()
	return nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (consultation.Repository, consultation.ProfileProvider, error) {
	switch cfg.Store {
	case database.DriverPostgres, database.DriverSQLite:
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := database.Migrate(ctx, cfg.Database, db); err != nil {
			return nil, nil, err
		}
		log.Printf("Connected to %s database", cfg.Store)
		a.health = db.PingContext
		return consultation.NewRepository(db), consultation.NewProfileStore(db), nil

	case config.StoreSupabase:
		st, err := supabase.New(cfg.Supabase)
		if err != nil {
			return nil, nil, err
		}
		log.Println("Using supabase session store")
		a.health = st.Check
		return st, st, nil

	case config.StoreMemory:
		log.Println("Warning: using the in-memory session store. Sessions are lost on restart.")
		repo := consultation.NewMemoryRepository()
		return repo, repo, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func (a *App) openCache(ctx context.Context, cfg config.CacheConfig) (consultation.SessionCache, error) {
	switch cfg.Driver {
	case config.CacheRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		cache := sessioncache.NewRedis[*consultation.Session](redis.NewClient(opts), cfg.TTL)
		a.closers = append(a.closers, cache.Close)
		if err := cache.Ping(ctx); err != nil {
			return nil, err
		}
		return cache, nil
	case config.CacheNone:
		return nil, nil
	}
	return sessioncache.NewLRU[*consultation.Session](cfg.Size, cfg.TTL), nil
}

func (a *App) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(telemetry.Middleware)

	// CORS for frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-User-Id")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", a.healthz)
	r.Route("/api", func(r chi.Router) {
		consultation.RegisterRoutes(r, consultation.NewHandler(a.Service))
	})
	return r
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	status, body := http.StatusOK, map[string]string{"status": "ok"}
	if a.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.health(ctx); err != nil {
			log.Printf("Health check failed: %v", err)
			status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Handler is the HTTP entry point.
func (a *App) Handler() http.Handler { return a.handler }

// Serve listens on addr until ctx is done, then drains in-flight requests
// for up to shutdownTimeout.
func (a *App) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s...", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Println("Server gracefully stopped")
	return nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
