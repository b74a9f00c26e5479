// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"symptom-triage/internal/consultation"
	"symptom-triage/internal/diagnosis"
	"symptom-triage/internal/llm"
	"symptom-triage/internal/platform/database"
	"symptom-triage/internal/platform/supabase"
	"symptom-triage/internal/sessioncache"
)

const (
	StoreMemory   = "memory"
	StoreSupabase = "supabase"

	CacheLRU   = "lru"
	CacheRedis = "redis"
	CacheNone  = "none"
)

type Config struct {
	Port            string
	ShutdownTimeout time.Duration

	// Store is postgres, sqlite, supabase or memory.
	Store    string
	Database database.Config
	Supabase supabase.Config
	Persist  consultation.PersistPolicy

	Cache CacheConfig

	LLM       llm.Config
	Diagnosis diagnosis.LLMConfig

	Telegram TelegramConfig
	FontPath string

	Sentry SentryConfig

	// RulesFile replaces the embedded rule tables when set.
	RulesFile string
}

type CacheConfig struct {
	Driver   string
	Size     int
	TTL      time.Duration
	RedisURL string
}

type TelegramConfig struct {
	Token        string
	DoctorChatID int64
}

type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	Debug       bool
}

// LoadEnv loads .env style files into the environment without overriding
// variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            Get("PORT", "8080"),
		ShutdownTimeout: GetDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		RulesFile:       Get("TRIAGE_RULES_FILE", ""),
		FontPath:        Get("REPORT_FONT_PATH", ""),
	}

	databaseURL := Get("DATABASE_URL", "")
	supabaseURL := Get("SUPABASE_URL", "")
	cfg.Store = strings.ToLower(Get("STORE_DRIVER", defaultStore(databaseURL, supabaseURL)))

	cfg.Database = database.Config{
		Attempts: GetInt("DB_CONNECT_ATTEMPTS", 10),
		Backoff:  GetDuration("DB_CONNECT_BACKOFF", 2*time.Second),
	}
	switch cfg.Store {
	case database.DriverPostgres:
		if databaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres store")
		}
		cfg.Database.Driver, cfg.Database.DSN = database.DriverPostgres, databaseURL
	case database.DriverSQLite:
		cfg.Database.Driver, cfg.Database.DSN = database.DriverSQLite, Get("SQLITE_PATH", "triage.db")
	case StoreSupabase:
		cfg.Supabase = supabase.Config{
			URL:        supabaseURL,
			APIKey:     Get("SUPABASE_KEY", ""),
			ProfileTTL: GetDuration("PROFILE_CACHE_TTL", 5*time.Minute),
		}
		if cfg.Supabase.URL == "" || cfg.Supabase.APIKey == "" {
			return nil, errors.New("SUPABASE_URL and SUPABASE_KEY are required for the supabase store")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store)
	}

	policy, err := consultation.ParsePersistPolicy(Get("PERSIST_POLICY", ""))
	if err != nil {
		return nil, err
	}
	cfg.Persist = policy

	cfg.Cache = CacheConfig{
		Driver:   strings.ToLower(Get("SESSION_CACHE", CacheLRU)),
		Size:     GetInt("SESSION_CACHE_SIZE", sessioncache.DefaultSize),
		TTL:      GetDuration("SESSION_CACHE_TTL", sessioncache.DefaultTTL),
		RedisURL: Get("REDIS_URL", ""),
	}
	switch cfg.Cache.Driver {
	case CacheLRU, CacheNone:
	case CacheRedis:
		if cfg.Cache.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required for the redis session cache")
		}
	default:
		return nil, fmt.Errorf("unknown SESSION_CACHE %q", cfg.Cache.Driver)
	}
	if cfg.Cache.Size <= 0 || cfg.Cache.TTL <= 0 {
		return nil, errors.New("SESSION_CACHE_SIZE and SESSION_CACHE_TTL must be positive")
	}

	if cfg.LLM, err = loadLLM(); err != nil {
		return nil, err
	}
	cfg.Diagnosis = diagnosis.DefaultLLMConfig()
	cfg.Diagnosis.MaxTokens = GetInt("LLM_MAX_TOKENS", cfg.Diagnosis.MaxTokens)
	cfg.Diagnosis.Temperature = GetFloat("LLM_TEMPERATURE", cfg.Diagnosis.Temperature)

	cfg.Telegram.Token = Get("TELEGRAM_BOT_TOKEN", "")
	if raw := Get("DOCTOR_CHAT_ID", ""); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("DOCTOR_CHAT_ID: %w", err)
		}
		cfg.Telegram.DoctorChatID = id
	}

	cfg.Sentry = SentryConfig{
		DSN:         Get("SENTRY_DSN", ""),
		Environment: Get("SENTRY_ENVIRONMENT", "development"),
		Release:     Get("SENTRY_RELEASE", ""),
		Debug:       GetBool("SENTRY_DEBUG", false),
	}
	return cfg, nil
}

func defaultStore(databaseURL, supabaseURL string) string {
	switch {
	case databaseURL != "":
		return database.DriverPostgres
	case supabaseURL != "":
		return StoreSupabase
	}
	return database.DriverSQLite
}

func loadLLM() (llm.Config, error) {
	c := llm.DefaultConfig()
	c.Provider = strings.ToLower(Get("LLM_PROVIDER", ""))
	c.Timeout = GetDuration("LLM_TIMEOUT", c.Timeout)
	c.Retry.MaxAttempts = GetInt("LLM_MAX_ATTEMPTS", c.Retry.MaxAttempts)

	c.OpenAI.APIKey = Get("OPENAI_API_KEY", "")
	c.OpenAI.Model = Get("OPENAI_MODEL", c.OpenAI.Model)
	c.OpenAI.BaseURL = Get("OPENAI_BASE_URL", "")
	c.Anthropic.APIKey = Get("ANTHROPIC_API_KEY", "")
	c.Anthropic.Model = Get("ANTHROPIC_MODEL", c.Anthropic.Model)
	c.Gemini.APIKey = Get("GEMINI_API_KEY", "")
	c.Gemini.Model = Get("GEMINI_MODEL", c.Gemini.Model)

	switch c.Provider {
	case "":
	case "deepseek":
		c.OpenAI.APIKey = Get("DEEPSEEK_API_KEY", c.OpenAI.APIKey)
		if c.OpenAI.APIKey == "" {
			return c, errors.New("DEEPSEEK_API_KEY is required for the deepseek provider")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return c, errors.New("OPENAI_API_KEY is required for the openai provider")
		}
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return c, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return c, errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
	case "mock":
	default:
		return c, fmt.Errorf("unknown LLM_PROVIDER %q", c.Provider)
	}
	return c, nil
}

// Get retrieves an environment variable with a fallback value
func Get(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

// GetInt retrieves an integer environment variable with a fallback value
func GetInt(key string, fallback int) int {
	if n, err := strconv.Atoi(Get(key, "")); err == nil {
		return n
	}
	return fallback
}

func GetFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(Get(key, ""), 64); err == nil {
		return f
	}
	return fallback
}

// GetBool retrieves a boolean environment variable with a fallback value
func GetBool(key string, fallback bool) bool {
	switch strings.ToLower(Get(key, "")) {
	case "true", "1", "yes", "y":
		return true
	case "false", "0", "no", "n":
		return false
	}
	return fallback
}

// GetDuration accepts Go durations ("90s") and plain seconds ("90").
func GetDuration(key string, fallback time.Duration) time.Duration {
	raw := Get(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
