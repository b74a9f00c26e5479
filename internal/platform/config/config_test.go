package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptom-triage/internal/consultation"
	"symptom-triage/internal/platform/database"
)

var knownKeys = []string{
	"PORT", "SHUTDOWN_TIMEOUT", "TRIAGE_RULES_FILE", "REPORT_FONT_PATH",
	"DATABASE_URL", "SUPABASE_URL", "SUPABASE_KEY", "PROFILE_CACHE_TTL", "STORE_DRIVER", "SQLITE_PATH",
	"DB_CONNECT_ATTEMPTS", "DB_CONNECT_BACKOFF", "PERSIST_POLICY",
	"SESSION_CACHE", "SESSION_CACHE_SIZE", "SESSION_CACHE_TTL", "REDIS_URL",
	"LLM_PROVIDER", "LLM_TIMEOUT", "LLM_MAX_ATTEMPTS", "LLM_MAX_TOKENS", "LLM_TEMPERATURE",
	"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL", "DEEPSEEK_API_KEY",
	"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "GEMINI_API_KEY", "GEMINI_MODEL",
	"TELEGRAM_BOT_TOKEN", "DOCTOR_CHAT_ID",
	"SENTRY_DSN", "SENTRY_ENVIRONMENT", "SENTRY_RELEASE", "SENTRY_DEBUG",
}

// cleanEnv blanks every variable Load reads; blank counts as unset.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range knownKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, database.DriverSQLite, cfg.Store)
	assert.Equal(t, "triage.db", cfg.Database.DSN)
	assert.Equal(t, 10, cfg.Database.Attempts)
	assert.Equal(t, consultation.PersistAvailable, cfg.Persist)
	assert.Equal(t, CacheLRU, cfg.Cache.Driver)
	assert.Equal(t, 10000, cfg.Cache.Size)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.False(t, cfg.LLM.Enabled())
	assert.Equal(t, 800, cfg.Diagnosis.MaxTokens)
	assert.Zero(t, cfg.Telegram.DoctorChatID)
	assert.Equal(t, "development", cfg.Sentry.Environment)
}

func TestLoadPicksStoreFromURLs(t *testing.T) {
	cleanEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/triage?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, database.DriverPostgres, cfg.Store)
	assert.Equal(t, database.DriverPostgres, cfg.Database.Driver)

	cleanEnv(t)
	t.Setenv("SUPABASE_URL", "https://x.supabase.co")
	t.Setenv("SUPABASE_KEY", "key")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, StoreSupabase, cfg.Store)
	assert.Equal(t, 5*time.Minute, cfg.Supabase.ProfileTTL)
}

func TestLoadOverrides(t *testing.T) {
	cleanEnv(t)
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("PERSIST_POLICY", "strict")
	t.Setenv("SESSION_CACHE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SESSION_CACHE_TTL", "3600")
	t.Setenv("LLM_PROVIDER", "deepseek")
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("LLM_TEMPERATURE", "0.5")
	t.Setenv("DOCTOR_CHAT_ID", "-100123")
	t.Setenv("SENTRY_DEBUG", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, consultation.PersistStrict, cfg.Persist)
	assert.Equal(t, CacheRedis, cfg.Cache.Driver)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, 0.5, cfg.Diagnosis.Temperature)
	assert.Equal(t, int64(-100123), cfg.Telegram.DoctorChatID)
	assert.True(t, cfg.Sentry.Debug)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"STORE_DRIVER": "mongo"}},
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}},
		{"supabase without key", map[string]string{"STORE_DRIVER": "supabase", "SUPABASE_URL": "https://x"}},
		{"policy", map[string]string{"PERSIST_POLICY": "sometimes"}},
		{"cache driver", map[string]string{"SESSION_CACHE": "memcached"}},
		{"redis without url", map[string]string{"SESSION_CACHE": "redis"}},
		{"cache size", map[string]string{"SESSION_CACHE_SIZE": "-1"}},
		{"llm provider", map[string]string{"LLM_PROVIDER": "cohere"}},
		{"llm key", map[string]string{"LLM_PROVIDER": "anthropic"}},
		{"chat id", map[string]string{"DOCTOR_CHAT_ID": "doctor"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetters(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "42")
	t.Setenv("CFG_TEST_BAD_INT", "forty")
	t.Setenv("CFG_TEST_BOOL", "N")
	t.Setenv("CFG_TEST_DUR", "1m30s")
	t.Setenv("CFG_TEST_SPACES", "  value  ")

	assert.Equal(t, 42, GetInt("CFG_TEST_INT", 1))
	assert.Equal(t, 1, GetInt("CFG_TEST_BAD_INT", 1))
	assert.False(t, GetBool("CFG_TEST_BOOL", true))
	assert.True(t, GetBool("CFG_TEST_MISSING", true))
	assert.Equal(t, 90*time.Second, GetDuration("CFG_TEST_DUR", 0))
	assert.Equal(t, time.Second, GetDuration("CFG_TEST_MISSING", time.Second))
	assert.Equal(t, "value", Get("CFG_TEST_SPACES", ""))
	assert.Equal(t, 2.5, GetFloat("CFG_TEST_MISSING", 2.5))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CFG_TEST_FROM_FILE=hello\nCFG_TEST_PRESET=file\n"), 0o600))
	t.Setenv("CFG_TEST_PRESET", "env")
	t.Setenv("CFG_TEST_FROM_FILE", "")
	os.Unsetenv("CFG_TEST_FROM_FILE")

	require.NoError(t, LoadEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "hello", os.Getenv("CFG_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("CFG_TEST_PRESET"), "existing variables win")
}
