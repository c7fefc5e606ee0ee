package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	StoragePath    string
	StorageBaseURL string
	SnapshotDir    string

	CacheCapacity int
	CacheTTL      time.Duration
	ShareTTL      time.Duration
	SweepInterval time.Duration

	BatchWorkers      int
	BatchMaxRetries   int
	BatchDequeueDelay time.Duration
	BatchRetryBackoff time.Duration

	GeminiAPIKey     string
	GeminiModel      string
	GeminiBaseURL    string
	ProviderCacheTTL time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		StoragePath: getEnv("STORAGE_PATH", "./storage"),
		SnapshotDir: getEnv("CACHE_DIR", "./storage/cache"),

		CacheCapacity: getEnvInt("CACHE_CAPACITY", 100),
		CacheTTL:      time.Hour * time.Duration(getEnvInt("CACHE_TTL_HOURS", 24)),
		ShareTTL:      time.Hour * time.Duration(getEnvInt("SHARE_TTL_HOURS", 7*24)),
		SweepInterval: time.Minute * time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 60)),

		BatchWorkers:      getEnvInt("BATCH_WORKERS", 4),
		BatchMaxRetries:   getEnvInt("BATCH_MAX_RETRIES", 3),
		BatchDequeueDelay: time.Millisecond * time.Duration(getEnvInt("BATCH_DEQUEUE_DELAY_MS", 500)),
		BatchRetryBackoff: time.Millisecond * time.Duration(getEnvInt("BATCH_RETRY_BACKOFF_MS", 1000)),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ProviderCacheTTL: time.Minute * time.Duration(getEnvInt("PROVIDER_CACHE_TTL_MINUTES", 60)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	cfg.StorageBaseURL = getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", cfg.Port))
	if _, err := url.Parse(cfg.StorageBaseURL); err != nil {
		return nil, fmt.Errorf("STORAGE_BASE_URL is invalid: %w", err)
	}

	if cfg.CacheCapacity <= 0 {
		return nil, fmt.Errorf("CACHE_CAPACITY must be positive")
	}
	if cfg.BatchWorkers <= 0 {
		return nil, fmt.Errorf("BATCH_WORKERS must be positive")
	}
	if cfg.BatchMaxRetries < 0 {
		return nil, fmt.Errorf("BATCH_MAX_RETRIES must not be negative")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
