package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// GeminiConfig holds the inference backend configuration.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// RetryConfig bounds every remote call wrapper.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

// RenderConfig controls page rasterization and upload limits.
type RenderConfig struct {
	DPI             int
	MaxUploadMB     int64
	ScanConcurrency int // 0 = unlimited
}

// SessionConfig holds session-store TTLs and conversation window sizes.
type SessionConfig struct {
	SheetTTL    time.Duration
	SheetifyTTL time.Duration
	ProgressTTL time.Duration
	LinesMemory int
	NamesMemory int
}

// ArchiveConfig enables the optional S3 sheet archive.
type ArchiveConfig struct {
	Bucket   string
	Password string
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Gemini   GeminiConfig
	Retry    RetryConfig
	Render   RenderConfig
	Session  SessionConfig
	Archive  ArchiveConfig
	RedisURL string
	Port     string
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/sheetify.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_sheetify",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Gemini = GeminiConfig{
		APIKey: getEnv("GOOGLE_GENERATIVE_AI_API_KEY", ""),
		Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
	}

	cfg.Retry = RetryConfig{
		Attempts:  parseInt(getEnv("RETRY_ATTEMPTS", "3"), 3),
		BaseDelay: parseDuration(getEnv("RETRY_BASE_DELAY", "2s"), 2*time.Second),
	}

	cfg.Render = RenderConfig{
		DPI:             parseInt(getEnv("RENDER_DPI", "150"), 150),
		MaxUploadMB:     int64(parseInt(getEnv("MAX_UPLOAD_MB", "64"), 64)),
		ScanConcurrency: parseInt(getEnv("SCAN_CONCURRENCY", "0"), 0),
	}

	cfg.Session = SessionConfig{
		SheetTTL:    parseDuration(getEnv("SHEET_TTL", "5h"), 5*time.Hour),
		SheetifyTTL: parseDuration(getEnv("SHEETIFY_TTL", "24h"), 24*time.Hour),
		ProgressTTL: parseDuration(getEnv("PROGRESS_TTL", "5h"), 5*time.Hour),
		LinesMemory: parseInt(getEnv("LINES_MEMORY_LIMIT", "15"), 15),
		NamesMemory: parseInt(getEnv("NAMES_MEMORY_LIMIT", "100"), 100),
	}

	cfg.Archive = ArchiveConfig{
		Bucket:   getEnv("SHEET_ARCHIVE_BUCKET", ""),
		Password: getEnv("SHEET_ARCHIVE_PASSWORD", ""),
	}

	cfg.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379")
	cfg.Port = getEnv("PORT", "8080")

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
