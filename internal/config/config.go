package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
//
// Environment Variables:
// HTTP:
// - HTTP_ADDR: listen address (default: :8080)
// - UI_ENABLED: serve the dashboard bundle (default: true)
// - UI_STATIC_DIR: dashboard bundle directory (default: /app/web)
// - CORS_ALLOWED_ORIGINS: comma separated origins allowed to call the API
// - MAX_UPLOAD_MB: largest accepted upload request in MiB (default: 2048)
//
// Store:
// - STORE_DRIVER: sqlite or postgres (default: sqlite)
// - DATA_DIR: directory of the sqlite database (default: /app/data)
// - POSTGRES_DSN: connection string, required when STORE_DRIVER=postgres
//
// Workflow webhooks:
// - WEBHOOK_BASE_URL: workflow backend base URL (required)
// - IMPORT_WEBHOOK_PATH: import/regeneration webhook path
// - PUBLISH_WEBHOOK_PATH: portal publish webhook path
// - TRIGGER_TIMEOUT: client-side timeout of trigger calls (default: 25m)
//
// Pipeline:
// - STALE_AFTER: outputless jobs older than this are reported failed (default: 30m)
// - POLL_SCHEDULE: activity poll schedule (default: @every 5s)
// - NOTICE_TTL: how long a new-activity notice stays visible (default: 7s)
// - IMPORT_WORKERS: concurrent import workers (default: 1)
//
// System:
// - LOG_LEVEL: debug, info, warn, error (default: info)
// - LOG_FILE: optional log file, mirrored to stdout
// - TZ: Timezone (default: UTC)
type Config struct {
	HTTP     HTTPConfig     `json:"http"`
	Store    StoreConfig    `json:"store"`
	Webhook  WebhookConfig  `json:"webhook"`
	Pipeline PipelineConfig `json:"pipeline"`
	System   SystemConfig   `json:"system"`
}

type HTTPConfig struct {
	Addr           string   `json:"addr"`
	UIEnabled      bool     `json:"ui_enabled"`
	UIStaticDir    string   `json:"ui_static_dir"`
	CORSOrigins    []string `json:"cors_origins,omitempty"`
	MaxUploadBytes int64    `json:"max_upload_bytes"`
}

type StoreConfig struct {
	Driver      string `json:"driver"`
	DataDir     string `json:"data_dir"`
	PostgresDSN string `json:"-"`
}

// WebhookConfig holds the workflow backend endpoints.
type WebhookConfig struct {
	BaseURL    string        `json:"base_url"`
	ImportURL  string        `json:"import_url"`
	PublishURL string        `json:"publish_url"`
	Timeout    time.Duration `json:"timeout"`
}

type PipelineConfig struct {
	StaleAfter    time.Duration `json:"stale_after"`
	PollSchedule  string        `json:"poll_schedule"`
	NoticeTTL     time.Duration `json:"notice_ttl"`
	ImportWorkers int           `json:"import_workers"`
}

type SystemConfig struct {
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
	TZ       string `json:"tz"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DBPath is the sqlite database file inside the data directory.
func (c Config) DBPath() string {
	return filepath.Join(c.Store.DataDir, "pipeline.db")
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	baseURL := strings.TrimRight(getEnvString("WEBHOOK_BASE_URL", ""), "/")
	config := &Config{
		HTTP: HTTPConfig{
			Addr:        getEnvString("HTTP_ADDR", ":8080"),
			UIEnabled:   getEnvBool("UI_ENABLED", true),
			UIStaticDir: getEnvString("UI_STATIC_DIR", "/app/web"),
			CORSOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),

			MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 2048)) << 20,
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(getEnvString("STORE_DRIVER", DriverSQLite)),
			DataDir:     getEnvString("DATA_DIR", "/app/data"),
			PostgresDSN: getEnvString("POSTGRES_DSN", ""),
		},
		Webhook: WebhookConfig{
			BaseURL:    baseURL,
			ImportURL:  joinURL(baseURL, getEnvString("IMPORT_WEBHOOK_PATH", "/webhook/import")),
			PublishURL: joinURL(baseURL, getEnvString("PUBLISH_WEBHOOK_PATH", "/webhook/portal-publish")),
			Timeout:    getEnvDuration("TRIGGER_TIMEOUT", 25*time.Minute),
		},
		Pipeline: PipelineConfig{
			StaleAfter:    getEnvDuration("STALE_AFTER", 30*time.Minute),
			PollSchedule:  getEnvString("POLL_SCHEDULE", "@every 5s"),
			NoticeTTL:     getEnvDuration("NOTICE_TTL", 7*time.Second),
			ImportWorkers: getEnvInt("IMPORT_WORKERS", 1),
		},
		System: SystemConfig{
			LogLevel: getEnvString("LOG_LEVEL", "info"),
			LogFile:  getEnvString("LOG_FILE", ""),
			TZ:       getEnvString("TZ", "UTC"),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Store.DataDir) == "" {
			return fmt.Errorf("DATA_DIR is required for the sqlite store")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Webhook.ImportURL == "" || c.Webhook.PublishURL == "" {
		return fmt.Errorf("WEBHOOK_BASE_URL is required")
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if c.Webhook.Timeout <= 0 {
		return fmt.Errorf("TRIGGER_TIMEOUT must be positive")
	}
	if c.Pipeline.StaleAfter <= 0 {
		return fmt.Errorf("STALE_AFTER must be positive")
	}
	if _, err := cron.ParseStandard(c.Pipeline.PollSchedule); err != nil {
		return fmt.Errorf("invalid POLL_SCHEDULE: %w", err)
	}
	return nil
}

func joinURL(base, path string) string {
	if base == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var ret []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, part)
		}
	}
	return ret
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
