package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	t.Setenv("WEBHOOK_BASE_URL", "https://flows.example.test/")
	t.Setenv("DATA_DIR", "")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "/app/web", cfg.HTTP.UIStaticDir)
	assert.True(t, cfg.HTTP.UIEnabled)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, filepath.Join("/app/data", "pipeline.db"), cfg.DBPath())
	assert.Equal(t, "https://flows.example.test/webhook/import", cfg.Webhook.ImportURL)
	assert.Equal(t, "https://flows.example.test/webhook/portal-publish", cfg.Webhook.PublishURL)
	assert.Equal(t, 25*time.Minute, cfg.Webhook.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.StaleAfter)
	assert.Equal(t, "@every 5s", cfg.Pipeline.PollSchedule)
	assert.Equal(t, 7*time.Second, cfg.Pipeline.NoticeTTL)
	assert.Equal(t, 1, cfg.Pipeline.ImportWorkers)
	assert.Equal(t, int64(2048)<<20, cfg.HTTP.MaxUploadBytes)
}

func TestNewFromEnv_Overrides(t *testing.T) {
	t.Setenv("WEBHOOK_BASE_URL", "https://flows.example.test")
	t.Setenv("IMPORT_WEBHOOK_PATH", "webhook/ed91")
	t.Setenv("DATA_DIR", "/tmp/console-data")
	t.Setenv("TRIGGER_TIMEOUT", "90")
	t.Setenv("STALE_AFTER", "45m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173, ,https://console.test")
	t.Setenv("MAX_UPLOAD_MB", "64")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://localhost:5173", "https://console.test"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, int64(64)<<20, cfg.HTTP.MaxUploadBytes)

	assert.Equal(t, "https://flows.example.test/webhook/ed91", cfg.Webhook.ImportURL)
	assert.Equal(t, filepath.Join("/tmp/console-data", "pipeline.db"), cfg.DBPath())
	assert.Equal(t, 90*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, 45*time.Minute, cfg.Pipeline.StaleAfter)
}

func TestNewFromEnv_Validation(t *testing.T) {
	t.Run("webhook base required", func(t *testing.T) {
		t.Setenv("WEBHOOK_BASE_URL", "")
		_, err := NewFromEnv()
		require.Error(t, err)
	})

	t.Run("postgres needs dsn", func(t *testing.T) {
		t.Setenv("WEBHOOK_BASE_URL", "https://flows.example.test")
		t.Setenv("STORE_DRIVER", "postgres")
		t.Setenv("POSTGRES_DSN", "")
		_, err := NewFromEnv()
		require.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("WEBHOOK_BASE_URL", "https://flows.example.test")
		t.Setenv("STORE_DRIVER", "mongo")
		_, err := NewFromEnv()
		require.Error(t, err)
	})

	t.Run("bad poll schedule", func(t *testing.T) {
		t.Setenv("WEBHOOK_BASE_URL", "https://flows.example.test")
		t.Setenv("POLL_SCHEDULE", "every now and then")
		_, err := NewFromEnv()
		require.Error(t, err)
	})
}
