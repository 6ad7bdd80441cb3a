package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, time.Hour, cfg.JobTTL)
	assert.Equal(t, "optimized", cfg.TransformStrategy)
	assert.Contains(t, cfg.DBPath, "reely")
}

func TestLoad_TOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reely.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = 9999
max_retries = 5
poll_interval = "500ms"
job_ttl = "30m"
transform_strategy = "standard"
openai_api_key = "sk-from-file"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.JobTTL)
	assert.Equal(t, "standard", cfg.TransformStrategy)
	assert.Equal(t, "sk-from-file", cfg.OpenAIAPIKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REELY_PORT", "7070")
	t.Setenv("REELY_WORKERS", "4")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "sk-from-env", cfg.OpenAIAPIKey)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "reely.toml")
		require.NoError(t, os.WriteFile(path, []byte(`poll_interval = "often"`), 0o644))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("bad strategy", func(t *testing.T) {
		t.Setenv("REELY_TRANSFORM_STRATEGY", "turbo")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("/nonexistent/reely.toml")
		assert.Error(t, err)
	})
}
