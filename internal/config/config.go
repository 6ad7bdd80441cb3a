// Package config loads service configuration from a TOML file with
// environment variable overrides.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// Config holds application configuration.
type Config struct {
	Port         int           `toml:"port"`
	DBPath       string        `toml:"db_path"`
	ScratchRoot  string        `toml:"scratch_root"`
	PollInterval time.Duration `toml:"-"`
	MaxRetries   int           `toml:"max_retries"`
	Workers      int           `toml:"workers"`
	JobTTL       time.Duration `toml:"-"`

	// Raw duration strings from TOML; parsed into the fields above.
	PollIntervalRaw string `toml:"poll_interval"`
	JobTTLRaw       string `toml:"job_ttl"`

	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
	YtDlpPath   string `toml:"yt_dlp_path"`

	OpenAIAPIKey    string `toml:"openai_api_key"`
	AnthropicAPIKey string `toml:"anthropic_api_key"`

	WhisperBaseURL string `toml:"whisper_base_url"`
	WhisperModel   string `toml:"whisper_model"`
	OpenAIModel    string `toml:"openai_model"`
	AnthropicModel string `toml:"anthropic_model"`

	// "standard" or "optimized".
	TransformStrategy string `toml:"transform_strategy"`

	LogJSON bool `toml:"log_json"`
}

// DefaultDBPath returns the default database path using XDG_CACHE_HOME.
func DefaultDBPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "reely", "jobs.db")
}

func defaults() *Config {
	return &Config{
		Port:              8080,
		DBPath:            DefaultDBPath(),
		PollInterval:      2 * time.Second,
		MaxRetries:        3,
		Workers:           2,
		JobTTL:            time.Hour,
		TransformStrategy: "optimized",
	}
}

// Load builds the configuration from defaults, an optional TOML file at
// path, and REELY_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", path)
		}
	}

	if cfg.PollIntervalRaw != "" {
		d, err := time.ParseDuration(cfg.PollIntervalRaw)
		if err != nil {
			return nil, errors.Wrap(err, "parse poll_interval")
		}
		cfg.PollInterval = d
	}
	if cfg.JobTTLRaw != "" {
		d, err := time.ParseDuration(cfg.JobTTLRaw)
		if err != nil {
			return nil, errors.Wrap(err, "parse job_ttl")
		}
		cfg.JobTTL = d
	}

	applyEnv(cfg)

	if cfg.Workers < 1 {
		return nil, errors.New("workers must be at least 1")
	}
	if cfg.TransformStrategy != "standard" && cfg.TransformStrategy != "optimized" {
		return nil, errors.Newf("unknown transform_strategy %q", cfg.TransformStrategy)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("REELY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("REELY_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("REELY_SCRATCH_ROOT"); v != "" {
		cfg.ScratchRoot = v
	}
	if v := os.Getenv("REELY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("REELY_TRANSFORM_STRATEGY"); v != "" {
		cfg.TransformStrategy = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("REELY_WHISPER_BASE_URL"); v != "" {
		cfg.WhisperBaseURL = v
	}
}
