// Package cli wires the service together behind a cobra command tree.
package cli

import (
	"os/exec"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muhammadegaa/reely/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "reely",
	Short:         "YouTube video trimming and hook detection service",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	rootCmd.AddCommand(serveCmd, runCmd)
}

// Execute runs the CLI.
func Execute() error {
	// A .env file is optional; absence is not an error.
	_ = godotenv.Load()
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newLogger(jsonOutput bool) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if jsonOutput {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// checkPrerequisites reports availability of external tools and API keys.
func checkPrerequisites(cfg *config.Config) map[string]bool {
	lookup := func(configured, fallback string) bool {
		name := configured
		if name == "" {
			name = fallback
		}
		_, err := exec.LookPath(name)
		return err == nil
	}
	return map[string]bool{
		"ffmpeg":            lookup(cfg.FFmpegPath, "ffmpeg"),
		"ffprobe":           lookup(cfg.FFprobePath, "ffprobe"),
		"yt_dlp":            lookup(cfg.YtDlpPath, "yt-dlp"),
		"openai_api_key":    cfg.OpenAIAPIKey != "",
		"anthropic_api_key": cfg.AnthropicAPIKey != "",
	}
}
