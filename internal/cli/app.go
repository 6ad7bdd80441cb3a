package cli

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/muhammadegaa/reely/internal/adapter/llm"
	"github.com/muhammadegaa/reely/internal/adapter/media"
	"github.com/muhammadegaa/reely/internal/adapter/sqlite"
	"github.com/muhammadegaa/reely/internal/adapter/whisper"
	"github.com/muhammadegaa/reely/internal/adapter/ytdlp"
	"github.com/muhammadegaa/reely/internal/config"
	"github.com/muhammadegaa/reely/internal/domain"
	"github.com/muhammadegaa/reely/internal/hooks"
	"github.com/muhammadegaa/reely/internal/pipeline"
)

// app holds the assembled service graph.
type app struct {
	cfg   *config.Config
	log   *zap.SugaredLogger
	store *sqlite.Store
	svc   *domain.JobService
	orch  *pipeline.Orchestrator
}

// buildApp assembles the full dependency graph from configuration.
func buildApp(cfg *config.Config, log *zap.SugaredLogger) (*app, error) {
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "initialize database")
	}

	runner := media.NewRunner(log)
	prober := media.NewProber(runner, cfg.FFprobePath)
	engine := media.NewEngine(runner, prober, cfg.FFmpegPath, media.Strategy(cfg.TransformStrategy), log)
	downloader := ytdlp.New(runner, cfg.YtDlpPath, log)
	transcriber := whisper.New(cfg.WhisperBaseURL, cfg.OpenAIAPIKey, cfg.WhisperModel, engine, log)

	analyzerFor := func(provider string) (pipeline.HookAnalyzer, error) {
		key := cfg.OpenAIAPIKey
		model := cfg.OpenAIModel
		if provider == "anthropic" {
			key = cfg.AnthropicAPIKey
			model = cfg.AnthropicModel
		}
		client, err := llm.New(provider, key, model)
		if err != nil {
			return nil, err
		}
		return hooks.NewAnalyzer(client, log), nil
	}

	orch := pipeline.New(pipeline.Deps{
		Store:       store,
		Downloader:  downloader,
		Media:       engine,
		Transcriber: transcriber,
		AnalyzerFor: analyzerFor,
		Cache:       hooks.NewCache(),
		ScratchRoot: cfg.ScratchRoot,
		MaxRetries:  cfg.MaxRetries,
		Log:         log,
	})

	svc := domain.NewJobService(store, domain.AllowAllGate{})
	svc.SetCanceller(orch)

	return &app{
		cfg:   cfg,
		log:   log,
		store: store,
		svc:   svc,
		orch:  orch,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warnw("closing database failed", "error", err)
	}
}
