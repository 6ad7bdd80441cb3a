package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpAdapter "github.com/muhammadegaa/reely/internal/adapter/http"
	"github.com/muhammadegaa/reely/internal/config"
	"github.com/muhammadegaa/reely/internal/worker"
)

const reapInterval = 5 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, worker, and reaper",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg.LogJSON)
		if err != nil {
			return err
		}
		defer log.Sync()

		return serve(cfg, log)
	},
}

func serve(cfg *config.Config, log *zap.SugaredLogger) error {
	app, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	log.Infow("starting reely", "port", cfg.Port, "db", cfg.DBPath, "workers", cfg.Workers)
	for name, ok := range checkPrerequisites(cfg) {
		if !ok {
			log.Warnw("prerequisite missing", "name", name)
		}
	}

	// Jobs stranded mid-pipeline by a previous crash go back to the queue.
	if recovered, err := app.store.RecoverStale(context.Background()); err != nil {
		log.Warnw("stale job recovery failed", "error", err)
	} else if recovered > 0 {
		log.Infow("recovered stale jobs", "count", recovered)
	}

	w := worker.New(app.store, app.orch, cfg.PollInterval, cfg.Workers, log)
	reaper := worker.NewReaper(app.store, reapInterval, cfg.JobTTL, log)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := httpAdapter.NewServer(app.svc, addr, func() map[string]bool {
		return checkPrerequisites(cfg)
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go w.Run(ctx)
	go reaper.Run(ctx)

	go func() {
		log.Infow("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("HTTP server error", "error", err)
		}
	}()

	sig := <-sigCh
	log.Infow("shutting down", "signal", sig.String())

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("HTTP shutdown error", "error", err)
	}

	log.Infow("shutdown complete")
	return nil
}
