// Package worker runs queued jobs and reaps expired ones.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/muhammadegaa/reely/internal/domain"
)

// Executor runs one claimed job to a terminal state.
type Executor interface {
	Execute(ctx context.Context, jobID string) error
}

// Worker polls for queued jobs, claims them, and executes them with bounded
// concurrency.
type Worker struct {
	store        domain.JobStore
	executor     Executor
	pollInterval time.Duration
	slots        chan struct{}
	log          *zap.SugaredLogger

	wg sync.WaitGroup
}

// New creates a worker running up to concurrency jobs at once.
func New(store domain.JobStore, executor Executor, pollInterval time.Duration, concurrency int, log *zap.SugaredLogger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Worker{
		store:        store,
		executor:     executor,
		pollInterval: pollInterval,
		slots:        make(chan struct{}, concurrency),
		log:          log,
	}
}

// Run polls until the context is cancelled, then waits for in-flight jobs.
func (w *Worker) Run(ctx context.Context) {
	w.log.Infow("worker started", "poll_interval", w.pollInterval, "concurrency", cap(w.slots))
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Infow("worker shutting down, waiting for running jobs")
			w.wg.Wait()
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	jobs, err := w.store.FindQueued(ctx, cap(w.slots))
	if err != nil {
		w.log.Warnw("poll failed", "error", err)
		return
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}

		select {
		case w.slots <- struct{}{}:
		case <-ctx.Done():
			return
		}

		if err := w.store.Claim(ctx, job.ID); err != nil {
			<-w.slots
			if !errors.Is(err, domain.ErrJobNotFound) {
				w.log.Warnw("claim failed", "job_id", job.ID, "error", err)
			}
			continue
		}

		w.wg.Add(1)
		go func(id string) {
			defer w.wg.Done()
			defer func() { <-w.slots }()
			w.process(ctx, id)
		}(job.ID)
	}
}

func (w *Worker) process(ctx context.Context, id string) {
	// The executor records the outcome on the job itself, including any
	// requeue for another attempt; a requeued job is picked up again on a
	// later poll.
	if err := w.executor.Execute(ctx, id); err != nil {
		w.log.Infow("job did not complete", "job_id", id, "error", err)
	}
}
