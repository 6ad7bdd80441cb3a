package worker

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/muhammadegaa/reely/internal/domain"
)

const reapBatchSize = 50

// Reaper periodically deletes terminal jobs older than the TTL, along with
// their scratch directories. It replaces ad hoc cleanup with a single
// cancellable loop.
type Reaper struct {
	store    domain.JobStore
	interval time.Duration
	ttl      time.Duration
	log      *zap.SugaredLogger
}

func NewReaper(store domain.JobStore, interval, ttl time.Duration, log *zap.SugaredLogger) *Reaper {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reaper{store: store, interval: interval, ttl: ttl, log: log}
}

// Run sweeps until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	r.log.Infow("reaper started", "interval", r.interval, "ttl", r.ttl)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Infow("reaper shutting down")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.ttl)
	jobs, err := r.store.FindTerminalBefore(ctx, cutoff, reapBatchSize)
	if err != nil {
		r.log.Warnw("reaper sweep failed", "error", err)
		return
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}

		if job.ScratchDir != "" {
			if err := os.RemoveAll(job.ScratchDir); err != nil {
				r.log.Warnw("scratch removal failed", "job_id", job.ID, "dir", job.ScratchDir, "error", err)
				continue
			}
		}
		if err := r.store.Delete(ctx, job.ID); err != nil {
			r.log.Warnw("job deletion failed", "job_id", job.ID, "error", err)
			continue
		}
		r.log.Infow("reaped expired job", "job_id", job.ID, "status", job.Status)
	}
}
