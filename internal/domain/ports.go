package domain

import (
	"context"
	"time"
)

// JobUpdate carries partial job mutations; nil fields are left untouched.
type JobUpdate struct {
	Status     *JobStatus
	Progress   *int
	Message    *string
	Result     *Result
	Error      *string
	ScratchDir *string
}

// JobStore is the driven port for job persistence. Implementations must
// support concurrent readers while one writer updates a given job.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, id string, upd JobUpdate) error
	Delete(ctx context.Context, id string) error

	// FindQueued returns queued jobs oldest-first, up to limit.
	FindQueued(ctx context.Context, limit int) ([]Job, error)
	// Claim atomically transitions a queued job to downloading and
	// increments its attempt count. Returns ErrJobNotFound if the job was
	// already claimed, guaranteeing at most one active executor per job.
	Claim(ctx context.Context, id string) error
	// Requeue returns a claimed job to the queue after a transient failure.
	Requeue(ctx context.Context, id string, reason string) error
	// RecoverStale requeues jobs left mid-pipeline by a crash.
	RecoverStale(ctx context.Context) (int64, error)
	// FindTerminalBefore returns terminal jobs last updated before cutoff,
	// for the reaper.
	FindTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]Job, error)
}

// AccessGate decides whether an identity may perform an action. Real
// authentication and usage limits live outside this service; the default
// gate allows everything.
type AccessGate interface {
	Allow(ctx context.Context, identity string, action string) (ok bool, reason string, err error)
}

// Canceller stops a running job's execution, if any.
type Canceller interface {
	Cancel(id string) bool
}
