package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammadegaa/reely/internal/domain"
)

type stubStore struct {
	mu       sync.Mutex
	jobs     map[string]*domain.Job
	queued   []string
	claimed  []string
	requeued []string
	deleted  []string
	terminal []domain.Job
}

func newStubStore() *stubStore {
	return &stubStore{jobs: make(map[string]*domain.Job)}
}

func (s *stubStore) add(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	if job.Status == domain.StatusQueued {
		s.queued = append(s.queued, job.ID)
	}
}

func (s *stubStore) Create(ctx context.Context, job *domain.Job) error { return nil }

func (s *stubStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *stubStore) Update(ctx context.Context, id string, upd domain.JobUpdate) error { return nil }

func (s *stubStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	delete(s.jobs, id)
	return nil
}

func (s *stubStore) FindQueued(ctx context.Context, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, id := range s.queued {
		if len(out) == limit {
			break
		}
		out = append(out, *s.jobs[id])
	}
	return out, nil
}

func (s *stubStore) Claim(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != domain.StatusQueued {
		return domain.ErrJobNotFound
	}
	job.Status = domain.StatusDownloading
	job.Attempts++
	s.claimed = append(s.claimed, id)
	for i, q := range s.queued {
		if q == id {
			s.queued = append(s.queued[:i], s.queued[i+1:]...)
			break
		}
	}
	return nil
}

func (s *stubStore) Requeue(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requeued = append(s.requeued, id)
	s.jobs[id].Status = domain.StatusQueued
	s.queued = append(s.queued, id)
	return nil
}

func (s *stubStore) RecoverStale(ctx context.Context) (int64, error) { return 0, nil }

func (s *stubStore) FindTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Job(nil), s.terminal...), nil
}

func (s *stubStore) snapshot() (claimed, requeued []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.claimed...), append([]string(nil), s.requeued...)
}

type stubExecutor struct {
	mu    sync.Mutex
	store *stubStore
	// requeueUntil makes a job fail and go back in the queue until it has
	// been executed that many times, the way the real executor requeues
	// transient failures.
	requeueUntil map[string]int
	errs         map[string]error
	executed     []string
}

func (e *stubExecutor) Execute(ctx context.Context, jobID string) error {
	e.mu.Lock()
	e.executed = append(e.executed, jobID)
	runs := 0
	for _, id := range e.executed {
		if id == jobID {
			runs++
		}
	}
	e.mu.Unlock()

	if until, ok := e.requeueUntil[jobID]; ok && runs < until {
		err := errors.Mark(errors.New("network blip"), domain.ErrDownload)
		if reqErr := e.store.Requeue(ctx, jobID, err.Error()); reqErr != nil {
			return reqErr
		}
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errs[jobID]
}

func runWorker(t *testing.T, w *Worker, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	w.Run(ctx)
}

func TestWorker_ExecutesQueuedJobs(t *testing.T) {
	store := newStubStore()
	store.add(&domain.Job{ID: "a", Status: domain.StatusQueued})
	store.add(&domain.Job{ID: "b", Status: domain.StatusQueued})

	exec := &stubExecutor{}
	w := New(store, exec, 10*time.Millisecond, 2, nil)
	runWorker(t, w, 200*time.Millisecond)

	claimed, _ := store.snapshot()
	assert.ElementsMatch(t, []string{"a", "b"}, claimed)
	assert.ElementsMatch(t, []string{"a", "b"}, exec.executed)
}

func TestWorker_ReclaimsRequeuedJobs(t *testing.T) {
	store := newStubStore()
	store.add(&domain.Job{ID: "a", Status: domain.StatusQueued})

	// Two transient failures, then success.
	exec := &stubExecutor{store: store, requeueUntil: map[string]int{"a": 3}}
	w := New(store, exec, 10*time.Millisecond, 1, nil)
	runWorker(t, w, 500*time.Millisecond)

	claimed, requeued := store.snapshot()
	assert.Equal(t, []string{"a", "a", "a"}, claimed)
	assert.Equal(t, []string{"a", "a"}, requeued)

	job, err := store.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 3, job.Attempts)
}

func TestWorker_FailedJobsAreNotReexecuted(t *testing.T) {
	store := newStubStore()
	store.add(&domain.Job{ID: "a", Status: domain.StatusQueued})

	exec := &stubExecutor{errs: map[string]error{
		"a": errors.Mark(errors.New("bad parameters"), domain.ErrValidation),
	}}
	w := New(store, exec, 10*time.Millisecond, 1, nil)
	runWorker(t, w, 200*time.Millisecond)

	// The executor did not requeue, so the worker never picks it up again.
	_, requeued := store.snapshot()
	assert.Empty(t, requeued)
	assert.Len(t, exec.executed, 1)
}

func TestReaper_DeletesExpiredJobsWithScratch(t *testing.T) {
	scratch := filepath.Join(t.TempDir(), "job-scratch")
	require.NoError(t, os.MkdirAll(scratch, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "output.mp4"), []byte("x"), 0o644))

	store := newStubStore()
	store.add(&domain.Job{ID: "old", Status: domain.StatusCompleted, ScratchDir: scratch})
	store.terminal = []domain.Job{{ID: "old", Status: domain.StatusCompleted, ScratchDir: scratch}}

	r := NewReaper(store, 10*time.Millisecond, time.Hour, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	assert.NoDirExists(t, scratch)
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Contains(t, store.deleted, "old")
}
