package domain

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore implements JobStore in memory for testing.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*Job)}
}

func (m *memStore) Create(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) Update(ctx context.Context, id string, upd JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if upd.Status != nil {
		job.Status = *upd.Status
	}
	if upd.Progress != nil {
		job.Progress = *upd.Progress
	}
	if upd.Message != nil {
		job.Message = *upd.Message
	}
	if upd.Result != nil {
		job.Result = upd.Result
	}
	if upd.Error != nil {
		job.Error = *upd.Error
	}
	if upd.ScratchDir != nil {
		job.ScratchDir = *upd.ScratchDir
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *memStore) FindQueued(ctx context.Context, limit int) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, job := range m.jobs {
		if job.Status == StatusQueued {
			out = append(out, *job)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) Claim(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != StatusQueued {
		return ErrJobNotFound
	}
	job.Status = StatusDownloading
	job.Attempts++
	return nil
}

func (m *memStore) Requeue(ctx context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusQueued
	job.Progress = 0
	job.Error = reason
	return nil
}

func (m *memStore) RecoverStale(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, job := range m.jobs {
		if !job.Status.Terminal() && job.Status != StatusQueued {
			job.Status = StatusQueued
			n++
		}
	}
	return n, nil
}

func (m *memStore) FindTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, job := range m.jobs {
		if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			out = append(out, *job)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// denyGate rejects everything with a fixed reason.
type denyGate struct{ reason string }

func (g denyGate) Allow(ctx context.Context, identity, action string) (bool, string, error) {
	return false, g.reason, nil
}

func TestSubmitTrim(t *testing.T) {
	svc := NewJobService(newMemStore(), AllowAllGate{})

	job, err := svc.SubmitTrim(context.Background(), "user-1", TrimRequest{
		URL:       "https://youtube.com/watch?v=abc123def45",
		StartTime: 30,
		EndTime:   60,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, KindTrim, job.Kind)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)
}

func TestSubmitTrimValidation(t *testing.T) {
	svc := NewJobService(newMemStore(), AllowAllGate{})
	ctx := context.Background()

	_, err := svc.SubmitTrim(ctx, "u", TrimRequest{URL: "https://example.com/x", StartTime: 0, EndTime: 10})
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = svc.SubmitTrim(ctx, "u", TrimRequest{URL: "https://youtu.be/abc123def45", StartTime: 60, EndTime: 30})
	assert.Equal(t, KindValidation, Classify(err))

	_, err = svc.SubmitTrim(ctx, "u", TrimRequest{URL: "https://youtu.be/abc123def45", StartTime: -1, EndTime: 30})
	assert.Equal(t, KindValidation, Classify(err))
}

func TestSubmitDeniedByGate(t *testing.T) {
	svc := NewJobService(newMemStore(), denyGate{reason: "trial limit reached"})

	_, err := svc.SubmitTrim(context.Background(), "u", TrimRequest{
		URL: "https://youtu.be/abc123def45", StartTime: 0, EndTime: 10,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trial limit reached")
}

func TestSubmitHooksDefaultsProvider(t *testing.T) {
	svc := NewJobService(newMemStore(), AllowAllGate{})

	job, err := svc.SubmitHooks(context.Background(), "u", HooksRequest{URL: "https://youtu.be/abc123def45"})
	require.NoError(t, err)
	assert.Equal(t, KindHookDetection, job.Kind)
	assert.Equal(t, "openai", job.AIProvider)
}

func TestCancelTerminalJobIsNoop(t *testing.T) {
	store := newMemStore()
	svc := NewJobService(store, AllowAllGate{})

	job, err := svc.SubmitTrim(context.Background(), "u", TrimRequest{
		URL: "https://youtu.be/abc123def45", StartTime: 0, EndTime: 10,
	})
	require.NoError(t, err)

	done := StatusCompleted
	require.NoError(t, store.Update(context.Background(), job.ID, JobUpdate{Status: &done}))

	require.NoError(t, svc.Cancel(context.Background(), job.ID))
	got, err := svc.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestCleanupRemovesScratchAndRecord(t *testing.T) {
	store := newMemStore()
	svc := NewJobService(store, AllowAllGate{})
	ctx := context.Background()

	job, err := svc.SubmitTrim(ctx, "u", TrimRequest{
		URL: "https://youtu.be/abc123def45", StartTime: 0, EndTime: 10,
	})
	require.NoError(t, err)

	scratch := filepath.Join(t.TempDir(), "job-scratch")
	require.NoError(t, os.MkdirAll(scratch, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "out.mp4"), []byte("x"), 0o644))
	require.NoError(t, store.Update(ctx, job.ID, JobUpdate{ScratchDir: &scratch}))

	require.NoError(t, svc.Cleanup(ctx, job.ID))

	_, err = os.Stat(scratch)
	assert.True(t, os.IsNotExist(err))
	_, err = svc.Get(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestOutputPathOnlyForCompleted(t *testing.T) {
	store := newMemStore()
	svc := NewJobService(store, AllowAllGate{})
	ctx := context.Background()

	job, err := svc.SubmitTrim(ctx, "u", TrimRequest{
		URL: "https://youtu.be/abc123def45", StartTime: 0, EndTime: 10,
	})
	require.NoError(t, err)

	_, err = svc.OutputPath(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	done := StatusCompleted
	require.NoError(t, store.Update(ctx, job.ID, JobUpdate{
		Status: &done,
		Result: &Result{FilePath: "/tmp/out.mp4"},
	}))

	path, err := svc.OutputPath(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out.mp4", path)
}
