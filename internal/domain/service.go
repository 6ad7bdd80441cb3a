package domain

import (
	"context"
	"os"
	"regexp"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var youtubeURLPattern = regexp.MustCompile(
	`^(https?://)?(www\.)?(youtube|youtu|youtube-nocookie)\.(com|be)/` +
		`(watch\?v=|embed/|v/|.+\?v=)?([^&=%\n]{11})`,
)

// IsValidYouTubeURL reports whether url looks like a YouTube video URL.
func IsValidYouTubeURL(url string) bool {
	return youtubeURLPattern.MatchString(url)
}

// TrimRequest are the validated-upstream parameters for a trim job.
type TrimRequest struct {
	URL            string
	StartTime      float64
	EndTime        float64
	VerticalFormat bool
	AddSubtitles   bool
}

// HooksRequest are the parameters for a hook detection job.
type HooksRequest struct {
	URL        string
	AIProvider string
}

// JobService validates requests and manages job records. It is the single
// entry point used by both the HTTP layer and the CLI.
type JobService struct {
	store     JobStore
	gate      AccessGate
	canceller Canceller
}

// NewJobService creates a new JobService.
func NewJobService(store JobStore, gate AccessGate) *JobService {
	return &JobService{store: store, gate: gate}
}

// SetCanceller wires the running-job canceller. Set once at startup, after
// the orchestrator exists.
func (s *JobService) SetCanceller(c Canceller) {
	s.canceller = c
}

// SubmitTrim validates and enqueues a trim job. Validation failures surface
// before any resource is allocated.
func (s *JobService) SubmitTrim(ctx context.Context, identity string, req TrimRequest) (*Job, error) {
	if err := s.checkGate(ctx, identity, "trim"); err != nil {
		return nil, err
	}
	if !IsValidYouTubeURL(req.URL) {
		return nil, ErrInvalidURL
	}
	if req.StartTime < 0 {
		return nil, errors.Mark(errors.New("start time must not be negative"), ErrValidation)
	}
	if req.EndTime <= req.StartTime {
		return nil, errors.Mark(errors.New("end time must be greater than start time"), ErrValidation)
	}

	job := newJob(KindTrim)
	job.URL = req.URL
	job.StartTime = req.StartTime
	job.EndTime = req.EndTime
	job.VerticalFormat = req.VerticalFormat
	job.AddSubtitles = req.AddSubtitles

	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// SubmitHooks validates and enqueues a hook detection job.
func (s *JobService) SubmitHooks(ctx context.Context, identity string, req HooksRequest) (*Job, error) {
	if err := s.checkGate(ctx, identity, "hook_detection"); err != nil {
		return nil, err
	}
	if !IsValidYouTubeURL(req.URL) {
		return nil, ErrInvalidURL
	}
	provider := req.AIProvider
	if provider == "" {
		provider = "openai"
	}

	job := newJob(KindHookDetection)
	job.URL = req.URL
	job.AIProvider = provider

	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Get retrieves a job by ID.
func (s *JobService) Get(ctx context.Context, id string) (*Job, error) {
	return s.store.Get(ctx, id)
}

// Cancel stops a job. Cancelling an already-terminal job is a no-op.
func (s *JobService) Cancel(ctx context.Context, id string) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	if s.canceller != nil {
		s.canceller.Cancel(id)
	}

	status := StatusCancelled
	msg := "Job cancelled"
	if err := s.store.Update(ctx, id, JobUpdate{Status: &status, Message: &msg}); err != nil {
		return err
	}
	if job.ScratchDir != "" {
		return os.RemoveAll(job.ScratchDir)
	}
	return nil
}

// Cleanup removes a job's scratch directory and deletes its record. The
// scratch directory and everything in it go together, never piecemeal.
func (s *JobService) Cleanup(ctx context.Context, id string) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.ScratchDir != "" {
		if err := os.RemoveAll(job.ScratchDir); err != nil {
			return errors.Wrap(err, "remove scratch dir")
		}
	}
	return s.store.Delete(ctx, id)
}

// OutputPath returns the final artifact path for a completed job, or
// ErrJobNotFound when the job has no downloadable result.
func (s *JobService) OutputPath(ctx context.Context, id string) (string, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Status != StatusCompleted || job.Result == nil || job.Result.FilePath == "" {
		return "", ErrJobNotFound
	}
	return job.Result.FilePath, nil
}

func (s *JobService) checkGate(ctx context.Context, identity, action string) error {
	if s.gate == nil {
		return nil
	}
	ok, reason, err := s.gate.Allow(ctx, identity, action)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Mark(errors.Newf("not allowed: %s", reason), ErrValidation)
	}
	return nil
}

func newJob(kind JobKind) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusQueued,
		Progress:  0,
		Message:   "Job created, waiting to start...",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AllowAllGate permits every action. Real deployments sit behind an
// authenticating proxy that supplies its own gate.
type AllowAllGate struct{}

func (AllowAllGate) Allow(ctx context.Context, identity, action string) (bool, string, error) {
	return true, "", nil
}
