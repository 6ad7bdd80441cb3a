// Package pipeline executes jobs end to end: download, optional
// transcription, transform or hook analysis, and result recording.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/muhammadegaa/reely/internal/domain"
	"github.com/muhammadegaa/reely/internal/hooks"
	"github.com/muhammadegaa/reely/internal/subtitles"
)

// Sources longer than this are transcribed by sampling instead of in full
// during hook detection.
const samplingThresholdSeconds = 600

// Downloader fetches a video into a scratch directory.
type Downloader interface {
	Download(ctx context.Context, url, dir string, quality domain.Quality) (string, error)
}

// MediaEngine is the slice of the transform engine the pipeline drives.
type MediaEngine interface {
	Duration(ctx context.Context, path string) (float64, error)
	Trim(ctx context.Context, in, out string, start, end float64) error
	TrimVertical(ctx context.Context, in, out string, start, end float64, subtitlePath string) error
	ExtractAudio(ctx context.Context, in, out string) error
	ExtractAudioSegment(ctx context.Context, in, out string, start, duration float64) error
}

// Transcriber produces transcripts from media files.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (*domain.Transcript, error)
	TranscribeSampled(ctx context.Context, videoPath string, totalDuration float64) (*domain.Transcript, error)
}

// HookAnalyzer finds hook moments in a transcript.
type HookAnalyzer interface {
	Analyze(ctx context.Context, transcript *domain.Transcript) ([]domain.Hook, error)
}

// Deps collects everything the orchestrator drives.
type Deps struct {
	Store       domain.JobStore
	Downloader  Downloader
	Media       MediaEngine
	Transcriber Transcriber
	// AnalyzerFor returns the hook analyzer for a provider name.
	AnalyzerFor func(provider string) (HookAnalyzer, error)
	Cache       *hooks.Cache
	// ScratchRoot is where per-job scratch directories are created.
	// Empty means the system temp directory.
	ScratchRoot string
	// MaxRetries bounds how many attempts a job gets before a retryable
	// failure becomes terminal.
	MaxRetries int
	Log        *zap.SugaredLogger
}

// Orchestrator runs one job at a time per Execute call and tracks running
// jobs so they can be cancelled.
type Orchestrator struct {
	deps Deps
	log  *zap.SugaredLogger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func New(deps Deps) *Orchestrator {
	if deps.Log == nil {
		deps.Log = zap.NewNop().Sugar()
	}
	if deps.Cache == nil {
		deps.Cache = hooks.NewCache()
	}
	if deps.MaxRetries < 1 {
		deps.MaxRetries = 1
	}
	return &Orchestrator{
		deps:    deps,
		log:     deps.Log,
		running: make(map[string]context.CancelFunc),
	}
}

// Cancel stops the running execution of a job, if any. Returns whether an
// execution was actually interrupted.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.Lock()
	cancel, ok := o.running[id]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (o *Orchestrator) track(id string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.running[id] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) untrack(id string) {
	o.mu.Lock()
	delete(o.running, id)
	o.mu.Unlock()
}

// Execute runs a claimed job until it either reaches a terminal state or
// goes back into the queue for another attempt. Failure bookkeeping happens
// here; the returned error exists only for the caller's logs.
func (o *Orchestrator) Execute(ctx context.Context, jobID string) error {
	job, err := o.deps.Store.Get(ctx, jobID)
	if err != nil {
		return errors.Wrap(err, "load job")
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.track(job.ID, cancel)
	defer o.untrack(job.ID)

	log := o.log.With("job_id", job.ID, "kind", job.Kind)
	log.Infow("executing job", "url", job.URL, "attempt", job.Attempts)

	var execErr error
	switch job.Kind {
	case domain.KindTrim:
		execErr = o.executeTrim(jobCtx, job, log)
	case domain.KindHookDetection:
		execErr = o.executeHooks(jobCtx, job, log)
	default:
		execErr = errors.Mark(errors.Newf("unknown job kind %q", job.Kind), domain.ErrValidation)
	}

	if execErr != nil {
		o.recordFailure(ctx, job, execErr, log)
		return execErr
	}

	log.Infow("job completed")
	return nil
}

func (o *Orchestrator) executeTrim(ctx context.Context, job *domain.Job, log *zap.SugaredLogger) error {
	scratch, err := o.makeScratch(ctx, job)
	if err != nil {
		return err
	}

	o.update(ctx, job, domain.StatusDownloading, 10, "Downloading video...")

	videoPath, err := o.deps.Downloader.Download(ctx, job.URL, scratch, domain.QualityMedium)
	if err != nil {
		return err
	}
	o.progress(ctx, job, 30, "Download complete")

	duration, err := o.deps.Media.Duration(ctx, videoPath)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "probe video duration"), domain.ErrTransform)
	}
	if job.EndTime > duration {
		return errors.Mark(
			errors.Newf("end time %.1fs is beyond the video duration %.1fs", job.EndTime, duration),
			domain.ErrValidation)
	}

	o.update(ctx, job, domain.StatusProcessing, 50, "Processing video...")

	clipLength := job.EndTime - job.StartTime
	subtitlePath := ""
	if job.VerticalFormat && job.AddSubtitles {
		o.update(ctx, job, domain.StatusTranscribing, 60, "Transcribing audio for subtitles...")

		audioPath := filepath.Join(scratch, "clip_audio.wav")
		if err := o.deps.Media.ExtractAudioSegment(ctx, videoPath, audioPath, job.StartTime, clipLength); err != nil {
			return err
		}

		transcript, err := o.deps.Transcriber.Transcribe(ctx, audioPath)
		if err != nil {
			return err
		}

		// The audio was cut at the clip start, so segment times are
		// already clip-relative.
		subtitlePath, err = subtitles.WriteSRT(transcript.Segments, 0, clipLength, filepath.Join(scratch, "subtitles.srt"))
		if err != nil {
			return errors.Mark(err, domain.ErrTranscription)
		}
		if subtitlePath == "" {
			log.Infow("no usable subtitle segments, burning none")
		}
	}

	o.update(ctx, job, domain.StatusTrimming, 80, "Trimming video...")

	outPath := filepath.Join(scratch, "output.mp4")
	if job.VerticalFormat {
		err = o.deps.Media.TrimVertical(ctx, videoPath, outPath, job.StartTime, job.EndTime, subtitlePath)
	} else {
		err = o.deps.Media.Trim(ctx, videoPath, outPath, job.StartTime, job.EndTime)
	}
	if err != nil {
		return err
	}

	result := &domain.Result{
		Message:          "Video processing completed!",
		FilePath:         outPath,
		OriginalDuration: duration,
		TrimmedDuration:  clipLength,
	}
	o.complete(ctx, job, result)
	return nil
}

func (o *Orchestrator) executeHooks(ctx context.Context, job *domain.Job, log *zap.SugaredLogger) error {
	analyzer, err := o.deps.AnalyzerFor(job.AIProvider)
	if err != nil {
		return errors.Mark(err, domain.ErrValidation)
	}

	if cached, cachedDuration, ok := o.deps.Cache.Get(job.URL); ok {
		log.Infow("serving hooks from cache")
		o.update(ctx, job, domain.StatusProcessing, 50, "Using cached analysis...")
		o.complete(ctx, job, &domain.Result{
			Message:       "Hook detection completed!",
			Hooks:         cached,
			TotalHooks:    len(cached),
			VideoDuration: cachedDuration,
		})
		return nil
	}

	scratch, err := o.makeScratch(ctx, job)
	if err != nil {
		return err
	}
	// Hook jobs produce no downloadable file, so scratch can go as soon as
	// the analysis is done.
	defer os.RemoveAll(scratch)

	o.update(ctx, job, domain.StatusDownloading, 20, "Downloading video for analysis...")

	videoPath, err := o.deps.Downloader.Download(ctx, job.URL, scratch, domain.QualityLow)
	if err != nil {
		return err
	}

	duration, err := o.deps.Media.Duration(ctx, videoPath)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "probe video duration"), domain.ErrTranscription)
	}

	o.update(ctx, job, domain.StatusProcessing, 50, "Transcribing audio...")

	var transcript *domain.Transcript
	if duration > samplingThresholdSeconds {
		transcript, err = o.deps.Transcriber.TranscribeSampled(ctx, videoPath, duration)
	} else {
		audioPath := filepath.Join(scratch, "audio.wav")
		if err := o.deps.Media.ExtractAudio(ctx, videoPath, audioPath); err != nil {
			return err
		}
		transcript, err = o.deps.Transcriber.Transcribe(ctx, audioPath)
	}
	if err != nil {
		return err
	}

	o.progress(ctx, job, 80, "Analyzing transcript for hooks...")

	found, err := analyzer.Analyze(ctx, transcript)
	if err != nil {
		return err
	}

	o.deps.Cache.Put(job.URL, found, duration)
	o.complete(ctx, job, &domain.Result{
		Message:       "Hook detection completed!",
		Hooks:         found,
		TotalHooks:    len(found),
		VideoDuration: duration,
	})
	return nil
}

// makeScratch creates the job's private scratch directory and records it so
// cleanup works even across restarts.
func (o *Orchestrator) makeScratch(ctx context.Context, job *domain.Job) (string, error) {
	scratch, err := os.MkdirTemp(o.deps.ScratchRoot, fmt.Sprintf("reely-job-%s-", job.ID))
	if err != nil {
		return "", errors.Wrap(err, "create scratch directory")
	}
	job.ScratchDir = scratch
	if err := o.deps.Store.Update(ctx, job.ID, domain.JobUpdate{ScratchDir: &scratch}); err != nil {
		os.RemoveAll(scratch)
		return "", errors.Wrap(err, "record scratch directory")
	}
	return scratch, nil
}

func (o *Orchestrator) update(ctx context.Context, job *domain.Job, status domain.JobStatus, progress int, message string) {
	if err := o.deps.Store.Update(ctx, job.ID, domain.JobUpdate{
		Status:   &status,
		Progress: &progress,
		Message:  &message,
	}); err != nil {
		o.log.Warnw("progress update failed", "job_id", job.ID, "error", err)
	}
}

func (o *Orchestrator) progress(ctx context.Context, job *domain.Job, progress int, message string) {
	if err := o.deps.Store.Update(ctx, job.ID, domain.JobUpdate{
		Progress: &progress,
		Message:  &message,
	}); err != nil {
		o.log.Warnw("progress update failed", "job_id", job.ID, "error", err)
	}
}

func (o *Orchestrator) complete(ctx context.Context, job *domain.Job, result *domain.Result) {
	status := domain.StatusCompleted
	progress := 100
	if err := o.deps.Store.Update(ctx, job.ID, domain.JobUpdate{
		Status:   &status,
		Progress: &progress,
		Message:  &result.Message,
		Result:   result,
	}); err != nil {
		o.log.Errorw("failed to record completion", "job_id", job.ID, "error", err)
	}
}

// recordFailure releases scratch space and decides what the failure means
// for the job: cancelled jobs are already marked by the cancel request,
// retryable failures with attempts left go straight back to the queue, and
// everything else is written as failed. The terminal failed status is
// written exactly once, so a status poller never sees a job fail and then
// run again.
func (o *Orchestrator) recordFailure(ctx context.Context, job *domain.Job, execErr error, log *zap.SugaredLogger) {
	// The job context may already be cancelled; the bookkeeping writes
	// must still land.
	ctx = context.WithoutCancel(ctx)

	kind := domain.Classify(execErr)

	if job.ScratchDir != "" {
		if err := os.RemoveAll(job.ScratchDir); err != nil {
			log.Warnw("scratch cleanup failed", "dir", job.ScratchDir, "error", err)
		}
	}

	if kind == domain.KindCancelled {
		log.Infow("job cancelled")
		return
	}

	if domain.Retryable(execErr) && job.CanRetry(o.deps.MaxRetries) {
		log.Warnw("job failed, requeueing",
			"error_kind", kind, "attempt", job.Attempts, "error", execErr)
		if err := o.deps.Store.Requeue(ctx, job.ID, execErr.Error()); err != nil {
			log.Errorw("failed to requeue job", "error", err)
		}
		return
	}

	log.Warnw("job failed permanently", "error_kind", kind, "attempt", job.Attempts, "error", execErr)

	status := domain.StatusFailed
	msg := userMessage(kind, execErr)
	if err := o.deps.Store.Update(ctx, job.ID, domain.JobUpdate{
		Status:  &status,
		Message: &msg,
		Error:   &msg,
	}); err != nil {
		log.Errorw("failed to record failure", "error", err)
	}
}

// userMessage renders a failure class as a message safe to show end users.
func userMessage(kind domain.Kind, err error) string {
	switch kind {
	case domain.KindTimeout:
		return "Processing timed out. Try a shorter clip or a lower quality setting."
	case domain.KindDownload:
		return "Video download failed. Check the URL and try again."
	case domain.KindTranscription:
		return "Audio transcription failed. The video may have no usable audio."
	case domain.KindTransform:
		return "Video processing failed."
	case domain.KindAnalysis:
		return "Hook analysis failed. Try again or switch AI provider."
	case domain.KindValidation:
		return err.Error()
	default:
		return "An unexpected error occurred."
	}
}
