package domain

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrInvalidURL  = errors.New("invalid YouTube URL")
)

// Pipeline failure classes. Leaf components mark their errors with one of
// these references (errors.Mark) so the classification survives wrapping all
// the way up to the orchestrator, which is the only place they are handled.
var (
	ErrDownload      = errors.New("download failed")
	ErrTimeout       = errors.New("operation timed out")
	ErrTranscription = errors.New("transcription failed")
	ErrTransform     = errors.New("video processing failed")
	ErrAnalysis      = errors.New("hook analysis failed")
	ErrValidation    = errors.New("invalid parameters")
)

// Kind is the coarse error classification recorded on failed jobs.
type Kind string

const (
	KindDownload      Kind = "download"
	KindTimeout       Kind = "timeout"
	KindTranscription Kind = "transcription"
	KindTransform     Kind = "transform"
	KindAnalysis      Kind = "analysis"
	KindValidation    Kind = "validation"
	KindCancelled     Kind = "cancelled"
	KindInternal      Kind = "internal"
)

// Classify maps any pipeline error onto its failure class. Timeout takes
// precedence over the stage class because it drives a different retry policy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrDownload):
		return KindDownload
	case errors.Is(err, ErrTranscription):
		return KindTranscription
	case errors.Is(err, ErrTransform):
		return KindTransform
	case errors.Is(err, ErrAnalysis):
		return KindAnalysis
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindInternal
	}
}

// Retryable reports whether a failure may be retried by a worker. Download
// and timeout failures are transient, except transform timeouts: the encode
// engine marks those with both ErrTimeout and ErrTransform, and re-running a
// timed-out encode would only time out again.
func Retryable(err error) bool {
	if errors.Is(err, ErrTransform) {
		return false
	}
	switch Classify(err) {
	case KindDownload, KindTimeout:
		return true
	default:
		return false
	}
}
