package domain

import "time"

// JobStatus represents the processing state of a job.
type JobStatus string

const (
	StatusQueued       JobStatus = "queued"
	StatusDownloading  JobStatus = "downloading"
	StatusTranscribing JobStatus = "transcribing"
	StatusProcessing   JobStatus = "processing"
	StatusTrimming     JobStatus = "trimming"
	StatusCompleted    JobStatus = "completed"
	StatusFailed       JobStatus = "failed"
	StatusCancelled    JobStatus = "cancelled"
)

// Terminal reports whether a job in this status will never change again.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// JobKind selects which pipeline path a job executes.
type JobKind string

const (
	KindTrim          JobKind = "trim"
	KindHookDetection JobKind = "hook_detection"
)

// Quality is the download quality tier.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Job represents one user-initiated video processing request.
type Job struct {
	ID   string
	Kind JobKind

	// Input parameters.
	URL            string
	StartTime      float64
	EndTime        float64
	VerticalFormat bool
	AddSubtitles   bool
	AIProvider     string

	// Mutable processing state.
	Status   JobStatus
	Progress int
	Message  string
	Result   *Result
	Error    string

	// Scratch resources, owned exclusively by this job. All intermediate
	// files live under ScratchDir so cleanup is a single RemoveAll.
	ScratchDir string

	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanRetry returns true if the job can be retried.
func (j *Job) CanRetry(maxAttempts int) bool {
	return j.Attempts < maxAttempts && !j.Status.Terminal()
}

// Result is the payload of a completed job.
type Result struct {
	Message string `json:"message,omitempty"`

	// Trim jobs.
	FilePath         string  `json:"file_path,omitempty"`
	OriginalDuration float64 `json:"original_duration,omitempty"`
	TrimmedDuration  float64 `json:"trimmed_duration,omitempty"`

	// Hook detection jobs.
	Hooks         []Hook  `json:"hooks,omitempty"`
	TotalHooks    int     `json:"total_hooks,omitempty"`
	VideoDuration float64 `json:"video_duration,omitempty"`
}

// ValidTransition enforces the allowed job state machine edges. Failed is
// reachable from any non-terminal state, cancelled from any active one.
func ValidTransition(from, to JobStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed || to == StatusCancelled {
		return true
	}
	switch from {
	case StatusQueued:
		return to == StatusDownloading
	case StatusDownloading:
		return to == StatusTranscribing || to == StatusProcessing
	case StatusTranscribing:
		return to == StatusProcessing || to == StatusTrimming
	case StatusProcessing:
		return to == StatusTranscribing || to == StatusTrimming || to == StatusCompleted
	case StatusTrimming:
		return to == StatusCompleted
	default:
		return false
	}
}
