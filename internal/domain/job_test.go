package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{StatusCompleted, StatusFailed, StatusCancelled}
	active := []JobStatus{StatusQueued, StatusDownloading, StatusTranscribing, StatusProcessing, StatusTrimming}

	for _, s := range terminal {
		assert.True(t, s.Terminal(), "status %s", s)
	}
	for _, s := range active {
		assert.False(t, s.Terminal(), "status %s", s)
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{StatusQueued, StatusDownloading, true},
		{StatusDownloading, StatusTranscribing, true},
		{StatusDownloading, StatusProcessing, true},
		{StatusTranscribing, StatusTrimming, true},
		{StatusProcessing, StatusTrimming, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusTrimming, StatusCompleted, true},
		{StatusQueued, StatusFailed, true},
		{StatusTrimming, StatusFailed, true},
		{StatusDownloading, StatusCancelled, true},

		{StatusQueued, StatusProcessing, false},
		{StatusQueued, StatusCompleted, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusQueued, false},
		{StatusCancelled, StatusDownloading, false},
	}

	for _, tt := range tests {
		got := ValidTransition(tt.from, tt.to)
		assert.Equal(t, tt.want, got, "%s -> %s", tt.from, tt.to)
	}
}

func TestJobCanRetry(t *testing.T) {
	job := &Job{Status: StatusFailed, Attempts: 1}
	assert.True(t, job.CanRetry(3))

	job.Attempts = 3
	assert.False(t, job.CanRetry(3))

	job = &Job{Status: StatusCompleted, Attempts: 0}
	assert.False(t, job.CanRetry(3))

	job = &Job{Status: StatusCancelled, Attempts: 0}
	assert.False(t, job.CanRetry(3))
}
