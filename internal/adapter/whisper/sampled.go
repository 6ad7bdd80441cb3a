package whisper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/muhammadegaa/reely/internal/domain"
)

const (
	leadWindowSeconds   = 120.0
	middleWindowSeconds = 60.0
	tailWindowSeconds   = 120.0
	tailMinDuration     = 300.0
)

type window struct {
	start    float64
	duration float64
}

// sampleWindows picks representative slices of a long source: the opening
// two minutes, one minute at the 30/50/70 percent marks, and the final two
// minutes of anything longer than five minutes. Overlapping or out of range
// windows are clamped to the source.
func sampleWindows(total float64) []window {
	windows := []window{{0, minf(leadWindowSeconds, total)}}

	for _, frac := range []float64{0.3, 0.5, 0.7} {
		start := total * frac
		if start <= leadWindowSeconds {
			continue
		}
		dur := minf(middleWindowSeconds, total-start)
		if dur > 0 {
			windows = append(windows, window{start, dur})
		}
	}

	if total > tailMinDuration {
		windows = append(windows, window{total - tailWindowSeconds, tailWindowSeconds})
	}
	return windows
}

// TranscribeSampled transcribes strategic samples of the video instead of
// the whole thing. Used for long sources where a full transcription would
// take longer than the analysis is worth. Failed windows are skipped, but
// at least one must succeed.
func (c *Client) TranscribeSampled(ctx context.Context, videoPath string, totalDuration float64) (*domain.Transcript, error) {
	windows := sampleWindows(totalDuration)
	dir := filepath.Dir(videoPath)

	c.log.Infow("sampling transcription", "duration", totalDuration, "windows", len(windows))

	merged := &domain.Transcript{Sampled: true}
	for i, w := range windows {
		audioPath := filepath.Join(dir, fmt.Sprintf("sample_%03d.wav", i))

		err := c.media.ExtractAudioSegment(ctx, videoPath, audioPath, w.start, w.duration)
		if err == nil {
			var part *domain.Transcript
			part, err = c.transcribeFile(ctx, audioPath, w.start)
			if err == nil {
				label := fmt.Sprintf("[Segment %.0fs-%.0fs] ", w.start, w.start+w.duration)
				if merged.Text != "" {
					merged.Text += " "
				}
				merged.Text += label + part.Text
				merged.Segments = append(merged.Segments, part.Segments...)
			}
		}
		os.Remove(audioPath)

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warnw("skipping failed sample window", "start", w.start, "error", err)
		}
	}

	if len(merged.Segments) == 0 {
		return nil, errors.Mark(errors.New("all sample windows failed to transcribe"), domain.ErrTranscription)
	}
	return merged, nil
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
