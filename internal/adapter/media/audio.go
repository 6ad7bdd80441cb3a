package media

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/muhammadegaa/reely/internal/domain"
)

const (
	audioTimeout  = 10 * time.Minute
	minAudioBytes = 1024
)

// ExtractAudio converts the full media file to 16kHz mono WAV, the format
// the transcription service expects.
func (e *Engine) ExtractAudio(ctx context.Context, in, out string) error {
	_, err := e.run.Run(ctx, audioTimeout, e.ffmpeg,
		"-y",
		"-i", in,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		out,
	)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "extract audio"), domain.ErrTranscription)
	}
	return verifyAudio(out)
}

// ExtractAudioSegment converts [start, start+duration) to 16kHz mono WAV.
// Seeking before the input keeps extraction fast on long sources. The
// timeout scales with the requested duration.
func (e *Engine) ExtractAudioSegment(ctx context.Context, in, out string, start, duration float64) error {
	timeout := time.Duration(duration)*time.Second + time.Minute
	_, err := e.run.Run(ctx, timeout, e.ffmpeg,
		"-y",
		"-ss", formatSeconds(start),
		"-i", in,
		"-t", formatSeconds(duration),
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-avoid_negative_ts", "make_zero",
		out,
	)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "extract audio segment"), domain.ErrTranscription)
	}
	return verifyAudio(out)
}

// CopyAudioSegment cuts [start, start+duration) of an audio file without
// re-encoding. Used to split oversized audio into transcription chunks.
func (e *Engine) CopyAudioSegment(ctx context.Context, in, out string, start, duration float64) error {
	_, err := e.run.Run(ctx, audioTimeout, e.ffmpeg,
		"-y",
		"-ss", formatSeconds(start),
		"-i", in,
		"-t", formatSeconds(duration),
		"-c", "copy",
		out,
	)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "split audio chunk"), domain.ErrTranscription)
	}
	return verifyAudio(out)
}

func verifyAudio(path string) error {
	if err := verifyOutput(path, minAudioBytes); err != nil {
		return errors.Mark(errors.New("audio extraction produced no usable output"), domain.ErrTranscription)
	}
	return nil
}
