package media

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const probeTimeout = 10 * time.Second

// Prober extracts duration and dimensions from media files via ffprobe.
type Prober struct {
	run     *Runner
	ffprobe string
}

// NewProber creates a new Prober. ffprobePath defaults to "ffprobe".
func NewProber(run *Runner, ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{run: run, ffprobe: ffprobePath}
}

// Duration returns the media duration in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.run.Run(ctx, probeTimeout, p.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, errors.Wrap(err, "probe duration")
	}
	s := strings.TrimSpace(out)
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse duration %q", s)
	}
	return sec, nil
}

// Dimensions returns the width and height of the first video stream.
func (p *Prober) Dimensions(ctx context.Context, path string) (int, int, error) {
	out, err := p.run.Run(ctx, probeTimeout, p.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=p=0:s=x",
		path,
	)
	if err != nil {
		return 0, 0, errors.Wrap(err, "probe dimensions")
	}
	parts := strings.Split(strings.TrimSpace(out), "x")
	if len(parts) != 2 {
		return 0, 0, errors.Newf("unexpected ffprobe dimensions output %q", strings.TrimSpace(out))
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, errors.Wrapf(err, "parse width %q", parts[0])
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, errors.Wrapf(err, "parse height %q", parts[1])
	}
	return w, h, nil
}
