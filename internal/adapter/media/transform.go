package media

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/muhammadegaa/reely/internal/domain"
)

// Strategy selects the encode profile for vertical reformatting. Chosen once
// at startup from configuration, never by mutating shared state.
type Strategy string

const (
	// StrategyStandard favors quality: slower preset, higher bitrate.
	StrategyStandard Strategy = "standard"
	// StrategyOptimized favors throughput: faster preset, capped bitrate
	// and frame rate, adaptive target resolution.
	StrategyOptimized Strategy = "optimized"
)

type encodeProfile struct {
	preset         string
	crf            string
	fps            string
	maxrate        string
	bufsize        string
	audioBitrate   string
	blurSigma      int
	adaptiveTarget bool
	fastStart      bool
	subtitleStyle  string
}

var profiles = map[Strategy]encodeProfile{
	StrategyStandard: {
		preset:        "medium",
		crf:           "23",
		fps:           "30",
		blurSigma:     20,
		subtitleStyle: "FontName=Arial,FontSize=24,PrimaryColour=&Hffffff,OutlineColour=&H000000,Outline=2,Shadow=1,MarginV=100",
	},
	StrategyOptimized: {
		preset:         "faster",
		crf:            "25",
		fps:            "24",
		maxrate:        "2M",
		bufsize:        "4M",
		audioBitrate:   "128k",
		blurSigma:      15,
		adaptiveTarget: true,
		fastStart:      true,
		subtitleStyle:  "FontName=Arial,FontSize=20,PrimaryColour=&Hffffff,OutlineColour=&H000000,Outline=1,Shadow=0,MarginV=80",
	},
}

const (
	trimTimeout     = 5 * time.Minute
	verticalTimeout = 30 * time.Minute

	// Outputs smaller than these are treated as failed encodes, never
	// exposed as results.
	minTrimBytes     = 1024
	minVerticalBytes = 100 * 1024
)

// Engine composes ffmpeg invocations to trim and reformat video.
type Engine struct {
	run      *Runner
	probe    *Prober
	ffmpeg   string
	strategy Strategy
	log      *zap.SugaredLogger
}

// NewEngine creates a transform engine. ffmpegPath defaults to "ffmpeg";
// strategy defaults to optimized.
func NewEngine(run *Runner, probe *Prober, ffmpegPath string, strategy Strategy, log *zap.SugaredLogger) *Engine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if strategy == "" {
		strategy = StrategyOptimized
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{run: run, probe: probe, ffmpeg: ffmpegPath, strategy: strategy, log: log}
}

// Duration probes the media duration in seconds.
func (e *Engine) Duration(ctx context.Context, path string) (float64, error) {
	return e.probe.Duration(ctx, path)
}

// Trim produces an output covering [start, end) of the source using stream
// copy, which avoids re-encoding entirely.
func (e *Engine) Trim(ctx context.Context, in, out string, start, end float64) error {
	duration := end - start
	_, err := e.run.Run(ctx, trimTimeout, e.ffmpeg,
		"-y",
		"-i", in,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-c", "copy",
		out,
	)
	if err != nil {
		return e.encodeError(err, out, "trim video")
	}
	return verifyOutput(out, minTrimBytes)
}

// TrimVertical produces a 9:16 output covering [start, end). Landscape
// sources are composited over a blurred, cropped-to-fill copy of themselves
// so no content is cropped away; portrait sources are scaled and cropped
// directly. A non-empty subtitlePath is burned in.
func (e *Engine) TrimVertical(ctx context.Context, in, out string, start, end float64, subtitlePath string) error {
	width, height, err := e.probe.Dimensions(ctx, in)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "determine video dimensions"), domain.ErrTransform)
	}

	p := profiles[e.strategy]
	targetW, targetH := targetResolution(width, p.adaptiveTarget)
	filter := buildVerticalFilter(width, height, targetW, targetH, p.blurSigma, subtitlePath, p.subtitleStyle)

	e.log.Infow("vertical transform",
		"input", fmt.Sprintf("%dx%d", width, height),
		"target", fmt.Sprintf("%dx%d", targetW, targetH),
		"strategy", e.strategy,
		"subtitles", subtitlePath != "")

	args := []string{
		"-y",
		"-ss", formatSeconds(start),
		"-i", in,
		"-t", formatSeconds(end - start),
		"-filter_complex", filter,
		"-map", "[final]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-preset", p.preset,
		"-crf", p.crf,
	}
	if p.maxrate != "" {
		args = append(args, "-maxrate", p.maxrate, "-bufsize", p.bufsize)
	}
	args = append(args, "-c:a", "aac")
	if p.audioBitrate != "" {
		args = append(args, "-b:a", p.audioBitrate)
	}
	args = append(args, "-r", p.fps)
	if p.fastStart {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, out)

	if _, err := e.run.Run(ctx, verticalTimeout, e.ffmpeg, args...); err != nil {
		return e.encodeError(err, out, "vertical transform")
	}
	if err := verifyOutput(out, minVerticalBytes); err != nil {
		return err
	}

	if info, err := os.Stat(out); err == nil {
		e.log.Infow("vertical transform done", "output_size", humanize.Bytes(uint64(info.Size())))
	}
	return nil
}

// encodeError classifies an encode failure. Timeouts delete any partial
// output and carry both the timeout and transform marks: callers report
// "processing timed out" and never retry a timed-out encode.
func (e *Engine) encodeError(err error, out, op string) error {
	if errors.Is(err, domain.ErrTimeout) {
		os.Remove(out)
	}
	return errors.Mark(errors.Wrap(err, op), domain.ErrTransform)
}

// targetResolution picks the vertical canvas. Adaptive mode keeps
// low-resolution inputs at 720x1280 so they are not wastefully upscaled.
func targetResolution(sourceWidth int, adaptive bool) (int, int) {
	if adaptive && sourceWidth <= 720 {
		return 720, 1280
	}
	return 1080, 1920
}

func buildVerticalFilter(width, height, targetW, targetH, blurSigma int, subtitlePath, subtitleStyle string) string {
	var parts []string

	if width > height {
		// Landscape: blurred fill background with the original centered
		// on top at fit scale.
		scale := minFloat(float64(targetW)/float64(width), float64(targetH)/float64(height))
		scaledW := int(float64(width) * scale)
		scaledH := int(float64(height) * scale)
		xOff := (targetW - scaledW) / 2
		yOff := (targetH - scaledH) / 2

		parts = []string{
			fmt.Sprintf("[0:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,gblur=sigma=%d[bg]",
				targetW, targetH, targetW, targetH, blurSigma),
			fmt.Sprintf("[0:v]scale=%d:%d[fg]", scaledW, scaledH),
			fmt.Sprintf("[bg][fg]overlay=%d:%d[video]", xOff, yOff),
		}
	} else {
		parts = []string{
			fmt.Sprintf("[0:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d[video]",
				targetW, targetH, targetW, targetH),
		}
	}

	if subtitlePath != "" {
		parts = append(parts, fmt.Sprintf("[video]subtitles='%s':force_style='%s'[final]",
			escapeFilterPath(subtitlePath), subtitleStyle))
	} else {
		parts = append(parts, "[video]null[final]")
	}

	return strings.Join(parts, ";")
}

func verifyOutput(path string, minBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Mark(errors.New("output file was not created"), domain.ErrTransform)
	}
	if info.Size() < minBytes {
		return errors.Mark(
			errors.Newf("output file is too small (%s), encoding likely failed",
				humanize.Bytes(uint64(info.Size()))),
			domain.ErrTransform)
	}
	return nil
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

// escapeFilterPath escapes a path for use inside an ffmpeg filter argument.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `\\`)
	p = strings.ReplaceAll(p, ":", `\:`)
	return p
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
