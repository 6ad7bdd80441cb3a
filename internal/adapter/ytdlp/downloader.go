// Package ytdlp downloads YouTube videos via the yt-dlp command line tool.
package ytdlp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/muhammadegaa/reely/internal/adapter/media"
	"github.com/muhammadegaa/reely/internal/domain"
)

// formatSelectors maps quality tiers to yt-dlp format expressions. Each tier
// carries fallbacks so a download does not fail just because the preferred
// resolution is unavailable.
var formatSelectors = map[domain.Quality]string{
	domain.QualityLow:    "worst[height<=360]/worst",
	domain.QualityMedium: "best[height<=720]/best[height<=480]/best",
	domain.QualityHigh:   "best[height<=1080]/best",
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mkv":  true,
}

// Downloader fetches videos into a scratch directory.
type Downloader struct {
	run    *media.Runner
	binary string
	log    *zap.SugaredLogger
}

// New creates a downloader. binary defaults to "yt-dlp".
func New(run *media.Runner, binary string, log *zap.SugaredLogger) *Downloader {
	if binary == "" {
		binary = "yt-dlp"
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Downloader{run: run, binary: binary, log: log}
}

// Download fetches the video at url into dir at the given quality and
// returns the path of the downloaded file. Low quality downloads get a
// shorter wall clock budget since they are used for audio-only analysis.
func (d *Downloader) Download(ctx context.Context, url string, dir string, quality domain.Quality) (string, error) {
	selector, ok := formatSelectors[quality]
	if !ok {
		selector = formatSelectors[domain.QualityMedium]
	}

	timeout := 10 * time.Minute
	if quality == domain.QualityLow {
		timeout = 5 * time.Minute
	}

	d.log.Infow("downloading video", "url", url, "quality", quality)

	// Title is capped at 50 characters so scratch paths stay short.
	outputTemplate := filepath.Join(dir, "%(title).50s.%(ext)s")
	_, err := d.run.Run(ctx, timeout, d.binary,
		"-f", selector,
		"--no-playlist",
		"--retries", "3",
		"--fragment-retries", "3",
		"--socket-timeout", "30",
		"-o", outputTemplate,
		url,
	)
	if err != nil {
		if errors.Is(err, domain.ErrTimeout) {
			return "", errors.Wrap(err, "download video")
		}
		return "", errors.Mark(errors.Wrap(err, "download video"), domain.ErrDownload)
	}

	path, err := findDownloaded(dir)
	if err != nil {
		return "", errors.Mark(err, domain.ErrDownload)
	}

	path, err = sanitizeName(path)
	if err != nil {
		return "", errors.Mark(err, domain.ErrDownload)
	}

	if info, err := os.Stat(path); err == nil {
		d.log.Infow("download complete", "file", filepath.Base(path), "size", humanize.Bytes(uint64(info.Size())))
	}
	return path, nil
}

// findDownloaded locates the downloaded video in dir. yt-dlp names the file
// after the video title, so the exact name is not known up front.
func findDownloaded(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrap(err, "scan download directory")
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if videoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", errors.New("download completed but no video file was produced")
}

// sanitizeName strips characters from the video title that would break
// later shell-free command invocations or path handling. The file is
// renamed in place when anything changes.
func sanitizeName(path string) (string, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		default:
			return r
		}
	}, name)

	if cleaned == name {
		return path, nil
	}

	renamed := filepath.Join(dir, cleaned)
	if err := os.Rename(path, renamed); err != nil {
		return "", errors.Wrap(err, "sanitize downloaded filename")
	}
	return renamed, nil
}
