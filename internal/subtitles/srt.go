// Package subtitles renders transcript segments as SRT files for burning
// into video.
package subtitles

import (
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/muhammadegaa/reely/internal/domain"
)

const (
	// Segments with less text than this are noise (breaths, fragments)
	// and are dropped.
	minTextLength = 4

	// Lines longer than this are wrapped so they fit a vertical frame.
	maxLineLength = 40
	wrapAtColumn  = 35
)

// WriteSRT writes the transcript segments that overlap the window
// [start, end) to path as an SRT file, with timestamps rebased so the
// window starts at zero. It returns the written path, or "" with a nil
// error when no usable segment falls inside the window.
func WriteSRT(segments []domain.TranscriptSegment, start, end float64, path string) (string, error) {
	var sb strings.Builder
	index := 0

	for _, seg := range segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}

		text := strings.TrimSpace(seg.Text)
		if len(text) < minTextLength {
			continue
		}

		segStart := seg.Start - start
		segEnd := seg.End - start
		if segStart < 0 {
			segStart = 0
		}
		if segEnd > end-start {
			segEnd = end - start
		}
		if segEnd <= segStart {
			continue
		}

		index++
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n",
			index, formatSRTTime(segStart), formatSRTTime(segEnd), wrapText(text))
	}

	if index == 0 {
		return "", nil
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", errors.Wrap(err, "write subtitle file")
	}
	return path, nil
}

// wrapText breaks long lines at word boundaries so the burned subtitles
// stay within the frame on a 9:16 canvas.
func wrapText(text string) string {
	if len(text) <= maxLineLength {
		return text
	}

	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len() > 0 && current.Len()+1+len(word) > wrapAtColumn {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return strings.Join(lines, "\n")
}

// formatSRTTime renders seconds as the SRT timestamp HH:MM:SS,mmm.
func formatSRTTime(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	millis := int(sec*1000 + 0.5)
	h := millis / 3600000
	m := millis % 3600000 / 60000
	s := millis % 60000 / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
