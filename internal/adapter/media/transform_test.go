package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammadegaa/reely/internal/domain"
)

func TestTargetResolution(t *testing.T) {
	tests := []struct {
		name     string
		width    int
		adaptive bool
		wantW    int
		wantH    int
	}{
		{"fixed always full hd", 640, false, 1080, 1920},
		{"adaptive low res", 640, true, 720, 1280},
		{"adaptive boundary", 720, true, 720, 1280},
		{"adaptive high res", 1920, true, 1080, 1920},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := targetResolution(tt.width, tt.adaptive)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestBuildVerticalFilter_Landscape(t *testing.T) {
	filter := buildVerticalFilter(1920, 1080, 1080, 1920, 20, "", "")

	assert.Contains(t, filter, "gblur=sigma=20")
	assert.Contains(t, filter, "[bg][fg]overlay=")
	assert.Contains(t, filter, "[video]null[final]")

	// 1920x1080 fit into 1080x1920 scales to 1080x607, centered vertically.
	assert.Contains(t, filter, "[0:v]scale=1080:607[fg]")
	assert.Contains(t, filter, "overlay=0:656")
}

func TestBuildVerticalFilter_Portrait(t *testing.T) {
	filter := buildVerticalFilter(720, 1280, 1080, 1920, 20, "", "")

	assert.NotContains(t, filter, "gblur")
	assert.NotContains(t, filter, "overlay")
	assert.Contains(t, filter, "scale=1080:1920:force_original_aspect_ratio=increase,crop=1080:1920")
}

func TestBuildVerticalFilter_Subtitles(t *testing.T) {
	style := "FontName=Arial,FontSize=24"
	filter := buildVerticalFilter(1920, 1080, 1080, 1920, 20, "/tmp/subs.srt", style)

	assert.Contains(t, filter, "subtitles='/tmp/subs.srt'")
	assert.Contains(t, filter, "force_style='"+style+"'")
	assert.True(t, strings.HasSuffix(filter, "[final]"))
	assert.NotContains(t, filter, "null[final]")
}

func TestEscapeFilterPath(t *testing.T) {
	assert.Equal(t, `/tmp/subs.srt`, escapeFilterPath("/tmp/subs.srt"))
	assert.Equal(t, `C\:\\work\\subs.srt`, escapeFilterPath(`C:\work\subs.srt`))
}

func TestVerifyOutput(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		err := verifyOutput(filepath.Join(dir, "missing.mp4"), minTrimBytes)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrTransform))
	})

	t.Run("too small", func(t *testing.T) {
		path := filepath.Join(dir, "tiny.mp4")
		require.NoError(t, os.WriteFile(path, []byte("stub"), 0o644))

		err := verifyOutput(path, minTrimBytes)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrTransform))
		assert.Contains(t, err.Error(), "too small")
	})

	t.Run("large enough", func(t *testing.T) {
		path := filepath.Join(dir, "ok.mp4")
		require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o644))

		assert.NoError(t, verifyOutput(path, minTrimBytes))
	})
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "0.000", formatSeconds(0))
	assert.Equal(t, "90.500", formatSeconds(90.5))
}
