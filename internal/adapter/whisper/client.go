// Package whisper transcribes audio via an OpenAI-compatible Whisper API.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/muhammadegaa/reely/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "whisper-1"

	// Files above this size are split into chunks before upload; the API
	// rejects uploads over 25MB and large single requests are slow anyway.
	maxUploadBytes = 20 * 1024 * 1024

	maxAttempts    = 3
	requestTimeout = 5 * time.Minute
)

// MediaTool is the slice of the media engine the transcriber needs.
type MediaTool interface {
	Duration(ctx context.Context, path string) (float64, error)
	ExtractAudioSegment(ctx context.Context, in, out string, start, duration float64) error
	CopyAudioSegment(ctx context.Context, in, out string, start, duration float64) error
}

// Client calls a Whisper-compatible transcription endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	media   MediaTool
	log     *zap.SugaredLogger
}

// New creates a transcription client. baseURL and model fall back to the
// OpenAI hosted service defaults.
func New(baseURL, apiKey, model string, media MediaTool, log *zap.SugaredLogger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: requestTimeout},
		media:   media,
		log:     log,
	}
}

type apiResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe transcribes the audio file at path. Oversized files are split
// into chunks and the per chunk timestamps rebased onto the original
// timeline, so callers always see source-relative segment times.
func (c *Client) Transcribe(ctx context.Context, path string) (*domain.Transcript, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "stat audio file"), domain.ErrTranscription)
	}

	if info.Size() <= maxUploadBytes {
		return c.transcribeFile(ctx, path, 0)
	}
	return c.transcribeChunked(ctx, path, info.Size())
}

func (c *Client) transcribeChunked(ctx context.Context, path string, size int64) (*domain.Transcript, error) {
	totalDuration, err := c.media.Duration(ctx, path)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "probe audio duration"), domain.ErrTranscription)
	}

	// The 1.2 factor keeps every chunk comfortably under the upload limit
	// even when bitrate is uneven across the file.
	numChunks := int(float64(size)/float64(maxUploadBytes)*1.2 + 0.999)
	if numChunks < 2 {
		numChunks = 2
	}
	chunkDuration := totalDuration / float64(numChunks)

	c.log.Infow("chunking audio for transcription",
		"size", humanize.Bytes(uint64(size)),
		"chunks", numChunks,
		"chunk_seconds", chunkDuration)

	dir := filepath.Dir(path)
	merged := &domain.Transcript{}

	for i := 0; i < numChunks; i++ {
		offset := float64(i) * chunkDuration
		chunkPath := filepath.Join(dir, fmt.Sprintf("chunk_%03d%s", i, filepath.Ext(path)))

		if err := c.media.CopyAudioSegment(ctx, path, chunkPath, offset, chunkDuration); err != nil {
			return nil, errors.Wrapf(err, "split chunk %d", i)
		}

		part, err := c.transcribeFile(ctx, chunkPath, offset)
		os.Remove(chunkPath)
		if err != nil {
			return nil, errors.Wrapf(err, "transcribe chunk %d", i)
		}

		if merged.Text != "" && part.Text != "" {
			merged.Text += " "
		}
		merged.Text += part.Text
		merged.Segments = append(merged.Segments, part.Segments...)
	}

	return merged, nil
}

// transcribeFile uploads one file and rebases its segment timestamps by
// offset seconds. Transient failures are retried with exponential backoff.
func (c *Client) transcribeFile(ctx context.Context, path string, offset float64) (*domain.Transcript, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(1<<(attempt-2)) * time.Second
			c.log.Warnw("retrying transcription", "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.request(ctx, path)
		if err == nil {
			return rebase(resp, offset), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, errors.Mark(errors.Wrapf(lastErr, "transcription failed after %d attempts", maxAttempts), domain.ErrTranscription)
}

func (c *Client) request(ctx context.Context, path string) (*apiResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open audio file")
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, errors.Wrap(err, "create multipart form")
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, errors.Wrap(err, "copy audio into form")
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return nil, err
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "transcription request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read transcription response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("transcription API returned %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrap(err, "decode transcription response")
	}
	return &parsed, nil
}

func rebase(resp *apiResponse, offset float64) *domain.Transcript {
	t := &domain.Transcript{Text: resp.Text}
	for _, s := range resp.Segments {
		t.Segments = append(t.Segments, domain.TranscriptSegment{
			Start: s.Start + offset,
			End:   s.End + offset,
			Text:  s.Text,
		})
	}
	return t
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
