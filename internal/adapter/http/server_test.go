package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammadegaa/reely/internal/adapter/sqlite"
	"github.com/muhammadegaa/reely/internal/domain"
)

func newTestServer(t *testing.T) (*Server, *domain.JobService, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := domain.NewJobService(store, domain.AllowAllGate{})
	srv := NewServer(svc, ":0", func() map[string]bool {
		return map[string]bool{"ffmpeg": true, "yt_dlp": true}
	}, nil)
	return srv, svc, store
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) jobResponse {
	t.Helper()
	var resp jobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func TestHandleTrim(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/trim", map[string]any{
		"url":        testURL,
		"start_time": 10,
		"end_time":   40,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decodeJob(t, rec)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, "trim", resp.Kind)
}

func TestHandleTrim_StringTimestamps(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/trim", map[string]any{
		"url":        testURL,
		"start_time": "01:30",
		"end_time":   "00:02:15",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decodeJob(t, rec)
	job, err := svc.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, 90.0, job.StartTime)
	assert.Equal(t, 135.0, job.EndTime)
}

func TestHandleTrim_Validation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing url", map[string]any{"start_time": 0, "end_time": 10}},
		{"bad url", map[string]any{"url": "https://vimeo.com/123", "start_time": 0, "end_time": 10}},
		{"end before start", map[string]any{"url": testURL, "start_time": 40, "end_time": 10}},
		{"bad timestamp string", map[string]any{"url": testURL, "start_time": "abc", "end_time": 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/trim", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleHooks(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/hooks", map[string]any{"url": testURL})
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decodeJob(t, rec)
	assert.Equal(t, "hook_detection", resp.Kind)

	job, err := svc.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "openai", job.AIProvider)
}

func TestHandleGetJob(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	job, err := svc.SubmitTrim(context.Background(), "test", domain.TrimRequest{
		URL: testURL, StartTime: 0, EndTime: 10,
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodGet, "/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, job.ID, decodeJob(t, rec).ID)

	rec = doJSON(t, srv, http.MethodGet, "/jobs/unknown-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDownload(t *testing.T) {
	srv, svc, store := newTestServer(t)

	job, err := svc.SubmitTrim(context.Background(), "test", domain.TrimRequest{
		URL: testURL, StartTime: 0, EndTime: 10,
	})
	require.NoError(t, err)

	t.Run("not completed yet", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/jobs/"+job.ID+"/download", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("completed", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "output.mp4")
		require.NoError(t, os.WriteFile(out, []byte("video bytes"), 0o644))

		// March the job through the pipeline states the way an executor
		// would; the store rejects shortcuts.
		require.NoError(t, store.Claim(context.Background(), job.ID))
		processing := domain.StatusProcessing
		require.NoError(t, store.Update(context.Background(), job.ID, domain.JobUpdate{Status: &processing}))

		status := domain.StatusCompleted
		require.NoError(t, store.Update(context.Background(), job.ID, domain.JobUpdate{
			Status: &status,
			Result: &domain.Result{FilePath: out},
		}))

		rec := doJSON(t, srv, http.MethodGet, "/jobs/"+job.ID+"/download", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "video bytes", rec.Body.String())
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	})
}

func TestHandleCancel(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	job, err := svc.SubmitHooks(context.Background(), "test", domain.HooksRequest{URL: testURL})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/jobs/"+job.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeJob(t, rec).Status)
}

func TestHandleDelete(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	job, err := svc.SubmitHooks(context.Background(), "test", domain.HooksRequest{URL: testURL})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodDelete, "/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status        string          `json:"status"`
		Prerequisites map[string]bool `json:"prerequisites"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Prerequisites["ffmpeg"])
}

func TestTimestampUnmarshal(t *testing.T) {
	var ts timestamp

	require.NoError(t, json.Unmarshal([]byte("90.5"), &ts))
	assert.Equal(t, timestamp(90.5), ts)

	require.NoError(t, json.Unmarshal([]byte(`"01:02:03"`), &ts))
	assert.Equal(t, timestamp(3723), ts)

	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &ts))
	assert.Error(t, json.Unmarshal([]byte("true"), &ts))
}
