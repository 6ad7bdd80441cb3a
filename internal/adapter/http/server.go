// Package http is the HTTP adapter for the video processing service.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/muhammadegaa/reely/internal/domain"
)

// Prerequisites reports which external requirements are available, for the
// health endpoint.
type Prerequisites func() map[string]bool

// Server is the HTTP adapter exposing the job API.
type Server struct {
	svc     *domain.JobService
	mux     *http.ServeMux
	server  *http.Server
	prereqs Prerequisites
	log     *zap.SugaredLogger
}

// NewServer creates a new HTTP server.
func NewServer(svc *domain.JobService, addr string, prereqs Prerequisites, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		svc:     svc,
		mux:     http.NewServeMux(),
		prereqs: prereqs,
		log:     log,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /trim", s.handleTrim)
	s.mux.HandleFunc("POST /hooks", s.handleHooks)
	s.mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("GET /jobs/{id}/download", s.handleDownload)
	s.mux.HandleFunc("POST /jobs/{id}/cancel", s.handleCancel)
	s.mux.HandleFunc("DELETE /jobs/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// timestamp accepts both JSON numbers (seconds) and strings in HH:MM:SS,
// MM:SS, or plain-seconds form.
type timestamp float64

func (t *timestamp) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*t = timestamp(num)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("timestamp must be a number or a string")
	}
	sec, err := domain.ParseTimestamp(str)
	if err != nil {
		return err
	}
	*t = timestamp(sec)
	return nil
}

// trimRequest is the request body for POST /trim.
type trimRequest struct {
	URL            string    `json:"url"`
	StartTime      timestamp `json:"start_time"`
	EndTime        timestamp `json:"end_time"`
	VerticalFormat bool      `json:"vertical_format"`
	AddSubtitles   bool      `json:"add_subtitles"`
}

// hooksRequest is the request body for POST /hooks.
type hooksRequest struct {
	URL        string `json:"url"`
	AIProvider string `json:"ai_provider"`
}

// jobResponse is the JSON response for job endpoints.
type jobResponse struct {
	ID        string         `json:"job_id"`
	Kind      string         `json:"kind"`
	URL       string         `json:"url"`
	Status    string         `json:"status"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message,omitempty"`
	Result    *domain.Result `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Attempts  int            `json:"attempts"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleTrim(w http.ResponseWriter, r *http.Request) {
	var req trimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	job, err := s.svc.SubmitTrim(r.Context(), clientIdentity(r), domain.TrimRequest{
		URL:            req.URL,
		StartTime:      float64(req.StartTime),
		EndTime:        float64(req.EndTime),
		VerticalFormat: req.VerticalFormat,
		AddSubtitles:   req.AddSubtitles,
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, jobToResponse(job))
}

func (s *Server) handleHooks(w http.ResponseWriter, r *http.Request) {
	var req hooksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	job, err := s.svc.SubmitHooks(r.Context(), clientIdentity(r), domain.HooksRequest{
		URL:        req.URL,
		AIProvider: req.AIProvider,
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, jobToResponse(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	path, err := s.svc.OutputPath(r.Context(), job.ID)
	if err != nil {
		s.writeError(w, http.StatusConflict, "job has no downloadable result yet")
		return
	}
	if _, err := os.Stat(path); err != nil {
		s.writeError(w, http.StatusGone, "output file no longer exists")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="trimmed_video.mp4"`)
	http.ServeFile(w, r, path)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	if err := s.svc.Cancel(r.Context(), job.ID); err != nil {
		s.log.Errorw("cancel failed", "job_id", job.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	job, err := s.svc.Get(r.Context(), job.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	if err := s.svc.Cleanup(r.Context(), job.ID); err != nil {
		s.log.Errorw("cleanup failed", "job_id", job.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.prereqs != nil {
		resp["prerequisites"] = s.prereqs()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	id := r.PathValue("id")
	job, err := s.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return nil, false
		}
		s.log.Errorw("get job failed", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return job, true
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidURL):
		s.writeError(w, http.StatusBadRequest, "invalid YouTube URL")
	case errors.Is(err, domain.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Errorw("submit failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func jobToResponse(job *domain.Job) jobResponse {
	return jobResponse{
		ID:        job.ID,
		Kind:      string(job.Kind),
		URL:       job.URL,
		Status:    string(job.Status),
		Progress:  job.Progress,
		Message:   job.Message,
		Result:    job.Result,
		Error:     job.Error,
		Attempts:  job.Attempts,
		CreatedAt: job.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt: job.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// clientIdentity is what the access gate keys on. Deployments behind a
// proxy get the original caller via X-Forwarded-For.
func clientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx >= 0 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Port extracts the port from the address.
func (s *Server) Port() int {
	addr := s.server.Addr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		port, _ := strconv.Atoi(addr[idx+1:])
		return port
	}
	return 0
}
