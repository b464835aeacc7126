package api

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
)

// NewRouter creates a new HTTP router with all API endpoints
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// API routes
	mux.HandleFunc("GET /api/presets", h.Presets)
	mux.HandleFunc("GET /api/formats", h.Formats)
	mux.HandleFunc("GET /api/browse", h.Browse)
	mux.HandleFunc("POST /api/probe", h.Probe)
	mux.HandleFunc("POST /api/args", h.Args)
	mux.HandleFunc("POST /api/thumbnail", h.Thumbnail)

	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/jobs/stream", h.JobStream)
	mux.HandleFunc("GET /api/jobs/current", h.CurrentJob)
	mux.HandleFunc("DELETE /api/jobs/current", h.CancelJob)
	mux.HandleFunc("POST /api/jobs/current/pause", h.PauseJob)
	mux.HandleFunc("POST /api/jobs/current/resume", h.ResumeJob)

	mux.HandleFunc("GET /api/config", h.GetConfig)
	mux.HandleFunc("POST /api/ntfy/test", h.TestNtfy)

	return logRequests(h.logger, mux)
}

// statusRecorder captures the response status for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush passes through so event streams keep working behind the logger
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequests(logger hclog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}
