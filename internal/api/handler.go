package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gwlsn/clipper/internal/browse"
	"github.com/gwlsn/clipper/internal/config"
	"github.com/gwlsn/clipper/internal/ffmpeg"
	"github.com/gwlsn/clipper/internal/jobs"
	"github.com/gwlsn/clipper/internal/ntfy"
	"github.com/hashicorp/go-hclog"
)

// sseKeepAlive is how often an idle event stream gets a comment line
const sseKeepAlive = 30 * time.Second

// Handler provides HTTP API handlers
type Handler struct {
	runner      *jobs.Runner
	prober      *ffmpeg.Prober
	thumbnailer *ffmpeg.Thumbnailer
	formats     *ffmpeg.Capabilities
	browser     *browse.Browser
	cfg         *config.Config
	ntfy        *ntfy.Client
	logger      hclog.Logger
}

// NewHandler creates a new API handler
func NewHandler(runner *jobs.Runner, prober *ffmpeg.Prober, thumbnailer *ffmpeg.Thumbnailer,
	formats *ffmpeg.Capabilities, cfg *config.Config, logger hclog.Logger) *Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Handler{
		runner:      runner,
		prober:      prober,
		thumbnailer: thumbnailer,
		formats:     formats,
		browser:     browse.NewBrowser(prober, cfg.GetMediaRoot(), logger),
		cfg:         cfg,
		ntfy:        ntfy.NewClient(cfg.NtfyServer, cfg.NtfyTopic, cfg.NtfyToken),
		logger:      logger.Named("api"),
	}
}

// response helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a JSON request body into v. An empty body leaves v as is.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// PathRequest is the request body for endpoints that act on one file
type PathRequest struct {
	Path string `json:"path"`
}

// OptionsRequest carries transcode options. Options default to the
// configured defaults; Preset, if set, is applied on top.
type OptionsRequest struct {
	Path       string          `json:"path"`
	OutputPath string          `json:"output_path,omitempty"`
	Options    *ffmpeg.Options `json:"options,omitempty"`
	Preset     string          `json:"preset,omitempty"`
}

// newOptionsRequest returns a request whose options start as a copy of the
// configured defaults, so a decoded body only overrides the fields it names
func (h *Handler) newOptionsRequest() OptionsRequest {
	defaults := h.cfg.Defaults
	if defaults.TrimEndSeconds != nil {
		defaults = defaults.WithTrimEnd(*defaults.TrimEndSeconds)
	}
	return OptionsRequest{Options: &defaults}
}

// resolveOptions applies the request's preset, falling back to the
// configured defaults when options were sent as null
func (h *Handler) resolveOptions(req OptionsRequest) (ffmpeg.Options, error) {
	opts := h.cfg.Defaults
	if req.Options != nil {
		opts = *req.Options
	}
	if req.Preset != "" {
		return ffmpeg.ApplyPreset(opts, req.Preset)
	}
	return opts, nil
}

// Presets handles GET /api/presets
func (h *Handler) Presets(w http.ResponseWriter, r *http.Request) {
	presets := ffmpeg.ListPresets()
	writeJSON(w, http.StatusOK, presets)
}

// Formats handles GET /api/formats
func (h *Handler) Formats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.formats.Detect(r.Context()))
}

// Browse handles GET /api/browse?path=
// An empty path lists the media root
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	listing, err := h.browser.List(r.Context(), r.URL.Query().Get("path"))
	switch {
	case errors.Is(err, browse.ErrOutsideRoot):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, os.ErrNotExist):
		writeError(w, http.StatusNotFound, "directory not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Probe handles POST /api/probe
func (h *Handler) Probe(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeBody(r, &req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	info, err := h.prober.Inspect(r.Context(), req.Path)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ArgsRequest is the request body for POST /api/args
type ArgsRequest struct {
	OptionsRequest
	Duration *float64 `json:"duration,omitempty"` // seconds; probed when omitted
}

// ArgsResponse describes the commands a job would run
type ArgsResponse struct {
	ProbeArgs  []string         `json:"probe_args"`
	FFmpegArgs []string         `json:"ffmpeg_args"`
	OutputPath string           `json:"output_path"`
	Duration   float64          `json:"duration"`
	Estimate   *ffmpeg.Estimate `json:"estimate"`
}

// Args handles POST /api/args
func (h *Handler) Args(w http.ResponseWriter, r *http.Request) {
	req := ArgsRequest{OptionsRequest: h.newOptionsRequest()}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	opts, err := h.resolveOptions(req.OptionsRequest)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var duration float64
	if req.Duration != nil {
		duration = *req.Duration
	} else if d, err := h.prober.Duration(r.Context(), req.Path); err == nil {
		duration = d
	} else {
		h.logger.Debug("duration probe failed", "path", req.Path, "error", err)
	}

	if err := opts.Validate(duration); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = ffmpeg.DefaultOutputPath(req.Path, opts.Format)
	}

	src := ffmpeg.Source{Path: req.Path, Duration: duration}
	writeJSON(w, http.StatusOK, ArgsResponse{
		ProbeArgs:  ffmpeg.BuildProbeArgs(req.Path),
		FFmpegArgs: ffmpeg.BuildTranscodeArgs(src, opts, outputPath),
		OutputPath: outputPath,
		Duration:   duration,
		Estimate:   ffmpeg.EstimateOutput(opts, duration),
	})
}

// Thumbnail handles POST /api/thumbnail
func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeBody(r, &req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	path, err := h.thumbnailer.Generate(r.Context(), req.Path)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	uri, err := ffmpeg.ThumbnailDataURI(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"path":     path,
		"data_uri": uri,
	})
}

// CreateJob handles POST /api/jobs
// Responds immediately; progress is delivered over the event stream
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	req := h.newOptionsRequest()
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts, err := h.resolveOptions(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.runner.Start(jobs.StartRequest{
		InputPath:  req.Path,
		OutputPath: req.OutputPath,
		Options:    opts,
	})
	if errors.Is(err, jobs.ErrBusy) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// CurrentJob handles GET /api/jobs/current
func (h *Handler) CurrentJob(w http.ResponseWriter, r *http.Request) {
	job := h.runner.Current()
	if job == nil {
		writeError(w, http.StatusNotFound, "no job has run")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob handles DELETE /api/jobs/current
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Cancel(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// PauseJob handles POST /api/jobs/current/pause
func (h *Handler) PauseJob(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Pause(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// ResumeJob handles POST /api/jobs/current/resume
func (h *Handler) ResumeJob(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Resume(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// JobStream handles GET /api/jobs/stream as server-sent events
func (h *Handler) JobStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := h.runner.Subscribe()
	defer h.runner.Unsubscribe(events)

	// Late subscribers get the current state first
	if job := h.runner.Current(); job != nil {
		writeEvent(w, jobs.JobEvent{Type: "snapshot", Job: job})
	}
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				h.logger.Debug("event stream closed", "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, ev jobs.JobEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

// GetConfig handles GET /api/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	// Return a sanitized config (the ntfy token is not exposed)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ffmpeg_path":      h.cfg.FFmpegPath,
		"ffprobe_path":     h.cfg.FFprobePath,
		"media_root":       h.browser.Root(),
		"thumbnail_dir":    h.cfg.GetThumbnailDir(),
		"thumbnail_offset": h.cfg.ThumbnailOffset,
		"transcript_lines": h.cfg.TranscriptLines,
		"ntfy_server":      h.cfg.NtfyServer,
		"ntfy_topic":       h.cfg.NtfyTopic,
		"ntfy_configured":  h.ntfy.IsConfigured() && h.cfg.NtfyEnabled(),
		"defaults":         h.cfg.Defaults,
		"presets":          ffmpeg.ListPresets(),
		"limits": map[string]interface{}{
			"min_crf":        ffmpeg.MinCRF,
			"max_crf":        ffmpeg.MaxCRF,
			"min_speed":      ffmpeg.MinSpeed,
			"max_speed":      ffmpeg.MaxSpeed,
			"audio_bitrates": ffmpeg.AudioBitrates,
		},
	})
}

// TestNtfy handles POST /api/ntfy/test
func (h *Handler) TestNtfy(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.NtfyEnabled() {
		writeError(w, http.StatusBadRequest, "ntfy topic not configured")
		return
	}

	if err := h.ntfy.Test(r.Context()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "Test notification sent"})
}
