package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gwlsn/clipper/internal/ffmpeg"
	"github.com/hashicorp/go-hclog"
)

var (
	// ErrBusy is returned by Start while another job is active
	ErrBusy = errors.New("a conversion is already running")

	// ErrNoActiveJob is returned when there is no running job to act on
	ErrNoActiveJob = errors.New("no active conversion")

	// ErrSameOutput is returned when the output would overwrite the input
	ErrSameOutput = errors.New("output path must differ from the input path")
)

// Prober reads the source duration in seconds
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Encoder runs one transcode at a time
type Encoder interface {
	Encode(ctx context.Context, req ffmpeg.EncodeRequest, onEvent func(ffmpeg.Event)) (*ffmpeg.TranscodeResult, error)
	Pause() bool
	Resume() bool
}

// Notifier is told about finished jobs
type Notifier interface {
	Send(ctx context.Context, title, message string) error
}

// FormatChecker reports whether the encoder can produce a format
type FormatChecker interface {
	Supports(format ffmpeg.Format) bool
}

// RunnerConfig wires a Runner's collaborators. Notifier and Formats are
// optional.
type RunnerConfig struct {
	Prober          Prober
	Encoder         Encoder
	Notifier        Notifier
	Formats         FormatChecker
	TranscriptLines int
	Logger          hclog.Logger
}

// StartRequest describes a conversion to start
type StartRequest struct {
	InputPath  string         `json:"path"`
	OutputPath string         `json:"output_path,omitempty"` // defaults to <name>_converted.<ext>
	Options    ffmpeg.Options `json:"options"`
}

// Runner owns the single active conversion
type Runner struct {
	prober          Prober
	encoder         Encoder
	notifier        Notifier
	formats         FormatChecker
	transcriptLines int
	logger          hclog.Logger

	mu     sync.RWMutex
	job    *Job // current or most recent job
	cancel context.CancelFunc
	done   chan struct{}

	// Subscribers for job events
	subsMu      sync.RWMutex
	subscribers map[chan JobEvent]struct{}
}

// NewRunner creates a runner with no job
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	lines := cfg.TranscriptLines
	if lines < 1 {
		lines = 100
	}
	return &Runner{
		prober:          cfg.Prober,
		encoder:         cfg.Encoder,
		notifier:        cfg.Notifier,
		formats:         cfg.Formats,
		transcriptLines: lines,
		logger:          logger.Named("jobs"),
		subscribers:     make(map[chan JobEvent]struct{}),
	}
}

// Start begins a conversion in the background and returns a snapshot of the
// new job. It returns ErrBusy while another job is active and a validation
// error for unusable options.
func (r *Runner) Start(req StartRequest) (*Job, error) {
	run, err := r.begin(context.Background(), req)
	if err != nil {
		return nil, err
	}
	snapshot := r.snapshot(run.job)
	go r.execute(run)
	return snapshot, nil
}

// Run performs a conversion and blocks until it finishes. Cancelling ctx
// cancels the job. The returned job is the final snapshot; its error, if
// any, is also returned.
func (r *Runner) Run(ctx context.Context, req StartRequest) (*Job, error) {
	run, err := r.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	r.execute(run)

	final := r.snapshot(run.job)
	switch final.Status {
	case StatusCancelled:
		return final, context.Canceled
	case StatusFailed:
		return final, errors.New(final.Error)
	}
	return final, nil
}

// Wait blocks until the active job, if any, has finished
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.RLock()
	done := r.done
	r.mu.RUnlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jobRun carries one job through execute
type jobRun struct {
	job    *Job
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *Runner) begin(parent context.Context, req StartRequest) (*jobRun, error) {
	if req.InputPath == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if err := req.Options.Validate(0); err != nil {
		return nil, err
	}
	if r.formats != nil && !r.formats.Supports(req.Options.Format) {
		return nil, fmt.Errorf("format: %s is not supported by the installed ffmpeg", req.Options.Format)
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = ffmpeg.DefaultOutputPath(req.InputPath, req.Options.Format)
	}
	if filepath.Clean(outputPath) == filepath.Clean(req.InputPath) {
		return nil, ErrSameOutput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.job != nil && !r.job.IsTerminal() {
		return nil, ErrBusy
	}

	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	run := &jobRun{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	r.job = &Job{
		ID:         uuid.NewString(),
		InputPath:  req.InputPath,
		OutputPath: outputPath,
		Options:    req.Options,
		Status:     StatusProbing,
		CreatedAt:  now,
		StartedAt:  now,
	}
	run.job = r.job
	r.cancel = cancel
	r.done = run.done
	r.appendLineLocked(fmt.Sprintf("Starting conversion: %s -> %s", req.InputPath, outputPath), "")

	r.broadcast(JobEvent{Type: EventStarted, Job: r.job.clone(false)})
	r.logger.Info("job started", "id", r.job.ID, "input", req.InputPath, "output", outputPath)
	return run, nil
}

// execute runs the probe and encode for a job. The job is only touched
// under r.mu.
func (r *Runner) execute(run *jobRun) {
	ctx, job := run.ctx, run.job
	defer func() {
		run.cancel()
		close(run.done)
	}()

	duration, err := r.prober.Duration(ctx, job.InputPath)
	if ctx.Err() != nil {
		r.finishCancelled(job)
		return
	}

	r.mu.Lock()
	if err != nil {
		duration = 0
		// Progress can still be learned from ffmpeg's own output
		r.logger.Warn("duration probe failed, continuing", "id", job.ID, "error", err)
		r.appendLineLocked("Could not read source duration: "+err.Error(), "")
	}
	job.Duration = duration
	// Options were checked without a duration in begin; trims past the end
	// are only detectable now
	if duration > 0 {
		if verr := job.Options.Validate(duration); verr != nil {
			r.mu.Unlock()
			r.finishFailed(job, verr)
			return
		}
	}
	job.TotalDuration = job.Options.OutputDuration(duration)
	src := ffmpeg.Source{Path: job.InputPath, Duration: duration}
	job.FFmpegArgs = ffmpeg.BuildTranscodeArgs(src, job.Options, job.OutputPath)
	job.Status = StatusRunning
	r.appendLineLocked("Command: ffmpeg "+strings.Join(job.FFmpegArgs, " "), "")
	r.mu.Unlock()

	result, err := r.encoder.Encode(ctx, ffmpeg.EncodeRequest{
		Source:     src,
		Options:    job.Options,
		OutputPath: job.OutputPath,
	}, func(ev ffmpeg.Event) {
		r.handleEvent(job, ev)
	})

	switch {
	case ctx.Err() != nil:
		r.finishCancelled(job)
	case err != nil:
		r.finishFailed(job, err)
	default:
		r.finishComplete(job, result)
	}
}

// handleEvent applies one telemetry event to the job
func (r *Runner) handleEvent(job *Job, ev ffmpeg.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case ffmpeg.EventLine:
		line := r.appendLineLocked(ev.Line, ev.Stream)
		r.broadcast(JobEvent{Type: EventLine, Line: &line})

	case ffmpeg.EventDuration:
		job.TotalDuration = ev.Duration
		r.broadcast(JobEvent{Type: EventDuration, ProgressUpdate: job.progressUpdate()})

	case ffmpeg.EventProgress:
		job.Progress = ev.Fraction * 100
		r.broadcast(JobEvent{Type: EventProgress, ProgressUpdate: job.progressUpdate()})

	case ffmpeg.EventMilestone:
		job.Milestone = ev.Percent
		r.appendLineLocked(fmt.Sprintf("Progress: %d%%", ev.Percent), "")
		r.logger.Info("progress", "id", job.ID, "percent", ev.Percent)
		r.broadcast(JobEvent{Type: EventMilestone, ProgressUpdate: job.progressUpdate()})

	case ffmpeg.EventCompleted:
		job.ExitCode = ev.ExitCode
		job.Progress = ev.Fraction * 100
		if ev.Success {
			r.appendLineLocked("Conversion successful", "")
		} else {
			r.appendLineLocked(fmt.Sprintf("Error: process finished with code %d", ev.ExitCode), "")
		}
	}
}

func (j *Job) progressUpdate() *ProgressUpdate {
	return &ProgressUpdate{
		ID:            j.ID,
		Progress:      j.Progress,
		Milestone:     j.Milestone,
		TotalDuration: j.TotalDuration,
	}
}

func (r *Runner) finishComplete(job *Job, result *ffmpeg.TranscodeResult) {
	r.mu.Lock()
	job.Status = StatusComplete
	job.Paused = false
	job.Progress = 100
	job.CompletedAt = time.Now()
	if result != nil {
		job.InputSize = result.InputSize
		job.OutputSize = result.OutputSize
	}
	snapshot := job.clone(false)
	r.broadcast(JobEvent{Type: EventComplete, Job: snapshot})
	r.mu.Unlock()

	r.logger.Info("job complete", "id", job.ID, "output", job.OutputPath,
		"size", snapshot.OutputSize, "elapsed", snapshot.Elapsed())
	r.notify("Conversion complete", fmt.Sprintf("%s is ready", filepath.Base(snapshot.OutputPath)))
}

func (r *Runner) finishFailed(job *Job, err error) {
	r.mu.Lock()
	job.Status = StatusFailed
	job.Paused = false
	job.Error = err.Error()
	job.CompletedAt = time.Now()

	var tErr *ffmpeg.TranscodeError
	if errors.As(err, &tErr) {
		job.Stderr = tErr.Stderr
		job.ExitCode = tErr.ExitCode
	} else {
		// The process never ran
		job.ExitCode = -1
		r.appendLineLocked("Error: "+err.Error(), "")
	}
	snapshot := job.clone(false)
	r.broadcast(JobEvent{Type: EventFailed, Job: snapshot})
	r.mu.Unlock()

	r.logger.Error("job failed", "id", job.ID, "exit_code", snapshot.ExitCode, "error", err)
	r.notify("Conversion failed", fmt.Sprintf("%s: %s", filepath.Base(snapshot.InputPath), snapshot.Error))
}

func (r *Runner) finishCancelled(job *Job) {
	r.mu.Lock()
	job.Status = StatusCancelled
	job.Paused = false
	job.CompletedAt = time.Now()
	r.appendLineLocked("Conversion cancelled", "")
	r.broadcast(JobEvent{Type: EventCancelled, Job: job.clone(false)})
	r.mu.Unlock()

	r.logger.Info("job cancelled", "id", job.ID)
}

// notify sends a notification without holding up the runner
func (r *Runner) notify(title, message string) {
	if r.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := r.notifier.Send(ctx, title, message); err != nil {
			r.logger.Warn("notification failed", "error", err)
		}
	}()
}

// appendLineLocked adds a transcript line (must be called with r.mu held)
func (r *Runner) appendLineLocked(text string, stream ffmpeg.Stream) TranscriptLine {
	line := newTranscriptLine(text, stream)
	r.job.Transcript = appendBounded(r.job.Transcript, line, r.transcriptLines)
	return line
}

// activeLocked returns the running job or nil
func (r *Runner) activeLocked() *Job {
	if r.job == nil || r.job.IsTerminal() {
		return nil
	}
	return r.job
}

// Cancel stops the active job. The partial output is left on disk.
func (r *Runner) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeLocked() == nil {
		return ErrNoActiveJob
	}
	r.cancel()
	return nil
}

// Pause suspends the encoder process
func (r *Runner) Pause() error {
	return r.setPaused(true)
}

// Resume continues a paused encoder process
func (r *Runner) Resume() error {
	return r.setPaused(false)
}

func (r *Runner) setPaused(paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := r.activeLocked()
	if job == nil || job.Status != StatusRunning {
		return ErrNoActiveJob
	}
	if job.Paused == paused {
		return nil
	}

	var ok bool
	eventType := EventResumed
	if paused {
		ok = r.encoder.Pause()
		eventType = EventPaused
	} else {
		ok = r.encoder.Resume()
	}
	if !ok {
		return fmt.Errorf("encoder process is not running")
	}

	job.Paused = paused
	r.broadcast(JobEvent{Type: eventType, Job: job.clone(false)})
	return nil
}

func (r *Runner) snapshot(job *Job) *Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return job.clone(true)
}

// Current returns a snapshot of the current or most recent job, including its
// transcript, or nil if no job has run
func (r *Runner) Current() *Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.job == nil {
		return nil
	}
	return r.job.clone(true)
}

// Subscribe returns a channel that receives job events
func (r *Runner) Subscribe() chan JobEvent {
	ch := make(chan JobEvent, 100)

	r.subsMu.Lock()
	r.subscribers[ch] = struct{}{}
	r.subsMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription
func (r *Runner) Unsubscribe(ch chan JobEvent) {
	r.subsMu.Lock()
	delete(r.subscribers, ch)
	r.subsMu.Unlock()

	close(ch)
}

// broadcast sends an event to all subscribers
func (r *Runner) broadcast(event JobEvent) {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()

	for ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip this subscriber
		}
	}
}
