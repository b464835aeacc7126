package jobs

import (
	"time"

	"github.com/gwlsn/clipper/internal/ffmpeg"
)

// Status represents the current state of a job
type Status string

const (
	StatusProbing   Status = "probing" // Reading the source duration
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job represents a single conversion
type Job struct {
	ID            string           `json:"id"`
	InputPath     string           `json:"input_path"`
	OutputPath    string           `json:"output_path"`
	Options       ffmpeg.Options   `json:"options"`
	Status        Status           `json:"status"`
	Paused        bool             `json:"paused"`
	Duration      float64          `json:"duration"`       // Source duration in seconds, 0 if the probe failed
	TotalDuration float64          `json:"total_duration"` // Output timeline the progress is measured against
	Progress      float64          `json:"progress"`       // 0-100
	Milestone     int              `json:"milestone"`      // Last logged multiple of 10%
	Error         string           `json:"error,omitempty"`
	Stderr        string           `json:"stderr,omitempty"`      // Last ~64KB of ffmpeg stderr for diagnostics
	ExitCode      int              `json:"exit_code,omitempty"`   // FFmpeg exit code (0 = success)
	FFmpegArgs    []string         `json:"ffmpeg_args,omitempty"` // FFmpeg command arguments used
	InputSize     int64            `json:"input_size,omitempty"`
	OutputSize    int64            `json:"output_size,omitempty"` // Populated after completion
	CreatedAt     time.Time        `json:"created_at"`
	StartedAt     time.Time        `json:"started_at,omitempty"`
	CompletedAt   time.Time        `json:"completed_at,omitempty"`
	Transcript    []TranscriptLine `json:"transcript,omitempty"`
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == StatusComplete || j.Status == StatusFailed || j.Status == StatusCancelled
}

// Elapsed returns how long the job ran, or has been running
func (j *Job) Elapsed() time.Duration {
	if j.StartedAt.IsZero() {
		return 0
	}
	if j.CompletedAt.IsZero() {
		return time.Since(j.StartedAt)
	}
	return j.CompletedAt.Sub(j.StartedAt)
}

// clone copies the job for handing out of the runner's lock. The transcript
// is only copied when withTranscript is set.
func (j *Job) clone(withTranscript bool) *Job {
	c := *j
	c.FFmpegArgs = append([]string(nil), j.FFmpegArgs...)
	c.Transcript = nil
	if withTranscript {
		c.Transcript = append([]TranscriptLine(nil), j.Transcript...)
	}
	return &c
}

// Event types sent to subscribers
const (
	EventStarted   = "started"
	EventLine      = "line"
	EventDuration  = "duration"
	EventProgress  = "progress"
	EventMilestone = "milestone"
	EventPaused    = "paused"
	EventResumed   = "resumed"
	EventComplete  = "complete"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
)

// JobEvent represents an event for SSE streaming
type JobEvent struct {
	Type string `json:"type"`
	Job  *Job   `json:"job,omitempty"` // Snapshot without transcript, for lifecycle events

	// A single transcript line - used for "line" events
	Line *TranscriptLine `json:"line,omitempty"`

	// Lightweight progress update - used for "progress" and "duration" events
	// Avoids sending the full Job struct for every progress update
	ProgressUpdate *ProgressUpdate `json:"progress_update,omitempty"`
}

// ProgressUpdate contains only the fields that change during transcoding.
type ProgressUpdate struct {
	ID            string  `json:"id"`
	Progress      float64 `json:"progress"`
	Milestone     int     `json:"milestone"`
	TotalDuration float64 `json:"total_duration"`
}
