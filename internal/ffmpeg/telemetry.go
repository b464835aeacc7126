package ffmpeg

import (
	"math"
	"regexp"
	"strconv"
)

// Timestamp announcements in ffmpeg's diagnostic output. Both require two
// digit hour and minute fields and a fractional seconds part (HH:MM:SS.ff).
var (
	durationPattern = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2}\.\d{2})`)
	positionPattern = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2}\.\d{2})`)
)

// Phase is the interpreter's position in a job's lifecycle
type Phase string

const (
	PhaseAwaitingDuration Phase = "awaiting_duration"
	PhaseTracking         Phase = "tracking"
	PhaseFinished         Phase = "finished"
)

// Stream identifies which output stream of the process a line came from
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// EventKind identifies a telemetry event
type EventKind string

const (
	EventLine      EventKind = "line"      // Every raw line, matched or not
	EventDuration  EventKind = "duration"  // Total duration discovered
	EventProgress  EventKind = "progress"  // Fraction complete updated
	EventMilestone EventKind = "milestone" // Progress crossed a new multiple of 10%
	EventCompleted EventKind = "completed" // Process exited
)

// Event is a structured result of interpreting process output
type Event struct {
	Kind     EventKind `json:"kind"`
	Line     string    `json:"line,omitempty"`
	Stream   Stream    `json:"stream,omitempty"`
	Duration float64   `json:"duration,omitempty"` // seconds, for EventDuration
	Fraction float64   `json:"fraction"`           // 0-1, for progress/milestone/completed
	Percent  int       `json:"percent,omitempty"`  // milestone percentage
	ExitCode int       `json:"exit_code"`          // for EventCompleted
	Success  bool      `json:"success,omitempty"`  // for EventCompleted
}

// ProgressState is the interpreter state for one job. It is a plain value:
// every call takes the current state and returns the next one, so a caller
// owns exactly one instance per job and nothing is shared between jobs.
type ProgressState struct {
	TotalDuration    float64 `json:"total_duration"` // seconds, 0 until known
	Fraction         float64 `json:"fraction"`       // 0-1, never decreases within a job
	LastLoggedDecile int     `json:"last_logged_decile"`
	Finished         bool    `json:"finished"`
	ExitCode         int     `json:"exit_code"`
}

// NewProgressState returns the state for a new job. knownDuration seeds the
// total duration in seconds when the caller already knows the expected output
// length; pass 0 to learn it from the process output.
func NewProgressState(knownDuration float64) ProgressState {
	s := ProgressState{}
	if knownDuration > 0 && !math.IsInf(knownDuration, 0) {
		s.TotalDuration = knownDuration
	}
	return s
}

// Phase reports the lifecycle phase derived from the state
func (s ProgressState) Phase() Phase {
	switch {
	case s.Finished:
		return PhaseFinished
	case s.TotalDuration > 0:
		return PhaseTracking
	default:
		return PhaseAwaitingDuration
	}
}

// Percent returns the rounded completion percentage
func (s ProgressState) Percent() int {
	return int(math.Round(s.Fraction * 100))
}

// Consume interprets one line of process output. It returns the next state
// and the events the line produced, always starting with an EventLine.
// A line may carry both a duration and a position; the duration is applied
// first.
func (s ProgressState) Consume(line string, stream Stream) (ProgressState, []Event) {
	events := []Event{{Kind: EventLine, Line: line, Stream: stream}}
	if s.Finished {
		return s, events
	}

	if s.TotalDuration <= 0 {
		if seconds, ok := matchTimestamp(durationPattern, line); ok && seconds > 0 {
			s.TotalDuration = seconds
			events = append(events, Event{Kind: EventDuration, Duration: seconds})
		}
	}

	if s.TotalDuration > 0 {
		if seconds, ok := matchTimestamp(positionPattern, line); ok {
			fraction := clamp(seconds/s.TotalDuration, 0, 1)
			if fraction > s.Fraction {
				s.Fraction = fraction
			}
			events = append(events, Event{Kind: EventProgress, Fraction: s.Fraction})

			if decile := s.Percent() / 10 * 10; decile > s.LastLoggedDecile {
				s.LastLoggedDecile = decile
				events = append(events, Event{Kind: EventMilestone, Fraction: s.Fraction, Percent: decile})
			}
		}
	}

	return s, events
}

// Complete records the process exit. Exit code 0 forces progress to 100%.
// Completing an already finished state is a no-op.
func (s ProgressState) Complete(exitCode int) (ProgressState, []Event) {
	if s.Finished {
		return s, nil
	}
	s.Finished = true
	s.ExitCode = exitCode
	if exitCode == 0 {
		s.Fraction = 1
	}
	return s, []Event{{
		Kind:     EventCompleted,
		Fraction: s.Fraction,
		ExitCode: exitCode,
		Success:  exitCode == 0,
	}}
}

// matchTimestamp finds the first HH:MM:SS.ff announcement matched by re and
// converts it to seconds
func matchTimestamp(re *regexp.Regexp, line string) (float64, bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	hours, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	return float64(hours)*3600 + float64(minutes)*60 + seconds, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
