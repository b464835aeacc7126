package jobs

import (
	"strings"
	"time"

	"github.com/gwlsn/clipper/internal/ffmpeg"
)

// Line levels for rendering
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// TranscriptLine is one line of a job's output log
type TranscriptLine struct {
	Time   time.Time     `json:"time"`
	Text   string        `json:"text"`
	Stream ffmpeg.Stream `json:"stream,omitempty"` // Empty for lines the runner writes itself
	Level  string        `json:"level"`
}

func newTranscriptLine(text string, stream ffmpeg.Stream) TranscriptLine {
	level := LevelInfo
	if strings.Contains(strings.ToLower(text), "error") {
		level = LevelError
	}
	return TranscriptLine{Time: time.Now(), Text: text, Stream: stream, Level: level}
}

// appendBounded appends line and drops the oldest lines beyond max
func appendBounded(lines []TranscriptLine, line TranscriptLine, max int) []TranscriptLine {
	lines = append(lines, line)
	if max > 0 && len(lines) > max {
		// Copy so the dropped head can be collected
		trimmed := make([]TranscriptLine, max)
		copy(trimmed, lines[len(lines)-max:])
		lines = trimmed
	}
	return lines
}
