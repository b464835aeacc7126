package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	durationLine = "  Duration: 00:01:40.00, start: 0.000000, bitrate: 1205 kb/s"
	halfwayLine  = "frame= 1250 fps=120 q=28.0 size=    4096kB time=00:00:50.00 bitrate= 671.1kbits/s speed=4.8x"
)

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func findEvent(events []Event, kind EventKind) (Event, bool) {
	for _, ev := range events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return Event{}, false
}

func TestConsumeDurationThenProgress(t *testing.T) {
	s := NewProgressState(0)
	assert.Equal(t, PhaseAwaitingDuration, s.Phase())

	s, events := s.Consume(durationLine, StreamStderr)
	assert.Equal(t, []EventKind{EventLine, EventDuration}, kinds(events))
	assert.Equal(t, 100.0, s.TotalDuration)
	assert.Equal(t, PhaseTracking, s.Phase())

	s, events = s.Consume(halfwayLine, StreamStderr)
	assert.Equal(t, 0.5, s.Fraction)
	progress, ok := findEvent(events, EventProgress)
	require.True(t, ok)
	assert.Equal(t, 0.5, progress.Fraction)
	assert.Equal(t, 50, s.Percent())
}

func TestConsumeEveryLineIsReported(t *testing.T) {
	s := NewProgressState(0)
	_, events := s.Consume("Stream #0:0: Video: h264", StreamStdout)
	require.Len(t, events, 1)
	assert.Equal(t, Event{Kind: EventLine, Line: "Stream #0:0: Video: h264", Stream: StreamStdout}, events[0])
}

func TestConsumePositionBeforeDurationIgnored(t *testing.T) {
	s := NewProgressState(0)
	s, events := s.Consume(halfwayLine, StreamStderr)
	assert.Equal(t, []EventKind{EventLine}, kinds(events))
	assert.Zero(t, s.Fraction)
	assert.Equal(t, PhaseAwaitingDuration, s.Phase())
}

func TestConsumeDurationAndPositionInOneLine(t *testing.T) {
	s := NewProgressState(0)
	s, events := s.Consume("Duration: 00:00:10.00 time=00:00:05.00", StreamStderr)
	assert.Equal(t, []EventKind{EventLine, EventDuration, EventProgress, EventMilestone}, kinds(events))
	assert.Equal(t, 10.0, s.TotalDuration)
	assert.Equal(t, 0.5, s.Fraction)
}

func TestConsumeFirstDurationWins(t *testing.T) {
	s := NewProgressState(0)
	s, _ = s.Consume("Duration: 00:00:10.00", StreamStderr)
	s, events := s.Consume("Duration: 00:00:20.00", StreamStderr)
	assert.Equal(t, 10.0, s.TotalDuration)
	assert.Equal(t, []EventKind{EventLine}, kinds(events))
}

func TestConsumeSeededDurationWins(t *testing.T) {
	s := NewProgressState(50)
	assert.Equal(t, PhaseTracking, s.Phase())

	s, events := s.Consume(durationLine, StreamStderr)
	assert.Equal(t, 50.0, s.TotalDuration)
	assert.Equal(t, []EventKind{EventLine}, kinds(events))

	s, _ = s.Consume("time=00:00:25.00", StreamStderr)
	assert.Equal(t, 0.5, s.Fraction)
}

func TestConsumeMalformedTimestamps(t *testing.T) {
	lines := []string{
		"Duration: N/A, bitrate: N/A",
		"Duration: 0:01:40.00",
		"Duration: 00:01:40",
		"Duration: 00:01:40.0",
	}
	for _, line := range lines {
		s, events := NewProgressState(0).Consume(line, StreamStderr)
		assert.Zero(t, s.TotalDuration, line)
		assert.Len(t, events, 1, line)
	}

	s := NewProgressState(100)
	for _, line := range []string{"time=N/A", "time=1:00:00.00", "time=00:00:50"} {
		var events []Event
		s, events = s.Consume(line, StreamStderr)
		assert.Len(t, events, 1, line)
	}
	assert.Zero(t, s.Fraction)
}

func TestConsumeZeroDurationNotAccepted(t *testing.T) {
	s, events := NewProgressState(0).Consume("Duration: 00:00:00.00", StreamStderr)
	assert.Zero(t, s.TotalDuration)
	assert.Equal(t, []EventKind{EventLine}, kinds(events))
}

func TestConsumeClampsAndNeverDecreases(t *testing.T) {
	s := NewProgressState(10)

	s, _ = s.Consume("time=00:00:06.00", StreamStderr)
	assert.Equal(t, 0.6, s.Fraction)

	s, events := s.Consume("time=00:00:03.00", StreamStderr)
	assert.Equal(t, 0.6, s.Fraction)
	progress, _ := findEvent(events, EventProgress)
	assert.Equal(t, 0.6, progress.Fraction)

	s, _ = s.Consume("time=00:00:30.00", StreamStderr)
	assert.Equal(t, 1.0, s.Fraction)
}

func TestConsumeMilestonesOncePerDecile(t *testing.T) {
	s := NewProgressState(100)

	var percents []int
	positions := []string{
		"time=00:00:05.00", // 5%
		"time=00:00:10.00", // 10%
		"time=00:00:12.00", // 12%
		"time=00:00:19.99", // 20% after rounding
		"time=00:00:45.00", // 45%
		"time=00:00:45.00",
		"time=00:01:40.00", // 100%
	}
	for _, line := range positions {
		var events []Event
		s, events = s.Consume(line, StreamStderr)
		for _, ev := range events {
			if ev.Kind == EventMilestone {
				percents = append(percents, ev.Percent)
			}
		}
	}
	assert.Equal(t, []int{10, 20, 40, 100}, percents)
	assert.Equal(t, 100, s.LastLoggedDecile)
}

func TestCompleteSuccess(t *testing.T) {
	s := NewProgressState(100)
	s, _ = s.Consume("time=00:00:40.00", StreamStderr)

	s, events := s.Complete(0)
	require.Len(t, events, 1)
	assert.Equal(t, EventCompleted, events[0].Kind)
	assert.True(t, events[0].Success)
	assert.Equal(t, 1.0, events[0].Fraction)
	assert.Equal(t, PhaseFinished, s.Phase())
	assert.Equal(t, 100, s.Percent())
}

func TestCompleteFailureKeepsProgress(t *testing.T) {
	s := NewProgressState(100)
	s, _ = s.Consume("time=00:00:40.00", StreamStderr)

	s, events := s.Complete(1)
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
	assert.Equal(t, 1, events[0].ExitCode)
	assert.Equal(t, 0.4, s.Fraction)
}

func TestCompleteIsIdempotent(t *testing.T) {
	s, _ := NewProgressState(0).Complete(0)
	again, events := s.Complete(1)
	assert.Empty(t, events)
	assert.Equal(t, s, again)
}

func TestConsumeAfterCompleteOnlyReportsLine(t *testing.T) {
	s, _ := NewProgressState(10).Complete(1)
	s, events := s.Consume("time=00:00:09.00", StreamStderr)
	assert.Equal(t, []EventKind{EventLine}, kinds(events))
	assert.Zero(t, s.Fraction)
}

func TestProgressStatesAreIndependent(t *testing.T) {
	a := NewProgressState(10)
	b := NewProgressState(10)

	a, _ = a.Consume("time=00:00:08.00", StreamStderr)
	assert.Equal(t, 0.8, a.Fraction)
	assert.Zero(t, b.Fraction)
}
