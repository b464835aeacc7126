package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

// TranscodeResult contains the result of a transcode operation
type TranscodeResult struct {
	InputPath  string        `json:"input_path"`
	OutputPath string        `json:"output_path"`
	InputSize  int64         `json:"input_size"`
	OutputSize int64         `json:"output_size"`
	Elapsed    time.Duration `json:"elapsed"` // How long the transcode took
	Args       []string      `json:"args"`
}

// TranscodeError contains detailed error information from a failed transcode
type TranscodeError struct {
	Message  string   // The error message
	Stderr   string   // Bounded stderr output (last ~64KB)
	ExitCode int      // FFmpeg exit code
	Args     []string // FFmpeg command arguments
}

func (e *TranscodeError) Error() string {
	return e.Message
}

// scanCRLF splits on \n or \r; ffmpeg redraws its stats line with bare \r
func scanCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// maxStderrSize is the maximum amount of stderr to capture (64KB)
const maxStderrSize = 64 * 1024

// boundedBuffer is a ring buffer that keeps only the last N bytes
type boundedBuffer struct {
	buf   []byte
	size  int
	start int
}

func newBoundedBuffer(size int) *boundedBuffer {
	return &boundedBuffer{buf: make([]byte, size)}
}

func (b *boundedBuffer) Write(p []byte) (n int, err error) {
	n = len(p)
	switch {
	case n >= len(b.buf):
		copy(b.buf, p[n-len(b.buf):])
		b.size = len(b.buf)
		b.start = 0
	case b.size < len(b.buf):
		space := len(b.buf) - b.size
		if n <= space {
			copy(b.buf[b.size:], p)
			b.size += n
		} else {
			copy(b.buf[b.size:], p[:space])
			copy(b.buf, p[space:])
			b.size = len(b.buf)
			b.start = n - space
		}
	default:
		end := b.start + n
		if end <= len(b.buf) {
			copy(b.buf[b.start:], p)
		} else {
			first := len(b.buf) - b.start
			copy(b.buf[b.start:], p[:first])
			copy(b.buf, p[first:])
		}
		b.start = end % len(b.buf)
	}
	return n, nil
}

func (b *boundedBuffer) String() string {
	if b.size < len(b.buf) {
		return string(b.buf[:b.size])
	}
	result := make([]byte, len(b.buf))
	copy(result, b.buf[b.start:])
	copy(result[len(b.buf)-b.start:], b.buf[:b.start])
	return string(result)
}

// Transcoder runs the encoder process. One Transcoder runs one process at a
// time.
type Transcoder struct {
	ffmpegPath string
	logger     hclog.Logger

	// Process control for pause/resume
	mu      sync.Mutex
	process *os.Process
	paused  bool
}

// NewTranscoder creates a new Transcoder with the given ffmpeg path
func NewTranscoder(ffmpegPath string, logger hclog.Logger) *Transcoder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Transcoder{ffmpegPath: ffmpegPath, logger: logger.Named("transcode")}
}

// Pause sends SIGSTOP to the ffmpeg process.
// Returns true if the process was paused, false if there's no process running.
func (t *Transcoder) Pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.process == nil || t.paused {
		return false
	}
	if err := t.process.Signal(syscall.SIGSTOP); err != nil {
		t.logger.Warn("failed to pause process", "error", err)
		return false
	}

	t.paused = true
	t.logger.Info("process paused", "pid", t.process.Pid)
	return true
}

// Resume sends SIGCONT to a paused ffmpeg process.
// Returns true if the process was resumed, false if there's no process paused.
func (t *Transcoder) Resume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.process == nil || !t.paused {
		return false
	}
	if err := t.process.Signal(syscall.SIGCONT); err != nil {
		t.logger.Warn("failed to resume process", "error", err)
		return false
	}

	t.paused = false
	t.logger.Info("process resumed", "pid", t.process.Pid)
	return true
}

// IsPaused returns true if the transcoder is currently paused
func (t *Transcoder) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// LineFunc receives one line of process output. Calls are serialized.
type LineFunc func(line string, stream Stream)

// Run starts ffmpeg with args and delivers every output line from both
// streams to onLine as it arrives. It returns after both streams are drained
// and the process has exited. A non-zero exit is reported as a
// *TranscodeError carrying the exit code; a cancelled ctx returns ctx.Err().
func (t *Transcoder) Run(ctx context.Context, args []string, onLine LineFunc) (exitCode int, err error) {
	t.logger.Info("running ffmpeg", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	t.mu.Lock()
	t.process = cmd.Process
	t.paused = false
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.process = nil
		t.paused = false
		t.mu.Unlock()
	}()

	stderrBuf := newBoundedBuffer(maxStderrSize)
	var lineMu sync.Mutex
	deliver := func(line string, stream Stream) {
		lineMu.Lock()
		defer lineMu.Unlock()
		if stream == StreamStderr && line != "" {
			_, _ = stderrBuf.Write(append([]byte(line), '\n'))
		}
		if onLine != nil {
			onLine(line, stream)
		}
	}

	var g errgroup.Group
	g.Go(func() error { return scanLines(stdout, StreamStdout, deliver) })
	g.Go(func() error { return scanLines(stderr, StreamStderr, deliver) })
	if err := g.Wait(); err != nil {
		t.logger.Warn("output scanner error", "error", err)
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	if waitErr != nil {
		exitCode := 1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return exitCode, &TranscodeError{
			Message:  fmt.Sprintf("ffmpeg failed: %v", waitErr),
			Stderr:   stderrBuf.String(),
			ExitCode: exitCode,
			Args:     args,
		}
	}
	return 0, nil
}

// scanLines reads r line by line, skipping the empty tokens produced by \r\n
func scanLines(r io.Reader, stream Stream, deliver LineFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanCRLF)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		deliver(line, stream)
	}
	if err := scanner.Err(); err != nil {
		// ffmpeg blocks on a full pipe if nobody reads the rest
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

// EncodeRequest describes one transcode job
type EncodeRequest struct {
	Source     Source
	Options    Options
	OutputPath string
}

// Encode synthesizes the ffmpeg command for req, runs it and interprets its
// output. Every telemetry event, including the final EventCompleted, is
// passed to onEvent. The interpreter state is seeded with the expected output
// length when the source duration is known. A cancelled ctx discards the
// state without a completion event.
func (t *Transcoder) Encode(ctx context.Context, req EncodeRequest, onEvent func(Event)) (*TranscodeResult, error) {
	startTime := time.Now()
	emit := func(events []Event) {
		if onEvent == nil {
			return
		}
		for _, ev := range events {
			onEvent(ev)
		}
	}

	var inputSize int64
	if info, err := os.Stat(req.Source.Path); err == nil {
		inputSize = info.Size()
	}

	args := BuildTranscodeArgs(req.Source, req.Options, req.OutputPath)
	state := NewProgressState(req.Options.OutputDuration(req.Source.Duration))

	exitCode, runErr := t.Run(ctx, args, func(line string, stream Stream) {
		var events []Event
		state, events = state.Consume(line, stream)
		emit(events)
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var tErr *TranscodeError
	if runErr != nil && !errors.As(runErr, &tErr) {
		// Never started: report as a failed process so the job still finishes
		exitCode = -1
	}

	_, events := state.Complete(exitCode)
	emit(events)

	if runErr != nil {
		return nil, runErr
	}

	result := &TranscodeResult{
		InputPath:  req.Source.Path,
		OutputPath: req.OutputPath,
		InputSize:  inputSize,
		Elapsed:    time.Since(startTime),
		Args:       args,
	}
	if info, err := os.Stat(req.OutputPath); err == nil {
		result.OutputSize = info.Size()
	}
	return result, nil
}
