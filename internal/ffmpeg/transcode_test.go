package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeEncodeOK = `echo "ffmpeg version test"
printf 'Input #0, mov,mp4\n  Duration: 00:00:10.00, start: 0.000000, bitrate: 1000 kb/s\n' >&2
printf 'frame=  50 time=00:00:05.00 bitrate=1.0kbits/s\rframe= 100 time=00:00:10.00 bitrate=1.0kbits/s\r\n' >&2
` + touchLastArg

func collectEvents() (func(Event), func() []Event) {
	var mu sync.Mutex
	var events []Event
	return func(ev Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		}, func() []Event {
			mu.Lock()
			defer mu.Unlock()
			return append([]Event(nil), events...)
		}
}

func TestScanCRLF(t *testing.T) {
	data := []byte("a\rb\r\nc")
	var tokens []string
	for len(data) > 0 {
		advance, token, err := scanCRLF(data, true)
		require.NoError(t, err)
		tokens = append(tokens, string(token))
		data = data[advance:]
	}
	assert.Equal(t, []string{"a", "b", "", "c"}, tokens)

	advance, token, _ := scanCRLF([]byte("partial"), false)
	assert.Zero(t, advance)
	assert.Nil(t, token)
}

func TestBoundedBuffer(t *testing.T) {
	b := newBoundedBuffer(8)
	_, _ = b.Write([]byte("abc"))
	assert.Equal(t, "abc", b.String())

	_, _ = b.Write([]byte("defgh"))
	assert.Equal(t, "abcdefgh", b.String())

	_, _ = b.Write([]byte("ij"))
	assert.Equal(t, "cdefghij", b.String())

	_, _ = b.Write([]byte("0123456789"))
	assert.Equal(t, "23456789", b.String())

	b = newBoundedBuffer(4)
	_, _ = b.Write([]byte("ab"))
	_, _ = b.Write([]byte("cdef"))
	assert.Equal(t, "cdef", b.String())
}

func TestTranscoderRunDeliversBothStreams(t *testing.T) {
	ffmpeg := writeFakeBinary(t, "ffmpeg", `echo out-1
echo err-1 >&2
printf 'err-2\r' >&2
echo out-2`)

	var mu sync.Mutex
	got := map[Stream][]string{}
	code, err := NewTranscoder(ffmpeg, nil).Run(context.Background(), nil, func(line string, stream Stream) {
		mu.Lock()
		got[stream] = append(got[stream], line)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Equal(t, []string{"out-1", "out-2"}, got[StreamStdout])
	assert.Equal(t, []string{"err-1", "err-2"}, got[StreamStderr])
}

func TestScanLinesDrainsAfterOverlongLine(t *testing.T) {
	r := strings.NewReader(strings.Repeat("a", 1100*1024) + "\nafter\n" + strings.Repeat("b", 256*1024))

	var lines []string
	err := scanLines(r, StreamStderr, func(line string, _ Stream) { lines = append(lines, line) })
	assert.ErrorIs(t, err, bufio.ErrTooLong)
	assert.Empty(t, lines)
	assert.Zero(t, r.Len(), "reader should be drained after a scan error")
}

func TestTranscoderRunOverlongStderrLine(t *testing.T) {
	// Writes more than a pipe buffer after the overlong line; the process
	// can only exit if the rest of stderr is still being read.
	ffmpeg := writeFakeBinary(t, "ffmpeg", `head -c 1126400 /dev/zero | tr '\0' 'a' >&2
head -c 262144 /dev/zero | tr '\0' 'b' >&2
echo done`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var mu sync.Mutex
	var stdout []string
	code, err := NewTranscoder(ffmpeg, nil).Run(ctx, nil, func(line string, stream Stream) {
		if stream == StreamStdout {
			mu.Lock()
			stdout = append(stdout, line)
			mu.Unlock()
		}
	})
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Equal(t, []string{"done"}, stdout)
}

func TestTranscoderRunFailure(t *testing.T) {
	ffmpeg := writeFakeBinary(t, "ffmpeg", `echo "in.mov: Invalid data found when processing input" >&2
exit 3`)

	code, err := NewTranscoder(ffmpeg, nil).Run(context.Background(), []string{"-i", "in.mov"}, nil)
	assert.Equal(t, 3, code)

	var tErr *TranscodeError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, 3, tErr.ExitCode)
	assert.Contains(t, tErr.Stderr, "Invalid data")
	assert.Equal(t, []string{"-i", "in.mov"}, tErr.Args)
}

func TestTranscoderRunMissingBinary(t *testing.T) {
	code, err := NewTranscoder("/nonexistent/ffmpeg", nil).Run(context.Background(), nil, nil)
	assert.Error(t, err)
	assert.Equal(t, -1, code)

	var tErr *TranscodeError
	assert.False(t, errors.As(err, &tErr))
}

func TestTranscoderEncode(t *testing.T) {
	ffmpeg := writeFakeBinary(t, "ffmpeg", fakeEncodeOK)
	out := filepath.Join(t.TempDir(), "out.mp4")
	onEvent, events := collectEvents()

	result, err := NewTranscoder(ffmpeg, nil).Encode(context.Background(), EncodeRequest{
		Source:     Source{Path: "/media/in.mov"},
		Options:    DefaultOptions(),
		OutputPath: out,
	}, onEvent)
	require.NoError(t, err)
	assert.Equal(t, out, result.OutputPath)
	assert.Equal(t, int64(4), result.OutputSize)
	assert.Equal(t, "-y", result.Args[len(result.Args)-2])

	all := events()
	require.NotEmpty(t, all)

	var milestones []int
	var duration float64
	for _, ev := range all {
		switch ev.Kind {
		case EventMilestone:
			milestones = append(milestones, ev.Percent)
		case EventDuration:
			duration = ev.Duration
		}
	}
	assert.Equal(t, 10.0, duration)
	assert.Equal(t, []int{50, 100}, milestones)

	last := all[len(all)-1]
	assert.Equal(t, EventCompleted, last.Kind)
	assert.True(t, last.Success)
	assert.Equal(t, 1.0, last.Fraction)
}

func TestTranscoderEncodeFailure(t *testing.T) {
	ffmpeg := writeFakeBinary(t, "ffmpeg", `echo "Conversion failed!" >&2
exit 1`)
	onEvent, events := collectEvents()

	_, err := NewTranscoder(ffmpeg, nil).Encode(context.Background(), EncodeRequest{
		Source:     Source{Path: "/media/in.mov", Duration: 10},
		Options:    DefaultOptions(),
		OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
	}, onEvent)

	var tErr *TranscodeError
	require.True(t, errors.As(err, &tErr))

	all := events()
	last := all[len(all)-1]
	assert.Equal(t, EventCompleted, last.Kind)
	assert.False(t, last.Success)
	assert.Equal(t, 1, last.ExitCode)
}

func TestTranscoderEncodeCancelled(t *testing.T) {
	ffmpeg := writeFakeBinary(t, "ffmpeg", `echo started >&2
exec sleep 10`)
	onEvent, events := collectEvents()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewTranscoder(ffmpeg, nil).Encode(ctx, EncodeRequest{
		Source:     Source{Path: "/media/in.mov"},
		Options:    DefaultOptions(),
		OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
	}, onEvent)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	for _, ev := range events() {
		assert.NotEqual(t, EventCompleted, ev.Kind, "a cancelled job has no completion")
	}
}

func TestTranscoderPauseWithoutProcess(t *testing.T) {
	tr := NewTranscoder("ffmpeg", nil)
	assert.False(t, tr.Pause())
	assert.False(t, tr.Resume())
	assert.False(t, tr.IsPaused())
}

func TestThumbnailerGenerate(t *testing.T) {
	ffmpeg := writeFakeBinary(t, "ffmpeg", touchLastArg)
	dir := filepath.Join(t.TempDir(), "cache")

	path, err := NewThumbnailer(ffmpeg, dir, "", nil).Generate(context.Background(), "/media/in.mov")
	require.NoError(t, err)
	assert.Equal(t, ThumbnailPath(dir, "/media/in.mov"), path)

	uri, err := ThumbnailDataURI(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/jpeg;base64,"))
	assert.Equal(t, "data:image/jpeg;base64,ZGF0YQ==", uri)
}

func TestThumbnailPathPerInput(t *testing.T) {
	a := ThumbnailPath("/cache", "/media/a.mov")
	b := ThumbnailPath("/cache", "/media/b.mov")

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ThumbnailPath("/cache", "/media/./a.mov"))
	assert.Equal(t, "/cache", filepath.Dir(a))
	assert.True(t, strings.HasSuffix(a, ".jpg"))
}

func TestThumbnailerConcurrentInputs(t *testing.T) {
	// Each fake frame holds the input path it was extracted from
	ffmpeg := writeFakeBinary(t, "ffmpeg", `for last; do :; done
printf '%s' "$5" > "$last"`)
	thumbs := NewThumbnailer(ffmpeg, t.TempDir(), "", nil)

	inputs := []string{"/media/a.mov", "/media/b.mov", "/media/c.mov", "/media/d.mov"}
	paths := make([]string, len(inputs))
	errs := make([]error, len(inputs))
	var wg sync.WaitGroup
	for i, in := range inputs {
		i, in := i, in
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths[i], errs[i] = thumbs.Generate(context.Background(), in)
		}()
	}
	wg.Wait()

	for i, in := range inputs {
		require.NoError(t, errs[i])
		data, err := os.ReadFile(paths[i])
		require.NoError(t, err)
		assert.Equal(t, in, string(data))
	}
}

func TestThumbnailerGenerateFailure(t *testing.T) {
	ffmpeg := writeFakeBinary(t, "ffmpeg", `echo "header"
echo "in.mov: No such file or directory" >&2
exit 1`)

	_, err := NewThumbnailer(ffmpeg, t.TempDir(), "", nil).Generate(context.Background(), "in.mov")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No such file or directory")
}

func TestThumbnailDataURIMissing(t *testing.T) {
	_, err := ThumbnailDataURI(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.True(t, os.IsNotExist(err))
}
