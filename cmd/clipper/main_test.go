package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/gwlsn/clipper/internal/config"
	"github.com/gwlsn/clipper/internal/ffmpeg"
	"github.com/gwlsn/clipper/internal/jobs"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeFFprobe = `case "$*" in
*print_format*)
  echo '{"streams":[{"codec_type":"video","codec_name":"h264","width":1280,"height":720,"r_frame_rate":"30/1"},{"codec_type":"audio","codec_name":"aac"}],"format":{"format_name":"mov","duration":"100.0","size":"2048","bit_rate":"1000"}}'
  ;;
*)
  echo "100.000000"
  ;;
esac`

const fakeFFmpeg = `case "$*" in
*-encoders*)
  echo " V....D libx264              libx264 H.264"
  echo " A....D aac                  AAC"
  exit 0
  ;;
esac
printf '  Duration: 00:01:40.00, start: 0.000000\n' >&2
printf 'frame=1 time=00:00:50.00 bitrate=1\rframe=2 time=00:01:40.00 bitrate=1\r' >&2
for last; do :; done
printf 'data' > "$last"`

const fakeFFmpegFailing = `case "$*" in
*-encoders*)
  echo " V....D libx264              libx264 H.264"
  exit 0
  ;;
esac
echo "Error opening input file" >&2
exit 1`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

// writeFakeConfig writes a config pointing at fake ffmpeg binaries and
// returns its path
func writeFakeConfig(t *testing.T, ffmpegBody string) (cfgPath, dir string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries are shell scripts")
	}
	dir = t.TempDir()
	cfg := config.DefaultConfig()
	cfg.FFprobePath = writeScript(t, dir, "ffprobe", fakeFFprobe)
	cfg.FFmpegPath = writeScript(t, dir, "ffmpeg", ffmpegBody)
	cfg.ThumbnailDir = filepath.Join(dir, "thumbs")
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.Save(cfgPath))
	return cfgPath, dir
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--log-level", "off"}, args...))
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func parseOptionFlags(t *testing.T, base ffmpeg.Options, args ...string) (ffmpeg.Options, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	var flags optionFlags
	flags.register(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return flags.apply(cmd, base)
}

func TestOptionFlagsKeepDefaults(t *testing.T) {
	base := ffmpeg.DefaultOptions()
	opts, err := parseOptionFlags(t, base)
	require.NoError(t, err)
	assert.Equal(t, base, opts)
}

func TestOptionFlagsOverride(t *testing.T) {
	opts, err := parseOptionFlags(t, ffmpeg.DefaultOptions(),
		"--format", "GIF", "--resolution", "720p", "--speed", "1.5",
		"--trim-start", "2", "--trim-end", "7", "--no-audio", "--gif-mode", "pro",
		"--audio-bitrate", "320")
	require.NoError(t, err)

	assert.Equal(t, ffmpeg.FormatGIF, opts.Format)
	assert.Equal(t, ffmpeg.Resolution720p, opts.Resolution)
	assert.Equal(t, 1.5, opts.SpeedFactor)
	assert.True(t, opts.RemoveAudio)
	assert.Equal(t, 2.0, opts.TrimStartSeconds)
	require.NotNil(t, opts.TrimEndSeconds)
	assert.Equal(t, 7.0, *opts.TrimEndSeconds)
	assert.Equal(t, ffmpeg.GIFPalettePro, opts.GIFPaletteMode)
	assert.Equal(t, 320, opts.AudioBitrateKbps)
}

func TestOptionFlagsPresetAndTargetSize(t *testing.T) {
	opts, err := parseOptionFlags(t, ffmpeg.DefaultOptions(), "--preset", "whatsapp")
	require.NoError(t, err)
	assert.Equal(t, ffmpeg.SizeTargetSize, opts.SizeConstraintMode)
	assert.Equal(t, 16.0, opts.TargetSizeMB)

	opts, err = parseOptionFlags(t, ffmpeg.DefaultOptions(), "--preset", "discord", "--target-size", "8")
	require.NoError(t, err)
	assert.Equal(t, ffmpeg.SizeTargetSize, opts.SizeConstraintMode)
	assert.Equal(t, 8.0, opts.TargetSizeMB)

	_, err = parseOptionFlags(t, ffmpeg.DefaultOptions(), "--preset", "myspace")
	assert.Error(t, err)
}

func TestOptionFlagsCRFSelectsConstantQuality(t *testing.T) {
	base := ffmpeg.DefaultOptions()
	base.SizeConstraintMode = ffmpeg.SizeTargetSize

	opts, err := parseOptionFlags(t, base, "--crf", "30")
	require.NoError(t, err)
	assert.Equal(t, ffmpeg.SizeConstantQuality, opts.SizeConstraintMode)
	assert.Equal(t, 30, opts.QualityCRF)
}

func TestRenderTable(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil, nil))

	out := renderTable([]string{"Name", "Size"}, [][]string{{"clip.mp4", "25 MB"}, {"short"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "clip.mp4")
	assert.Contains(t, out, "25 MB")
	assert.Contains(t, out, "short")
}

func TestShellJoin(t *testing.T) {
	got := shellJoin([]string{"-i", "my clip.mov", "-filter_complex", "[0:v]scale=-2:720[v]", "-y", "out.mp4"})
	assert.Equal(t, `-i "my clip.mov" -filter_complex "[0:v]scale=-2:720[v]" -y out.mp4`, got)
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "unknown", formatSeconds(0))
	assert.Equal(t, "0:00:12.50", formatSeconds(12.5))
	assert.Equal(t, "1:02:05.50", formatSeconds(3725.5))
}

func TestEncodeProgressPrintsMilestones(t *testing.T) {
	var out, errOut bytes.Buffer
	p := newEncodeProgress(&out, &errOut, false)

	p.handle(jobs.JobEvent{Type: jobs.EventProgress, ProgressUpdate: &jobs.ProgressUpdate{Progress: 37}})
	assert.Empty(t, out.String())

	p.handle(jobs.JobEvent{Type: jobs.EventMilestone, ProgressUpdate: &jobs.ProgressUpdate{Progress: 42, Milestone: 40}})
	assert.Equal(t, "Progress: 40%\n", out.String())
}

func TestPresetsCommand(t *testing.T) {
	out, _, err := runCLI(t, "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "discord")
	assert.Contains(t, out, "whatsapp")
	assert.Contains(t, out, "25 MB")
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipper", "config.yaml")

	out, _, err := runCLI(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, _, err = runCLI(t, "config", "init", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = runCLI(t, "config", "init", "--path", path, "--overwrite")
	require.NoError(t, err)

	out, _, err = runCLI(t, "-c", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# "+path)
	assert.Contains(t, out, "ffmpeg_path: ffmpeg")
	assert.Contains(t, out, "transcript_lines: 100")
}

func TestConfigShowMasksToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.DefaultConfig()
	cfg.NtfyTopic = "clips"
	cfg.NtfyToken = "tk_secret"
	require.NoError(t, cfg.Save(path))

	out, _, err := runCLI(t, "-c", path, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "tk_secret")
	assert.Contains(t, out, "********")
}

func TestArgsCommandWithDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	out, _, err := runCLI(t, "-c", path, "args", "/media/clip.mov", "--duration", "100", "--target-size", "25")
	require.NoError(t, err)
	assert.Contains(t, out, "-b:v 1969152")
	assert.Contains(t, out, "/media/clip_converted.mp4")
	assert.Contains(t, out, "2048 kb/s")
}

func TestArgsCommandRejectsInvalidOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	_, _, err := runCLI(t, "-c", path, "args", "/media/clip.mov", "--duration", "100", "--crf", "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quality_crf")
}

func TestProbeCommand(t *testing.T) {
	cfgPath, dir := writeFakeConfig(t, fakeFFmpeg)
	input := filepath.Join(dir, "clip.mov")
	require.NoError(t, os.WriteFile(input, []byte("source"), 0644))

	out, _, err := runCLI(t, "-c", cfgPath, "probe", input)
	require.NoError(t, err)
	assert.Contains(t, out, "h264 1280x720 @ 30 fps")
	assert.Contains(t, out, "aac")
	assert.Contains(t, out, "0:01:40.00")
}

func TestBrowseCommand(t *testing.T) {
	cfgPath, dir := writeFakeConfig(t, fakeFFmpeg)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	cfg.MediaRoot = dir
	require.NoError(t, cfg.Save(cfgPath))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.mov"), []byte("source"), 0644))

	out, _, err := runCLI(t, "-c", cfgPath, "browse")
	require.NoError(t, err)
	assert.Contains(t, out, dir)
	assert.Contains(t, out, "clip.mov")
	assert.Contains(t, out, "0:01:40.00")
	assert.NotContains(t, out, "ffprobe")
}

func TestFormatsCommand(t *testing.T) {
	cfgPath, _ := writeFakeConfig(t, fakeFFmpeg)

	out, _, err := runCLI(t, "-c", cfgPath, "formats")
	require.NoError(t, err)
	assert.Contains(t, out, "libx264")
	assert.Contains(t, out, "animation")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "no")
}

func TestEncodeCommand(t *testing.T) {
	cfgPath, dir := writeFakeConfig(t, fakeFFmpeg)
	input := filepath.Join(dir, "clip.mov")
	require.NoError(t, os.WriteFile(input, []byte("source data"), 0644))

	out, _, err := runCLI(t, "-c", cfgPath, "encode", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Progress: 50%")
	assert.Contains(t, out, "Progress: 100%")
	assert.Contains(t, out, "Wrote ")
	assert.FileExists(t, filepath.Join(dir, "clip_converted.mp4"))
}

func TestEncodeCommandFailure(t *testing.T) {
	cfgPath, dir := writeFakeConfig(t, fakeFFmpegFailing)
	input := filepath.Join(dir, "clip.mov")
	require.NoError(t, os.WriteFile(input, []byte("source data"), 0644))

	_, errOut, err := runCLI(t, "-c", cfgPath, "encode", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conversion failed")
	assert.Contains(t, errOut, "Error opening input file")
	assert.Contains(t, errOut, "Error: process finished with code 1")
}

func TestEncodeCommandRejectsUnavailableFormat(t *testing.T) {
	cfgPath, dir := writeFakeConfig(t, fakeFFmpeg)
	input := filepath.Join(dir, "clip.mov")
	require.NoError(t, os.WriteFile(input, []byte("source data"), 0644))

	_, _, err := runCLI(t, "-c", cfgPath, "encode", input, "--format", "flac")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestThumbnailCommand(t *testing.T) {
	cfgPath, dir := writeFakeConfig(t, fakeFFmpeg)
	input := filepath.Join(dir, "clip.mov")
	require.NoError(t, os.WriteFile(input, []byte("source data"), 0644))

	out, _, err := runCLI(t, "-c", cfgPath, "thumbnail", input)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "thumbs"))

	out, _, err = runCLI(t, "-c", cfgPath, "thumbnail", "--data-uri", input)
	require.NoError(t, err)
	assert.Contains(t, out, "data:image/jpeg;base64,ZGF0YQ==")
}
