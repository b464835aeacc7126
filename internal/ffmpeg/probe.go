package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// ProbeError is returned when ffprobe exits non-zero or prints something
// that isn't a duration
type ProbeError struct {
	Path     string
	ExitCode int
	Output   string
	Err      error
}

func (e *ProbeError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("ffprobe %s: exit code %d: %s", e.Path, e.ExitCode, e.Output)
	}
	return fmt.Sprintf("ffprobe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// MediaInfo contains metadata about a source file
type MediaInfo struct {
	Path       string  `json:"path"`
	Size       int64   `json:"size"`
	Duration   float64 `json:"duration"` // seconds
	Format     string  `json:"format"`
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Bitrate    int64   `json:"bitrate,omitempty"` // bits per second
	FrameRate  float64 `json:"frame_rate,omitempty"`
	HasVideo   bool    `json:"has_video"`
	HasAudio   bool    `json:"has_audio"`
}

// ffprobeOutput represents the JSON output from ffprobe
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecType    string         `json:"codec_type"`
	CodecName    string         `json:"codec_name"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	RFrameRate   string         `json:"r_frame_rate"`
	AvgFrameRate string         `json:"avg_frame_rate"`
	Duration     string         `json:"duration"`
	Disposition  map[string]int `json:"disposition"`
}

// Prober wraps ffprobe functionality
type Prober struct {
	ffprobePath string
	logger      hclog.Logger
}

// NewProber creates a new Prober with the given ffprobe path
func NewProber(ffprobePath string, logger hclog.Logger) *Prober {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Prober{ffprobePath: ffprobePath, logger: logger.Named("probe")}
}

// Duration returns the container duration of path in seconds. It fails if
// ffprobe exits non-zero or its output isn't a plain number.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	args := BuildProbeArgs(path)
	output, err := exec.CommandContext(ctx, p.ffprobePath, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return 0, &ProbeError{
				Path:     path,
				ExitCode: exitErr.ExitCode(),
				Output:   strings.TrimSpace(string(exitErr.Stderr)),
				Err:      err,
			}
		}
		return 0, &ProbeError{Path: path, Err: err}
	}

	duration, err := ParseProbeDuration(string(output))
	if err != nil {
		return 0, &ProbeError{Path: path, Output: string(output), Err: err}
	}

	p.logger.Debug("probed duration", "path", path, "seconds", duration)
	return duration, nil
}

// ParseProbeDuration parses the single-number output of BuildProbeArgs
func ParseProbeDuration(output string) (float64, error) {
	value := strings.TrimSpace(output)
	if value == "" || value == "N/A" {
		return 0, fmt.Errorf("no duration reported")
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return seconds, nil
}

// Inspect returns stream and container metadata about a media file
func (p *Prober) Inspect(ctx context.Context, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ProbeError{
				Path:     path,
				ExitCode: exitErr.ExitCode(),
				Output:   strings.TrimSpace(string(exitErr.Stderr)),
				Err:      err,
			}
		}
		return nil, &ProbeError{Path: path, Err: err}
	}

	info, err := parseMediaInfo(path, output)
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}

	if info.Size == 0 {
		if stat, err := os.Stat(path); err == nil {
			info.Size = stat.Size()
		}
	}

	p.logger.Debug("inspected", "path", path, "duration", info.Duration,
		"video", info.VideoCodec, "audio", info.AudioCodec)
	return info, nil
}

func parseMediaInfo(path string, data []byte) (*MediaInfo, error) {
	var probeOutput ffprobeOutput
	if err := json.Unmarshal(data, &probeOutput); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &MediaInfo{
		Path:   path,
		Format: probeOutput.Format.FormatName,
	}
	if probeOutput.Format.Size != "" {
		info.Size, _ = strconv.ParseInt(probeOutput.Format.Size, 10, 64)
	}
	if probeOutput.Format.BitRate != "" {
		info.Bitrate, _ = strconv.ParseInt(probeOutput.Format.BitRate, 10, 64)
	}
	if d, err := ParseProbeDuration(probeOutput.Format.Duration); err == nil {
		info.Duration = d
	}

	var maxStreamDuration float64
	for _, stream := range probeOutput.Streams {
		if d, err := ParseProbeDuration(stream.Duration); err == nil && d > maxStreamDuration {
			maxStreamDuration = d
		}

		switch stream.CodecType {
		case "video":
			// Cover art shows up as a video stream; it isn't something to transcode
			if stream.Disposition["attached_pic"] == 1 {
				continue
			}
			if !info.HasVideo {
				info.HasVideo = true
				info.VideoCodec = stream.CodecName
				info.Width = stream.Width
				info.Height = stream.Height
				info.FrameRate = parseFrameRate(stream.RFrameRate)
				if info.FrameRate == 0 {
					info.FrameRate = parseFrameRate(stream.AvgFrameRate)
				}
			}
		case "audio":
			if !info.HasAudio {
				info.HasAudio = true
				info.AudioCodec = stream.CodecName
			}
		}
	}

	if info.Duration == 0 {
		info.Duration = maxStreamDuration
	}

	return info, nil
}

// parseFrameRate parses a frame rate string like "30000/1001" or "30/1"
func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den == 0 {
		return 0
	}
	return num / den
}

// IsMediaFile returns true if the file extension is one the app accepts as input
func IsMediaFile(path string) bool {
	ext := strings.ToLower(path)
	mediaExtensions := []string{
		".mp4", ".mov", ".avi", ".mkv", ".webm",
		".mp3", ".wav", ".flac", ".m4a",
	}
	for _, me := range mediaExtensions {
		if strings.HasSuffix(ext, me) {
			return true
		}
	}
	return false
}
