package ffmpeg

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// FormatSupport describes whether the local ffmpeg can produce a format
type FormatSupport struct {
	Format    Format   `json:"format"`
	Encoders  []string `json:"encoders"`          // Candidate encoders, preferred first
	Encoder   string   `json:"encoder,omitempty"` // First candidate ffmpeg lists
	Available bool     `json:"available"`
}

// formatEncoders lists the encoders ffmpeg picks by default for each format
var formatEncoders = map[Format][]string{
	FormatMP4:  {"libx264", "mpeg4"},
	FormatMKV:  {"libx264", "mpeg4"},
	FormatMOV:  {"libx264", "mpeg4"},
	FormatAVI:  {"mpeg4"},
	FormatWebM: {"libvpx-vp9", "libvpx"},
	FormatGIF:  {"gif"},
	FormatMP3:  {"libmp3lame"},
	FormatM4A:  {"aac"},
	FormatWAV:  {"pcm_s16le"},
	FormatFLAC: {"flac"},
}

// Capabilities caches encoder detection for one ffmpeg binary
type Capabilities struct {
	ffmpegPath string
	logger     hclog.Logger

	mu       sync.RWMutex
	formats  map[Format]FormatSupport
	detected bool
}

// NewCapabilities creates a detector for the given ffmpeg binary
func NewCapabilities(ffmpegPath string, logger hclog.Logger) *Capabilities {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Capabilities{
		ffmpegPath: ffmpegPath,
		logger:     logger.Named("encoder-detect"),
		formats:    make(map[Format]FormatSupport),
	}
}

// Detect queries ffmpeg's encoder list once and caches the result.
// If ffmpeg can't be queried every format is reported unavailable.
func (c *Capabilities) Detect(ctx context.Context) []FormatSupport {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.detected {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		output, err := exec.CommandContext(ctx, c.ffmpegPath, "-hide_banner", "-encoders").Output()
		if err != nil {
			c.logger.Warn("failed to query ffmpeg encoders", "error", err)
		}
		c.formats = parseFormatSupport(string(output))
		c.detected = err == nil

		for _, f := range Formats {
			s := c.formats[f]
			if s.Available {
				c.logger.Debug("format available", "format", f, "encoder", s.Encoder)
			} else {
				c.logger.Debug("format unavailable", "format", f, "candidates", s.Encoders)
			}
		}
	}

	return c.listLocked()
}

// Supports reports whether format can be produced. Unknown (not yet
// detected) is reported as supported so callers don't block on detection.
func (c *Capabilities) Supports(format Format) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.detected {
		return true
	}
	return c.formats[format].Available
}

func (c *Capabilities) listLocked() []FormatSupport {
	out := make([]FormatSupport, 0, len(Formats))
	for _, f := range Formats {
		out = append(out, c.formats[f])
	}
	return out
}

// parseFormatSupport matches `ffmpeg -encoders` output against formatEncoders.
// Encoder lines look like " V....D libx264   libx264 H.264 ...".
func parseFormatSupport(encoderList string) map[Format]FormatSupport {
	listed := make(map[string]bool)
	for _, line := range strings.Split(encoderList, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		listed[fields[1]] = true
	}

	result := make(map[Format]FormatSupport, len(formatEncoders))
	for _, f := range Formats {
		candidates := formatEncoders[f]
		s := FormatSupport{Format: f, Encoders: candidates}
		for _, enc := range candidates {
			if listed[enc] {
				s.Encoder = enc
				s.Available = true
				break
			}
		}
		result[f] = s
	}
	return result
}
