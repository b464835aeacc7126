package ffmpeg

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// DefaultThumbnailOffset is where the preview frame is taken from
const DefaultThumbnailOffset = "00:00:01"


// Thumbnailer extracts a single preview frame with ffmpeg
type Thumbnailer struct {
	ffmpegPath string
	dir        string
	offset     string
	logger     hclog.Logger

	mu sync.Mutex // one ffmpeg extraction at a time
}

// NewThumbnailer writes thumbnails into dir, taking the frame at offset
func NewThumbnailer(ffmpegPath, dir, offset string, logger hclog.Logger) *Thumbnailer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if offset == "" {
		offset = DefaultThumbnailOffset
	}
	return &Thumbnailer{
		ffmpegPath: ffmpegPath,
		dir:        dir,
		offset:     offset,
		logger:     logger.Named("thumbnail"),
	}
}

// ThumbnailPath returns where the preview frame of inputPath is stored in dir.
// Each input gets its own file.
func ThumbnailPath(dir, inputPath string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(inputPath)))
	return filepath.Join(dir, "thumb-"+hex.EncodeToString(sum[:8])+".jpg")
}

// Generate writes the preview frame of inputPath and returns the image path.
// A later call for the same input overwrites it.
func (t *Thumbnailer) Generate(ctx context.Context, inputPath string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail dir: %w", err)
	}
	outputPath := ThumbnailPath(t.dir, inputPath)

	args := BuildThumbnailArgs(inputPath, outputPath, t.offset)
	output, err := exec.CommandContext(ctx, t.ffmpegPath, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("thumbnail for %s: %w: %s", inputPath, err, lastLine(string(output)))
	}

	t.logger.Debug("thumbnail written", "input", inputPath, "path", outputPath)
	return outputPath, nil
}

// ThumbnailDataURI reads a JPEG and returns it as a data: URI
func ThumbnailDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexAny(s, "\r\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
