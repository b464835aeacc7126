package browse

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gwlsn/clipper/internal/ffmpeg"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

// probeConcurrency caps how many ffprobe processes a listing starts at once
const probeConcurrency = 4

// ErrOutsideRoot is returned for paths that resolve outside the media root
var ErrOutsideRoot = errors.New("path is outside the media root")

// Inspector reads media metadata
type Inspector interface {
	Inspect(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
}

// Entry represents a file or directory in a listing
type Entry struct {
	Name       string            `json:"name"`
	Path       string            `json:"path"`
	IsDir      bool              `json:"is_dir"`
	Size       int64             `json:"size"`
	ModTime    time.Time         `json:"mod_time"`
	MediaInfo  *ffmpeg.MediaInfo `json:"media_info,omitempty"`
	MediaCount int               `json:"media_count,omitempty"` // directories: media files directly inside
}

// Listing is the content of one directory
type Listing struct {
	Path       string   `json:"path"`
	Parent     string   `json:"parent,omitempty"`
	Entries    []*Entry `json:"entries"`
	MediaCount int      `json:"media_count"`
}

// cachedInfo is a probe result tied to the file version it was read from
type cachedInfo struct {
	size    int64
	modTime time.Time
	info    *ffmpeg.MediaInfo
}

// Browser lists media files below a root directory so a source can be picked
type Browser struct {
	inspector Inspector
	root      string
	logger    hclog.Logger

	cacheMu sync.RWMutex
	cache   map[string]cachedInfo
}

// NewBrowser creates a Browser confined to root
func NewBrowser(inspector Inspector, root string, logger hclog.Logger) *Browser {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = filepath.Clean(root)
	}
	return &Browser{
		inspector: inspector,
		root:      absRoot,
		logger:    logger.Named("browse"),
		cache:     make(map[string]cachedInfo),
	}
}

// Root returns the absolute media root
func (b *Browser) Root() string {
	return b.root
}

// resolve maps a requested path to an absolute path inside the root. An
// empty path means the root itself.
func (b *Browser) resolve(path string) (string, error) {
	if path == "" {
		return b.root, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(b.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return abs, nil
}

// List returns the directories and media files in path. Hidden entries and
// files that are not media are skipped. Media files carry probe metadata when
// ffprobe can read them.
func (b *Browser) List(ctx context.Context, path string) (*Listing, error) {
	dir, err := b.resolve(path)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	listing := &Listing{
		Path:    dir,
		Entries: make([]*Entry, 0, len(dirEntries)),
	}
	if dir != b.root {
		listing.Parent = filepath.Dir(dir)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)

	for _, e := range dirEntries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !e.IsDir() && !ffmpeg.IsMediaFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		entry := &Entry{
			Name:    e.Name(),
			Path:    filepath.Join(dir, e.Name()),
			IsDir:   e.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		listing.Entries = append(listing.Entries, entry)

		if entry.IsDir {
			entry.MediaCount = countMedia(entry.Path)
			continue
		}

		listing.MediaCount++
		g.Go(func() error {
			entry.MediaInfo = b.mediaInfo(gctx, entry.Path, info)
			return nil
		})
	}
	_ = g.Wait()

	// Directories first, then by name
	sort.Slice(listing.Entries, func(i, j int) bool {
		a, c := listing.Entries[i], listing.Entries[j]
		if a.IsDir != c.IsDir {
			return a.IsDir
		}
		return strings.ToLower(a.Name) < strings.ToLower(c.Name)
	})

	return listing, nil
}

// countMedia counts the media files directly inside dir
func countMedia(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") && ffmpeg.IsMediaFile(e.Name()) {
			count++
		}
	}
	return count
}

// mediaInfo returns cached metadata while the file is unchanged, probing it
// otherwise. Returns nil when the probe fails.
func (b *Browser) mediaInfo(ctx context.Context, path string, stat os.FileInfo) *ffmpeg.MediaInfo {
	b.cacheMu.RLock()
	cached, ok := b.cache[path]
	b.cacheMu.RUnlock()
	if ok && cached.size == stat.Size() && cached.modTime.Equal(stat.ModTime()) {
		return cached.info
	}

	info, err := b.inspector.Inspect(ctx, path)
	if err != nil {
		b.logger.Debug("probe failed", "path", filepath.Base(path), "error", err)
		return nil
	}

	b.cacheMu.Lock()
	b.cache[path] = cachedInfo{size: stat.Size(), modTime: stat.ModTime(), info: info}
	b.cacheMu.Unlock()
	return info
}
