package config

import (
	"os"
	"path/filepath"

	"github.com/gwlsn/clipper/internal/ffmpeg"
	"gopkg.in/yaml.v3"
)

const (
	appName                 = "clipper"
	defaultListenAddr       = ":8090"
	defaultTranscriptLines  = 100
	defaultLogLevel         = "info"
	defaultFFmpegPath       = "ffmpeg"
	defaultFFprobePath      = "ffprobe"
	defaultConfigFileName   = "config.yaml"
	fallbackThumbnailParent = "/tmp"
)

type Config struct {
	// FFmpegPath is the path to ffmpeg binary (default: "ffmpeg")
	FFmpegPath string `yaml:"ffmpeg_path"`

	// FFprobePath is the path to ffprobe binary (default: "ffprobe")
	FFprobePath string `yaml:"ffprobe_path"`

	// MediaRoot is the directory the file browser is confined to
	// If empty, the user's home directory is used
	MediaRoot string `yaml:"media_root"`

	// ThumbnailDir is where preview frames are written
	// If empty, the user cache dir + /clipper is used
	ThumbnailDir string `yaml:"thumbnail_dir"`

	// ThumbnailOffset is the ffmpeg timestamp the preview frame is taken at
	ThumbnailOffset string `yaml:"thumbnail_offset"`

	// TranscriptLines caps how many output lines a job keeps (default 100)
	TranscriptLines int `yaml:"transcript_lines"`

	// LogLevel is one of trace, debug, info, warn, error, off
	LogLevel string `yaml:"log_level"`

	// LogJSON switches log output to JSON lines
	LogJSON bool `yaml:"log_json"`

	// ListenAddr is the address the HTTP API binds to
	ListenAddr string `yaml:"listen_addr"`

	// Ntfy notification settings. Notifications are sent when a topic is set.
	NtfyServer string `yaml:"ntfy_server"`
	NtfyTopic  string `yaml:"ntfy_topic"`
	NtfyToken  string `yaml:"ntfy_token"`

	// Defaults are the transcode options used when a request omits them
	Defaults ffmpeg.Options `yaml:"defaults"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		FFmpegPath:      defaultFFmpegPath,
		FFprobePath:     defaultFFprobePath,
		ThumbnailDir:    "", // user cache dir
		ThumbnailOffset: ffmpeg.DefaultThumbnailOffset,
		TranscriptLines: defaultTranscriptLines,
		LogLevel:        defaultLogLevel,
		ListenAddr:      defaultListenAddr,
		Defaults:        ffmpeg.DefaultOptions(),
	}
}

// DefaultPath returns the config file location under the user config dir
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(dir, appName, defaultConfigFileName)
}

// Load reads config from a YAML file, applying defaults for missing values
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills in fields a config file left empty
func (c *Config) applyDefaults() {
	if c.FFmpegPath == "" {
		c.FFmpegPath = defaultFFmpegPath
	}
	if c.FFprobePath == "" {
		c.FFprobePath = defaultFFprobePath
	}
	if c.ThumbnailOffset == "" {
		c.ThumbnailOffset = ffmpeg.DefaultThumbnailOffset
	}
	if c.TranscriptLines < 1 {
		c.TranscriptLines = defaultTranscriptLines
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	defaults := ffmpeg.DefaultOptions()
	if c.Defaults.Format == "" {
		c.Defaults.Format = defaults.Format
	}
	if c.Defaults.Resolution == "" {
		c.Defaults.Resolution = defaults.Resolution
	}
	if c.Defaults.QualityCRF == 0 {
		c.Defaults.QualityCRF = defaults.QualityCRF
	}
	if c.Defaults.SpeedFactor == 0 {
		c.Defaults.SpeedFactor = defaults.SpeedFactor
	}
	if c.Defaults.GIFPaletteMode == "" {
		c.Defaults.GIFPaletteMode = defaults.GIFPaletteMode
	}
	if c.Defaults.SizeConstraintMode == "" {
		c.Defaults.SizeConstraintMode = defaults.SizeConstraintMode
	}
	if c.Defaults.TargetSizeMB == 0 {
		c.Defaults.TargetSizeMB = defaults.TargetSizeMB
	}
	if c.Defaults.AudioBitrateKbps == 0 {
		c.Defaults.AudioBitrateKbps = defaults.AudioBitrateKbps
	}
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetThumbnailDir returns the directory for preview frames
// If ThumbnailDir is set, returns that; otherwise a clipper dir in the user cache
func (c *Config) GetThumbnailDir() string {
	if c.ThumbnailDir != "" {
		return c.ThumbnailDir
	}
	if cache, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cache, appName)
	}
	return filepath.Join(fallbackThumbnailParent, appName)
}

// GetMediaRoot returns the directory sources are browsed from
func (c *Config) GetMediaRoot() string {
	if c.MediaRoot != "" {
		return c.MediaRoot
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return string(filepath.Separator)
}

// NtfyEnabled reports whether completion notifications should be sent
func (c *Config) NtfyEnabled() bool {
	return c.NtfyTopic != ""
}
