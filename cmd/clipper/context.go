package main

import (
	"strings"
	"sync"

	"github.com/gwlsn/clipper/internal/config"
	"github.com/gwlsn/clipper/internal/ffmpeg"
	"github.com/gwlsn/clipper/internal/jobs"
	"github.com/gwlsn/clipper/internal/logging"
	"github.com/gwlsn/clipper/internal/ntfy"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     hclog.Logger
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

// configPath returns the --config value or the default location
func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			return path
		}
	}
	return config.DefaultPath()
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.LogLevel = strings.TrimSpace(*c.logLevelFlag)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) rootLogger() hclog.Logger {
	c.loggerOnce.Do(func() {
		opts := logging.Options{}
		if cfg, err := c.ensureConfig(); err == nil {
			opts.Level = cfg.LogLevel
			opts.JSON = cfg.LogJSON
		}
		c.logger = logging.New(opts)
	})
	return c.logger
}

// services holds the ffmpeg collaborators built from the config
type services struct {
	cfg         *config.Config
	logger      hclog.Logger
	prober      *ffmpeg.Prober
	transcoder  *ffmpeg.Transcoder
	thumbnailer *ffmpeg.Thumbnailer
	formats     *ffmpeg.Capabilities
}

func (c *commandContext) services() (*services, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := c.rootLogger()
	return &services{
		cfg:         cfg,
		logger:      logger,
		prober:      ffmpeg.NewProber(cfg.FFprobePath, logger),
		transcoder:  ffmpeg.NewTranscoder(cfg.FFmpegPath, logger),
		thumbnailer: ffmpeg.NewThumbnailer(cfg.FFmpegPath, cfg.GetThumbnailDir(), cfg.ThumbnailOffset, logger),
		formats:     ffmpeg.NewCapabilities(cfg.FFmpegPath, logger),
	}, nil
}

// newRunner wires a job runner. Notifications are only sent when a topic is
// configured.
func (s *services) newRunner() *jobs.Runner {
	var notifier jobs.Notifier
	if s.cfg.NtfyEnabled() {
		notifier = ntfy.NewClient(s.cfg.NtfyServer, s.cfg.NtfyTopic, s.cfg.NtfyToken)
	}
	return jobs.NewRunner(jobs.RunnerConfig{
		Prober:          s.prober,
		Encoder:         s.transcoder,
		Notifier:        notifier,
		Formats:         s.formats,
		TranscriptLines: s.cfg.TranscriptLines,
		Logger:          s.logger,
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
