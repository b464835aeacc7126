package logging

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Options configures the root logger
type Options struct {
	Name   string
	Level  string // trace, debug, info, warn, error, off
	JSON   bool
	Output io.Writer // defaults to stderr
}

// New builds the root logger. Components derive Named children from it.
func New(opts Options) hclog.Logger {
	if opts.Name == "" {
		opts.Name = "clipper"
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      ParseLevel(opts.Level),
		JSONFormat: opts.JSON,
		Output:     opts.Output,
	})
}

// ParseLevel maps a config level name to an hclog level. Unknown names are
// treated as info.
func ParseLevel(level string) hclog.Level {
	l := hclog.LevelFromString(strings.TrimSpace(level))
	if l == hclog.NoLevel {
		return hclog.Info
	}
	return l
}
