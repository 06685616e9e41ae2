// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, format and optional rotated file output.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	OutputFile string // empty logs to stdout only
	MaxSize    int    // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// New creates a logger writing to stdout and, when configured, a rotated file.
func New(cfg Config) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "06-01-02 15:04:05",
		})
	}

	writers := []io.Writer{os.Stdout}
	if cfg.OutputFile != "" {
		if dir := filepath.Dir(cfg.OutputFile); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "create log dir %s", dir)
			}
		}
		if cfg.MaxSize == 0 {
			cfg.MaxSize = 100
		}
		if cfg.MaxBackups == 0 {
			cfg.MaxBackups = 3
		}
		if cfg.MaxAge == 0 {
			cfg.MaxAge = 7
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	logger.SetOutput(io.MultiWriter(writers...))
	return logger, nil
}

// Component returns an entry tagged with the component name.
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("component", name)
}
