package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	logger "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the standard logrus logger. The returned closer releases
// the log file, if any.
func Setup(cfg Config) io.Closer {
	return configure(logger.StandardLogger(), cfg, os.Stdout)
}

func configure(log *logger.Logger, cfg Config, stdout io.Writer) io.Closer {
	level, err := logger.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = logger.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&logger.JSONFormatter{})
	} else {
		log.SetFormatter(&logger.TextFormatter{
			FullTimestamp: true,
		})
	}

	if cfg.File == "" {
		log.SetOutput(stdout)
		return nopCloser{}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		log.SetOutput(stdout)
		log.WithError(err).WithField("file", cfg.File).Warn("log directory not writable, logging to stdout only")
		return nopCloser{}
	}

	fileWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(stdout, fileWriter))
	return fileWriter
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
