package main

import (
	"fmt"
	"os"

	"github.com/gregtusar/basisarb/internal/config"
	"github.com/sirupsen/logrus"
)

// newLogger builds the process logger. The returned func closes the log file,
// if one was opened.
func newLogger(cfg config.LoggingConfig) (*logrus.Logger, func(), error) {
	logger := logrus.New()

	switch cfg.Format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	closeFn := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(f)
		closeFn = func() { f.Close() }
	}
	return logger, closeFn, nil
}
