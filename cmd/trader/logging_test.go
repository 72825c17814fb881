package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gregtusar/basisarb/internal/config"
	"github.com/sirupsen/logrus"
)

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.log")
	logger, closeLog, err := newLogger(config.LoggingConfig{Level: "debug", Format: "json", File: path})
	if err != nil {
		t.Fatal(err)
	}
	logger.WithField("symbol", "SOLUSDT").Debug("tick")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"symbol":"SOLUSDT"`) {
		t.Errorf("log file = %s", data)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %s", logger.GetLevel())
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	logger, closeLog, err := newLogger(config.LoggingConfig{Level: "chatty", Format: "text"})
	if err != nil {
		t.Fatal(err)
	}
	defer closeLog()
	if logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %s, want info", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("formatter = %T", logger.Formatter)
	}
}
