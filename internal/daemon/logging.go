package daemon

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig configures the rotating daemon log.
type LogConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Foreground also copies log lines to stderr.
	Foreground bool
}

// OpenLog returns a logger writing to a size-rotated file. Close the
// returned io.Closer on shutdown.
func OpenLog(cfg LogConfig, prefix string) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}

	var w io.Writer = rotator
	if cfg.Foreground {
		w = io.MultiWriter(rotator, os.Stderr)
	}
	return log.New(w, prefix, log.LstdFlags), rotator, nil
}
