// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const DefaultFileName = "campnet-monitor.log"

type Options struct {
	Level string
	// File, when set, routes logs to a rotating file instead of Stderr.
	File   string
	Stderr io.Writer
}

// Setup applies opts to the standard logger. The returned closer releases the
// log file, if any.
func Setup(opts Options) (io.Closer, error) {
	level := log.InfoLevel
	if strings.TrimSpace(opts.Level) != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	log.SetLevel(level)

	if strings.TrimSpace(opts.File) == "" {
		out := opts.Stderr
		if out == nil {
			out = os.Stderr
		}
		log.SetOutput(out)
		log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	rotating := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    5,
		MaxBackups: 3,
		MaxAge:     14,
	}
	log.SetOutput(rotating)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableColors: true})
	return rotating, nil
}

// FilePath returns override, or the default log file inside dir.
func FilePath(dir, override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return filepath.Join(dir, DefaultFileName)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
