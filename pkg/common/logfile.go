package common

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileOptions controls rotation of the log file written by SetLogFile.
type LogFileOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// DefaultLogFileOptions returns the rotation settings used by the CLI.
func DefaultLogFileOptions() LogFileOptions {
	return LogFileOptions{
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// SetLogFile tees all log output to a rotating log file in addition to stderr.
// An empty path restores logging to stderr only. The returned closer must be
// closed when the program exits.
func SetLogFile(path string, opts LogFileOptions) io.Closer {
	if path == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}

	logger := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, logger))
	return logger
}
