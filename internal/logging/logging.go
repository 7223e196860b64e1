// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures Setup.
type Options struct {
	Level  string // panic|fatal|error|warn|info|debug|trace
	Format string // text|json
	File   string // optional rotating log file, written in addition to Output

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	Output io.Writer // defaults to os.Stderr
}

// Setup applies opts to the standard logrus logger. The returned closer
// flushes and closes the log file, if any.
func Setup(opts Options) (io.Closer, error) {
	return configure(logrus.StandardLogger(), opts)
}

func configure(logger *logrus.Logger, opts Options) (io.Closer, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	formatter, err := newFormatter(opts.Format)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	logger.SetLevel(level)
	logger.SetFormatter(formatter)
	logger.SetOutput(out)

	if opts.File == "" {
		return nopCloser{}, nil
	}

	hook := &fileHook{
		formatter: &logrus.JSONFormatter{},
		writer: &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		},
	}
	logger.AddHook(hook)
	return hook, nil
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &logrus.TextFormatter{DisableColors: true, FullTimestamp: true}, nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fileHook copies every entry as JSON to a rotating file.
type fileHook struct {
	mu        sync.Mutex
	formatter logrus.Formatter
	writer    io.WriteCloser
}

// Fire writes one entry.
func (h *fileHook) Fire(entry *logrus.Entry) error {
	msg, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(msg)
	return err
}

// Levels returns all levels; filtering happens on the logger.
func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Close closes the underlying file.
func (h *fileHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writer.Close()
}
