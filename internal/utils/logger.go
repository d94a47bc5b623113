package utils

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerOptions controls where and how verbosely NewLogger writes.
type LoggerOptions struct {
	// FilePath enables a rotating log file in addition to stderr.
	FilePath string
	Level    string
	// MaxSizeMB and MaxAgeDays apply only when FilePath is set.
	MaxSizeMB  int
	MaxAgeDays int
}

// NewLogger creates a JSON logrus logger. The returned closer flushes the log file, if any.
func NewLogger(opts LoggerOptions) (*logrus.Logger, io.Closer) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if opts.FilePath == "" {
		logger.SetOutput(os.Stderr)
		return logger, nopCloser{}
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxAge := opts.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 7
	}
	file := &lumberjack.Logger{
		Filename: opts.FilePath,
		MaxSize:  maxSize,
		MaxAge:   maxAge,
		Compress: true,
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, file))
	return logger, file
}

// DiscardLogger is the default for components constructed without a logger.
func DiscardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
