package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type Options struct {
	Level  string
	Format Format
	// FilePath, when set, receives a copy of every entry.
	FilePath string
	// Color forces colored text output; ignored for JSON.
	Color bool
}

// Setup configures the standard logrus logger and returns it. The returned
// closer releases the log file, if any.
func Setup(opts Options, stderr io.Writer) (*logrus.Logger, io.Closer, error) {
	log := logrus.StandardLogger()
	closer, err := Configure(log, opts, stderr)
	return log, closer, err
}

// Configure applies opts to an arbitrary logger.
func Configure(log *logrus.Logger, opts Options, stderr io.Writer) (io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)

	switch Format(strings.ToLower(string(opts.Format))) {
	case FormatJSON:
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	case FormatText, "":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
			ForceColors:     opts.Color,
			DisableColors:   !opts.Color,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	if stderr == nil {
		stderr = os.Stderr
	}
	if opts.FilePath == "" {
		log.SetOutput(stderr)
		return io.NopCloser(nil), nil
	}

	file, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.SetOutput(stderr)
		log.WithError(err).Error("Could not create file for logging")
		return io.NopCloser(nil), nil
	}
	log.SetOutput(io.MultiWriter(stderr, file))
	return file, nil
}

// ParseLevel accepts logrus level names; empty means info.
func ParseLevel(s string) (logrus.Level, error) {
	if s == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
