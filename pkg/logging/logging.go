// Package logging configures the process-wide logrus logger. Level comes from
// LOG_LEVEL, and when LOG_FILE is set output additionally goes to a rotated
// file so long-running validators do not fill the disk.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// New builds a configured logger. It never fails; bad settings fall back to
// info-level stderr logging.
func New() *logrus.Logger {
	logger := logrus.New()

	level := logrus.InfoLevel
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if parsed, err := logrus.ParseLevel(strings.ToLower(s)); err == nil {
			level = parsed
		}
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	if path := os.Getenv("LOG_FILE"); path != "" {
		rotated := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		logger.SetOutput(io.MultiWriter(os.Stderr, rotated))
	}

	return logger
}

// Component returns a logger entry tagged with the originating component so
// round logs stay greppable.
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("component", name)
}
