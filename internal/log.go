package internal

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a logrus logger optionally backed by a file it owns.
type Logger struct {
	*logrus.Logger
	f *os.File
}

// NewLogger writes to path, or to stderr when path is empty.
func NewLogger(path string, verbose bool) (*Logger, error) {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}

	logger := &Logger{Logger: l}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.SetOutput(f)
		logger.f = f
	}
	return logger, nil
}

func (l *Logger) Close() error {
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}
