// internal/utils/logger.go
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger represents a structured logger
type Logger struct {
	mu    sync.Mutex
	entry *logrus.Logger
	file  *os.File
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		l := logrus.New()
		l.SetOutput(os.Stdout)
		l.SetLevel(logrus.InfoLevel)
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05.000"})
		globalLogger = &Logger{entry: l}
	})
	return globalLogger
}

// InitLogger configures level, format and an optional log directory.
// Output always goes to stdout; when logDir is set it is duplicated into logDir/deepdetect.log.
func InitLogger(logDir, level string, debug bool) error {
	logger := GetLogger()

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if debug {
		logger.entry.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.entry.SetLevel(parseLevel(level, debug))

	if logDir == "" {
		return nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(logDir, "deepdetect.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if logger.file != nil {
		logger.file.Close()
	}
	logger.file = file
	logger.entry.SetOutput(io.MultiWriter(os.Stdout, file))
	return nil
}

// SetOutput redirects log output, mainly for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.SetOutput(w)
}

func parseLevel(level string, debug bool) logrus.Level {
	if debug && level == "" {
		return logrus.DebugLevel
	}
	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

func (l *Logger) with(fields map[string]interface{}) *logrus.Entry {
	return l.entry.WithFields(logrus.Fields(fields))
}

func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.with(fields).Debug(message)
}

func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.with(fields).Info(message)
}

func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.with(fields).Warn(message)
}

func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.with(fields).Error(message)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, fields map[string]interface{}) {
	l.with(fields).Fatal(message)
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }
