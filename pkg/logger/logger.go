// Package logger provides structured logging for the fund layer.
// It wraps logrus so services get levelled, field-structured output with a
// consistent component tag.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry bound to a named component.
type Logger struct {
	entry *logrus.Entry
}

// Config controls logger construction.
type Config struct {
	Component string
	Level     string // debug, info, warn, error
	JSON      bool
}

// New creates a logger from config.
func New(cfg Config) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	if cfg.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	return &Logger{entry: l.WithField("component", cfg.Component)}
}

// NewDefault creates an info-level text logger for the given component.
func NewDefault(component string) *Logger {
	level := os.Getenv("LOG_LEVEL")
	return New(Config{Component: component, Level: level})
}

// WithField returns a logger with an extra field attached.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a logger with extra fields attached.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
