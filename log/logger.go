// Package log provides logging for the browser automation modules.
package log

import (
	"io"
	"regexp"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus logger and adds a category to every entry.
// Categories follow a "Component:method" convention so that a filter
// regexp can narrow the output to a single subsystem.
type Logger struct {
	*logrus.Logger

	categoryFilter *regexp.Regexp
}

// New returns a Logger that writes through the given logrus logger.
// categoryFilter may be nil, in which case all categories are logged.
func New(logger *logrus.Logger, categoryFilter *regexp.Regexp) *Logger {
	return &Logger{
		Logger:         logger,
		categoryFilter: categoryFilter,
	}
}

// NullLogger returns a Logger that discards everything. Useful in tests.
func NullLogger() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(l, nil)
}

// Tracef logs at trace level under the given category.
func (l *Logger) Tracef(category string, msg string, args ...interface{}) {
	l.logf(logrus.TraceLevel, category, msg, args...)
}

// Debugf logs at debug level under the given category.
func (l *Logger) Debugf(category string, msg string, args ...interface{}) {
	l.logf(logrus.DebugLevel, category, msg, args...)
}

// Infof logs at info level under the given category.
func (l *Logger) Infof(category string, msg string, args ...interface{}) {
	l.logf(logrus.InfoLevel, category, msg, args...)
}

// Warnf logs at warning level under the given category.
func (l *Logger) Warnf(category string, msg string, args ...interface{}) {
	l.logf(logrus.WarnLevel, category, msg, args...)
}

// Errorf logs at error level under the given category.
func (l *Logger) Errorf(category string, msg string, args ...interface{}) {
	l.logf(logrus.ErrorLevel, category, msg, args...)
}

func (l *Logger) logf(level logrus.Level, category string, msg string, args ...interface{}) {
	if l.categoryFilter != nil && !l.categoryFilter.MatchString(category) {
		return
	}
	l.Logger.WithField("category", category).Logf(level, msg, args...)
}

// SetLevel sets the logger level from a level string ("debug", "info", ...).
func (l *Logger) SetLevel(level string) error {
	pl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.Logger.SetLevel(pl)
	return nil
}

// DebugMode returns true if the logger level is set to Debug or higher.
func (l *Logger) DebugMode() bool {
	return l.Logger.GetLevel() >= logrus.DebugLevel
}
