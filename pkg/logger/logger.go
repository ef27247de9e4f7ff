package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	entry *logrus.Logger
}

func New() *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{entry: l}
}

// Configure applies level ("debug", "info", "warn", "error") and format ("text", "json").
// Unknown values keep the current setting.
func (l *Logger) Configure(level, format string) {
	if lvl, err := logrus.ParseLevel(strings.TrimSpace(level)); err == nil {
		l.entry.SetLevel(lvl)
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		l.entry.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		l.entry.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func (l *Logger) SetOutput(w io.Writer) {
	l.entry.SetOutput(w)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.entry.Warnf(format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.entry.Fatalf(format, v...)
}

func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.entry.WithField(key, value)
}

func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.entry.WithFields(fields)
}

// Global logger instance
var GlobalLogger = New()

// Convenience functions
func Configure(level, format string) {
	GlobalLogger.Configure(level, format)
}

func Info(format string, v ...interface{}) {
	GlobalLogger.Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	GlobalLogger.Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.Error(format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.Debug(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.Fatal(format, v...)
}

func WithField(key string, value interface{}) *logrus.Entry {
	return GlobalLogger.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return GlobalLogger.WithFields(fields)
}
