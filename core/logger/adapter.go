package logger

import (
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
)

// Re-exported log levels so CLI code does not need the infrastructure package
const (
	LogLevelError = logging.LogLevelError
	LogLevelWarn  = logging.LogLevelWarn
	LogLevelInfo  = logging.LogLevelInfo
	LogLevelDebug = logging.LogLevelDebug
)

// Logger is the tagged logger used throughout the service
type Logger = logging.Logger

// New creates a new logger instance with a tag
func New(tag string) Logger {
	return logging.New(tag)
}

// SetLogLevel sets the global log level
func SetLogLevel(level int) {
	logging.SetLogLevel(level)
}

// SetTagFilter sets the tag filter
func SetTagFilter(filterStr string) {
	logging.SetTagFilter(filterStr)
}

// SetLogFile enables log file streaming
func SetLogFile() (string, error) {
	return logging.SetLogFile()
}

// CloseLogFile closes the log file
func CloseLogFile() error {
	return logging.CloseLogFile()
}
