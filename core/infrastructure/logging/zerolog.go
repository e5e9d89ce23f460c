package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/hyperterse/widgetquery/core/domain/interfaces"
)

const (
	LogLevelError = 1
	LogLevelWarn  = 2
	LogLevelInfo  = 3
	LogLevelDebug = 4
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z"

var (
	globalLogLevel = LogLevelInfo
	logLevelMutex  sync.RWMutex

	// Tag filtering
	tagFilter      []string
	tagFilterMutex sync.RWMutex

	// Output; a log file is tee'd in when enabled
	outputMutex sync.RWMutex
	logFile     *os.File
	logWriter   io.Writer = os.Stdout
	forceJSON   bool
)

// SetLogLevel sets the global log level
func SetLogLevel(level int) {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	if level >= LogLevelError && level <= LogLevelDebug {
		globalLogLevel = level
		zerolog.SetGlobalLevel(convertLogLevel(level))
	}
}

// GetLogLevel returns the current global log level
func GetLogLevel() int {
	logLevelMutex.RLock()
	defer logLevelMutex.RUnlock()
	return globalLogLevel
}

// SetTagFilter sets the tag filter from a comma-separated string.
// A tag prefixed with "-" is excluded; "executor" also matches "executor:sql".
func SetTagFilter(filterStr string) {
	tagFilterMutex.Lock()
	defer tagFilterMutex.Unlock()

	if filterStr == "" {
		tagFilter = nil
		return
	}

	tags := strings.Split(filterStr, ",")
	tagFilter = make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tagFilter = append(tagFilter, tag)
		}
	}
}

func matchesTag(tag, filterTag string) bool {
	return tag == filterTag || strings.HasPrefix(tag, filterTag+":")
}

// shouldLogTag checks if a tag should be logged based on the filter
func shouldLogTag(tag string) bool {
	tagFilterMutex.RLock()
	defer tagFilterMutex.RUnlock()

	if len(tagFilter) == 0 {
		return true
	}

	hasInclusion := false
	included := false
	for _, filterTag := range tagFilter {
		if excludeTag, ok := strings.CutPrefix(filterTag, "-"); ok {
			if matchesTag(tag, excludeTag) {
				return false
			}
			continue
		}
		hasInclusion = true
		if matchesTag(tag, filterTag) {
			included = true
		}
	}

	return included || !hasInclusion
}

// SetOutput redirects all loggers created afterwards to w as JSON lines.
func SetOutput(w io.Writer) {
	outputMutex.Lock()
	defer outputMutex.Unlock()
	logWriter = w
	forceJSON = true
}

// SetLogFile streams logs to a file under the system temp dir in addition to stdout
func SetLogFile() (string, error) {
	outputMutex.Lock()
	defer outputMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), ".widgetquery", "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", err
	}

	filePath := filepath.Join(logDir, "widgetquery-"+uuid.NewString()[:8]+".log")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", err
	}

	logFile = file
	logWriter = io.MultiWriter(os.Stdout, file)
	return filePath, nil
}

// CloseLogFile closes the log file if it's open
func CloseLogFile() error {
	outputMutex.Lock()
	defer outputMutex.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	logWriter = os.Stdout
	return err
}

// ZerologLogger implements the Logger interface using zerolog
type ZerologLogger struct {
	tag    string
	logger zerolog.Logger
}

// Logger is the interface exported from this package
type Logger = interfaces.Logger

// New creates a new logger instance with a tag
func New(tag string) Logger {
	if !shouldLogTag(tag) {
		return &noOpLogger{}
	}

	outputMutex.RLock()
	var output io.Writer = logWriter
	if !forceJSON && isInteractive() {
		output = zerolog.ConsoleWriter{Out: logWriter, TimeFormat: consoleTimeFormat}
	}
	outputMutex.RUnlock()

	return &ZerologLogger{
		tag:    tag,
		logger: zerolog.New(output).With().Timestamp().Str("tag", tag).Logger(),
	}
}

// isInteractive checks if the output is going to a terminal
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// convertLogLevel converts our log level to zerolog level
func convertLogLevel(level int) zerolog.Level {
	switch level {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

func enabled(level int) bool {
	logLevelMutex.RLock()
	defer logLevelMutex.RUnlock()
	return level <= globalLogLevel
}

// With returns a child logger carrying an extra field
func (l *ZerologLogger) With(key string, value any) Logger {
	return &ZerologLogger{
		tag:    l.tag,
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

// Error logs at ERROR level
func (l *ZerologLogger) Error(message string) {
	if enabled(LogLevelError) {
		l.logger.Error().Msg(message)
	}
}

// Errorf logs at ERROR level with formatting
func (l *ZerologLogger) Errorf(format string, args ...any) {
	if enabled(LogLevelError) {
		l.logger.Error().Msgf(format, args...)
	}
}

// Warn logs at WARN level
func (l *ZerologLogger) Warn(message string) {
	if enabled(LogLevelWarn) {
		l.logger.Warn().Msg(message)
	}
}

// Warnf logs at WARN level with formatting
func (l *ZerologLogger) Warnf(format string, args ...any) {
	if enabled(LogLevelWarn) {
		l.logger.Warn().Msgf(format, args...)
	}
}

// Info logs at INFO level
func (l *ZerologLogger) Info(message string) {
	if enabled(LogLevelInfo) {
		l.logger.Info().Msg(message)
	}
}

// Infof logs at INFO level with formatting
func (l *ZerologLogger) Infof(format string, args ...any) {
	if enabled(LogLevelInfo) {
		l.logger.Info().Msgf(format, args...)
	}
}

// Success logs regardless of log level
func (l *ZerologLogger) Success(message string) {
	l.logger.WithLevel(zerolog.NoLevel).Str("status", "success").Msg(message)
}

// Successf logs regardless of log level
func (l *ZerologLogger) Successf(format string, args ...any) {
	l.logger.WithLevel(zerolog.NoLevel).Str("status", "success").Msgf(format, args...)
}

// Debug logs at DEBUG level
func (l *ZerologLogger) Debug(message string) {
	if enabled(LogLevelDebug) {
		l.logger.Debug().Msg(message)
	}
}

// Debugf logs at DEBUG level with formatting
func (l *ZerologLogger) Debugf(format string, args ...any) {
	if enabled(LogLevelDebug) {
		l.logger.Debug().Msgf(format, args...)
	}
}

// PrintError logs an error with a title
func (l *ZerologLogger) PrintError(title string, err error) {
	if err == nil {
		return
	}
	l.Errorf("%s: %v", title, err)
}

// PrintValidationErrors logs validation errors
func (l *ZerologLogger) PrintValidationErrors(errors []string) {
	if len(errors) == 0 {
		return
	}
	l.Errorf("Validation Errors (%d)", len(errors))
	for i, err := range errors {
		l.Error(fmt.Sprintf("  %d. %s", i+1, err))
	}
}

// noOpLogger is a no-op logger for filtered tags
type noOpLogger struct{}

func (n *noOpLogger) With(string, any) Logger        { return n }
func (n *noOpLogger) Error(string)                   {}
func (n *noOpLogger) Errorf(string, ...any)          {}
func (n *noOpLogger) Warn(string)                    {}
func (n *noOpLogger) Warnf(string, ...any)           {}
func (n *noOpLogger) Info(string)                    {}
func (n *noOpLogger) Infof(string, ...any)           {}
func (n *noOpLogger) Success(string)                 {}
func (n *noOpLogger) Successf(string, ...any)        {}
func (n *noOpLogger) Debug(string)                   {}
func (n *noOpLogger) Debugf(string, ...any)          {}
func (n *noOpLogger) PrintError(string, error)       {}
func (n *noOpLogger) PrintValidationErrors([]string) {}
