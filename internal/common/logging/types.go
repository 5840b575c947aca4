// Package logging is the structured logger shared by every pipeline component.
//
// Components log through the Logger interface and attach context with
// Field values. The process-wide logger is zap-backed; its verbosity is set
// at startup from LOG_LEVEL and afterwards follows the log_level carried by
// library settings (dev, qa, prod, silent) via SetGlobalLevel.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
)

// LogLevel orders verbosity from DebugLevel (everything) to SilentLevel
// (nothing).
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	SilentLevel
)

var levelNames = [...]string{
	DebugLevel:  "DEBUG",
	InfoLevel:   "INFO",
	WarnLevel:   "WARN",
	ErrorLevel:  "ERROR",
	SilentLevel: "SILENT",
}

func (l LogLevel) String() string {
	if l < DebugLevel || l > SilentLevel {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel reads an environment-style level name. WARNING and OFF are
// accepted as aliases; anything unrecognised is InfoLevel.
func ParseLevel(name string) LogLevel {
	name = strings.ToUpper(strings.TrimSpace(name))
	switch name {
	case "WARNING":
		return WarnLevel
	case "OFF":
		return SilentLevel
	}
	for level, known := range levelNames {
		if known == name {
			return LogLevel(level)
		}
	}
	return InfoLevel
}

// LevelFromSettings maps a library settings log level to a LogLevel.
// Unknown values map to WarnLevel, the production default.
func LevelFromSettings(value string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev":
		return DebugLevel
	case "qa":
		return InfoLevel
	case "silent":
		return SilentLevel
	default:
		return WarnLevel
	}
}

// Field is one key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// Logger is implemented by ZapAdapter and the no-op logger.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	WithFields(fields ...Field) Logger
	WithContext(ctx context.Context) Logger
}

// LevelSetter is implemented by loggers whose verbosity can change at runtime.
type LevelSetter interface {
	SetLevel(level LogLevel)
	Level() LogLevel
}

// LogConfig configures NewZapLogger. A nil Output writes to stdout; a
// non-empty Name is added to every entry.
type LogConfig struct {
	Level  LogLevel
	Output io.Writer
	Name   string
}

// DefaultLogConfig logs to stdout at the LOG_LEVEL environment level.
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: ParseLevel(os.Getenv("LOG_LEVEL"))}
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

// SetGlobalLogger replaces the process-wide logger.
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the process-wide logger, creating a default one on
// first use.
func GetGlobalLogger() Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewDefaultLogger()
	}
	return globalLogger
}

// SetGlobalLevel changes the verbosity of the global logger. It returns false
// when the global logger has a fixed level.
func SetGlobalLevel(level LogLevel) bool {
	setter, ok := GetGlobalLogger().(LevelSetter)
	if !ok {
		return false
	}
	setter.SetLevel(level)
	return true
}

func Debug(msg string, fields ...Field) { GetGlobalLogger().Debug(msg, fields...) }

func Info(msg string, fields ...Field) { GetGlobalLogger().Info(msg, fields...) }

func Warn(msg string, fields ...Field) { GetGlobalLogger().Warn(msg, fields...) }

func Error(msg string, err error, fields ...Field) { GetGlobalLogger().Error(msg, err, fields...) }
