package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level is the logging level.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// Logger is a basic leveled logger.
type Logger struct {
	level   Level
	logger  *log.Logger
	file    *os.File
	enabled bool
}

var globalLogger *Logger

// Init initializes the global logger. With enabled false all logging
// calls become no-ops.
func Init(enabled bool, levelStr, logFile string, console bool) error {
	if !enabled {
		globalLogger = &Logger{enabled: false}
		return nil
	}

	var writers []io.Writer
	var file *os.File

	if logFile != "" {
		dir := filepath.Dir(logFile)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
		file = f
	}

	if console || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	globalLogger = &Logger{
		level:   parseLevel(levelStr),
		logger:  log.New(io.MultiWriter(writers...), "", 0),
		file:    file,
		enabled: true,
	}

	return nil
}

// Close releases the log file, if any.
func Close() error {
	if globalLogger == nil || globalLogger.file == nil {
		return nil
	}
	return globalLogger.file.Close()
}

func parseLevel(levelStr string) Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "INFO"
	}
}

func emit(level Level, format string, args ...interface{}) {
	if globalLogger == nil || !globalLogger.enabled || globalLogger.level > level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	globalLogger.logger.Printf("[%s] [%s] %s", ts, level, fmt.Sprintf(format, args...))
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) {
	emit(Debug, format, args...)
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	emit(Info, format, args...)
}

// Warnf logs a warning.
func Warnf(format string, args ...interface{}) {
	emit(Warn, format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	emit(Error, format, args...)
}
