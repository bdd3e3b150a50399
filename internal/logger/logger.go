// Package logger provides the application-wide zerolog setup.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with application-specific helpers.
type Logger struct {
	zerolog.Logger
}

// New creates a Logger with the given level and format. Unknown levels fall
// back to info; format "console" enables human-readable output for
// development, anything else logs JSON.
func New(level string, format string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var logger zerolog.Logger

	if format == "text" || format == "console" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	return &Logger{Logger: logger}
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithComponent returns a new logger with the component name attached.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With().Str("component", component).Logger(),
	}
}

// WithTask returns a new logger with task identifiers attached.
func (l *Logger) WithTask(taskID, taskName string) *Logger {
	return &Logger{
		Logger: l.With().Str("task_id", taskID).Str("task_name", taskName).Logger(),
	}
}
