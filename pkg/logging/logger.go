// Package logging provides the structured, leveled logger used by the
// debugger's host-facing components. Console output meant for the debugging
// user never goes through here; it is written to the console's own writer.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config string into a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug", "DEBUG":
		return DEBUG
	case "warn", "WARN":
		return WARN
	case "error", "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// LogFormat selects the output encoding
type LogFormat int

const (
	TextFormat LogFormat = iota
	JSONFormat
)

// LoggerConfig holds configuration for creating a logger
type LoggerConfig struct {
	MinLevel LogLevel
	Format   LogFormat
	Outputs  []io.Writer
}

// Logger is a leveled, structured logger safe for concurrent use
type Logger struct {
	mu       sync.Mutex
	minLevel LogLevel
	format   LogFormat
	out      io.Writer
	fields   map[string]interface{}
}

// NewLogger creates a logger from the given configuration. With no outputs
// configured it writes to stderr.
func NewLogger(config LoggerConfig) *Logger {
	var out io.Writer = os.Stderr
	if len(config.Outputs) == 1 {
		out = config.Outputs[0]
	} else if len(config.Outputs) > 1 {
		out = io.MultiWriter(config.Outputs...)
	}
	return &Logger{
		minLevel: config.MinLevel,
		format:   config.Format,
		out:      out,
	}
}

// Discard returns a logger that drops everything. Used as the default when
// the host wires no logging.
func Discard() *Logger {
	return &Logger{minLevel: ERROR + 1, out: io.Discard}
}

// NewRequestID returns a fresh correlation id.
func NewRequestID() string {
	return uuid.NewString()
}

// WithField returns a child logger that attaches key=value to every entry.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	fields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Logger{
		minLevel: l.minLevel,
		format:   l.format,
		out:      l.out,
		fields:   fields,
	}
}

// WithRequestID returns a child logger tagged with a correlation id.
func (l *Logger) WithRequestID(id string) *Logger {
	return l.WithField("request_id", id)
}

func (l *Logger) log(level LogLevel, msg string, extra map[string]interface{}) {
	if level < l.minLevel {
		return
	}

	fields := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if l.format == JSONFormat {
		entry := map[string]interface{}{
			"time":    now,
			"level":   level.String(),
			"message": msg,
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintf(l.out, "%s\n", data)
		}
		return
	}

	fmt.Fprintf(l.out, "%s [%s] %s", now, level.String(), msg)
	for k, v := range fields {
		fmt.Fprintf(l.out, " %s=%v", k, v)
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Debug(msg string) { l.log(DEBUG, msg, nil) }
func (l *Logger) Info(msg string)  { l.log(INFO, msg, nil) }
func (l *Logger) Warn(msg string)  { l.log(WARN, msg, nil) }
func (l *Logger) Error(msg string) { l.log(ERROR, msg, nil) }

func (l *Logger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log(DEBUG, msg, fields)
}

func (l *Logger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log(INFO, msg, fields)
}

func (l *Logger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log(WARN, msg, fields)
}

func (l *Logger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log(ERROR, msg, fields)
}
