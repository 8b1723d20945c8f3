// Structured logging for the quickshifter host
//
// Provides leveled logging with per-component prefixes, key-value
// fields, and text or JSON output. Nothing here is called from the
// edge-handler hot path; shift decisions and signal transitions are
// logged from the control loop.
//
// Copyright (C) 2026  Quickshifter Host Project
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota

	// INFO level for general informational messages
	INFO

	// WARN level for warning messages
	WARN

	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the log level
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

// ParseLevel parses a string into a LogLevel
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// OutputFormat specifies the output format for log messages
type OutputFormat int

const (
	// FormatText outputs human-readable text format
	FormatText OutputFormat = iota
	// FormatJSON outputs machine-readable JSON format
	FormatJSON
)

// Fields is a map of structured logging fields
type Fields map[string]interface{}

// Logger writes leveled, optionally structured log messages.
type Logger struct {
	mu        sync.Mutex
	prefix    string
	writer    io.Writer
	level     LogLevel
	outFormat OutputFormat
	fields    Fields
}

// New creates a Logger writing text output at INFO level.
func New(w io.Writer, prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		writer: w,
		level:  INFO,
	}
}

// SetLevel sets the minimum level that will be emitted.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetFormat sets the output format.
func (l *Logger) SetFormat(f OutputFormat) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outFormat = f
}

// WithPrefix returns a child logger with the given component prefix.
// The child shares the parent's writer, level and format.
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		prefix:    prefix,
		writer:    l.writer,
		level:     l.level,
		outFormat: l.outFormat,
		fields:    copyFields(l.fields),
	}
}

// WithFields returns a child logger that attaches the given fields to
// every message.
func (l *Logger) WithFields(fields Fields) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	merged := copyFields(l.fields)
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		prefix:    l.prefix,
		writer:    l.writer,
		level:     l.level,
		outFormat: l.outFormat,
		fields:    merged,
	}
}

func copyFields(f Fields) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Debugf logs a formatted message at DEBUG level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(DEBUG, format, args...)
}

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(INFO, format, args...)
}

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(WARN, format, args...)
}

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(ERROR, format, args...)
}

func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level || l.writer == nil {
		return
	}

	msg := fmt.Sprintf(format, args...)
	now := time.Now()

	if l.outFormat == FormatJSON {
		entry := map[string]interface{}{
			"time":  now.Format(time.RFC3339Nano),
			"level": level.String(),
			"msg":   msg,
		}
		if l.prefix != "" {
			entry["component"] = l.prefix
		}
		for k, v := range l.fields {
			entry[k] = v
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return
		}
		fmt.Fprintf(l.writer, "%s\n", data)
		return
	}

	var sb strings.Builder
	sb.WriteString(now.Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(level.String())
	sb.WriteString("]")
	if l.prefix != "" {
		sb.WriteString(" [")
		sb.WriteString(l.prefix)
		sb.WriteString("]")
	}
	sb.WriteString(" ")
	sb.WriteString(msg)
	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, l.fields[k]))
		}
	}
	sb.WriteString("\n")
	io.WriteString(l.writer, sb.String())
}

var (
	defaultMu     sync.Mutex
	defaultLogger = New(os.Stderr, "")
)

// Default returns the package-level logger.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultLogger
}

// SetDefault replaces the package-level logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Debugf logs to the default logger at DEBUG level.
func Debugf(format string, args ...interface{}) {
	Default().Debugf(format, args...)
}

// Infof logs to the default logger at INFO level.
func Infof(format string, args ...interface{}) {
	Default().Infof(format, args...)
}

// Warnf logs to the default logger at WARN level.
func Warnf(format string, args ...interface{}) {
	Default().Warnf(format, args...)
}

// Errorf logs to the default logger at ERROR level.
func Errorf(format string, args ...interface{}) {
	Default().Errorf(format, args...)
}
