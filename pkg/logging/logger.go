// Package logging provides structured logging for the recap bot.
// It wraps zerolog behind a small Logger interface so components can take a
// logger without caring whether output is JSON, console, or discarded.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// ContextKey type for context values to avoid collisions.
type ContextKey string

// Context keys carried into log lines by WithContext.
const (
	TraceIDKey ContextKey = "trace_id"
	CycleIDKey ContextKey = "cycle_id"
	EventIDKey ContextKey = "event_id"
)

// Level represents logging severity levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects the output encoding.
type Format string

const (
	FormatAuto    Format = "auto"
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Config holds logger configuration.
type Config struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level Level

	// ServiceName is included in all log entries.
	ServiceName string

	// Format picks JSON or console output. Auto uses JSON unless Output is a terminal.
	Format Format

	// Output sets the writer for logs (defaults to os.Stdout).
	Output io.Writer

	// Sinks receive a copy of every entry for async persistence.
	Sinks []Sink
}

// DefaultConfig returns a Config for local runs.
func DefaultConfig() *Config {
	return &Config{
		Level:       LevelInfo,
		ServiceName: "recap-bot",
		Format:      FormatAuto,
		Output:      os.Stdout,
	}
}

// ParseLevel converts a config string into a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a new Logger with the given fields attached to all subsequent logs.
	With(fields ...Field) Logger

	// WithContext returns a new Logger carrying trace, cycle and event ids from ctx.
	WithContext(ctx context.Context) Logger
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// F creates a new Field with the given key and value.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err creates a Field for an error.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

type logger struct {
	zl      zerolog.Logger
	service string
	sinks   []Sink
	bound   []Field
}

// NewLogger creates a new Logger with the given configuration.
func NewLogger(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if !useJSON(cfg.Format, output) {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(output).
		With().
		Timestamp().
		Str("service_name", cfg.ServiceName).
		Logger()

	return &logger{zl: zl, service: cfg.ServiceName, sinks: cfg.Sinks}
}

func useJSON(format Format, out io.Writer) bool {
	switch format {
	case FormatJSON:
		return true
	case FormatConsole:
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return true
	}
	return !term.IsTerminal(int(f.Fd()))
}

func parseLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *logger) Debug(msg string, fields ...Field) {
	l.log(l.zl.Debug(), "debug", msg, fields)
}

func (l *logger) Info(msg string, fields ...Field) {
	l.log(l.zl.Info(), "info", msg, fields)
}

func (l *logger) Warn(msg string, fields ...Field) {
	l.log(l.zl.Warn(), "warn", msg, fields)
}

func (l *logger) Error(msg string, fields ...Field) {
	l.log(l.zl.Error(), "error", msg, fields)
}

func (l *logger) log(event *zerolog.Event, level, msg string, fields []Field) {
	if event == nil {
		// Level disabled.
		return
	}
	addFields(event, fields).Msg(msg)
	l.sendToSinks(level, msg, fields)
}

// With returns a new logger with additional fields.
func (l *logger) With(fields ...Field) Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = addFieldToContext(ctx, f)
	}
	bound := make([]Field, 0, len(l.bound)+len(fields))
	bound = append(bound, l.bound...)
	bound = append(bound, fields...)
	return &logger{zl: ctx.Logger(), service: l.service, sinks: l.sinks, bound: bound}
}

// WithContext returns a new logger that includes ids stored in ctx.
func (l *logger) WithContext(ctx context.Context) Logger {
	var fields []Field
	for _, key := range []ContextKey{TraceIDKey, CycleIDKey, EventIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields = append(fields, F(string(key), v))
		}
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// ContextWithCycleID returns a child context tagged with a poll-cycle id.
func ContextWithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CycleIDKey, id)
}

// ContextWithEventID returns a child context tagged with a calendar event id.
func ContextWithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, EventIDKey, id)
}

func addFields(event *zerolog.Event, fields []Field) *zerolog.Event {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			event = event.Str(f.Key, v)
		case int:
			event = event.Int(f.Key, v)
		case int64:
			event = event.Int64(f.Key, v)
		case float64:
			event = event.Float64(f.Key, v)
		case bool:
			event = event.Bool(f.Key, v)
		case error:
			event = event.AnErr(f.Key, v)
		case time.Duration:
			event = event.Dur(f.Key, v)
		case time.Time:
			event = event.Time(f.Key, v)
		case []string:
			event = event.Strs(f.Key, v)
		default:
			event = event.Interface(f.Key, v)
		}
	}
	return event
}

func addFieldToContext(ctx zerolog.Context, f Field) zerolog.Context {
	switch v := f.Value.(type) {
	case string:
		return ctx.Str(f.Key, v)
	case int:
		return ctx.Int(f.Key, v)
	case int64:
		return ctx.Int64(f.Key, v)
	case bool:
		return ctx.Bool(f.Key, v)
	case error:
		return ctx.AnErr(f.Key, v)
	case time.Duration:
		return ctx.Dur(f.Key, v)
	case time.Time:
		return ctx.Time(f.Key, v)
	default:
		return ctx.Interface(f.Key, v)
	}
}

func (l *logger) sendToSinks(level, msg string, fields []Field) {
	if len(l.sinks) == 0 {
		return
	}

	fieldMap := make(map[string]string, len(l.bound)+len(fields))
	var traceID string
	for _, group := range [][]Field{l.bound, fields} {
		for _, f := range group {
			fieldMap[f.Key] = fmt.Sprint(f.Value)
			if f.Key == string(TraceIDKey) || f.Key == string(CycleIDKey) {
				if s, ok := f.Value.(string); ok {
					traceID = s
				}
			}
		}
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Service:   l.service,
		Message:   msg,
		Fields:    fieldMap,
		TraceID:   traceID,
		Caller:    getCaller(4),
	}
	for _, sink := range l.sinks {
		sink.Write(entry)
	}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string, fields ...Field)      {}
func (n *nopLogger) Info(msg string, fields ...Field)       {}
func (n *nopLogger) Warn(msg string, fields ...Field)       {}
func (n *nopLogger) Error(msg string, fields ...Field)      {}
func (n *nopLogger) With(fields ...Field) Logger            { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger { return n }

// NewNopLogger returns a logger that discards all output.
func NewNopLogger() Logger {
	return &nopLogger{}
}
