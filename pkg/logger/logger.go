package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Logger writes structured entries through zerolog and optionally forwards
// errors to a LogCollector.
type Logger struct {
	zl        zerolog.Logger
	collector *atomic.Pointer[LogCollector]
}

type Config struct {
	Level   string // debug, info, warn, error
	Format  string // json or console
	Output  string // stdout, stderr or a file path
	Service string // value of the "service" field on every entry
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.Service != "" {
		zctx = zctx.Str("service", cfg.Service)
	}
	return &Logger{zl: zctx.Logger(), collector: new(atomic.Pointer[LogCollector])}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), collector: new(atomic.Pointer[LogCollector])}
}

// With returns a child logger carrying fields on every entry. The child
// shares the parent's collector.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{zl: l.zl.With().Fields(pairs(fields)).Logger(), collector: l.collector}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(zerolog.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field) { l.write(zerolog.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field) { l.write(zerolog.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(zerolog.ErrorLevel, msg, fields) }

func (l *Logger) write(level zerolog.Level, msg string, fields []Field) {
	l.zl.WithLevel(level).Fields(pairs(fields)).Msg(msg)

	c := l.collector.Load()
	if c == nil || level < c.minLevel() {
		return
	}
	c.AddLog(level.String(), msg, fieldMap(fields), caller(3))
}

// AddCollector starts forwarding errors, and warnings when IncludeWarn is
// set, to a new collector. A previous collector is flushed and closed.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	if old := l.collector.Swap(NewLogCollector(cfg)); old != nil {
		old.Close()
	}
}

// RemoveCollector flushes and detaches the collector.
func (l *Logger) RemoveCollector() {
	if old := l.collector.Swap(nil); old != nil {
		old.Close()
	}
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
}

// Field is one structured key/value pair.
type Field struct {
	Key   string
	Value any
}

func pairs(fields []Field) []any {
	kv := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}

func fieldMap(fields []Field) map[string]any {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			m[f.Key] = err.Error()
			continue
		}
		m[f.Key] = f.Value
	}
	return m
}

func String(key, value string) Field { return Field{key, value} }
func Int(key string, value int) Field { return Field{key, value} }
func Int64(key string, value int64) Field { return Field{key, value} }
func Float(key string, value float64) Field { return Field{key, value} }
func Bool(key string, value bool) Field { return Field{key, value} }
func Any(key string, value any) Field { return Field{key, value} }
func Strings(key string, value []string) Field { return Field{key, strings.Join(value, ",")} }

// Duration logs d in milliseconds.
func Duration(key string, d time.Duration) Field { return Field{key, d.Milliseconds()} }

// Error logs err under "error".
func Error(err error) Field { return Field{"error", err} }
