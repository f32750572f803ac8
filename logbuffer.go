package apihub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/smithy-go/logging"
)

type LogEntry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   []any
}

// LogBuffer collects the log lines of one invocation. Nothing is written
// while an invocation goes well; the lines are only emitted, in the order
// they were logged, when something goes wrong (see Issue and Flush).
//
// A LogBuffer is safe for use by the goroutines of a single invocation.
type LogBuffer struct {
	mu      sync.Mutex
	slogger *slog.Logger
	params  map[string]any
	entries []LogEntry
	now     func() time.Time
}

func newLogBuffer(logger *slog.Logger) *LogBuffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBuffer{
		slogger: logger,
		params:  make(map[string]any),
		entries: make([]LogEntry, 0),
		now:     time.Now,
	}
}

type logBufferKey struct{}

func withLogBuffer(ctx context.Context, b *LogBuffer) context.Context {
	return context.WithValue(ctx, logBufferKey{}, b)
}

// LogBufferFrom returns the invocation's buffer carried by ctx. Outside of
// an invocation a detached buffer writing to slog.Default is returned.
func LogBufferFrom(ctx context.Context) *LogBuffer {
	if ctx != nil {
		if b, ok := ctx.Value(logBufferKey{}).(*LogBuffer); ok {
			return b
		}
	}
	return newLogBuffer(slog.Default())
}

// Clear drops every buffered entry.
func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make([]LogEntry, 0)
}

func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Entries returns a copy of the buffered entries.
func (b *LogBuffer) Entries() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// AddParam adds a key-value pair written with every emitted line.
func (b *LogBuffer) AddParam(key string, value any) *LogBuffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.params[key] = value
	return b
}

func (b *LogBuffer) append(level slog.Level, msg string, args []any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, LogEntry{
		Time:    b.now(),
		Level:   level,
		Message: msg,
		Attrs:   args,
	})
}

func (b *LogBuffer) Debug(msg string, args ...any) {
	b.append(slog.LevelDebug, msg, args)
}

func (b *LogBuffer) Info(msg string, args ...any) {
	b.append(slog.LevelInfo, msg, args)
}

func (b *LogBuffer) Warn(msg string, args ...any) {
	b.append(slog.LevelWarn, msg, args)
}

// Error records an error line without flushing. Use Issue for problems a
// developer needs to look at.
func (b *LogBuffer) Error(msg string, args ...any) {
	b.append(slog.LevelError, msg, args)
}

func (b *LogBuffer) Infof(format string, args ...any) {
	b.Info(fmt.Sprintf(format, args...))
}

func (b *LogBuffer) Warnf(format string, args ...any) {
	b.Warn(fmt.Sprintf(format, args...))
}

func (b *LogBuffer) Errorf(format string, args ...any) {
	b.Error(fmt.Sprintf(format, args...))
}

// Issue writes out everything buffered so far followed by msg at error
// level, then empties the buffer.
func (b *LogBuffer) Issue(msg string, args ...any) {
	logger, entries := b.drain()
	emit(logger, entries)
	logger.Error(msg, append(args, "issue", true)...)
}

// Flush writes out the buffered entries in order and empties the buffer.
func (b *LogBuffer) Flush() {
	logger, entries := b.drain()
	emit(logger, entries)
}

func (b *LogBuffer) drain() (*slog.Logger, []LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	logger := b.slogger
	for k, v := range b.params {
		logger = logger.With(k, v)
	}
	entries := b.entries
	b.entries = make([]LogEntry, 0)
	return logger, entries
}

func emit(logger *slog.Logger, entries []LogEntry) {
	for _, e := range entries {
		args := append(append([]any{}, e.Attrs...), "logged_at", e.Time)
		logger.Log(context.Background(), e.Level, e.Message, args...)
	}
}

// Logf lets AWS SDK clients log into the invocation buffer.
func (b *LogBuffer) Logf(classification logging.Classification, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	switch classification {
	case logging.Warn:
		b.Warn(msg, "source", "aws-sdk")
	case logging.Debug:
		b.Debug(msg, "source", "aws-sdk")
	default:
		b.Info(msg, "source", "aws-sdk")
	}
}
