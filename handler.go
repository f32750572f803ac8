package apihub

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Handler is the shape handed to the Lambda runtime.
type Handler[T any, U any] func(ctx context.Context, event T) (U, error)

// NewLogger returns the JSON logger flushed log buffers are written to.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// currentTraceID reads the X-Ray root trace id the runtime sets for the
// running invocation.
func currentTraceID() string {
	traceID := os.Getenv("_X_AMZN_TRACE_ID")
	if traceID == "" {
		return ""
	}
	parts := strings.Split(traceID, ";")
	return strings.Replace(parts[0], "Root=", "", 1)
}
