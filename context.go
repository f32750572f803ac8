package apihub

import (
	"context"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
)

// Context is handed to every callback. It carries the invocation's log
// buffer, its metrics and, for request/response callbacks, extra headers
// and cookies for the gateway result.
type Context struct {
	context.Context
	hub          *Hub
	logs         *LogBuffer
	invocationID string

	mu      sync.Mutex
	metrics []*MetricBuilder
	writer  responseWriter
}

func (h *Hub) newContext(parent context.Context) *Context {
	logger := h.logger
	if traceID := currentTraceID(); traceID != "" {
		logger = logger.With("trace_id", traceID)
	}
	if lc, ok := lambdacontext.FromContext(parent); ok {
		logger = logger.With("aws_request_id", lc.AwsRequestID)
	}

	invocationID := uuid.NewString()
	logs := newLogBuffer(logger)
	logs.AddParam("invocation_id", invocationID)

	return &Context{
		Context:      withLogBuffer(parent, logs),
		hub:          h,
		logs:         logs,
		invocationID: invocationID,
		writer:       newResponseWriter(),
	}
}

// Logs returns the invocation's log buffer.
func (c *Context) Logs() *LogBuffer {
	if c.logs != nil {
		return c.logs
	}
	return LogBufferFrom(c.Context)
}

func (c *Context) InvocationID() string {
	return c.invocationID
}

// Split returns a child context with its own log buffer, for work running
// on behalf of a single record of a batch. Calling the returned function
// hands the child's metrics back to the parent.
func (c *Context) Split(ctx context.Context) (*Context, func()) {
	logs := newLogBuffer(c.Logs().slogger)
	invocationID := uuid.NewString()
	logs.AddParam("invocation_id", invocationID)
	logs.AddParam("parent_invocation_id", c.invocationID)

	splitCtx := &Context{
		Context:      withLogBuffer(ctx, logs),
		hub:          c.hub,
		logs:         logs,
		invocationID: invocationID,
		writer:       newResponseWriter(),
	}
	closeFn := func() {
		splitCtx.mu.Lock()
		metrics := splitCtx.metrics
		splitCtx.metrics = nil
		splitCtx.mu.Unlock()

		c.mu.Lock()
		c.metrics = append(c.metrics, metrics...)
		c.mu.Unlock()
	}
	return splitCtx, closeFn
}

func (c *Context) finalize() {
	c.emitMetrics()
}

// SetHeader adds a header to the gateway result. Headers set by the
// gateway transformer take precedence.
func (c *Context) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.headers[key] = value
}

// SetCookie appends a Set-Cookie value to the gateway result.
func (c *Context) SetCookie(cookie *http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.cookies = append(c.writer.cookies, cookie.String())
}

// SetStatus sets the status code used when the gateway result has none.
func (c *Context) SetStatus(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.status = code
}

type responseWriter struct {
	headers map[string]string
	cookies []string
	status  int
}

func newResponseWriter() responseWriter {
	return responseWriter{headers: make(map[string]string)}
}

func (c *Context) mergeResponse(result events.APIGatewayV2HTTPResponse) events.APIGatewayV2HTTPResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	headers := make(map[string]string, len(c.writer.headers)+len(result.Headers))
	for k, v := range c.writer.headers {
		headers[k] = v
	}
	for k, v := range result.Headers {
		headers[k] = v
	}
	result.Headers = headers

	if len(c.writer.cookies) > 0 {
		result.Cookies = append(append([]string{}, result.Cookies...), c.writer.cookies...)
	}
	if result.StatusCode == 0 {
		result.StatusCode = c.writer.status
	}
	return result
}
