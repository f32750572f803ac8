package apihub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
)

type RestCallback func(ctx *Context, req events.APIGatewayV2HTTPRequest) (Reply, error)

type TriggerCallback[T any] func(ctx *Context, event T) (T, error)

type ScriptCallback[T any] func(ctx *Context, event T) error

type StreamCallback[T any, R any] func(ctx *Context, event T) (R, error)

type entryKind int

const (
	kindREST entryKind = iota
	kindTrigger
	kindScript
	kindStream
)

func (k entryKind) String() string {
	switch k {
	case kindREST:
		return "rest"
	case kindTrigger:
		return "trigger"
	case kindScript:
		return "script"
	case kindStream:
		return "stream"
	default:
		return "unknown"
	}
}

type RestOption func(o *restOptions)

type restOptions struct {
	errorResponseShouldLogIssue func(r Response) bool
}

// WithErrorResponseShouldLogIssue lets a single endpoint veto the global
// "API ERROR" decision. It is only consulted when the global predicate
// says yes.
func WithErrorResponseShouldLogIssue(fn func(r Response) bool) RestOption {
	return func(o *restOptions) {
		o.errorResponseShouldLogIssue = fn
	}
}

// REST adapts a request/response callback for API Gateway. The returned
// handler always produces a well-formed gateway result and never returns
// an error to the runtime.
func (h *Hub) REST(cb RestCallback, opts ...RestOption) Handler[events.APIGatewayV2HTTPRequest, events.APIGatewayV2HTTPResponse] {
	o := restOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return func(parent context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		ctx := h.begin(parent, kindREST, req)
		defer ctx.finalize()

		result, err := h.dispatchREST(ctx, cb, req, o)
		return ctx.serveGateway(result, err), nil
	}
}

// Trigger adapts a callback that receives an event and hands back the same
// (possibly augmented) event, e.g. Cognito triggers.
func Trigger[T any](h *Hub, cb TriggerCallback[T]) Handler[T, T] {
	return func(parent context.Context, event T) (T, error) {
		return dispatchEvent(h, parent, kindTrigger, event, func(ctx *Context) (T, error) {
			return cb(ctx, event)
		})
	}
}

// Script adapts a background job that produces no result.
func Script[T any](h *Hub, cb ScriptCallback[T]) Handler[T, struct{}] {
	return func(parent context.Context, event T) (struct{}, error) {
		return dispatchEvent(h, parent, kindScript, event, func(ctx *Context) (struct{}, error) {
			return struct{}{}, cb(ctx, event)
		})
	}
}

// Stream adapts a callback consuming a stream or queue batch and producing
// a typed result.
func Stream[T any, R any](h *Hub, cb StreamCallback[T, R]) Handler[T, R] {
	return func(parent context.Context, event T) (R, error) {
		return dispatchEvent(h, parent, kindStream, event, func(ctx *Context) (R, error) {
			return cb(ctx, event)
		})
	}
}

func (h *Hub) begin(parent context.Context, kind entryKind, event any) *Context {
	ctx := h.newContext(parent)
	ctx.logInbound(kind, event)
	return ctx
}

// logInbound records the raw event. It must never stop the invocation.
func (c *Context) logInbound(kind entryKind, event any) {
	logs := c.Logs()
	defer func() {
		if r := recover(); r != nil {
			logs.Warn("Inbound event could not be logged", "panic", fmt.Sprint(r))
		}
	}()

	raw, err := json.Marshal(event)
	if err != nil {
		logs.Warn("Inbound event could not be logged", "error", err.Error())
		return
	}
	logs.Info("Inbound event", "kind", kind.String(), "event", json.RawMessage(raw))

	if kind != kindREST {
		return
	}
	if lc, ok := lambdacontext.FromContext(c); ok {
		logs.Info("Invocation context",
			"awsRequestId", lc.AwsRequestID,
			"functionArn", lc.InvokedFunctionArn,
			"functionName", lambdacontext.FunctionName,
			"functionVersion", lambdacontext.FunctionVersion,
		)
	}
}

// runCallback turns a panic inside fn into an error.
func runCallback[R any](ctx *Context, fn func() (R, error)) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx.Logs().Error("Callback panicked", "panicStack", getStackTraceAsSlice(debug.Stack()))
			if perr, ok := r.(error); ok {
				err = fmt.Errorf("callback panicked: %w", perr)
			} else {
				err = fmt.Errorf("callback panicked: %v", r)
			}
		}
	}()
	return fn()
}

func (h *Hub) dispatchREST(ctx *Context, cb RestCallback, req events.APIGatewayV2HTTPRequest, o restOptions) (events.APIGatewayV2HTTPResponse, error) {
	reply, err := runCallback(ctx, func() (Reply, error) {
		return cb(ctx, req)
	})
	if err == nil {
		response, resolveErr := Resolve(reply)
		if resolveErr == nil {
			return h.gatewayResponse(ctx, response, o), nil
		}
		err = resolveErr
	}

	var issue *Issue
	var throwable *ThrowableResponse
	var transport *TransportResponse

	// An issue wrapping a thrown response is still an issue.
	switch {
	case errors.As(err, &issue):
		h.handleIssue(ctx, issue)
		return h.gatewayResponse(ctx, h.responseFromUnknownError(ctx, issue.cause()), o), nil
	case errors.As(err, &throwable):
		return h.gatewayResponse(ctx, throwable.Response, o), nil
	case errors.As(err, &transport):
		return events.APIGatewayV2HTTPResponse{}, err
	default:
		h.handleUnknownError(ctx, kindREST, err)
		return h.gatewayResponse(ctx, h.responseFromUnknownError(ctx, err), o), nil
	}
}

func dispatchEvent[T any, R any](h *Hub, parent context.Context, kind entryKind, event T, run func(ctx *Context) (R, error)) (R, error) {
	ctx := h.begin(parent, kind, event)
	defer ctx.finalize()

	result, err := runCallback(ctx, func() (R, error) {
		return run(ctx)
	})
	if err == nil {
		return result, nil
	}

	var zero R
	var issue *Issue
	var transport *TransportResponse

	switch {
	case errors.As(err, &issue):
		h.handleIssue(ctx, issue)
		return zero, issue.cause()
	case errors.As(err, &transport):
		return zero, err
	default:
		h.handleUnknownError(ctx, kind, err)
		return zero, err
	}
}

// handleIssue logs the issue, which flushes the buffer, and then notifies.
func (h *Hub) handleIssue(ctx *Context, issue *Issue) {
	ctx.Logs().Issue("An API issue occurred", "issue", issue.Message, "cause", issue.cause().Error())
	ctx.countFailure("ApiIssues")
	h.notify(ctx, issue)
}

func (h *Hub) handleUnknownError(ctx *Context, kind entryKind, err error) {
	ctx.Logs().Issue("An unknown error occurred", "kind", kind.String(), "error", err.Error())
	ctx.countFailure("UnknownErrors")
}

func (h *Hub) responseFromUnknownError(ctx *Context, err error) (response Response) {
	defer func() {
		if r := recover(); r != nil {
			ctx.Logs().Issue("Unknown error transformer panicked", "panic", fmt.Sprint(r))
			response, _ = CommonResponse(CodeInternalServerError)
		}
	}()
	return h.transformers.ResponseFromUnknownError(err)
}

func (h *Hub) gatewayResponse(ctx *Context, r Response, o restOptions) events.APIGatewayV2HTTPResponse {
	if !r.Success && h.shouldLogIssue(ctx, r, o) {
		ctx.Logs().Issue("API ERROR", "response", r)
	}
	return h.createGatewayResponse(ctx, r)
}

func (h *Hub) shouldLogIssue(ctx *Context, r Response, o restOptions) bool {
	if !evalPredicate(ctx, "global", h.events.ErrorResponseShouldLogIssue, r) {
		return false
	}
	if o.errorResponseShouldLogIssue == nil {
		return true
	}
	return evalPredicate(ctx, "endpoint", o.errorResponseShouldLogIssue, r)
}

func evalPredicate(ctx *Context, name string, fn func(r Response) bool, r Response) (result bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			ctx.Logs().Issue("Error response predicate panicked", "predicate", name, "panic", fmt.Sprint(rec))
			result = false
		}
	}()
	return fn(r)
}

func (h *Hub) createGatewayResponse(ctx *Context, r Response) (result events.APIGatewayV2HTTPResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			ctx.Logs().Issue("Gateway response transformer panicked", "panic", fmt.Sprint(rec))
			result = events.APIGatewayV2HTTPResponse{
				StatusCode: http.StatusInternalServerError,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       `{"success":false,"error":{"code":"INTERNAL_SERVER_ERROR"}}`,
			}
		}
	}()
	return h.transformers.CreateGatewayResponse(r)
}

// serveGateway is the transport layer around the dispatcher. A
// TransportResponse becomes the result untouched. Any other result gets the
// headers and cookies set on the Context merged in.
func (c *Context) serveGateway(result events.APIGatewayV2HTTPResponse, err error) events.APIGatewayV2HTTPResponse {
	if err != nil {
		var transport *TransportResponse
		if errors.As(err, &transport) {
			return transport.Result
		}
	}
	return c.mergeResponse(result)
}
