package apihub

import (
	"context"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContext(t *testing.T) {
	t.Setenv("_X_AMZN_TRACE_ID", "Root=1-abc-def;Parent=123;Sampled=1")
	hub, buf := newTestHub(t, Config{})

	parent := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-1"})
	ctx := hub.newContext(parent)

	assert.NotEmpty(t, ctx.InvocationID())
	assert.Same(t, ctx.Logs(), LogBufferFrom(ctx))

	ctx.Logs().Issue("check params")
	lines := readLogLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "1-abc-def", lines[0]["trace_id"])
	assert.Equal(t, "req-1", lines[0]["aws_request_id"])
	assert.Equal(t, ctx.InvocationID(), lines[0]["invocation_id"])
}

func TestSplit(t *testing.T) {
	hub, buf := newTestHub(t, Config{})
	ctx := hub.newContext(t.Context())
	ctx.Logs().Info("parent entry")

	child, closeFn := ctx.Split(ctx)
	child.Logs().Info("child entry")
	child.Metric("Processed").Value(1)
	child.Logs().Issue("child failed")

	lines := readLogLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "child entry", lines[0]["msg"])
	assert.Equal(t, ctx.InvocationID(), lines[1]["parent_invocation_id"])
	assert.Equal(t, 1, ctx.Logs().Len(), "the parent buffer is untouched")

	assert.Empty(t, ctx.metrics)
	closeFn()
	assert.Len(t, ctx.metrics, 1)
}

func TestMergeResponse(t *testing.T) {
	hub, _ := newTestHub(t, Config{})
	ctx := hub.newContext(t.Context())
	ctx.SetHeader("X-Request-Id", "r1")
	ctx.SetHeader("Content-Type", "text/html")
	ctx.SetCookie(&http.Cookie{Name: "b", Value: "2"})
	ctx.SetStatus(http.StatusAccepted)

	merged := ctx.mergeResponse(events.APIGatewayV2HTTPResponse{
		Headers: map[string]string{"Content-Type": "application/json"},
		Cookies: []string{"a=1"},
	})
	assert.Equal(t, map[string]string{"X-Request-Id": "r1", "Content-Type": "application/json"}, merged.Headers)
	assert.Equal(t, []string{"a=1", "b=2"}, merged.Cookies)
	assert.Equal(t, http.StatusAccepted, merged.StatusCode)

	merged = ctx.mergeResponse(events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK})
	assert.Equal(t, http.StatusOK, merged.StatusCode)
}
