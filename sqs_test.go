package apihub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sqsTestMessage struct {
	ID string `json:"id"`
}

func TestSQSProcessor(t *testing.T) {

	twoRecordEvent := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "5a3e8884-4ff1-46f1-8617-b3f483a79956", Body: `{"id":"a"}`},
		{MessageId: "2ecc59ae-ea1a-462a-8fca-d835858fc470", Body: `{"id":"b"}`},
	}}

	testcases := []struct {
		name          string
		processRecord SQSRecordProcessor[sqsTestMessage]
		checkResult   func(t *testing.T, result events.SQSEventResponse)
		event         events.SQSEvent
	}{
		{
			name: "All messages processed",
			processRecord: func(ctx *Context, msg sqsTestMessage, _ map[string]events.SQSMessageAttribute) error {
				return nil
			},
			checkResult: func(t *testing.T, result events.SQSEventResponse) {
				expected := events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{}}
				assert.Equal(t, expected, result)
			},
			event: twoRecordEvent,
		},
		{
			name: "Some messages fail",
			processRecord: func(ctx *Context, msg sqsTestMessage, _ map[string]events.SQSMessageAttribute) error {
				if msg.ID == "b" {
					return errors.New("something bad happened")
				}
				return nil
			},
			checkResult: func(t *testing.T, result events.SQSEventResponse) {
				expected := events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{
					{ItemIdentifier: "2ecc59ae-ea1a-462a-8fca-d835858fc470"},
				}}
				assert.Equal(t, expected, result)
			},
			event: twoRecordEvent,
		},
		{
			name: "All messages fail",
			processRecord: func(ctx *Context, msg sqsTestMessage, _ map[string]events.SQSMessageAttribute) error {
				return NewIssue("message for unknown game", nil)
			},
			checkResult: func(t *testing.T, result events.SQSEventResponse) {
				errorMap := map[string]bool{}
				for _, failure := range result.BatchItemFailures {
					errorMap[failure.ItemIdentifier] = true
				}
				assert.True(t, errorMap["5a3e8884-4ff1-46f1-8617-b3f483a79956"])
				assert.True(t, errorMap["2ecc59ae-ea1a-462a-8fca-d835858fc470"])
			},
			event: twoRecordEvent,
		},
		{
			name: "Messages time-out",
			processRecord: func(ctx *Context, msg sqsTestMessage, _ map[string]events.SQSMessageAttribute) error {
				time.Sleep(2 * time.Second)
				return nil
			},
			checkResult: func(t *testing.T, result events.SQSEventResponse) {
				assert.Len(t, result.BatchItemFailures, 2)
			},
			event: twoRecordEvent,
		},
		{
			name: "One message time-out",
			processRecord: func(ctx *Context, msg sqsTestMessage, _ map[string]events.SQSMessageAttribute) error {
				if msg.ID == "a" {
					time.Sleep(2 * time.Second)
				}
				return nil
			},
			checkResult: func(t *testing.T, result events.SQSEventResponse) {
				expected := events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{
					{ItemIdentifier: "5a3e8884-4ff1-46f1-8617-b3f483a79956"},
				}}
				assert.Equal(t, expected, result)
			},
			event: twoRecordEvent,
		},
		{
			name: "Message panics",
			processRecord: func(ctx *Context, msg sqsTestMessage, _ map[string]events.SQSMessageAttribute) error {
				if msg.ID == "a" {
					panic("nil pointer")
				}
				return nil
			},
			checkResult: func(t *testing.T, result events.SQSEventResponse) {
				expected := events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{
					{ItemIdentifier: "5a3e8884-4ff1-46f1-8617-b3f483a79956"},
				}}
				assert.Equal(t, expected, result)
			},
			event: twoRecordEvent,
		},
		{
			name: "Malformed body fails",
			processRecord: func(ctx *Context, msg sqsTestMessage, _ map[string]events.SQSMessageAttribute) error {
				return nil
			},
			checkResult: func(t *testing.T, result events.SQSEventResponse) {
				expected := events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{
					{ItemIdentifier: "c5b2a7c4-6d1e-4f6a-9a57-d2f1a4f1a5b0"},
				}}
				assert.Equal(t, expected, result)
			},
			event: events.SQSEvent{Records: []events.SQSMessage{
				{MessageId: "c5b2a7c4-6d1e-4f6a-9a57-d2f1a4f1a5b0", Body: `{"id":`},
			}},
		},
		{
			name: "invoke with single record",
			processRecord: func(ctx *Context, msg sqsTestMessage, _ map[string]events.SQSMessageAttribute) error {
				return nil
			},
			checkResult: func(t *testing.T, result events.SQSEventResponse) {
				expected := events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{}}
				assert.Equal(t, expected, result)
			},
			event: events.SQSEvent{Records: []events.SQSMessage{
				{MessageId: "25209c2d-32e5-4117-9c09-dc4d3e954ade", Body: `{"id":"c"}`},
			}},
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithDeadline(t.Context(), time.Now().Add(1500*time.Millisecond))
			defer cancel()

			hub, _ := newTestHub(t, Config{})
			handler := Stream(hub, SQSProcessor(hub, tc.processRecord))
			result, err := handler(ctx, tc.event)
			assert.Nil(t, err)
			tc.checkResult(t, result)
		})
	}
}

func TestSQSProcessorRequiresDeadline(t *testing.T) {
	hub, _ := newTestHub(t, Config{})
	handler := Stream(hub, SQSProcessor(hub, func(ctx *Context, msg sqsTestMessage, _ map[string]events.SQSMessageAttribute) error {
		return nil
	}))

	_, err := handler(t.Context(), events.SQSEvent{})
	require.ErrorIs(t, err, errNoDeadline)
}

func TestSQSProcessorIssuesAreNotified(t *testing.T) {
	notified := make(chan *Issue, 2)
	hub, _ := newTestHub(t, Config{Events: Events{OnAPIIssue: func(_ context.Context, issue *Issue) error {
		notified <- issue
		return nil
	}}})

	ctx, cancel := context.WithDeadline(t.Context(), time.Now().Add(2*time.Second))
	defer cancel()

	handler := Stream(hub, SQSProcessor(hub, func(ctx *Context, msg sqsTestMessage, _ map[string]events.SQSMessageAttribute) error {
		return NewIssue("message for unknown game", nil)
	}))
	result, err := handler(ctx, events.SQSEvent{Records: []events.SQSMessage{{MessageId: "m1", Body: `{"id":"x"}`}}})
	require.NoError(t, err)
	assert.Len(t, result.BatchItemFailures, 1)
	assert.Len(t, notified, 1)
}

func TestSQSProcessorMergesRecordMetrics(t *testing.T) {
	hub, buf := newTestHub(t, Config{Settings: Settings{MetricNamespace: "games"}})

	ctx, cancel := context.WithDeadline(t.Context(), time.Now().Add(2*time.Second))
	defer cancel()

	handler := Stream(hub, SQSProcessor(hub, func(ctx *Context, msg sqsTestMessage, _ map[string]events.SQSMessageAttribute) error {
		ctx.Metric("MessagesProcessed").Unit("Count").Value(1)
		return nil
	}))
	_, err := handler(ctx, events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: `{"id":"x"}`},
		{MessageId: "m2", Body: `{"id":"y"}`},
	}})
	require.NoError(t, err)

	lines := linesWithMsg(readLogLines(t, buf), "metrics")
	require.Len(t, lines, 1)
	aws := lines[0]["_aws"].(map[string]any)
	assert.Len(t, aws["CloudWatchMetrics"], 2)
}
