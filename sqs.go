package apihub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// SQSRecordProcessor handles one decoded message of a batch.
type SQSRecordProcessor[T any] func(ctx *Context, message T, attributes map[string]events.SQSMessageAttribute) error

type SQSHandler = Handler[events.SQSEvent, events.SQSEventResponse]

var errNoDeadline = errors.New("context must have a deadline set")

// SQSProcessor returns a stream callback processing every message of a
// batch in its own goroutine. Messages that fail, panic or are still
// running 500ms before the invocation deadline are reported as batch item
// failures so SQS redelivers them.
func SQSProcessor[T any](h *Hub, processor SQSRecordProcessor[T]) StreamCallback[events.SQSEvent, events.SQSEventResponse] {
	process := func(ctx *Context, record events.SQSMessage, successChannel chan<- bool) {
		logs := ctx.Logs()
		logs.AddParam("messageId", record.MessageId)

		defer func() {
			if r := recover(); r != nil {
				logs.Issue(fmt.Sprintf("Goroutine panicked: %v", r), "panicStack", getStackTraceAsSlice(debug.Stack()))
				successChannel <- false
			}
		}()

		var message T
		err := json.Unmarshal([]byte(record.Body), &message)
		if err != nil {
			logs.Issue("JSON unmarshal returned error", "error", err.Error(), "body", record.Body)
			successChannel <- false
			return
		}

		err = processor(ctx, message, record.MessageAttributes)
		if err != nil {
			logs.AddParam("body", record.Body)

			var issue *Issue
			switch {
			case errors.As(err, &issue):
				h.handleIssue(ctx, issue)
			case IsErrorRetryable(err):
				logs.Infof("Processing returned error: %s", err.Error())
			default:
				logs.Issue("Processing returned error", "error", err.Error())
			}
			successChannel <- false
			return
		}
		successChannel <- true
	}

	return func(ctx *Context, event events.SQSEvent) (events.SQSEventResponse, error) {
		deadline, hasDeadline := ctx.Deadline()
		if !hasDeadline {
			return events.SQSEventResponse{}, errNoDeadline
		}
		deadline = deadline.Add(-500 * time.Millisecond)
		subCtx, cancel := context.WithDeadline(ctx, deadline)
		defer cancel()

		routines := make([]*routineData[events.SQSMessage], 0, len(event.Records))
		for _, record := range event.Records {
			// Buffered so a goroutine finishing after the timeout does not block forever.
			c := make(chan bool, 1)

			routineCtx, closeFn := ctx.Split(subCtx)
			data := routineData[events.SQSMessage]{
				SuccessChannel: c,
				handlerCtx:     routineCtx,
				closeFn:        closeFn,
				Record:         record,
				TimeoutTimer:   time.NewTimer(time.Until(deadline)),
			}
			routines = append(routines, &data)
			go process(routineCtx, record, c)
		}

		wg := sync.WaitGroup{}
		for _, routine := range routines {
			wg.Go(asyncWaitForResult(routine))
		}
		wg.Wait()

		failures := []events.SQSBatchItemFailure{}
		for _, r := range routines {
			if r.timedOut {
				r.handlerCtx.Logs().Issue("Message processing timed out")
			}
			if r.failed || r.timedOut {
				failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: r.Record.MessageId})
				ctx.Logs().Info("Message returned to queue for retry", "messageId", r.Record.MessageId)
			}
			r.closeFn()
		}

		return events.SQSEventResponse{BatchItemFailures: failures}, nil
	}
}

func getStackTraceAsSlice(stack []byte) []string {
	byteParts := bytes.Split(stack, []byte("\n"))
	strParts := make([]string, 0, len(byteParts))
	for _, part := range byteParts {
		strPart := string(bytes.TrimSpace(part))
		if strPart != "" {
			strParts = append(strParts, strPart)
		}
	}
	return strParts
}

func asyncWaitForResult[T any](routine *routineData[T]) func() {
	return func() {
		select {
		case success := <-routine.SuccessChannel:
			routine.TimeoutTimer.Stop()
			if !success {
				routine.failed = true
			}
		case <-routine.TimeoutTimer.C:
			routine.timedOut = true
		}
	}
}

type routineData[T any] struct {
	SuccessChannel chan bool
	Record         T
	// one timer per goroutine, the channel only ever receives one value
	TimeoutTimer *time.Timer
	failed       bool
	timedOut     bool
	handlerCtx   *Context
	closeFn      func()
}
