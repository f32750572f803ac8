package apihub

import (
	"errors"
	"fmt"
	"runtime/debug"
)

const issueSuffix = "(api issue)"

// Issue marks a condition that should never happen. Issues observed by
// the dispatcher are logged, reported through Events.OnAPIIssue and then
// answered using the Cause rather than the Issue itself.
type Issue struct {
	Message string
	Cause   error
}

// NewIssue creates an Issue. A nil cause is replaced by an error carrying
// the message.
func NewIssue(message string, cause error) *Issue {
	if cause == nil {
		cause = errors.New(message)
	}
	return &Issue{Message: message, Cause: cause}
}

func (i *Issue) Error() string {
	return fmt.Sprintf("%s %s", i.Message, issueSuffix)
}

func (i *Issue) Unwrap() error {
	return i.Cause
}

// cause is Cause, or an error carrying the message when the issue was built
// without one.
func (i *Issue) cause() error {
	if i.Cause == nil {
		return errors.New(i.Message)
	}
	return i.Cause
}

// notify hands the issue to the configured callback. Whatever the callback
// does, the caller carries on building its response.
func (h *Hub) notify(ctx *Context, issue *Issue) {
	if h.events.OnAPIIssue == nil {
		return
	}
	logs := ctx.Logs()

	defer func() {
		if r := recover(); r != nil {
			logs.Issue("Issue notification panicked", "panic", fmt.Sprint(r), "panicStack", getStackTraceAsSlice(debug.Stack()))
		}
	}()

	err := h.events.OnAPIIssue(ctx, issue)
	if err != nil {
		logs.Issue("Issue notification returned error", "error", err.Error())
	}
}
