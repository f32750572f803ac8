package apihub

import (
	"fmt"

	"github.com/aws/aws-lambda-go/events"
)

// ThrowableResponse carries a finished Response out of a callback. It is
// an early exit, not a fault: the dispatcher serves the wrapped Response
// as is.
type ThrowableResponse struct {
	Response Response
}

func (t *ThrowableResponse) Error() string {
	return fmt.Sprintf("throwable response (%s)", t.Response)
}

// ThrowResponse returns an error that short-circuits the request/response
// entry point with reply. Successful responses can be thrown too.
//
// If reply is a code missing from the registry an *Issue is returned instead.
func ThrowResponse(reply Reply) error {
	r, err := Resolve(reply)
	if err != nil {
		return err
	}
	return &ThrowableResponse{Response: r}
}

// TransportResponse is the transport layer's own short-circuit: a finished
// gateway result returned as an error. The dispatcher never interprets it;
// the REST transport adapter serves Result untouched.
type TransportResponse struct {
	Result events.APIGatewayV2HTTPResponse
}

func (t *TransportResponse) Error() string {
	return fmt.Sprintf("transport response with status %d", t.Result.StatusCode)
}
