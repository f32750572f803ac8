package apihub

import (
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

var statusCodes = map[Code]int{
	CodeSuccess:                 http.StatusOK,
	CodeBadRequest:              http.StatusBadRequest,
	CodeInvalidPayload:          http.StatusBadRequest,
	CodeClientVersionInvalid:    http.StatusBadRequest,
	CodeAuthInvalid:             http.StatusUnauthorized,
	CodeAuthTokenExpired:        http.StatusUnauthorized,
	CodeForbidden:               http.StatusForbidden,
	CodeResourceNotFound:        http.StatusNotFound,
	CodeResourceAlreadyExists:   http.StatusConflict,
	CodeClientStateOutdated:     http.StatusConflict,
	CodeClientVersionDeprecated: http.StatusUpgradeRequired,
	CodeInternalServerError:     http.StatusInternalServerError,
	CodeNotImplemented:          http.StatusNotImplemented,
}

// StatusCode maps a Response to an HTTP status. Codes outside the common
// registry are client errors.
func StatusCode(r Response) int {
	if r.Success {
		return http.StatusOK
	}
	if status, ok := statusCodes[r.ErrorCode()]; ok {
		return status
	}
	return http.StatusBadRequest
}

// GatewayResponse renders r as a JSON gateway result.
func GatewayResponse(r Response) events.APIGatewayV2HTTPResponse {
	body, err := json.Marshal(r)
	if err != nil {
		fallback, _ := CommonResponse(CodeInternalServerError)
		body, _ = json.Marshal(fallback)
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       string(body),
		}
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: StatusCode(r),
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

// InternalServerErrorResponse answers every unknown error with the
// registry's INTERNAL_SERVER_ERROR entry.
func InternalServerErrorResponse(_ error) Response {
	r, _ := CommonResponse(CodeInternalServerError)
	return r
}

func DefaultTransformers() Transformers {
	return Transformers{
		CreateGatewayResponse:    GatewayResponse,
		ResponseFromUnknownError: InternalServerErrorResponse,
	}
}

// LogServerErrors is a ready-made ErrorResponseShouldLogIssue predicate
// that logs every error response mapped to a 5xx status.
func LogServerErrors(r Response) bool {
	return StatusCode(r) >= http.StatusInternalServerError
}
