package apihub

import "fmt"

// Code is a symbolic response code. Codes outside the common registry are
// allowed and are treated as opaque strings.
type Code string

const (
	CodeSuccess                 Code = "SUCCESS"
	CodeBadRequest              Code = "BAD_REQUEST"
	CodeInvalidPayload          Code = "INVALID_PAYLOAD"
	CodeForbidden               Code = "FORBIDDEN"
	CodeAuthInvalid             Code = "AUTH_INVALID"
	CodeAuthTokenExpired        Code = "AUTH_TOKEN_EXPIRED"
	CodeResourceNotFound        Code = "RESOURCE_NOT_FOUND"
	CodeResourceAlreadyExists   Code = "RESOURCE_ALREADY_EXISTS"
	CodeClientVersionInvalid    Code = "CLIENT_VERSION_INVALID"
	CodeClientVersionDeprecated Code = "CLIENT_VERSION_DEPRECATED"
	CodeClientStateOutdated     Code = "CLIENT_STATE_OUTDATED"
	CodeInternalServerError     Code = "INTERNAL_SERVER_ERROR"
	CodeNotImplemented          Code = "NOT_IMPLEMENTED"
)

// Reply is what a request/response callback hands back: either a full
// Response or a Code resolved through the common registry.
type Reply interface {
	reply()
}

type Response struct {
	Success    bool            `json:"success"`
	Data       any             `json:"data,omitempty"`
	Error      *ErrorDetail    `json:"error,omitempty"`
	Validation *ValidationMeta `json:"validation,omitempty"`
}

type ErrorDetail struct {
	Code    Code   `json:"code"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// ValidationMeta describes why a payload was rejected.
type ValidationMeta struct {
	Version string            `json:"version"`
	Issues  []ValidationIssue `json:"issues"`
}

type ValidationIssue struct {
	Path    string `json:"path"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

func (Response) reply() {}
func (Code) reply()     {}

func Success() Response {
	return Response{Success: true}
}

func SuccessWithData(data any) Response {
	return Response{Success: true, Data: data}
}

func Failure(code Code, message string) Response {
	return Response{Success: false, Error: &ErrorDetail{Code: code, Message: message}}
}

func FailureWithDetails(code Code, message string, details any) Response {
	return Response{Success: false, Error: &ErrorDetail{Code: code, Message: message, Details: details}}
}

// ErrorCode returns the code of an error response, or CodeSuccess for a successful one.
func (r Response) ErrorCode() Code {
	if r.Success || r.Error == nil {
		return CodeSuccess
	}
	return r.Error.Code
}

func (r Response) String() string {
	if r.Success {
		return "success"
	}
	if r.Error == nil {
		return "error"
	}
	return fmt.Sprintf("error %s: %s", r.Error.Code, r.Error.Message)
}

// clone copies the error detail and validation metadata so callers can't
// mutate registry entries through the returned value.
func (r Response) clone() Response {
	out := r
	if r.Error != nil {
		detail := *r.Error
		out.Error = &detail
	}
	if r.Validation != nil {
		meta := *r.Validation
		meta.Issues = append([]ValidationIssue(nil), r.Validation.Issues...)
		out.Validation = &meta
	}
	return out
}

var commonResponses = map[Code]Response{
	CodeSuccess:                 Success(),
	CodeBadRequest:              Failure(CodeBadRequest, "The request is malformed."),
	CodeInvalidPayload:          Failure(CodeInvalidPayload, "The payload does not match the expected schema."),
	CodeForbidden:               Failure(CodeForbidden, "You are not authorized to access this resource or perform this action."),
	CodeAuthInvalid:             Failure(CodeAuthInvalid, "The authentication token is missing or invalid."),
	CodeAuthTokenExpired:        Failure(CodeAuthTokenExpired, "The authentication token has expired."),
	CodeResourceNotFound:        Failure(CodeResourceNotFound, "The requested resource could not be found."),
	CodeResourceAlreadyExists:   Failure(CodeResourceAlreadyExists, "The resource already exists."),
	CodeClientVersionInvalid:    Failure(CodeClientVersionInvalid, "The client version is missing or invalid."),
	CodeClientVersionDeprecated: Failure(CodeClientVersionDeprecated, "The client version is no longer supported. Please update the client."),
	CodeClientStateOutdated:     Failure(CodeClientStateOutdated, "The client state is outdated. Please refresh and try again."),
	CodeInternalServerError:     Failure(CodeInternalServerError, "An internal server error occurred."),
	CodeNotImplemented:          Failure(CodeNotImplemented, "This endpoint is not implemented yet."),
}

// CommonResponse looks up a code in the common response registry.
func CommonResponse(code Code) (Response, bool) {
	r, ok := commonResponses[code]
	if !ok {
		return Response{}, false
	}
	return r.clone(), true
}

// Resolve turns a Reply into a Response. An unknown code is a programming
// error and is reported as an *Issue.
func Resolve(reply Reply) (Response, error) {
	switch v := reply.(type) {
	case nil:
		return Success(), nil
	case Response:
		return v, nil
	case *Response:
		if v == nil {
			return Success(), nil
		}
		return *v, nil
	case Code:
		r, ok := CommonResponse(v)
		if !ok {
			msg := fmt.Sprintf("response code %q used for a response shortcut is unknown, this should never happen", v)
			return Response{}, NewIssue(msg, nil)
		}
		return r, nil
	default:
		return Response{}, NewIssue(fmt.Sprintf("unsupported reply type %T", reply), nil)
	}
}
