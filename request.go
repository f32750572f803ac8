package apihub

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// Header looks a header up ignoring case.
func Header(req events.APIGatewayV2HTTPRequest, name string) (string, bool) {
	if v, ok := req.Headers[name]; ok {
		return v, true
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// BearerToken returns the token of an "Authorization: Bearer <token>"
// header.
func BearerToken(req events.APIGatewayV2HTTPRequest) (string, bool) {
	header, ok := Header(req, "Authorization")
	if !ok {
		return "", false
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func PathParam(req events.APIGatewayV2HTTPRequest, key string) (string, bool) {
	v, ok := req.PathParameters[key]
	return v, ok && v != ""
}

func QueryParam(req events.APIGatewayV2HTTPRequest, key string) (string, bool) {
	v, ok := req.QueryStringParameters[key]
	return v, ok
}

// Cookie returns the value of the named request cookie.
func Cookie(req events.APIGatewayV2HTTPRequest, name string) (string, bool) {
	for _, line := range req.Cookies {
		cookies, err := http.ParseCookie(line)
		if err != nil {
			continue
		}
		for _, c := range cookies {
			if c.Name == name {
				return c.Value, true
			}
		}
	}
	return "", false
}

// Body returns the raw request body, decoding base64 bodies.
func Body(req events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 body: %w", err)
	}
	return b, nil
}

// DecodeJSONBody unmarshals the body into dst. A malformed body throws the
// BAD_REQUEST response.
func DecodeJSONBody(req events.APIGatewayV2HTTPRequest, dst any) error {
	b, err := Body(req)
	if err != nil {
		return badRequest(err)
	}
	if len(b) == 0 {
		return badRequest(fmt.Errorf("request body is empty"))
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return badRequest(err)
	}
	return nil
}

// FormValue reads a field of an application/x-www-form-urlencoded body.
func FormValue(req events.APIGatewayV2HTTPRequest, key string) (string, bool) {
	b, err := Body(req)
	if err != nil {
		return "", false
	}
	values, err := url.ParseQuery(string(b))
	if err != nil || !values.Has(key) {
		return "", false
	}
	return values.Get(key), true
}

func badRequest(err error) error {
	r, _ := CommonResponse(CodeBadRequest)
	r.Error.Details = err.Error()
	return &ThrowableResponse{Response: r}
}
