package apihub

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
)

const validatorVersion = "go-playground/validator/v10"

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator. Field paths use json names.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidatePayload decodes the JSON body into dst and validates it. A body
// that does not parse throws BAD_REQUEST; a body breaking the struct's
// validation tags throws INVALID_PAYLOAD listing every violation.
func ValidatePayload(req events.APIGatewayV2HTTPRequest, dst any) error {
	if err := DecodeJSONBody(req, dst); err != nil {
		return err
	}
	return ValidateStruct(dst)
}

func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return NewIssue(fmt.Sprintf("payload of type %T cannot be validated", v), err)
	}

	var violations validator.ValidationErrors
	if !errors.As(err, &violations) {
		return err
	}

	r, _ := CommonResponse(CodeInvalidPayload)
	r.Validation = &ValidationMeta{
		Version: validatorVersion,
		Issues:  formatValidationErrors(violations),
	}
	return &ThrowableResponse{Response: r}
}

func formatValidationErrors(violations validator.ValidationErrors) []ValidationIssue {
	issues := make([]ValidationIssue, 0, len(violations))
	for _, fe := range violations {
		path := fe.Namespace()
		if _, rest, found := strings.Cut(path, "."); found {
			path = rest
		}

		var message string
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", path)
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", path)
		case "min":
			message = fmt.Sprintf("%s must be at least %s", path, fe.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", path, fe.Param())
		case "uuid", "uuid4":
			message = fmt.Sprintf("%s must be a valid UUID", path)
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", path, fe.Param())
		default:
			message = fmt.Sprintf("%s is invalid", path)
		}

		issues = append(issues, ValidationIssue{
			Path:    path,
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: message,
		})
	}
	return issues
}
