package apihub

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	conditionalCheckFailedCode   = "ConditionalCheckFailedException"
	conditionalCheckFailedReason = "ConditionalCheckFailed"
)

// IsConditionalCheckFailure reports whether err, or any error it wraps,
// is a DynamoDB conditional check failure.
func IsConditionalCheckFailure(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(*types.ConditionalCheckFailedException); ok {
		return true
	}

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if aws.ToString(reason.Code) == conditionalCheckFailedReason {
				return true
			}
		}
	}

	return hasErrorCode(err, conditionalCheckFailedCode)
}

// hasErrorCode walks the whole error tree looking for an error exposing
// the given API error code.
func hasErrorCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if coded, ok := err.(interface{ ErrorCode() string }); ok && coded.ErrorCode() == code {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() error }:
		return hasErrorCode(x.Unwrap(), code)
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if hasErrorCode(inner, code) {
				return true
			}
		}
	}
	return false
}

// ReclassifyConditionalFailure turns a conditional check failure into a
// short-circuit with fallback. Any other error is returned as is.
func ReclassifyConditionalFailure(err error, fallback Reply) error {
	if err == nil {
		return nil
	}
	if IsConditionalCheckFailure(err) {
		return ThrowResponse(fallback)
	}
	return err
}
