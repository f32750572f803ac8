package apihub

import "errors"

type RetryableError interface {
	IsRetryable() bool
}

// IsErrorRetryable reports whether the first RetryableError in err's chain
// allows a retry.
func IsErrorRetryable(err error) bool {
	for err != nil {
		if rerr, ok := err.(RetryableError); ok {
			return rerr.IsRetryable()
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// NoRetryError stops Retry immediately. Retry hands back Inner rather than
// the wrapper.
type NoRetryError struct {
	Inner error
}

// NoRetry marks err as final for Retry and RetryAll.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &NoRetryError{Inner: err}
}

func (e *NoRetryError) Error() string {
	if e.Inner == nil {
		return "no retry"
	}
	return e.Inner.Error()
}

func (e *NoRetryError) Unwrap() error {
	return e.Inner
}

func (e *NoRetryError) IsRetryable() bool {
	return false
}

func isNoRetry(err error) (*NoRetryError, bool) {
	var nr *NoRetryError
	if errors.As(err, &nr) {
		return nr, true
	}
	return nil, false
}
