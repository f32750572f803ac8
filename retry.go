package apihub

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

type retryOptions struct {
	maxRetries int
	baseDelay  time.Duration
	jitter     func() time.Duration
}

type RetryOption func(o *retryOptions)

// WithMaxRetries sets how many times a failed operation is retried after
// the first call.
func WithMaxRetries(n int) RetryOption {
	return func(o *retryOptions) {
		if n < 0 {
			n = 0
		}
		o.maxRetries = n
	}
}

func WithBaseDelay(d time.Duration) RetryOption {
	return func(o *retryOptions) {
		o.baseDelay = d
	}
}

// WithJitter replaces the random delay added to every back-off.
func WithJitter(fn func() time.Duration) RetryOption {
	return func(o *retryOptions) {
		o.jitter = fn
	}
}

func newRetryOptions(opts []RetryOption) retryOptions {
	o := retryOptions{
		maxRetries: 5,
		baseDelay:  time.Second,
		jitter: func() time.Duration {
			return rand.N(time.Second)
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o retryOptions) delay(attempt int) time.Duration {
	d := o.baseDelay * time.Duration(attempt*attempt)
	if o.jitter != nil {
		d += o.jitter()
	}
	return d
}

// Retry calls op until it succeeds or the retries are used up, waiting
// base*attempt^2 plus jitter between calls. Every failure is logged as an
// issue. A failure wrapped with NoRetry ends the loop at once and its inner
// error is returned.
func Retry[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...RetryOption) (T, error) {
	o := newRetryOptions(opts)
	logs := LogBufferFrom(ctx)

	var zero T
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if nr, ok := isNoRetry(err); ok {
			if nr.Inner == nil {
				return zero, nr
			}
			return zero, nr.Inner
		}

		logs.Issue("Retryable operation failed", "attempt", attempt, "error", err.Error())
		if attempt > o.maxRetries {
			return zero, err
		}

		timer := time.NewTimer(o.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

type BatchPolicy int

const (
	// BatchThrowFirst returns the failure of the lowest-indexed operation.
	BatchThrowFirst BatchPolicy = iota
	// BatchLogIssues logs every failure as an issue and returns nil.
	BatchLogIssues
	// BatchLogDiagnostics logs every failure as a plain error entry and
	// returns nil.
	BatchLogDiagnostics
)

func (p BatchPolicy) String() string {
	switch p {
	case BatchThrowFirst:
		return "throw-first"
	case BatchLogIssues:
		return "log-issues"
	case BatchLogDiagnostics:
		return "log-diagnostics"
	default:
		return fmt.Sprintf("BatchPolicy(%d)", int(p))
	}
}

// RetryAll runs every op concurrently under Retry and waits for all of
// them to settle before applying policy.
func RetryAll(ctx context.Context, policy BatchPolicy, ops []func(ctx context.Context) error, opts ...RetryOption) error {
	errs := make([]error, len(ops))

	wg := sync.WaitGroup{}
	for i, op := range ops {
		wg.Go(func() {
			_, errs[i] = Retry(ctx, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, op(ctx)
			}, opts...)
		})
	}
	wg.Wait()

	logs := LogBufferFrom(ctx)
	for i, err := range errs {
		if err == nil {
			continue
		}
		switch policy {
		case BatchThrowFirst:
			return err
		case BatchLogIssues:
			logs.Issue("Batched operation failed", "index", i, "error", err.Error())
		default:
			logs.Error("Batched operation failed", "index", i, "error", err.Error())
		}
	}
	return nil
}
