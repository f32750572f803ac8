package apihub

import (
	"context"
	"sync"
	"time"
)

const (
	patchBatchSize   = 100
	patchMaxAttempts = 5
)

type patchOptions struct {
	batchPause time.Duration
	retryDelay func(attempt int) time.Duration
}

// PatchBatch applies patch to every item, running one batch of up to 100
// items concurrently at a time. With retry set a failing item is attempted
// up to 5 times. The items that could not be patched are returned in their
// original order.
func PatchBatch[T any](ctx context.Context, items []T, retry bool, patch func(ctx context.Context, item T) error) []T {
	return patchBatch(ctx, items, retry, patch, patchOptions{
		batchPause: 100 * time.Millisecond,
		retryDelay: func(attempt int) time.Duration {
			return time.Duration(100+attempt*200) * time.Millisecond
		},
	})
}

func patchBatch[T any](ctx context.Context, items []T, retry bool, patch func(ctx context.Context, item T) error, o patchOptions) []T {
	failed := make([]T, 0)

	for start := 0; start < len(items); start += patchBatchSize {
		if start > 0 && !sleepCtx(ctx, o.batchPause) {
			return append(failed, items[start:]...)
		}
		end := min(start+patchBatchSize, len(items))
		failed = append(failed, patchChunk(ctx, items[start:end], retry, patch, o)...)
	}
	return failed
}

func patchChunk[T any](ctx context.Context, items []T, retry bool, patch func(ctx context.Context, item T) error, o patchOptions) []T {
	ok := make([]bool, len(items))

	wg := sync.WaitGroup{}
	for i, item := range items {
		wg.Go(func() {
			ok[i] = patchSingle(ctx, item, retry, patch, o)
		})
	}
	wg.Wait()

	failed := make([]T, 0)
	for i, item := range items {
		if !ok[i] {
			failed = append(failed, item)
		}
	}
	return failed
}

func patchSingle[T any](ctx context.Context, item T, retry bool, patch func(ctx context.Context, item T) error, o patchOptions) bool {
	logs := LogBufferFrom(ctx)
	for attempt := 0; attempt < patchMaxAttempts; attempt++ {
		err := patch(ctx, item)
		if err == nil {
			return true
		}
		logs.Info("Patch failed", "attempt", attempt+1, "error", err.Error())
		if !retry {
			return false
		}
		if !sleepCtx(ctx, o.retryDelay(attempt)) {
			return false
		}
	}
	return false
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
