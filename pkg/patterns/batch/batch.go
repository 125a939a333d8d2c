package batch

import (
	"context"
	"sync"
)

// BatchItem holds the outcome of one request. Items keep the order of the
// requests they came from.
type BatchItem[TResult any] struct {
	Result TResult
	Error  error
}

type BatchResult[TResult any] struct {
	Items []BatchItem[TResult]
}

// Succeeded counts items without an error.
func (r *BatchResult[TResult]) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if it.Error == nil {
			n++
		}
	}
	return n
}

// BatchProcessor runs Process over a batch with at most MaxConcurrency requests
// in flight. Validate is optional.
type BatchProcessor[TRequest, TResult any] struct {
	MaxConcurrency int
	Validate       func(TRequest) error
	Process        func(context.Context, TRequest) (TResult, error)
}

// ProcessBatch processes every request and reports per-item results. When
// continueOnError is false the first failure cancels the requests that have not
// started yet; they report the context error.
func (bp *BatchProcessor[TRequest, TResult]) ProcessBatch(
	ctx context.Context,
	requests []TRequest,
	continueOnError bool,
) (*BatchResult[TResult], error) {
	limit := bp.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]BatchItem[TResult], len(requests))
	semaphore := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(index int, request TRequest) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				results[index] = BatchItem[TResult]{Error: ctx.Err()}
				return
			}
			defer func() { <-semaphore }()

			if err := ctx.Err(); err != nil {
				results[index] = BatchItem[TResult]{Error: err}
				return
			}

			if bp.Validate != nil {
				if err := bp.Validate(request); err != nil {
					results[index] = BatchItem[TResult]{Error: err}
					if !continueOnError {
						cancel()
					}
					return
				}
			}

			result, err := bp.Process(ctx, request)
			results[index] = BatchItem[TResult]{Result: result, Error: err}
			if err != nil && !continueOnError {
				cancel()
			}
		}(i, req)
	}

	wg.Wait()
	return &BatchResult[TResult]{Items: results}, nil
}
