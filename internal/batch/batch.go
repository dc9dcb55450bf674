// Package batch issues groups of independent remote calls concurrently and
// hands their results, in issue order, to a single aggregation callback.
package batch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrPanic marks a call or callback that panicked instead of returning.
var ErrPanic = errors.New("batch: panic")

// Call is one remote call in a batch.
type Call[T any] func(ctx context.Context) (T, error)

// Result carries the outcome of a single call. A failed call does not
// affect its siblings.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Join runs calls concurrently and waits for all of them. results[i] always
// belongs to calls[i], whatever order the calls complete in.
func Join[T any](ctx context.Context, calls ...Call[T]) []Result[T] {
	results := make([]Result[T], len(calls))

	var g errgroup.Group
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			value, err := protect(func() (T, error) { return call(ctx) })
			results[i] = Result[T]{Value: value, Err: err}
			// never fail the group: siblings must run to completion
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Then dispatches calls and schedules callback to run once every call has
// settled. The batch runs detached from ctx cancellation: once issued it
// completes and the callback fires.
func Then[T, R any](ctx context.Context, calls []Call[T], callback func(context.Context, []Result[T]) (R, error)) *Future[R] {
	f := newFuture[R]()
	detached := context.WithoutCancel(ctx)

	go func() {
		results := Join(detached, calls...)
		f.setStage(StageAggregating)
		value, err := protect(func() (R, error) { return callback(detached, results) })
		f.resolve(value, err)
	}()

	return f
}

// protect turns a panic in fn into an ErrPanic result.
func protect[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			value, err = zero, fmt.Errorf("%w: %v", ErrPanic, rec)
		}
	}()
	return fn()
}
