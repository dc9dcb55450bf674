package batch

import (
	"context"
	"sync/atomic"
)

// Stage is the position of a request in the dispatch/aggregate cycle.
type Stage int32

const (
	StageDispatching Stage = iota
	StageAggregating
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageDispatching:
		return "dispatching"
	case StageAggregating:
		return "aggregating"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Future is a value that is either already known or produced later by an
// aggregation callback.
type Future[R any] struct {
	done  chan struct{}
	stage atomic.Int32
	value R
	err   error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

// Resolved returns a future that already holds value.
func Resolved[R any](value R) *Future[R] {
	f := newFuture[R]()
	f.resolve(value, nil)
	return f
}

// Failed returns a future that already holds err.
func Failed[R any](err error) *Future[R] {
	f := newFuture[R]()
	var zero R
	f.resolve(zero, err)
	return f
}

func (f *Future[R]) setStage(s Stage) {
	f.stage.Store(int32(s))
}

func (f *Future[R]) resolve(value R, err error) {
	f.value = value
	f.err = err
	f.setStage(StageDone)
	close(f.done)
}

// Stage returns the current stage.
func (f *Future[R]) Stage() Stage {
	return Stage(f.stage.Load())
}

// Pending reports whether the value is not yet available.
func (f *Future[R]) Pending() bool {
	select {
	case <-f.done:
		return false
	default:
		return true
	}
}

// Done is closed once the future resolves.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends. Giving up on ctx does
// not cancel the underlying batch.
func (f *Future[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}
