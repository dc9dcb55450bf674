package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinKeepsIssueOrder(t *testing.T) {
	releaseA := make(chan struct{})
	bDone := make(chan struct{})

	calls := []Call[string]{
		func(ctx context.Context) (string, error) {
			<-releaseA
			return "a", nil
		},
		func(ctx context.Context) (string, error) {
			defer close(bDone)
			return "b", nil
		},
	}

	go func() {
		// A is only released after B has finished.
		<-bDone
		close(releaseA)
	}()

	results := Join(context.Background(), calls...)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Value)
	assert.Equal(t, "b", results[1].Value)
}

func TestJoinReportsPerResultErrors(t *testing.T) {
	boom := errors.New("boom")
	results := Join(context.Background(),
		func(ctx context.Context) (int, error) { return 0, boom },
		func(ctx context.Context) (int, error) { return 7, nil },
	)

	require.Len(t, results, 2)
	assert.False(t, results[0].OK())
	assert.ErrorIs(t, results[0].Err, boom)
	assert.True(t, results[1].OK())
	assert.Equal(t, 7, results[1].Value)
}

func TestThenRunsCallbackAfterAllSettle(t *testing.T) {
	release := make(chan struct{})
	calls := []Call[int]{
		func(ctx context.Context) (int, error) { <-release; return 1, nil },
		func(ctx context.Context) (int, error) { return 2, nil },
	}

	f := Then(context.Background(), calls, func(ctx context.Context, results []Result[int]) (int, error) {
		return results[0].Value*10 + results[1].Value, nil
	})

	assert.True(t, f.Pending())
	assert.Equal(t, StageDispatching, f.Stage())

	close(release)
	got, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, got)
	assert.False(t, f.Pending())
	assert.Equal(t, StageDone, f.Stage())
}

func TestThenIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	calls := []Call[int]{
		func(ctx context.Context) (int, error) {
			close(started)
			time.Sleep(20 * time.Millisecond)
			return 5, ctx.Err()
		},
	}

	f := Then(ctx, calls, func(ctx context.Context, results []Result[int]) (int, error) {
		return results[0].Value, results[0].Err
	})
	<-started
	cancel()

	got, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}

func TestThenCallbackFiresOnFailure(t *testing.T) {
	boom := errors.New("boom")
	f := Then(context.Background(), []Call[int]{
		func(ctx context.Context) (int, error) { return 0, boom },
	}, func(ctx context.Context, results []Result[int]) (int, error) {
		return 0, results[0].Err
	})

	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestResolvedAndFailed(t *testing.T) {
	f := Resolved("ok")
	assert.False(t, f.Pending())
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	boom := errors.New("boom")
	_, err = Failed[string](boom).Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestWaitHonorsContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	f := Then(context.Background(), []Call[int]{
		func(ctx context.Context) (int, error) { <-block; return 0, nil },
	}, func(ctx context.Context, results []Result[int]) (int, error) {
		return 0, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPanicsResolveTheFuture(t *testing.T) {
	calls := []Call[int]{
		func(context.Context) (int, error) { panic("ledger client bug") },
		func(context.Context) (int, error) { return 2, nil },
	}

	var seen []Result[int]
	f := Then(context.Background(), calls, func(_ context.Context, results []Result[int]) (int, error) {
		seen = results
		return results[1].Value, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	value, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, value)
	require.ErrorIs(t, seen[0].Err, ErrPanic)
	assert.Contains(t, seen[0].Err.Error(), "ledger client bug")

	f = Then(context.Background(), calls[1:], func(context.Context, []Result[int]) (int, error) {
		panic("callback bug")
	})
	_, err = f.Wait(ctx)
	require.ErrorIs(t, err, ErrPanic)
	assert.Equal(t, StageDone, f.Stage())
}
