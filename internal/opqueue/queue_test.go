package opqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFuture(t *testing.T, f *Future) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return f.Wait(ctx)
}

func TestQueue_RunsInFIFOOrder(t *testing.T) {
	q := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var mu sync.Mutex
	var order []int

	var futures []*Future
	for i := 0; i < 5; i++ {
		i := i
		futures = append(futures, q.Enqueue(func(ctx context.Context) ([]FollowOn, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		}, ""))
	}

	for _, f := range futures {
		require.NoError(t, waitFuture(t, f))
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestQueue_FollowOnsRunBeforeOlderPending(t *testing.T) {
	q := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var mu sync.Mutex
	var order []string

	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	first := q.Enqueue(func(ctx context.Context) ([]FollowOn, error) {
		record("first")
		return []FollowOn{
			{OpID: "first.followon", Op: func(ctx context.Context) ([]FollowOn, error) {
				record("first.followon")
				return nil, nil
			}},
		}, nil
	}, "first")

	second := q.Enqueue(func(ctx context.Context) ([]FollowOn, error) {
		record("second")
		return nil, nil
	}, "second")

	require.NoError(t, waitFuture(t, first))
	require.NoError(t, waitFuture(t, second))

	assert.Equal(t, []string{"first", "first.followon", "second"}, order)
}

func TestQueue_DedupReturnsSameFuture(t *testing.T) {
	q := New(nil)

	var runs int32
	op := func(ctx context.Context) ([]FollowOn, error) {
		atomic.AddInt32(&runs, 1)
		return nil, nil
	}

	f1 := q.Enqueue(op, "dup")
	f2 := q.Enqueue(op, "dup")
	assert.Same(t, f1, f2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	require.NoError(t, waitFuture(t, f1))
	assert.EqualValues(t, 1, atomic.LoadInt32(&runs))
}

func TestQueue_FutureCarriesError(t *testing.T) {
	q := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	boom := errors.New("boom")
	f := q.Enqueue(func(ctx context.Context) ([]FollowOn, error) {
		return nil, boom
	}, "")

	err := waitFuture(t, f)
	assert.ErrorIs(t, err, boom)
}

func TestQueue_TreeResolvesAfterAllFollowOns(t *testing.T) {
	q := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var done int32

	f := q.Enqueue(func(ctx context.Context) ([]FollowOn, error) {
		return []FollowOn{
			{Op: func(ctx context.Context) ([]FollowOn, error) {
				atomic.AddInt32(&done, 1)
				return []FollowOn{
					{Op: func(ctx context.Context) ([]FollowOn, error) {
						atomic.AddInt32(&done, 1)
						return nil, nil
					}},
				}, nil
			}},
			{Op: func(ctx context.Context) ([]FollowOn, error) {
				atomic.AddInt32(&done, 1)
				return nil, nil
			}},
		}, nil
	}, "")

	require.NoError(t, waitFuture(t, f))
	assert.EqualValues(t, 3, atomic.LoadInt32(&done))
}

func TestQueue_ClearPendingCancelsNotYetStarted(t *testing.T) {
	q := New(nil)

	ran := make(chan struct{})
	block := make(chan struct{})

	blocking := q.Enqueue(func(ctx context.Context) ([]FollowOn, error) {
		close(ran)
		<-block
		return nil, nil
	}, "blocking")

	pending := q.Enqueue(func(ctx context.Context) ([]FollowOn, error) {
		t.Error("pending operation should have been cleared before running")
		return nil, nil
	}, "pending")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	<-ran

	clearDone := q.ClearPending()
	require.NoError(t, waitFuture(t, clearDone))

	err := waitFuture(t, pending)
	assert.ErrorIs(t, err, ErrCancellation)

	close(block)
	require.ErrorIs(t, waitFuture(t, blocking), ErrCancellation)
}

func TestQueue_ClearPendingCancelsInFlightItemsFollowOns(t *testing.T) {
	q := New(nil)

	ran := make(chan struct{})
	block := make(chan struct{})
	var followOnRan int32

	tree := q.Enqueue(func(ctx context.Context) ([]FollowOn, error) {
		close(ran)
		<-block
		return []FollowOn{
			{Op: func(ctx context.Context) ([]FollowOn, error) {
				atomic.AddInt32(&followOnRan, 1)
				return nil, nil
			}},
		}, nil
	}, "in-flight")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	<-ran

	// The item is executing (dequeued but not yet completeItem'd), so it
	// isn't in q.pending; ClearPending must still reach it via q.current.
	clearDone := q.ClearPending()
	require.NoError(t, waitFuture(t, clearDone))

	close(block)

	err := waitFuture(t, tree)
	assert.ErrorIs(t, err, ErrCancellation)
	assert.EqualValues(t, 0, atomic.LoadInt32(&followOnRan))
}

func TestQueue_StopPausesDraining(t *testing.T) {
	q := New(nil)

	var ran int32
	f := q.Enqueue(func(ctx context.Context) ([]FollowOn, error) {
		atomic.AddInt32(&ran, 1)
		return nil, nil
	}, "")

	q.Stop()

	select {
	case <-f.Done():
		t.Fatal("operation ran while queue was stopped")
	case <-time.After(50 * time.Millisecond):
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	require.NoError(t, waitFuture(t, f))
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}
