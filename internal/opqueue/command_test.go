package opqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refreshArgs struct {
	Account string `json:"account"`
	Repo    string `json:"repo"`
}

func TestCommandQueue_DedupByStructuralArgs(t *testing.T) {
	c := NewCommandQueue(nil)

	var runs int32
	c.Register("refresh", func(args any) (Operation, error) {
		return func(ctx context.Context) ([]FollowOn, error) {
			atomic.AddInt32(&runs, 1)
			return nil, nil
		}, nil
	})

	f1, err := c.EnqueueCommand("refresh", refreshArgs{Account: "acme", Repo: "site"})
	require.NoError(t, err)

	f2, err := c.EnqueueCommand("refresh", refreshArgs{Account: "acme", Repo: "site"})
	require.NoError(t, err)

	assert.Same(t, f1, f2)

	f3, err := c.EnqueueCommand("refresh", refreshArgs{Account: "acme", Repo: "other"})
	require.NoError(t, err)
	assert.NotSame(t, f1, f3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()

	require.NoError(t, f1.Wait(waitCtx))
	require.NoError(t, f3.Wait(waitCtx))
	assert.EqualValues(t, 2, atomic.LoadInt32(&runs))
}

func TestCommandQueue_UnregisteredNameErrors(t *testing.T) {
	c := NewCommandQueue(nil)

	_, err := c.EnqueueCommand("nope", nil)
	assert.Error(t, err)
}
