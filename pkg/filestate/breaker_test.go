package filestate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbcluster/nbcluster/pkg/cluster"
	"github.com/nbcluster/nbcluster/pkg/cluster/local"
)

func newPerNodeRegistry() (func(string) *PerNodeState, func(string, *PerNodeState)) {
	var mu sync.Mutex
	reg := make(map[string]*PerNodeState)
	lookup := func(path string) *PerNodeState {
		mu.Lock()
		defer mu.Unlock()
		pn, ok := reg[path]
		if !ok {
			pn = NewPerNodeState(1)
			reg[path] = pn
		}
		return pn
	}
	set := func(path string, pn *PerNodeState) {
		mu.Lock()
		reg[path] = pn
		mu.Unlock()
	}
	return lookup, set
}

func TestBreakCoordinator_NoLocalOplockPublishesImmediateComplete(t *testing.T) {
	topic := local.NewTopic()
	lookup, _ := newPerNodeRegistry()
	b := NewBreakCoordinator("nodeX", topic, 50*time.Millisecond, lookup, nil, NewMetrics())

	got := make(chan cluster.Message, 1)
	topic.Subscribe(func(m cluster.Message) { got <- m })

	b.HandleBreakRequest(context.Background(), "/a", OpLockTypeNone)

	select {
	case m := <-got:
		assert.Equal(t, MsgOplockBreakDone, m.Kind)
		payload, ok := m.Payload.(BreakCompletePayload)
		require.True(t, ok)
		assert.False(t, payload.TimedOut)
	case <-time.After(time.Second):
		t.Fatal("expected BreakComplete to be published")
	}
}

func TestBreakCoordinator_DowngradesAndReplaysDeferredInOrder(t *testing.T) {
	topic := local.NewTopic()
	lookup, set := newPerNodeRegistry()

	pn := NewPerNodeState(1)
	pn.SetLocalOpLock(OpLock{Kind: OpLockLocal, Type: OpLockTypeBatch})
	set("/b", pn)

	onBreak := func(ctx context.Context, path string, toType OpLockType) error { return nil }
	b := NewBreakCoordinator("nodeX", topic, time.Second, lookup, onBreak, NewMetrics())

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		_, err := pn.Defer(AcquirePacketBuffer(), func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
			return nil
		}, nil)
		require.NoError(t, err)
	}

	b.HandleBreakRequest(context.Background(), "/b", OpLockTypeLevelII)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, OpLockTypeLevelII, pn.GetLocalOpLock().Type)
	assert.Equal(t, 0, pn.DeferredDepth())
}

func TestBreakCoordinator_TimeoutFailsDeferredRequests(t *testing.T) {
	topic := local.NewTopic()
	lookup, set := newPerNodeRegistry()

	pn := NewPerNodeState(1)
	pn.SetLocalOpLock(OpLock{Kind: OpLockLocal, Type: OpLockTypeExclusive})
	set("/c", pn)

	blockForever := func(ctx context.Context, path string, toType OpLockType) error {
		<-ctx.Done()
		return ctx.Err()
	}
	b := NewBreakCoordinator("nodeX", topic, 20*time.Millisecond, lookup, blockForever, NewMetrics())

	var failErr error
	var wg sync.WaitGroup
	wg.Add(1)
	_, err := pn.Defer(AcquirePacketBuffer(), func() error { return nil }, func(e error) {
		failErr = e
		wg.Done()
	})
	require.NoError(t, err)

	done := make(chan cluster.Message, 1)
	topic.Subscribe(func(m cluster.Message) {
		if m.Kind == MsgOplockBreakDone {
			done <- m
		}
	})

	b.HandleBreakRequest(context.Background(), "/c", OpLockTypeNone)
	wg.Wait()

	require.Error(t, failErr)
	select {
	case m := <-done:
		payload := m.Payload.(BreakCompletePayload)
		assert.True(t, payload.TimedOut)
	case <-time.After(time.Second):
		t.Fatal("expected BreakComplete(timedOut) to be published")
	}
}

func TestBreakCoordinator_DeferFailedWhenQueueFull(t *testing.T) {
	lookup, set := newPerNodeRegistry()
	pn := NewPerNodeState(1)
	set("/d", pn)
	b := NewBreakCoordinator("nodeX", local.NewTopic(), time.Second, lookup, nil, NewMetrics())

	for i := 0; i < DefaultDeferredQueueDepth; i++ {
		_, err := b.Defer("/d", AcquirePacketBuffer(), func() error { return nil }, nil)
		require.NoError(t, err)
	}
	_, err := b.Defer("/d", AcquirePacketBuffer(), func() error { return nil }, nil)
	require.Error(t, err)
	assert.Equal(t, DefaultDeferredQueueDepth, pn.DeferredDepth())
}
