package local

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nbcluster/nbcluster/pkg/cluster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SubmitSingleWriterPerKey(t *testing.T) {
	s := NewStore[int]("counters")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Submit(ctx, "counters", "k", func(_ context.Context, cur int, exists bool) (int, any, error) {
				return cur + 1, nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100, got)
}

func TestStore_SubmitWrongMapNameFails(t *testing.T) {
	s := NewStore[int]("counters")
	_, err := s.Submit(context.Background(), "other", "k", func(_ context.Context, cur int, exists bool) (int, any, error) {
		return cur, nil, nil
	})
	assert.Error(t, err)
}

func TestStore_MoveKeyFailsIfTargetExists(t *testing.T) {
	s := NewStore[string]("paths")
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "/a", "a-value"))
	require.NoError(t, s.Put(ctx, "/b", "b-value"))

	ok, err := s.MoveKey(ctx, "/a", "/b")
	require.NoError(t, err)
	assert.False(t, ok)

	v, _, _ := s.Get(ctx, "/a")
	assert.Equal(t, "a-value", v)
}

func TestStore_MoveKeyMovesValue(t *testing.T) {
	s := NewStore[string]("paths")
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "/a", "a-value"))

	ok, err := s.MoveKey(ctx, "/a", "/c")
	require.NoError(t, err)
	assert.True(t, ok)

	_, exists, _ := s.Get(ctx, "/a")
	assert.False(t, exists)
	v, exists, _ := s.Get(ctx, "/c")
	assert.True(t, exists)
	assert.Equal(t, "a-value", v)
}

func TestTopic_PublishFanOutDoesNotBlockOnSlowSubscriber(t *testing.T) {
	topic := NewTopic()
	unblock := make(chan struct{})
	started := make(chan struct{})
	topic.Subscribe(func(m cluster.Message) {
		close(started)
		<-unblock
	})

	fast := make(chan cluster.Message, 1)
	topic.Subscribe(func(m cluster.Message) { fast <- m })

	done := make(chan struct{})
	go func() {
		_ = topic.Publish(context.Background(), cluster.Message{Kind: "test"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber never received message")
	}

	<-started
	close(unblock)
}
