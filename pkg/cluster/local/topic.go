package local

import (
	"context"
	"sync"

	"github.com/nbcluster/nbcluster/pkg/cluster"
)

// Topic is an in-process fan-out pub/sub bus. Publish dispatches to
// each subscriber on its own goroutine so a slow or blocking handler
// never holds up the publisher or other subscribers.
type Topic struct {
	mu          sync.Mutex
	subscribers map[int]func(cluster.Message)
	nextID      int
}

// NewTopic builds an empty topic.
func NewTopic() *Topic {
	return &Topic{subscribers: make(map[int]func(cluster.Message))}
}

// Publish implements cluster.Topic.
func (t *Topic) Publish(ctx context.Context, msg cluster.Message) error {
	t.mu.Lock()
	handlers := make([]func(cluster.Message), 0, len(t.subscribers))
	for _, h := range t.subscribers {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()

	for _, h := range handlers {
		go h(msg)
	}
	return nil
}

// Subscribe implements cluster.Topic.
func (t *Topic) Subscribe(handler func(cluster.Message)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subscribers[id] = handler
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subscribers, id)
		t.mu.Unlock()
	}
}
