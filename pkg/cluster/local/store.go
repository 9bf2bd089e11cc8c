// Package local is the one in-memory reference implementation of the
// pkg/cluster interfaces: a single map with a per-key mutex standing
// in for the cluster map's per-key lock, a Submit that runs a Task
// under that lock, and a fan-out Topic. It is meant for tests and
// single-node operation; a real deployment supplies its own transport.
package local

import (
	"context"
	"sync"

	"github.com/nbcluster/nbcluster/pkg/cluster"
	"github.com/nbcluster/nbcluster/pkg/ncerr"
)

// Store is a single named distributed map backed by one in-process
// table under a read-write mutex. It implements cluster.Map[string, V] and
// cluster.Executor[string, V].
type Store[V any] struct {
	name string

	mu     sync.RWMutex
	values map[string]V

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex
}

// NewStore builds an empty named store.
func NewStore[V any](name string) *Store[V] {
	return &Store[V]{
		name:     name,
		values:   make(map[string]V),
		keyLocks: make(map[string]*sync.Mutex),
	}
}

// Get implements cluster.Map.
func (s *Store[V]) Get(ctx context.Context, key string) (V, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Put implements cluster.Map.
func (s *Store[V]) Put(ctx context.Context, key string, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete implements cluster.Map.
func (s *Store[V]) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Iterate implements cluster.Map. fn is called under the read lock;
// returning false stops iteration early.
func (s *Store[V]) Iterate(ctx context.Context, fn func(key string, value V) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.values {
		if !fn(k, v) {
			break
		}
	}
	return nil
}

func (s *Store[V]) lockFor(key string) *sync.Mutex {
	s.keyLocksMu.Lock()
	defer s.keyLocksMu.Unlock()
	l, ok := s.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[key] = l
	}
	return l
}

// Submit runs task under key's per-key lock: it loads the current
// value, lets the task compute a replacement and a reply, then writes
// the replacement back. This is the single-writer-per-key guarantee
// the clustered file-state cache depends on.
func (s *Store[V]) Submit(ctx context.Context, mapName string, key string, task cluster.Task[V]) (any, error) {
	if mapName != s.name {
		return nil, ncerr.New("local.Store.Submit", ncerr.StateNotFound)
	}
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	cur, exists := s.values[key]
	s.mu.RUnlock()

	newVal, reply, err := task(ctx, cur, exists)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.values[key] = newVal
	s.mu.Unlock()

	return reply, nil
}

// MoveKey implements cluster.KeyMover: it atomically moves the value
// stored at oldKey to newKey, failing if newKey already exists. It
// takes both keys' locks in a fixed lexical order to avoid deadlocking
// against a concurrent rename of the reverse pair.
func (s *Store[V]) MoveKey(ctx context.Context, oldKey, newKey string) (bool, error) {
	first, second := oldKey, newKey
	if second < first {
		first, second = second, first
	}
	l1, l2 := s.lockFor(first), s.lockFor(second)
	l1.Lock()
	defer l1.Unlock()
	if l2 != l1 {
		l2.Lock()
		defer l2.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[newKey]; exists {
		return false, nil
	}
	v, exists := s.values[oldKey]
	if !exists {
		return false, nil
	}
	delete(s.values, oldKey)
	s.values[newKey] = v
	return true, nil
}
