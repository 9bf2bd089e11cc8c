// Package cluster defines the boundary between the clustered
// file-state cache and the distributed map/topic/executor it runs on
// top of. The cluster transport itself (membership, map replication,
// the pub/sub bus) is an external collaborator; this package only
// states the contract and ships one in-memory reference implementation
// (pkg/cluster/local) for tests and single-node deployments.
package cluster

import "context"

// Map is a distributed key-value store that guarantees single-writer-
// per-key semantics: two concurrent Submit calls for the same key never
// interleave their mutations.
type Map[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool, error)
	Put(ctx context.Context, key K, value V) error
	Delete(ctx context.Context, key K) error
	Iterate(ctx context.Context, fn func(key K, value V) bool) error
}

// Task is a closure submitted to run on the node that currently owns a
// key, under that key's per-key lock. A Task should be plain data plus
// a static op code rather than a captured environment, so a real
// transport can serialize it; the
// in-memory reference implementation runs it as an ordinary function
// since nothing actually crosses a process boundary there. The reply is
// typed as any because Go forbids a method from introducing a type
// parameter the receiver doesn't already carry; callers type-assert the
// reply to the concrete reply type for their op.
type Task[V any] func(ctx context.Context, current V, exists bool) (newValue V, reply any, err error)

// Executor runs a Task on the node owning key in mapName, returning the
// task's reply. Implementations must guarantee at-least-once delivery;
// callers whose tasks are not naturally idempotent must carry a
// client-side sequence number to detect replay.
type Executor[K comparable, V any] interface {
	Submit(ctx context.Context, mapName string, key K, task Task[V]) (any, error)
}

// Message is one event published on the cluster topic.
type Message struct {
	Kind      string
	SenderID  string
	Key       string
	Payload   any
}

// KeyMover is an optional capability a Map implementation may offer:
// atomically relocating the value stored at oldKey to newKey, failing
// if newKey already exists. Rename needs this because it spans two
// keys and therefore two per-key locks, which a plain Task submitted
// to one key cannot express.
type KeyMover interface {
	MoveKey(ctx context.Context, oldKey, newKey string) (bool, error)
}

// Topic is a pub/sub bus shared across the cluster. Subscribers must
// not block inside their handler; handing work off to a worker pool is
// the caller's responsibility (see pkg/filestate's bus handler).
type Topic interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(handler func(Message)) (unsubscribe func())
}
