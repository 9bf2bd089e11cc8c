package filestate

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nbcluster/nbcluster/internal/logger"
	"github.com/nbcluster/nbcluster/pkg/cluster"
	"github.com/nbcluster/nbcluster/pkg/ncerr"
)

// DefaultBreakWaitTimeout bounds how long GrantAccessWaitingForBreak
// waits for a break it triggered to complete before giving up and
// returning the BreakInProgress result to the caller.
const DefaultBreakWaitTimeout = DefaultBreakTimeout + 5*time.Second

// Backend is the pair of cluster capabilities the facade needs: a
// replicated map keyed by canonical path, and an executor that runs a
// task under the owner's per-key lock.
type Backend interface {
	cluster.Map[string, ClusterFileState]
	cluster.Executor[string, ClusterFileState]
}

// Facade is the state cache's public face: the only thing external
// protocol sessions call into. Mutating calls block until the backend
// returns. Most are dispatched as a remote task to the owner of the key;
// Create writes through Put, Rename moves the key with the map's
// MoveKey before its task runs, and Remove deletes the key after its
// task has checked that the state is empty.
type Facade struct {
	nodeID  string
	mapName string
	backend Backend
	topic   cluster.Topic
	metrics *Metrics

	createGroup singleflight.Group
	seq         atomic.Uint64

	perNodeMu sync.Mutex
	perNode   map[string]*PerNodeState
}

// NewFacade builds a Facade bound to backend for this node.
func NewFacade(nodeID, mapName string, backend Backend, topic cluster.Topic) *Facade {
	return &Facade{
		nodeID:  nodeID,
		mapName: mapName,
		backend: backend,
		topic:   topic,
		metrics: NewMetrics(),
		perNode: make(map[string]*PerNodeState),
	}
}

// SetMetrics overrides the facade's metrics collector, e.g. to share a
// single registered Metrics instance across the process. Must be
// called before the facade serves traffic.
func (f *Facade) SetMetrics(m *Metrics) { f.metrics = m }

// canonicalize lower-cases path, removes a trailing separator, and
// collapses duplicate separators.
func canonicalize(path string) string {
	p := strings.ToLower(path)
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		p = "/"
	}
	return p
}

// Find is a cheap read from the replicated map.
func (f *Facade) Find(ctx context.Context, path string) (*ClusterFileState, bool, error) {
	key := canonicalize(path)
	v, ok, err := f.backend.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return v.Clone(), true, nil
}

// Create is idempotent: concurrent callers creating the same path
// collapse onto a single backend write via singleflight.
func (f *Facade) Create(ctx context.Context, path string) (*ClusterFileState, error) {
	key := canonicalize(path)
	v, err, _ := f.createGroup.Do(key, func() (any, error) {
		existing, ok, err := f.backend.Get(ctx, key)
		if err != nil {
			return ClusterFileState{}, err
		}
		if ok {
			return existing, nil
		}
		fresh := ClusterFileState{Path: key, Status: StatusNotExist}
		if err := f.backend.Put(ctx, key, fresh); err != nil {
			return ClusterFileState{}, err
		}
		if f.topic != nil {
			_ = f.topic.Publish(ctx, cluster.Message{Kind: MsgStateAdded, SenderID: f.nodeID, Key: key})
		}
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	cs := v.(ClusterFileState)
	return cs.Clone(), nil
}

type removeReply struct{ removed bool }

// Remove deletes the state at path if it has no opens, no oplock, and
// no data update in progress.
func (f *Facade) Remove(ctx context.Context, path string) (bool, error) {
	key := canonicalize(path)
	reply, err := f.backend.Submit(ctx, f.mapName, key, func(_ context.Context, cur ClusterFileState, exists bool) (ClusterFileState, any, error) {
		if !exists || !cur.IsEmpty() {
			return cur, removeReply{false}, nil
		}
		return cur, removeReply{true}, nil
	})
	if err != nil {
		return false, err
	}
	r := reply.(removeReply)
	if r.removed {
		if err := f.backend.Delete(ctx, key); err != nil {
			return false, err
		}
		f.evictPerNode(key)
		if f.topic != nil {
			_ = f.topic.Publish(ctx, cluster.Message{Kind: MsgStateRemoved, SenderID: f.nodeID, Key: key})
		}
	}
	return r.removed, nil
}

// Rename relocates oldPath's state to newPath atomically within the
// cluster map, failing if newPath already exists.
func (f *Facade) Rename(ctx context.Context, oldPath, newPath string, isDir bool) (bool, error) {
	oldKey, newKey := canonicalize(oldPath), canonicalize(newPath)

	mover, ok := f.backend.(cluster.KeyMover)
	if !ok {
		return false, ncerr.New("facade.Rename", ncerr.StateNotFound)
	}
	moved, err := mover.MoveKey(ctx, oldKey, newKey)
	if err != nil || !moved {
		return false, err
	}

	_, err = f.backend.Submit(ctx, f.mapName, newKey, func(_ context.Context, cur ClusterFileState, exists bool) (ClusterFileState, any, error) {
		if !exists {
			return cur, nil, ncerr.New("facade.Rename", ncerr.StateNotFound)
		}
		reply, err := TaskRenameState(&cur, newKey)
		return cur, reply, err
	})
	if err != nil {
		return false, err
	}

	f.perNodeMu.Lock()
	if pn, ok := f.perNode[oldKey]; ok {
		delete(f.perNode, oldKey)
		f.perNode[newKey] = pn
	}
	f.perNodeMu.Unlock()

	return true, nil
}

// GrantAccess dispatches GrantFileAccess to the owner of path.
func (f *Facade) GrantAccess(ctx context.Context, path string, params OpenParams) (*GrantResult, error) {
	key := canonicalize(path)
	seq := f.seq.Add(1)

	reply, err := f.backend.Submit(ctx, f.mapName, key, func(_ context.Context, cur ClusterFileState, exists bool) (ClusterFileState, any, error) {
		if !exists {
			cur = ClusterFileState{Path: key, Status: StatusNotExist}
		}
		r, err := TaskGrantFileAccess(&cur, key, f.nodeID, params, seq)
		return cur, r, err
	})
	if err != nil {
		f.metrics.observeGrant("error")
		return nil, err
	}
	result := reply.(GrantResult)
	if result.Token != nil {
		f.metrics.observeGrant("granted")
	} else if result.BreakInProgress {
		f.metrics.observeGrant("break_in_progress")
	}
	if result.BreakRequested && f.topic != nil {
		_ = f.topic.Publish(ctx, cluster.Message{
			Kind:     MsgOplockBreakRequest,
			SenderID: f.nodeID,
			Key:      key,
			Payload:  BreakRequestPayload{ToType: result.BreakToType, HolderNode: result.HolderNode, WaiterNode: f.nodeID},
		})
	}
	return &result, nil
}

// ApplyOplockBreak propagates a completed local break into the
// replicated state so a grant retried after the break observes the
// downgraded oplock. Wired as the BreakCoordinator's ApplyDowngrade
// hook.
func (f *Facade) ApplyOplockBreak(ctx context.Context, path string, toType OpLockType) error {
	return f.ChangeOpLock(ctx, path, toType)
}

// GrantAccessWaitingForBreak calls GrantAccess and, if the grant is
// blocked on an in-flight oplock break, waits (bounded by maxWait) for
// the break to complete and retries once. If maxWait is <= 0,
// DefaultBreakWaitTimeout is used. A timed-out wait
// returns the original BreakInProgress result rather than an error, so
// the caller can decide whether to retry again itself.
func (f *Facade) GrantAccessWaitingForBreak(ctx context.Context, path string, params OpenParams, maxWait time.Duration) (*GrantResult, error) {
	key := canonicalize(path)

	// Subscribe before the first attempt: GrantAccess may itself publish
	// the break request that eventually completes, and listening only
	// starts afterward would race a break that completes before we get
	// around to subscribing.
	var done chan struct{}
	if f.topic != nil {
		done = make(chan struct{}, 1)
		unsub := f.topic.Subscribe(func(msg cluster.Message) {
			if msg.Key != key {
				return
			}
			if msg.Kind == MsgOplockBreakDone || msg.Kind == MsgOplockReleased {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		})
		defer unsub()
	}

	result, err := f.GrantAccess(ctx, path, params)
	if err != nil || result.Token != nil || !result.BreakInProgress || f.topic == nil {
		return result, err
	}

	if maxWait <= 0 {
		maxWait = DefaultBreakWaitTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
		return result, nil
	}
	return f.GrantAccess(ctx, path, params)
}

// ReleaseAccess dispatches ReleaseFileAccess and publishes an
// OplockReleased event if the released handle held the oplock.
func (f *Facade) ReleaseAccess(ctx context.Context, path string, token AccessToken) (*ReleaseResult, error) {
	key := canonicalize(path)
	reply, err := f.backend.Submit(ctx, f.mapName, key, func(_ context.Context, cur ClusterFileState, exists bool) (ClusterFileState, any, error) {
		if !exists {
			return cur, nil, ncerr.New("facade.ReleaseAccess", ncerr.StateNotFound)
		}
		r, err := TaskReleaseFileAccess(&cur, token)
		return cur, r, err
	})
	if err != nil {
		return nil, err
	}
	result := reply.(ReleaseResult)
	if result.ReleasedOpLock && f.topic != nil {
		_ = f.topic.Publish(ctx, cluster.Message{Kind: MsgOplockReleased, SenderID: f.nodeID, Key: key})
	}
	return &result, nil
}

// AddOpLock dispatches AddOpLock to the owner of path, mirroring the
// grant into this node's PerNodeState when the holder is local.
func (f *Facade) AddOpLock(ctx context.Context, path string, lock OpLock) error {
	err := f.submitBool(ctx, path, func(cur *ClusterFileState) (any, error) { return TaskAddOpLock(cur, lock) })
	if err != nil {
		return err
	}
	if lock.Kind == OpLockLocal || lock.OwningNode == f.nodeID {
		f.PerNodeFor(path).SetLocalOpLock(lock)
	}
	return nil
}

// ChangeOpLock dispatches ChangeOpLockType to the owner of path.
func (f *Facade) ChangeOpLock(ctx context.Context, path string, newType OpLockType) error {
	return f.submitBool(ctx, path, func(cur *ClusterFileState) (any, error) { return TaskChangeOpLockType(cur, newType) })
}

// ClearOpLock dispatches RemoveOpLock to the owner of path and drops
// any local oplock mirror.
func (f *Facade) ClearOpLock(ctx context.Context, path string) error {
	err := f.submitBool(ctx, path, func(cur *ClusterFileState) (any, error) { return TaskRemoveOpLock(cur) })
	if err != nil {
		return err
	}
	f.PerNodeFor(path).SetLocalOpLock(OpLock{})
	return nil
}

// AddLock dispatches AddFileByteLock to the owner of path.
func (f *Facade) AddLock(ctx context.Context, path string, lock ByteLock) error {
	return f.submitBool(ctx, path, func(cur *ClusterFileState) (any, error) { return TaskAddFileByteLock(cur, lock) })
}

// RemoveLock dispatches RemoveFileByteLock to the owner of path.
func (f *Facade) RemoveLock(ctx context.Context, path string, lock ByteLock) error {
	return f.submitBool(ctx, path, func(cur *ClusterFileState) (any, error) { return TaskRemoveFileByteLock(cur, lock) })
}

// CheckLock dispatches CheckFileByteLockAccess to the owner of path.
func (f *Facade) CheckLock(ctx context.Context, path string, probe ByteLock, forWrite bool) (bool, error) {
	key := canonicalize(path)
	reply, err := f.backend.Submit(ctx, f.mapName, key, func(_ context.Context, cur ClusterFileState, exists bool) (ClusterFileState, any, error) {
		r, err := TaskCheckFileByteLockAccess(&cur, probe, forWrite)
		return cur, r, err
	})
	if err != nil {
		return false, err
	}
	return reply.(bool), nil
}

// UpdateStatus dispatches UpdateState to the owner of path.
func (f *Facade) UpdateStatus(ctx context.Context, path string, status FileStatus) error {
	return f.submitBool(ctx, path, func(cur *ClusterFileState) (any, error) { return TaskUpdateState(cur, status) })
}

// UpdateDataStatus dispatches FileDataUpdate to the owner of path and
// publishes a DataUpdateStarted/Ended event so other nodes mirror the
// flag locally.
func (f *Facade) UpdateDataStatus(ctx context.Context, path string, start bool) error {
	key := canonicalize(path)
	if err := f.submitBool(ctx, path, func(cur *ClusterFileState) (any, error) { return TaskFileDataUpdate(cur, f.nodeID, start) }); err != nil {
		return err
	}
	if f.topic != nil {
		kind := MsgDataUpdateEnded
		if start {
			kind = MsgDataUpdateStarted
		}
		_ = f.topic.Publish(ctx, cluster.Message{Kind: kind, SenderID: f.nodeID, Key: key, Payload: DataUpdatePayload{NodeID: f.nodeID}})
	}
	return nil
}

// submitBool runs task against path's state and treats any non-error
// reply as success; callers that need the typed reply use Submit
// directly (GrantAccess, ReleaseAccess, CheckLock).
func (f *Facade) submitBool(ctx context.Context, path string, task func(*ClusterFileState) (any, error)) error {
	key := canonicalize(path)
	_, err := f.backend.Submit(ctx, f.mapName, key, func(_ context.Context, cur ClusterFileState, exists bool) (ClusterFileState, any, error) {
		if !exists {
			return cur, nil, ncerr.New("facade", ncerr.StateNotFound)
		}
		reply, err := task(&cur)
		return cur, reply, err
	})
	return err
}

// PerNodeFor returns (lazily creating, if needed) the local PerNodeState
// mirror for path's canonicalized key. Exposed for the oplock break
// coordinator and the cluster bus handler, which both need to resolve
// a path to this node's non-replicated state without going through a
// remote task.
func (f *Facade) PerNodeFor(path string) *PerNodeState {
	return f.perNodeFor(canonicalize(path))
}

func (f *Facade) perNodeFor(key string) *PerNodeState {
	f.perNodeMu.Lock()
	defer f.perNodeMu.Unlock()
	pn, ok := f.perNode[key]
	if !ok {
		pn = NewPerNodeState(0)
		f.perNode[key] = pn
	}
	return pn
}

func (f *Facade) evictPerNode(key string) {
	f.perNodeMu.Lock()
	pn, ok := f.perNode[key]
	delete(f.perNode, key)
	f.perNodeMu.Unlock()
	if ok {
		pn.Close()
	}
	logger.Debug("filestate evicted", "path", key)
}
