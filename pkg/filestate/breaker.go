package filestate

import (
	"context"
	"errors"
	"time"

	"github.com/nbcluster/nbcluster/internal/logger"
	"github.com/nbcluster/nbcluster/pkg/cluster"
	"github.com/nbcluster/nbcluster/pkg/ncerr"
)

// DefaultBreakTimeout is the wall-clock timeout an oplock break is
// allowed before deferred requests are failed rather than replayed.
const DefaultBreakTimeout = 30 * time.Second

// leaseRefreshInterval is how often HandleBreakRequest touches the
// deferred queue's lease timestamps while a break is outstanding.
const leaseRefreshInterval = 5 * time.Second

// OnBreakFunc is the session layer's async oplock-break callback:
// given the path and the type the oplock must be
// downgraded to, it performs whatever client notification or handle
// close is needed and returns once the client has acknowledged or the
// caller gives up waiting. A nil func is treated as an immediate,
// no-op acknowledgement.
type OnBreakFunc func(ctx context.Context, path string, toType OpLockType) error

// BreakCoordinator runs the holder side of an oplock break. It lives
// on the node that holds the local oplock being broken, and is driven
// by BreakOplockRequest messages the bus handler routes to it.
type BreakCoordinator struct {
	nodeID  string
	topic   cluster.Topic
	timeout time.Duration
	metrics *Metrics

	perNode  func(path string) *PerNodeState
	onBreak  OnBreakFunc
	dispatch func(func())

	// ApplyDowngrade, when set, propagates the completed break into the
	// replicated ClusterFileState (typically Facade.ApplyOplockBreak).
	// Without it the downgrade is local-only and a waiter's retried
	// grant would keep seeing the old oplock.
	ApplyDowngrade func(ctx context.Context, path string, toType OpLockType) error
}

// NewBreakCoordinator builds a BreakCoordinator bound to this node.
// perNodeLookup resolves a path to the PerNodeState holding the local
// oplock (typically Facade.perNodeFor); onBreak is the session's break
// callback and may be nil. timeout <= 0 selects DefaultBreakTimeout.
func NewBreakCoordinator(nodeID string, topic cluster.Topic, timeout time.Duration, perNodeLookup func(path string) *PerNodeState, onBreak OnBreakFunc, metrics *Metrics) *BreakCoordinator {
	if timeout <= 0 {
		timeout = DefaultBreakTimeout
	}
	return &BreakCoordinator{
		nodeID:   nodeID,
		topic:    topic,
		timeout:  timeout,
		metrics:  metrics,
		perNode:  perNodeLookup,
		onBreak:  onBreak,
		dispatch: func(f func()) { go f() },
	}
}

// Defer adds an incoming request that conflicts with an in-flight
// break to path's deferred queue. Overflow surfaces as DeferFailed,
// which the caller returns to its own caller directly.
func (b *BreakCoordinator) Defer(path string, packet []byte, replay func() error, fail func(error)) (*DeferredRequest, error) {
	pn := b.perNode(path)
	if pn == nil {
		return nil, ncerr.New("BreakCoordinator.Defer", ncerr.StateNotFound)
	}
	d, err := pn.Defer(packet, replay, fail)
	if err != nil {
		b.metrics.observeDeferFailed()
		return nil, err
	}
	b.metrics.setDeferredDepth(pn.DeferredDepth())
	return d, nil
}

// HandleBreakRequest runs the full break lifecycle for a
// BreakOplockRequest(path, toType) delivered by the bus handler.
// It blocks until the break completes or times out; callers normally
// invoke it from the bus handler's own dispatch goroutine, never from
// the subscriber callback itself (the topic must never block).
func (b *BreakCoordinator) HandleBreakRequest(ctx context.Context, path string, toType OpLockType) {
	pn := b.perNode(path)
	if pn == nil || pn.GetLocalOpLock().IsNone() {
		b.publishComplete(ctx, path, false)
		return
	}
	pn.BreakStarted = time.Now()

	breakCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	stopLeases := b.refreshLeasesWhile(breakCtx, pn)
	err := b.callOnBreak(breakCtx, path, toType)
	stopLeases()

	if errors.Is(breakCtx.Err(), context.DeadlineExceeded) {
		pn.FailAll(ncerr.Wrap("BreakCoordinator", ncerr.AccessDenied, ncerr.New("BreakCoordinator", ncerr.BreakTimeout)))
		b.metrics.observeBreak("timeout")
		logger.Warn("oplock break timed out", "path", path, "node", b.nodeID)
		b.publishComplete(ctx, path, true)
		return
	}
	if err != nil {
		logger.Error("oplock break callback failed", "path", path, "error", err)
	}

	pn.SetLocalOpLock(downgradeOpLock(pn.GetLocalOpLock(), toType))
	if b.ApplyDowngrade != nil {
		if err := b.ApplyDowngrade(ctx, path, toType); err != nil {
			logger.Error("oplock downgrade failed to reach cluster state", "path", path, "error", err)
		}
	}
	b.replayDeferred(pn)
	b.metrics.observeBreak("complete")
	b.publishComplete(ctx, path, false)
}

func (b *BreakCoordinator) callOnBreak(ctx context.Context, path string, toType OpLockType) error {
	if b.onBreak == nil {
		return nil
	}
	return b.onBreak(ctx, path, toType)
}

// refreshLeasesWhile runs a ticker that refreshes pn's deferred-request
// leases until ctx is done, returning a stop func.
func (b *BreakCoordinator) refreshLeasesWhile(ctx context.Context, pn *PerNodeState) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(leaseRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case now := <-ticker.C:
				pn.RefreshDeferredLeases(now)
			}
		}
	}()
	return func() { close(done) }
}

// replayDeferred drains pn's deferred queue and requeues it to the
// worker pool as a single unit so the requests replay strictly in
// enqueue order.
func (b *BreakCoordinator) replayDeferred(pn *PerNodeState) {
	deferred := pn.DrainForReplay()
	b.metrics.setDeferredDepth(0)
	if len(deferred) == 0 {
		return
	}
	b.dispatch(func() {
		for _, d := range deferred {
			if d.Replay != nil {
				if err := d.Replay(); err != nil {
					logger.Warn("deferred request replay failed", "id", d.ID, "error", err)
				}
			}
			ReleasePacketBuffer(d.Packet)
		}
	})
}

func (b *BreakCoordinator) publishComplete(ctx context.Context, path string, timedOut bool) {
	if b.topic == nil {
		return
	}
	_ = b.topic.Publish(ctx, cluster.Message{
		Kind:     MsgOplockBreakDone,
		SenderID: b.nodeID,
		Key:      path,
		Payload:  BreakCompletePayload{TimedOut: timedOut},
	})
}

// downgradeOpLock applies toType to o, clearing it entirely when
// toType is None (breaks only ever request Level-II or None).
func downgradeOpLock(o OpLock, toType OpLockType) OpLock {
	if toType == OpLockTypeNone {
		return OpLock{}
	}
	o.Type = toType
	return o
}
