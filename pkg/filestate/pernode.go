package filestate

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nbcluster/nbcluster/internal/logger"
	"github.com/nbcluster/nbcluster/pkg/ncerr"
)

// DataStatus is the local data-availability state of an open file.
type DataStatus int

const (
	DataAvailable DataStatus = iota
	DataLoadWait
	DataUpdating
)

// DefaultDeferredQueueDepth is the default bound on a PerNodeState's
// deferred-request queue.
const DefaultDeferredQueueDepth = 3

var packetBufferPool = sync.Pool{
	New: func() any { return make([]byte, 0, 4096) },
}

// AcquirePacketBuffer returns a pooled buffer for a deferred request to
// hold its protocol packet.
func AcquirePacketBuffer() []byte {
	return packetBufferPool.Get().([]byte)[:0]
}

// ReleasePacketBuffer returns buf to the pool. Called on replay,
// failure, or queue drain at shutdown so an abandoned queue does not
// leak.
func ReleasePacketBuffer(buf []byte) {
	packetBufferPool.Put(buf) //nolint:staticcheck // pool stores a slice header, not a pointer
}

// DeferredRequest is a request held server-side while a conflicting
// oplock break is in flight.
type DeferredRequest struct {
	ID         string
	EnqueuedAt time.Time
	Packet     []byte

	// Replay re-issues the original operation once the break completes.
	Replay func() error
	// Fail resolves the caller with the given error, used on timeout.
	Fail func(error)
}

// PerNodeState is the non-replicated part of a file state: fields that
// live only on the node currently holding the file open.
type PerNodeState struct {
	mu sync.Mutex

	FileID       uint64
	DataStatus   DataStatus
	LocalOpLock  OpLock
	BreakStarted time.Time
	FSHandle     any
	PseudoFiles  []string

	deferredMu  sync.Mutex
	deferred    []*DeferredRequest
	maxDeferred int
}

// NewPerNodeState builds an empty PerNodeState for fileID.
func NewPerNodeState(fileID uint64) *PerNodeState {
	return &PerNodeState{
		FileID:      fileID,
		maxDeferred: DefaultDeferredQueueDepth,
	}
}

// SetLocalOpLock records the oplock this node's handle currently holds.
func (p *PerNodeState) SetLocalOpLock(o OpLock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LocalOpLock = o
}

// GetLocalOpLock returns the current local oplock.
func (p *PerNodeState) GetLocalOpLock() OpLock {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.LocalOpLock
}

// Defer appends a deferred request. It fails with DeferFailed once the
// queue is at its bound.
func (p *PerNodeState) Defer(packet []byte, replay func() error, fail func(error)) (*DeferredRequest, error) {
	p.deferredMu.Lock()
	defer p.deferredMu.Unlock()

	if len(p.deferred) >= p.maxDeferred {
		return nil, ncerr.New("PerNodeState.Defer", ncerr.DeferFailed)
	}
	d := &DeferredRequest{
		ID:         uuid.New().String(),
		EnqueuedAt: time.Now(),
		Packet:     packet,
		Replay:     replay,
		Fail:       fail,
	}
	p.deferred = append(p.deferred, d)
	return d, nil
}

// DeferredDepth reports how many requests are currently deferred.
func (p *PerNodeState) DeferredDepth() int {
	p.deferredMu.Lock()
	defer p.deferredMu.Unlock()
	return len(p.deferred)
}

// SetDataStatus records the local data-availability state.
func (p *PerNodeState) SetDataStatus(s DataStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DataStatus = s
}

// GetDataStatus returns the current local data-availability state.
func (p *PerNodeState) GetDataStatus() DataStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DataStatus
}

// RefreshDeferredLeases stamps every currently deferred request with
// now, so a scheduler tick running alongside an in-flight oplock break
// keeps their packet lease alive.
func (p *PerNodeState) RefreshDeferredLeases(now time.Time) {
	p.deferredMu.Lock()
	defer p.deferredMu.Unlock()
	for _, d := range p.deferred {
		d.EnqueuedAt = now
	}
}

// DrainForReplay removes and returns all deferred requests in FIFO
// order, called when BreakComplete is observed.
func (p *PerNodeState) DrainForReplay() []*DeferredRequest {
	p.deferredMu.Lock()
	defer p.deferredMu.Unlock()
	out := p.deferred
	p.deferred = nil
	return out
}

// FailAll resolves every deferred request with err and releases its
// packet buffer, called on break timeout.
func (p *PerNodeState) FailAll(err error) {
	for _, d := range p.DrainForReplay() {
		ReleasePacketBuffer(d.Packet)
		if d.Fail != nil {
			d.Fail(err)
		}
	}
}

// Close discards any remaining local state. A non-empty deferred queue
// at this point is a protocol bug and is logged rather than silently
// dropped; the buffers are still returned to the pool.
func (p *PerNodeState) Close() {
	remaining := p.DrainForReplay()
	if len(remaining) > 0 {
		logger.Error("per-node state finalized with deferred requests still queued", "count", len(remaining), "file_id", p.FileID)
	}
	for _, d := range remaining {
		ReleasePacketBuffer(d.Packet)
	}
}
