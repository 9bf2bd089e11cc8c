// Package filestate implements the clustered file-state cache: the
// per-path ClusterFileState replicated across the cluster map, the
// per-node PerNodeState that never leaves the node that opened the
// file, the remote task set that mutates state under the map's
// per-key lock, the oplock break coordinator, and the cluster message
// bus handler that applies asynchronous events to local mirrors.
package filestate

import "time"

// FileStatus is the lifecycle state of the path a ClusterFileState
// describes.
type FileStatus int

const (
	StatusNotExist FileStatus = iota
	StatusFileExists
	StatusDirectoryExists
	StatusRenamed
)

func (s FileStatus) String() string {
	switch s {
	case StatusNotExist:
		return "NotExist"
	case StatusFileExists:
		return "FileExists"
	case StatusDirectoryExists:
		return "DirectoryExists"
	case StatusRenamed:
		return "Renamed"
	default:
		return "Unknown"
	}
}

// OpLockType is the strength of an opportunistic lock, weakest first.
type OpLockType int

const (
	OpLockTypeNone OpLockType = iota
	OpLockTypeLevelII
	OpLockTypeExclusive
	OpLockTypeBatch
)

func (t OpLockType) String() string {
	switch t {
	case OpLockTypeNone:
		return "None"
	case OpLockTypeLevelII:
		return "Level-II"
	case OpLockTypeExclusive:
		return "Exclusive"
	case OpLockTypeBatch:
		return "Batch"
	default:
		return "Unknown"
	}
}

// OpLockOwner is the session+tree+file id tuple that identifies the
// handle holding an oplock.
type OpLockOwner struct {
	SessionID string
	TreeID    string
	FileID    uint64
}

// OpLockKind selects the OpLock variant. None carries no other
// fields; Local means the owning handle lives on this node; Remote
// means it lives on OwningNode and this record carries no callable
// handle, only the descriptor.
type OpLockKind int

const (
	OpLockNone OpLockKind = iota
	OpLockLocal
	OpLockRemote
)

// OpLock is a tagged union: Kind selects which of the remaining fields
// are meaningful. A zero-value OpLock is OpLockNone.
type OpLock struct {
	Kind       OpLockKind
	Type       OpLockType
	Owner      OpLockOwner
	OwningNode string
	GrantedAt  time.Time
}

func (o OpLock) IsNone() bool { return o.Kind == OpLockNone || o.Type == OpLockTypeNone }

// LockOwner is the (process id, session) pair that owns a byte-range
// lock.
type LockOwner struct {
	PID       uint32
	SessionID string
}

func (a LockOwner) Equal(b LockOwner) bool {
	return a.PID == b.PID && a.SessionID == b.SessionID
}

// ByteLock is a half-open [Offset, Offset+Length) range owned by a
// (pid, session) pair.
type ByteLock struct {
	Owner     LockOwner
	Offset    uint64
	Length    uint64
	Exclusive bool
}

func (l ByteLock) End() uint64 { return l.Offset + l.Length }

// Overlaps reports whether l and other's ranges intersect.
func (l ByteLock) Overlaps(other ByteLock) bool {
	return l.Offset < other.End() && other.Offset < l.End()
}

// AppliedSeqKey identifies one at-least-once dedup slot: an owner
// paired with the kind of operation it last ran. The cluster executor
// may redeliver a task, so tasks that are not naturally idempotent
// carry a client sequence keyed here.
type AppliedSeqKey struct {
	Owner  OpLockOwner
	OpKind string
}

// AppliedSeqEntry is the cached outcome of the last ClientSeq applied
// for a given AppliedSeqKey, returned verbatim if that ClientSeq is
// replayed instead of re-running the mutation.
type AppliedSeqEntry struct {
	Seq    uint64
	Result any
	Err    error
}

// PendingUpdate is a bitset recording which ClusterFileState fields a
// remote task changed, so the facade knows which change notifications
// to emit without diffing the whole record.
type PendingUpdate uint16

const (
	UpdateOpenCount PendingUpdate = 1 << iota
	UpdateSharingMode
	UpdateOpLock
	UpdateLocks
	UpdateStatus
	UpdateDataUpdate
	UpdateSize
	UpdateDates
)

func (p PendingUpdate) Has(bit PendingUpdate) bool { return p&bit != 0 }

// ClusterFileState is the shared, replicated part of a per-path file
// state. Mutations happen only inside a remote task (pkg/filestate's
// task functions) running under the cluster map's per-key lock;
// nothing else may write to it directly.
type ClusterFileState struct {
	Path string

	OpenCount    int
	AccessMode   AccessMask
	SharingMode  ShareMask
	Status       FileStatus
	ChangeDate   time.Time
	ModifyDate   time.Time
	FileSize     uint64
	AllocSize    uint64

	OpLock          OpLock
	BreakPending    bool
	BreakToType     OpLockType
	RetentionExpiry time.Time

	Locks []ByteLock

	DataUpdateNode string

	Pending PendingUpdate

	// AppliedSeqs dedups at-least-once redelivery of remote tasks.
	// Populated lazily by applySeq.
	AppliedSeqs map[AppliedSeqKey]AppliedSeqEntry
}

// applySeq is the idempotence guard TaskGrantFileAccess and
// TaskReleaseFileAccess run through (the other tasks do not use it):
// if clientSeq is nonzero and not greater than
// the last sequence recorded for key, the cached reply is returned
// without invoking run again. A clientSeq of zero always runs (callers
// that don't track sequence numbers opt out of dedup entirely).
func applySeq(s *ClusterFileState, key AppliedSeqKey, clientSeq uint64, run func() (any, error)) (any, error) {
	if clientSeq == 0 {
		return run()
	}
	if s.AppliedSeqs == nil {
		s.AppliedSeqs = make(map[AppliedSeqKey]AppliedSeqEntry)
	}
	if prev, ok := s.AppliedSeqs[key]; ok && clientSeq <= prev.Seq {
		return prev.Result, prev.Err
	}
	result, err := run()
	s.AppliedSeqs[key] = AppliedSeqEntry{Seq: clientSeq, Result: result, Err: err}
	return result, err
}

// IsEmpty reports whether the state has nothing left to track: no
// opens, no oplock, no data update in progress. The facade's remove
// only succeeds against an empty state.
func (s *ClusterFileState) IsEmpty() bool {
	return s.OpenCount == 0 && s.OpLock.IsNone() && s.DataUpdateNode == ""
}

// Clone returns a deep-enough copy for safe hand-off out of the
// per-key lock (the Locks slice is copied; nothing in it is mutated
// in place after creation).
func (s *ClusterFileState) Clone() *ClusterFileState {
	cp := *s
	cp.Locks = append([]ByteLock(nil), s.Locks...)
	if s.AppliedSeqs != nil {
		cp.AppliedSeqs = make(map[AppliedSeqKey]AppliedSeqEntry, len(s.AppliedSeqs))
		for k, v := range s.AppliedSeqs {
			cp.AppliedSeqs[k] = v
		}
	}
	return &cp
}
