package filestate

import "github.com/nbcluster/nbcluster/pkg/ncerr"

// AccessToken is returned by a successful GrantFileAccess; it is the
// capability a caller presents back to ReleaseFileAccess.
type AccessToken struct {
	Path          string
	OwnerNode     string
	GrantSequence uint64
	Owner         OpLockOwner

	// ClientSeq, when nonzero, lets TaskReleaseFileAccess dedup a
	// redelivered release request.
	ClientSeq uint64
}

// GrantResult is GrantFileAccess's reply: either a Token on success, or
// BreakInProgress naming the node to wait on. BreakRequested is set
// whenever the grant recorded a pending break, including the Level-II
// case where the open is admitted anyway and the break to None runs
// asynchronously; BreakToType is the level the holder must come down to.
type GrantResult struct {
	Token           *AccessToken
	BreakInProgress bool
	BreakRequested  bool
	BreakToType     OpLockType
	HolderNode      string
}

// ReleaseResult is ReleaseFileAccess's reply.
type ReleaseResult struct {
	Remaining      int
	ReleasedOpLock bool
}

// The functions below are the remote task set: pure mutators
// over a ClusterFileState loaded from the cluster map, run under its
// per-key lock by the cluster executor. Each sets the pending-update
// bits for the fields it actually changed.

// TaskAddOpLock fails if an oplock with a different owner is already
// present; it is a no-op success if the owner matches (upgrades only
// happen through TaskChangeOpLockType).
func TaskAddOpLock(s *ClusterFileState, newLock OpLock) (any, error) {
	if !s.OpLock.IsNone() {
		if s.OpLock.Owner != newLock.Owner {
			return false, ncerr.New("filestate.AddOpLock", ncerr.OplockExists)
		}
		return true, nil
	}
	s.OpLock = newLock
	s.Pending |= UpdateOpLock
	return true, nil
}

// TaskRemoveOplockOwner clears the oplock record if owner currently
// holds it; otherwise it is a no-op.
func TaskRemoveOplockOwner(s *ClusterFileState, owner OpLockOwner) (any, error) {
	if s.OpLock.Owner == owner {
		s.OpLock = OpLock{}
		s.Pending |= UpdateOpLock
	}
	return true, nil
}

// TaskRemoveOpLock unconditionally clears the oplock record.
func TaskRemoveOpLock(s *ClusterFileState) (any, error) {
	s.OpLock = OpLock{}
	s.BreakPending = false
	s.Pending |= UpdateOpLock
	return true, nil
}

// TaskChangeOpLockType applies one of the allowed transitions:
// Batch->Level-II, Exclusive->Level-II, Level-II->None, any->None.
func TaskChangeOpLockType(s *ClusterFileState, newType OpLockType) (any, error) {
	cur := s.OpLock.Type
	valid := newType == OpLockTypeNone ||
		(cur == OpLockTypeBatch && newType == OpLockTypeLevelII) ||
		(cur == OpLockTypeExclusive && newType == OpLockTypeLevelII) ||
		(cur == OpLockTypeLevelII && newType == OpLockTypeNone)
	if !valid {
		return nil, ncerr.New("filestate.ChangeOpLockType", ncerr.InvalidOplockTransition)
	}
	if newType == OpLockTypeNone {
		s.OpLock = OpLock{}
	} else {
		s.OpLock.Type = newType
	}
	// Any accepted transition satisfies an in-flight break.
	s.BreakPending = false
	s.Pending |= UpdateOpLock
	return true, nil
}

// TaskGrantFileAccess is the central admission-control check for a
// new open: sharing-mode compatibility first, then oplock conflict.
func TaskGrantFileAccess(s *ClusterFileState, path, ownerNode string, params OpenParams, seq uint64) (any, error) {
	return applySeq(s, AppliedSeqKey{Owner: params.Owner, OpKind: "GrantFileAccess"}, params.ClientSeq, func() (any, error) {
		if s.OpenCount > 0 && !Compatible(s.AccessMode, s.SharingMode, params.Access, params.ShareAllow) {
			return GrantResult{}, ncerr.New("filestate.GrantFileAccess", ncerr.ShareConflict)
		}

		// A write against a foreign Exclusive/Batch oplock blocks until the
		// holder downgrades to Level-II. A foreign Level-II oplock only
		// caches reads, so the open is admitted immediately and the break
		// to None runs asynchronously (this is what lets a grant retried
		// after a Batch->Level-II downgrade go through).
		breakRequested := false
		if params.Access.RequiresWrite() && !s.OpLock.IsNone() && s.OpLock.Owner != params.Owner {
			s.BreakPending = true
			s.Pending |= UpdateOpLock
			breakRequested = true
			if s.OpLock.Type == OpLockTypeBatch || s.OpLock.Type == OpLockTypeExclusive {
				s.BreakToType = OpLockTypeLevelII
				return GrantResult{
					BreakInProgress: true,
					BreakRequested:  true,
					BreakToType:     OpLockTypeLevelII,
					HolderNode:      s.OpLock.OwningNode,
				}, nil
			}
			s.BreakToType = OpLockTypeNone
		}

		s.OpenCount++
		s.AccessMode = Union(s.AccessMode, params.Access)
		if s.OpenCount == 1 {
			s.SharingMode = params.ShareAllow
		} else {
			s.SharingMode = Narrow(s.SharingMode, params.ShareAllow)
		}
		if s.Status == StatusNotExist {
			s.Status = StatusFileExists
		}
		s.Pending |= UpdateOpenCount | UpdateSharingMode | UpdateStatus

		token := &AccessToken{Path: path, OwnerNode: ownerNode, GrantSequence: seq, Owner: params.Owner, ClientSeq: params.ClientSeq}
		result := GrantResult{Token: token}
		if breakRequested {
			result.BreakRequested = true
			result.BreakToType = OpLockTypeNone
			result.HolderNode = s.OpLock.OwningNode
		}
		return result, nil
	})
}

// TaskReleaseFileAccess decrements the open count, clearing the
// sharing mode once it reaches zero and the oplock if token's owner
// held it.
func TaskReleaseFileAccess(s *ClusterFileState, token AccessToken) (any, error) {
	return applySeq(s, AppliedSeqKey{Owner: token.Owner, OpKind: "ReleaseFileAccess"}, token.ClientSeq, func() (any, error) {
		if s.OpenCount <= 0 {
			return nil, ncerr.New("filestate.ReleaseFileAccess", ncerr.StateNotFound)
		}
		s.OpenCount--
		s.Pending |= UpdateOpenCount

		if s.OpenCount == 0 {
			s.SharingMode = 0
			s.AccessMode = 0
			s.Pending |= UpdateSharingMode
		}

		releasedOpLock := false
		if !s.OpLock.IsNone() && s.OpLock.Owner == token.Owner {
			s.OpLock = OpLock{}
			s.BreakPending = false
			s.Pending |= UpdateOpLock
			releasedOpLock = true
		}

		return ReleaseResult{Remaining: s.OpenCount, ReleasedOpLock: releasedOpLock}, nil
	})
}

// TaskAddFileByteLock rejects a range overlapping any lock from a
// different owner, and rejects re-entrant overlaps from the same
// owner.
func TaskAddFileByteLock(s *ClusterFileState, lock ByteLock) (any, error) {
	for _, existing := range s.Locks {
		if existing.Overlaps(lock) {
			return nil, ncerr.New("filestate.AddFileByteLock", ncerr.LockConflict)
		}
	}
	s.Locks = append(s.Locks, lock)
	s.Pending |= UpdateLocks
	return true, nil
}

// TaskRemoveFileByteLock removes by exact range and owner match.
func TaskRemoveFileByteLock(s *ClusterFileState, lock ByteLock) (any, error) {
	for i, existing := range s.Locks {
		if existing.Owner.Equal(lock.Owner) && existing.Offset == lock.Offset && existing.Length == lock.Length {
			s.Locks = append(s.Locks[:i], s.Locks[i+1:]...)
			s.Pending |= UpdateLocks
			return true, nil
		}
	}
	return nil, ncerr.New("filestate.RemoveFileByteLock", ncerr.LockNotHeld)
}

// TaskCheckFileByteLockAccess reports whether probe may proceed: all
// locks conflict with a write; only exclusive locks conflict with a
// read. It does not mutate s.
func TaskCheckFileByteLockAccess(s *ClusterFileState, probe ByteLock, forWrite bool) (any, error) {
	for _, existing := range s.Locks {
		if existing.Owner.Equal(probe.Owner) || !existing.Overlaps(probe) {
			continue
		}
		if forWrite || existing.Exclusive {
			return false, nil
		}
	}
	return true, nil
}

// TaskUpdateState sets the FileStatus, used for delete/create
// notifications.
func TaskUpdateState(s *ClusterFileState, newStatus FileStatus) (any, error) {
	s.Status = newStatus
	s.Pending |= UpdateStatus
	return true, nil
}

// TaskFileDataUpdate starts or ends a data-update lock held by nodeID.
func TaskFileDataUpdate(s *ClusterFileState, nodeID string, start bool) (any, error) {
	if start {
		if s.DataUpdateNode != "" && s.DataUpdateNode != nodeID {
			return nil, ncerr.New("filestate.FileDataUpdate", ncerr.DataUpdateInProgress)
		}
		s.DataUpdateNode = nodeID
	} else {
		if s.DataUpdateNode != nodeID {
			return nil, ncerr.New("filestate.FileDataUpdate", ncerr.DataUpdateInProgress)
		}
		s.DataUpdateNode = ""
	}
	s.Pending |= UpdateDataUpdate
	return true, nil
}

// TaskRenameState marks s as renamed. The key relocation itself is
// performed by the facade via the cluster map's atomic move primitive,
// since it spans two keys and therefore two per-key locks; this task
// only updates the record's own status once it lands under the new
// key.
func TaskRenameState(s *ClusterFileState, newPath string) (any, error) {
	s.Path = newPath
	s.Status = StatusRenamed
	s.Pending |= UpdateStatus
	return true, nil
}
