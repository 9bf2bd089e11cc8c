// Package ncerr provides the error kinds shared across the NetBIOS name
// service and the clustered file-state cache. This is a leaf package with no
// internal dependencies so that both pkg/netbios and pkg/filestate can depend
// on it without a cycle.
//
// Import graph: ncerr <- netbios, ncerr <- filestate
package ncerr

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure, independent of the protocol layer
// that eventually translates it into a wire-level status.
type Code int

const (
	// MalformedPacket indicates a NetBIOS datagram could not be decoded.
	MalformedPacket Code = iota + 1

	// SocketClosed indicates the operation was aborted by shutdown.
	SocketClosed

	// NameNotOwned indicates an operation referenced a name this node does
	// not own (e.g. Delete/Refresh on an unregistered name).
	NameNotOwned

	// NameRegistrationFailed indicates a WINS server returned a negative
	// RegisterResponse.
	NameRegistrationFailed

	// ShareConflict indicates GrantFileAccess found an incompatible sharing
	// mode already in effect.
	ShareConflict

	// AccessDenied indicates an oplock break timed out or access was
	// otherwise refused.
	AccessDenied

	// DeferFailed indicates the deferred-request queue was full.
	DeferFailed

	// BreakTimeout indicates an oplock break was not acknowledged in time.
	BreakTimeout

	// OplockExists indicates AddOpLock found a conflicting owner already
	// holding the oplock.
	OplockExists

	// InvalidOplockTransition indicates ChangeOpLockType was asked for a
	// transition not on the allowed list.
	InvalidOplockTransition

	// LockConflict indicates AddFileByteLock found an overlapping range
	// held by a different owner.
	LockConflict

	// LockNotHeld indicates RemoveFileByteLock found no matching lock.
	LockNotHeld

	// RemoteTaskTimeout indicates a remote task's Executor.Submit did not
	// return within the configured deadline.
	RemoteTaskTimeout

	// StateNotFound indicates an operation targeted a path with no
	// ClusterFileState and create-on-demand was not requested.
	StateNotFound

	// DataUpdateInProgress indicates FileDataUpdate start/end was asked to
	// move a data-update lock it does not hold, or begin one already held
	// by a different node.
	DataUpdateInProgress

	// RefreshIOError indicates a WINS RefreshName received a negative
	// response or failed to send; the name is dropped rather than
	// retried.
	RefreshIOError
)

// String returns the error kind's name, used both in error messages and in
// metrics labels.
func (c Code) String() string {
	switch c {
	case MalformedPacket:
		return "MalformedPacket"
	case SocketClosed:
		return "SocketClosed"
	case NameNotOwned:
		return "NameNotOwned"
	case NameRegistrationFailed:
		return "NameRegistrationFailed"
	case ShareConflict:
		return "ShareConflict"
	case AccessDenied:
		return "AccessDenied"
	case DeferFailed:
		return "DeferFailed"
	case BreakTimeout:
		return "BreakTimeout"
	case OplockExists:
		return "OplockExists"
	case InvalidOplockTransition:
		return "InvalidOplockTransition"
	case LockConflict:
		return "LockConflict"
	case LockNotHeld:
		return "LockNotHeld"
	case RemoteTaskTimeout:
		return "RemoteTaskTimeout"
	case StateNotFound:
		return "StateNotFound"
	case DataUpdateInProgress:
		return "DataUpdateInProgress"
	case RefreshIOError:
		return "RefreshIOError"
	default:
		return "Unknown"
	}
}

// Error wraps a Code with the operation that failed and an optional
// underlying cause.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(op string, code Code) error {
	return &Error{Op: op, Code: code}
}

// Wrap builds an *Error that wraps an underlying cause.
func Wrap(op string, code Code, err error) error {
	if err == nil {
		return New(op, code)
	}
	return &Error{Op: op, Code: code, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the Code carried by err, if any.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}
