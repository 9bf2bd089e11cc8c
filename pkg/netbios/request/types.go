// Package request implements the outgoing NetBIOS request FIFO and its
// retry engine: add/delete/refresh registrations awaiting a wire-level
// reply, matched back to their caller by transaction id.
package request

import (
	"sync"
	"time"

	"github.com/nbcluster/nbcluster/pkg/netbios"
)

// Kind is the outgoing request's operation.
type Kind int

const (
	KindAdd Kind = iota
	KindDelete
	KindRefresh
)

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindDelete:
		return "delete"
	case KindRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Default retry parameters, RFC1001 B-node timings.
const (
	DefaultAddRefreshInterval = 2 * time.Second
	DefaultDeleteInterval     = 200 * time.Millisecond
	WINSInterval              = 250 * time.Millisecond
	DefaultBroadcastRetries   = 5
	DefaultWINSRetries        = 3
)

// Request is an outgoing NetBIOSRequest awaiting network confirmation.
type Request struct {
	Kind          Kind
	Name          netbios.NetBIOSName
	TransactionID uint16
	RetryCount    int
	MaxRetries    int
	RetryInterval time.Duration
	Error         bool

	// Done is closed when the request reaches a terminal state (success,
	// fatal error, or retries exhausted).
	Done chan struct{}
	// Positive is valid only after Done is closed.
	Positive bool

	doneOnce sync.Once
}

// complete marks the request terminal exactly once; the engine's own
// retry-exhaustion path and a Complete driven by the receive loop can
// race, and only the first outcome counts. Returns whether this call
// won.
func (r *Request) complete(positive bool) bool {
	won := false
	r.doneOnce.Do(func() {
		r.Positive = positive
		close(r.Done)
		won = true
	})
	return won
}

// NewRequest builds a Request ready to be enqueued.
func NewRequest(kind Kind, name netbios.NetBIOSName, txn uint16) *Request {
	return &Request{
		Kind:          kind,
		Name:          name,
		TransactionID: txn,
		Done:          make(chan struct{}),
	}
}

func (r *Request) intervalFor(usingWINS bool) time.Duration {
	switch {
	case r.Kind == KindDelete:
		return DefaultDeleteInterval
	case usingWINS:
		return WINSInterval
	default:
		return DefaultAddRefreshInterval
	}
}
