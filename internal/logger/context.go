package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for the name service and
// the cluster file-state cache. It is attached to a context.Context with
// WithContext, and the *Ctx logging functions inject its fields.
type LogContext struct {
	NodeID        string    // cluster node identity issuing or handling the call
	Component     string    // "netbios", "filestate", "breaker", "bus", ...
	Path          string    // canonicalized ClusterFileState key, if any
	Opcode        string    // NetBIOS opcode name, if any
	TransactionID uint16    // NetBIOS transaction id, if any
	ClientAddr    string    // peer address (datagram source, or caller node)
	StartTime     time.Time // for duration calculation
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if absent.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext stamped with the current time.
func NewLogContext(component string) *LogContext {
	return &LogContext{Component: component, StartTime: time.Now()}
}

// Clone returns a shallow copy of lc.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithPath returns a copy of lc with Path set.
func (lc *LogContext) WithPath(path string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Path = path
	}
	return clone
}

// WithOpcode returns a copy of lc with Opcode and TransactionID set.
func (lc *LogContext) WithOpcode(opcode string, txn uint16) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Opcode = opcode
		clone.TransactionID = txn
	}
	return clone
}

// DurationMs returns the elapsed time since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
