package logger

import "log/slog"

// Standard field keys, kept consistent across every log statement in the
// module so the cluster's log aggregation can query by them.
const (
	KeyNodeID        = "node_id"
	KeyComponent     = "component"
	KeyPath          = "path"
	KeyOpcode        = "opcode"
	KeyTransactionID = "txn_id"
	KeyClientAddr    = "client_addr"
	KeyDurationMs    = "duration_ms"
	KeyError         = "error"
	KeyErrorCode     = "error_code"
	KeyOpLockType    = "oplock_type"
	KeyOwner         = "owner"
	KeyOffset        = "offset"
	KeyLength        = "length"
	KeyOpenCount     = "open_count"
	KeyShareMode     = "share_mode"
	KeyDeferredDepth = "deferred_depth"
	KeyRetryAttempt  = "retry_attempt"
	KeyHolderNode    = "holder_node"
)

// Err returns a slog.Attr for an error, or a zero Attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Path returns a slog.Attr for a cache key path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// Opcode returns a slog.Attr for a NetBIOS opcode name.
func Opcode(op string) slog.Attr { return slog.String(KeyOpcode, op) }

// TransactionID returns a slog.Attr for a NetBIOS transaction id.
func TransactionID(id uint16) slog.Attr { return slog.Any(KeyTransactionID, id) }

// DurationMs returns a slog.Attr for an elapsed duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }
