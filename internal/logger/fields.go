package logger

import (
	"log/slog"
	"time"
)

// Field keys shared by every package so records can be queried uniformly.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Sweep and invalidation
	KeySweepID      = "sweep_id"
	KeyPolicy       = "policy"
	KeyPhase        = "phase"
	KeyFilesystem   = "fs"
	KeyFilesystemID = "fs_id"
	KeyInodeID      = "inode_id"
	KeyPages        = "pages"
	KeyVisited      = "visited"
	KeyFailures     = "failures"
	KeyFreed        = "freed"
	KeyShrinker     = "shrinker"
	KeyDurationUs   = "duration_us"
	KeyDurationMs   = "duration_ms"

	// Control surface
	KeyComm  = "comm"
	KeyPID   = "pid"
	KeyValue = "value"

	// Coherence
	KeyHook   = "hook"
	KeyScope  = "scope"
	KeyRemote = "remote"

	// Backing stores
	KeyStoreType = "store_type"
	KeyBucket    = "bucket"
	KeyRegion    = "region"
	KeyKey       = "key"
	KeyPath      = "path"

	KeyError     = "error"
	KeyRequestID = "request_id"
	KeyAddress   = "address"
)

// Filesystem returns the fs attribute.
func Filesystem(name string) slog.Attr { return slog.String(KeyFilesystem, name) }

// InodeID returns the inode_id attribute.
func InodeID(id uint64) slog.Attr { return slog.Uint64(KeyInodeID, id) }

// Phase returns the phase attribute.
func Phase(name string) slog.Attr { return slog.String(KeyPhase, name) }

// Policy returns the policy attribute.
func Policy(name string) slog.Attr { return slog.String(KeyPolicy, name) }

// Pages returns the pages attribute.
func Pages(n int) slog.Attr { return slog.Int(KeyPages, n) }

// DurationUs returns a microsecond duration attribute.
func DurationUs(d time.Duration) slog.Attr { return slog.Int64(KeyDurationUs, d.Microseconds()) }

// DurationMs returns a millisecond duration attribute.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// StoreType returns the store_type attribute.
func StoreType(t string) slog.Attr { return slog.String(KeyStoreType, t) }

// Err returns the error attribute. A nil error yields an empty attribute,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
