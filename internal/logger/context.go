package logger

import (
	"context"
	"time"
)

type contextKey struct{}

// LogContext carries fields that every record emitted during one operation
// (an API request, a sweep) should share.
type LogContext struct {
	TraceID    string
	SpanID     string
	SweepID    string
	Filesystem string
	Policy     string
	StartTime  time.Time
}

// WithContext attaches lc to ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext returns the LogContext stored in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// NewLogContext starts a LogContext timed from now.
func NewLogContext() *LogContext {
	return &LogContext{StartTime: time.Now()}
}

// Clone returns a shallow copy. Cloning nil yields nil.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithSweep returns a copy tagged with a sweep invocation.
func (lc *LogContext) WithSweep(id, policy string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.SweepID = id
		c.Policy = policy
	}
	return c
}

// WithFilesystem returns a copy tagged with a filesystem name.
func (lc *LogContext) WithFilesystem(name string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Filesystem = name
	}
	return c
}

// WithTrace returns a copy carrying trace identifiers.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
		c.SpanID = spanID
	}
	return c
}

// DurationMs returns milliseconds since StartTime, or 0 when unset.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}
