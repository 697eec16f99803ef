package logger

import "context"

// contextRO is the subset of context.Context the ...Ctx helpers need; it
// lets logger.go's signatures avoid importing context directly while keeping callers passing an ordinary context.Context.
type contextRO = context.Context

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped fields correlated across a frame's
// lifetime: which worker accepted the connection, which connection and
// trace id the frame carries, and which URI is being dispatched.
type LogContext struct {
	WorkerID int
	ConnID   uint64
	TraceID  string
	URI      uint32
}

func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

func (lc *LogContext) WithURI(uri uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.URI = uri
	}
	return clone
}

func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}
	ctxArgs := make([]any, 0, 8+len(args))
	if lc.WorkerID != 0 {
		ctxArgs = append(ctxArgs, "worker_id", lc.WorkerID)
	}
	if lc.ConnID != 0 {
		ctxArgs = append(ctxArgs, "conn_id", lc.ConnID)
	}
	if lc.TraceID != "" {
		ctxArgs = append(ctxArgs, "trace_id", lc.TraceID)
	}
	if lc.URI != 0 {
		ctxArgs = append(ctxArgs, "uri", lc.URI)
	}
	return append(ctxArgs, args...)
}
