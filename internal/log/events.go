package log

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey struct{}

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored by NewContext, or one wrapping the
// slog default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: ComponentApp}
}

// StructuredLogger emits the recurring events of a run or a request with a
// fixed set of fields.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, requestID, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithRequestID(requestID).
		WithClientIP(clientIP)
	sl.logger.DebugContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs at Warn for 4xx and Error for 5xx.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, requestID string, statusCode int, durationMs int64, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "").
		WithHTTPResponse(statusCode, durationMs).
		WithRequestID(requestID).
		WithClientIP(clientIP)
	sl.logger.Log(ctx, levelForStatus(statusCode), "HTTP request completed", fields.ToSlice()...)
}

// LogDetailFailed records one receipt whose detail could not be stored.
func (sl *StructuredLogger) LogDetailFailed(ctx context.Context, runID, key string, err error) {
	fields := NewFields().
		WithError(err).
		WithOperation(OpDetail)
	fields[FieldRunID] = runID
	fields[FieldReceiptKey] = key
	sl.logger.WarnContext(ctx, "Receipt detail fetch failed", fields.ToSlice()...)
}

// LogFetchCompleted logs at Warn when any detail failed.
func (sl *StructuredLogger) LogFetchCompleted(ctx context.Context, runID, sender string, receipts, failures int) {
	fields := NewFields().
		WithRun(runID, sender).
		WithOperation(OpPersist)
	fields[FieldCount] = receipts
	fields[FieldFailures] = failures

	level := slog.LevelInfo
	if failures > 0 {
		level = slog.LevelWarn
	}
	sl.logger.Log(ctx, level, "Fetch run completed", fields.ToSlice()...)
}

func levelForStatus(code int) slog.Level {
	switch {
	case code >= 500:
		return slog.LevelError
	case code >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
