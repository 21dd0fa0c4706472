package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	conversionIDKey
	elementIDKey
	sourceKey
)

// correlationAttrs lists the context keys copied onto log records, in output order.
var correlationAttrs = []struct {
	key  ctxKey
	name string
}{
	{requestIDKey, "request_id"},
	{conversionIDKey, "conversion_id"},
	{elementIDKey, "element_id"},
	{sourceKey, "source"},
}

// WithRequestID returns a context with the HTTP or MCP request ID set.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithConversionID returns a context with the diagram conversion ID set.
func WithConversionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversionIDKey, id)
}

// WithElementID returns a context with the canvas element ID set.
func WithElementID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, elementIDKey, id)
}

// WithSource returns a context tagged with the origin of a change (api, mcp, ...).
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

// RequestID extracts the request ID from the context, or "" if absent.
func RequestID(ctx context.Context) string { return stringValue(ctx, requestIDKey) }

// ConversionID extracts the conversion ID from the context, or "" if absent.
func ConversionID(ctx context.Context) string { return stringValue(ctx, conversionIDKey) }

// ElementID extracts the element ID from the context, or "" if absent.
func ElementID(ctx context.Context) string { return stringValue(ctx, elementIDKey) }

// Source extracts the change source from the context, or "" if absent.
func Source(ctx context.Context) string { return stringValue(ctx, sourceKey) }

func stringValue(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

func attrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	for _, a := range correlationAttrs {
		if v := stringValue(ctx, a.key); v != "" {
			out = append(out, slog.String(a.name, v))
		}
	}
	return out
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
