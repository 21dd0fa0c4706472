package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", RequestID(ctx))
	assert.Equal(t, "", ConversionID(ctx))
	assert.Equal(t, "", ElementID(ctx))
	assert.Equal(t, "", Source(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithConversionID(ctx, "conv-9")
	ctx = WithElementID(ctx, "A")
	ctx = WithSource(ctx, "api")

	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "conv-9", ConversionID(ctx))
	assert.Equal(t, "A", ElementID(ctx))
	assert.Equal(t, "api", Source(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithConversionID(WithRequestID(context.Background(), "req-abc"), "conv-x")
	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "request_id=req-abc")
	assert.Contains(t, output, "conversion_id=conv-x")
	assert.NotContains(t, output, "element_id")
	assert.Contains(t, output, "test message")
}

func TestLogWithEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	LogWith(context.Background(), logger).Info("no context")

	output := buf.String()
	assert.NotContains(t, output, "request_id")
	assert.NotContains(t, output, "conversion_id")
	assert.Contains(t, output, "no context")
}

func TestCorrelationHandler(t *testing.T) {
	tests := []struct {
		name    string
		ctx     context.Context
		want    []string
		notWant []string
	}{
		{
			name: "all ids",
			ctx: WithSource(WithElementID(WithConversionID(WithRequestID(
				context.Background(), "req-auto"), "conv-auto"), "B"), "mcp"),
			want: []string{`"request_id":"req-auto"`, `"conversion_id":"conv-auto"`, `"element_id":"B"`, `"source":"mcp"`},
		},
		{
			name:    "partial",
			ctx:     WithElementID(context.Background(), "only"),
			want:    []string{`"element_id":"only"`},
			notWant: []string{"request_id", "conversion_id", "source"},
		},
		{
			name:    "empty",
			ctx:     context.Background(),
			notWant: []string{"request_id", "conversion_id", "element_id", "source"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))
			logger.InfoContext(tt.ctx, "auto inject")

			output := buf.String()
			assert.Contains(t, output, "auto inject")
			for _, w := range tt.want {
				assert.Contains(t, output, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, output, w)
			}
		})
	}
}

func TestCorrelationHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("component", "store")}).WithGroup("op"))

	logger.InfoContext(WithConversionID(context.Background(), "conv-grp"), "grouped", "key", "val")

	output := buf.String()
	assert.Contains(t, output, `"component":"store"`)
	assert.Contains(t, output, "conv-grp")
	assert.Contains(t, output, "grouped")
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
