package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		avici    string
		fallback string
		expected slog.Level
	}{
		{name: "default", expected: slog.LevelInfo},
		{name: "prefixed debug", avici: "debug", expected: slog.LevelDebug},
		{name: "prefixed wins", avici: "error", fallback: "debug", expected: slog.LevelError},
		{name: "fallback warning", fallback: "WARNING", expected: slog.LevelWarn},
		{name: "invalid", avici: "verbose", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AVICI_LOG_LEVEL", tt.avici)
			t.Setenv("LOG_LEVEL", tt.fallback)

			assert.Equal(t, tt.expected, getLogLevel())
		})
	}
}

func TestTraceHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(&traceHandler{Handler: slog.NewJSONHandler(&buf, nil)}).With("service", "sync")

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "run")

	logger.InfoContext(ctx, "with span")
	span.End()

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, span.SpanContext().TraceID().String(), record["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), record["span_id"])
	assert.Equal(t, "sync", record["service"])

	buf.Reset()
	logger.Info("without span")
	var plain map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &plain))
	_, hasTrace := plain["trace_id"]
	assert.False(t, hasTrace)
}
