package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/becomeliminal/nim-memory/log"
)

func TestFromZap_WritesTaggedMessages(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := log.FromZap(zap.New(core))
	ctx := context.Background()

	l.Infof(ctx, "[WORKING] session %s created", "s1")
	l.With("user_id", "u1").Warn(ctx, "[LTM] fallback")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "[WORKING] session s1 created", entries[0].Message)
		assert.Equal(t, "[LTM] fallback", entries[1].Message)
		assert.Equal(t, "u1", entries[1].ContextMap()["user_id"])
	}
}

func TestSpanIDsAreAttached(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := log.FromZap(zap.New(core))

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.Infof(ctx, "[ENGINE] processed")
	l.Info(context.Background(), "[ENGINE] untraced")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, traceID.String(), entries[0].ContextMap()["trace_id"])
	assert.Equal(t, spanID.String(), entries[0].ContextMap()["span_id"])
	assert.NotContains(t, entries[1].ContextMap(), "trace_id")
}

func TestNewNop_DoesNotPanic(t *testing.T) {
	l := log.NewNop()
	l.Debugf(context.Background(), "value %d", 1)
	l.Error(context.Background(), "ignored")
	log.Sync(l)
}

func TestInit_UnknownLevelFallsBack(t *testing.T) {
	l := log.Init(log.ZapConfig{Level: "loud", Mode: log.ModeProduction, Encoding: log.EncodingJSON})
	assert.NotNil(t, l)
}
