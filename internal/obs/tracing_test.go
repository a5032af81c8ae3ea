// Copyright 2025 James Ross
package obs

import (
	"context"
	"testing"

	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaybeInitTracingDisabled(t *testing.T) {
	cfg := &config.Config{}
	tp, err := MaybeInitTracing(cfg)
	require.NoError(t, err)
	assert.Nil(t, tp)
}

func TestMaybeInitTracingEnabledWithoutEndpoint(t *testing.T) {
	cfg := &config.Config{}
	cfg.Observability.Tracing.Enabled = true
	tp, err := MaybeInitTracing(cfg)
	require.NoError(t, err)
	assert.Nil(t, tp)
}

func TestStartCollectionCycleSpan(t *testing.T) {
	ctx, span := StartCollectionCycleSpan(context.Background(), 42, "Magic Kingdom")
	require.NotNil(t, span)
	defer span.End()
	assert.NotNil(t, ctx)
}

func TestStartAggregationJobSpan(t *testing.T) {
	ctx, span := StartAggregationJobSpan(context.Background(), "hourly", "2026-07-31T12:00:00Z")
	require.NotNil(t, span)
	defer span.End()
	assert.NotNil(t, ctx)
}

func TestRecordErrorNoPanic(t *testing.T) {
	ctx := context.Background()
	RecordError(ctx, assert.AnError)
	SetSpanSuccess(ctx)
}

func TestKeyValue(t *testing.T) {
	kv := KeyValue("rides_down", 3)
	assert.Equal(t, "rides_down", string(kv.Key))
}

func TestTracerShutdownNilProvider(t *testing.T) {
	assert.NoError(t, TracerShutdown(context.Background(), nil))
}
