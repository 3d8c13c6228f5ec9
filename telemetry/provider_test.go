// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestProviderDisabled(t *testing.T) {
	p, err := New(context.Background())
	require.NoError(t, err)
	assert.False(t, p.Enabled())

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "span")
	assert.False(t, span.IsRecording())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProviderExports(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p, err := New(
		context.Background(),
		WithTraceExporter(exp),
		WithServiceName("test"),
		WithResourceAttributes(attribute.String("hpcdb.dir", "/tmp/db")),
	)
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "Open")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()), "second shutdown")

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "Open", spans[0].Name)

	attrs := spans[0].Resource.Attributes()
	assert.Contains(t, attrs, semconv.ServiceName("test"))
	assert.Contains(t, attrs, attribute.String("hpcdb.dir", "/tmp/db"))
	assert.Contains(t, attrs, semconv.TelemetryDistroNameKey.String("hpcdb"))
}

func mockEnv(t *testing.T, env map[string]string) {
	t.Helper()
	origLookup, origGet := lookupEnv, getEnv
	lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	getEnv = func(key string) string { return env[key] }
	t.Cleanup(func() { lookupEnv, getEnv = origLookup, origGet })
}

func mockExporters(t *testing.T, auto, otlp error) *[]string {
	t.Helper()
	var called []string
	origAuto, origOTLP := newAutoExporter, newOTLPExporter
	newAutoExporter = func(context.Context) (sdk.SpanExporter, error) {
		called = append(called, "auto")
		return tracetest.NewInMemoryExporter(), auto
	}
	newOTLPExporter = func(context.Context) (sdk.SpanExporter, error) {
		called = append(called, "otlp")
		return tracetest.NewInMemoryExporter(), otlp
	}
	t.Cleanup(func() { newAutoExporter, newOTLPExporter = origAuto, origOTLP })
	return &called
}

func TestWithEnv(t *testing.T) {
	ctx := context.Background()

	t.Run("Unset", func(t *testing.T) {
		mockEnv(t, nil)
		called := mockExporters(t, nil, nil)
		c, err := newConfig(ctx, []Option{WithEnv()})
		require.NoError(t, err)
		assert.Nil(t, c.exporter)
		assert.Empty(t, *called)
	})

	t.Run("TracesExporter", func(t *testing.T) {
		mockEnv(t, map[string]string{
			envTracesExportersKey: "console",
			envEndpointKey:        "http://localhost:4318",
		})
		called := mockExporters(t, nil, nil)
		c, err := newConfig(ctx, []Option{WithEnv()})
		require.NoError(t, err)
		assert.NotNil(t, c.exporter)
		assert.Equal(t, []string{"auto"}, *called)
	})

	t.Run("Endpoint", func(t *testing.T) {
		mockEnv(t, map[string]string{envEndpointKey: "http://localhost:4318"})
		called := mockExporters(t, nil, errors.New("bad endpoint"))
		_, err := newConfig(ctx, []Option{WithEnv()})
		assert.ErrorContains(t, err, "otlp exporter: bad endpoint")
		assert.Equal(t, []string{"otlp"}, *called)
	})

	t.Run("Resource", func(t *testing.T) {
		mockEnv(t, map[string]string{
			envResourceAttrKey: "a=b, c = d,broken",
			envServiceNameKey:  "svc",
		})
		mockExporters(t, nil, nil)
		c, err := newConfig(ctx, []Option{WithEnv()})
		require.NoError(t, err)
		assert.Equal(t, []attribute.KeyValue{
			semconv.ServiceName(defaultServiceName()),
			attribute.String("a", "b"),
			attribute.String("c", "d"),
			semconv.ServiceName("svc"),
		}, c.resAttrs)
	})
}
