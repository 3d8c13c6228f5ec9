// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides the OpenTelemetry tracer provider that records
// the spans of database decoding and comparison.
package telemetry

import (
	"context"
	"sync/atomic"

	sdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider owns the tracer provider spans are recorded with.
type Provider struct {
	tp      trace.TracerProvider
	sdk     *sdk.TracerProvider
	stopped atomic.Bool
}

// New returns a new configured Provider. Without an exporter, from
// [WithTraceExporter] or [WithEnv], spans are not recorded.
func New(ctx context.Context, options ...Option) (*Provider, error) {
	c, err := newConfig(ctx, options)
	if err != nil {
		return nil, err
	}

	if c.exporter == nil {
		c.Logger().Debug("no trace exporter configured, tracing disabled")
		return &Provider{tp: noop.NewTracerProvider()}, nil
	}

	tp := sdk.NewTracerProvider(
		sdk.WithSampler(sdk.AlwaysSample()),
		sdk.WithResource(c.resource()),
		sdk.WithBatcher(c.exporter),
	)
	return &Provider{tp: tp, sdk: tp}, nil
}

// TracerProvider returns the provider to pass to hpcdb.WithTracerProvider.
func (p *Provider) TracerProvider() trace.TracerProvider { return p.tp }

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool { return p.sdk != nil }

// Shutdown flushes and shuts down the Provider. It is a no-op after the
// first call.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.stopped.Swap(true) || p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}
