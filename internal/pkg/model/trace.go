// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package model

import "github.com/hpctoolkit/hpcdb/internal/pkg/sparse"

// TraceDB is the content of trace.db.
type TraceDB struct {
	MinTimestamp uint64
	MaxTimestamp uint64
	Traces       []*ContextTrace
}

func (*TraceDB) Kind() Kind { return KindTraceDB }
func (*TraceDB) object() {}

func (t *TraceDB) Fields() []Field {
	return []Field{
		{Name: "minTimestamp", Role: RoleAttr, Value: t.MinTimestamp},
		{Name: "maxTimestamp", Role: RoleAttr, Value: t.MaxTimestamp},
		{Name: "traces", Role: RoleOwned, Value: objects(t.Traces)},
	}
}

// ContextTrace is the timeline of calling contexts of one Profile.
type ContextTrace struct {
	ProfIndex uint32
	Timeline  *sparse.Timeline
}

func (*ContextTrace) Kind() Kind { return KindContextTrace }
func (*ContextTrace) object() {}

func (t *ContextTrace) Fields() []Field {
	return []Field{
		{Name: "profIndex", Role: RoleInfo, Value: t.ProfIndex},
		{Name: "samples", Role: RoleValues, Value: t.Timeline},
	}
}

// ContextResolver resolves context ids to calling contexts.
type ContextResolver interface {
	Context(id uint32) (CallingContext, bool)
}

// Samples reads the samples of t. If r is not nil the context of every
// sample is resolved through it, samples with an unknown context id are left
// unresolved.
func (t *ContextTrace) Samples(r ContextResolver) ([]*TraceSample, error) {
	raw, err := t.Timeline.Samples()
	if err != nil {
		return nil, err
	}
	out := make([]*TraceSample, len(raw))
	for i, s := range raw {
		ts := &TraceSample{Timestamp: s.Timestamp, CtxID: s.CtxID}
		if r != nil {
			if c, ok := r.Context(s.CtxID); ok {
				ts.Context = c
			}
		}
		out[i] = ts
	}
	return out, nil
}

// TraceSample is a single sample of a ContextTrace.
type TraceSample struct {
	Timestamp uint64
	CtxID     uint32
	// Context is the resolved calling context, nil if unresolved.
	Context CallingContext
}

func (*TraceSample) Kind() Kind { return KindTraceSample }
func (*TraceSample) object() {}

func (s *TraceSample) Fields() []Field {
	return []Field{
		{Name: "timestamp", Role: RoleAttr, Value: s.Timestamp},
		{Name: "ctxId", Role: RoleInfo, Value: s.CtxID},
		{Name: "context", Role: RoleAttr, Value: Object(s.Context)},
	}
}
