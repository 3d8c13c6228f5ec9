// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package dbtest

import (
	"encoding/binary"
	"errors"
	"slices"

	"github.com/hpctoolkit/hpcdb/internal/pkg/cctdb"
	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
	"github.com/hpctoolkit/hpcdb/internal/pkg/profiledb"
	"github.com/hpctoolkit/hpcdb/internal/pkg/sparse"
	"github.com/hpctoolkit/hpcdb/internal/pkg/tracedb"
)

// Identifier is one level of a profile identifier tuple.
type Identifier struct {
	Kind     uint8
	Logical  uint32
	Physical uint64
	// HasPhysical sets the physical flag of the identifier.
	HasPhysical bool
}

// Values maps a column key to {row key → value}.
type Values map[uint32]map[uint32]float64

// Profile is the profile.db content of one profile. The index of a Profile
// in the slice passed to EncodeProfiles is its profile index.
type Profile struct {
	Summary bool
	Tuple   []Identifier
	// Values maps context id to {metric id → value}.
	Values Values
}

// EncodeProfiles returns the profile.db encoding of profiles.
func EncodeProfiles(profiles []Profile, opts Options) []byte {
	b := newBuilder(format.KindProfile, profiledb.SectionTable, opts)

	sec := b.record(profiledb.ProfileInfos)
	base, st := b.array(profiledb.ProfileInfo, len(profiles))
	b.put(sec, profiledb.ProfileInfos, "pProfiles", base)
	b.put(sec, profiledb.ProfileInfos, "nProfiles", uint64(len(profiles)))
	b.put(sec, profiledb.ProfileInfos, "szProfile", st)
	b.section(profiledb.SectionTable, profiledb.SecProfileInfos, sec)

	tuples := b.reserve(0)
	for i, p := range profiles {
		if p.Summary {
			continue
		}
		off := b.reserve(profiledb.IdTupleHeaderSize + uint64(len(p.Tuple))*profiledb.IdentifierSize)
		b.put(off, profiledb.IdTuple, "nIds", uint64(len(p.Tuple)))
		for j, id := range p.Tuple {
			idOff := off + profiledb.IdTupleHeaderSize + uint64(j)*profiledb.IdentifierSize
			b.put(idOff, profiledb.Identifier, "kind", uint64(id.Kind))
			b.put(idOff, profiledb.Identifier, "logicalId", uint64(id.Logical))
			if id.HasPhysical {
				b.put(idOff, profiledb.Identifier, "flags", uint64(model.IdentifierPhysical))
				b.put(idOff, profiledb.Identifier, "physicalId", id.Physical)
			}
		}
		b.put(base+uint64(i)*st, profiledb.ProfileInfo, "pIdTuple", off)
	}
	b.section(profiledb.SectionTable, profiledb.SecIdTuples, tuples)

	for i, p := range profiles {
		off := base + uint64(i)*st
		if p.Summary {
			b.put(off, profiledb.ProfileInfo, "flags", uint64(model.ProfileSummary))
		}
		d := b.block(profiledb.Values, p.Values)
		b.put(off, profiledb.ProfileInfo, "nValues", d.NValues)
		b.put(off, profiledb.ProfileInfo, "pValues", d.PValues)
		b.put(off, profiledb.ProfileInfo, "nCtxs", d.NColumns)
		b.put(off, profiledb.ProfileInfo, "pCtxIndices", d.PIndex)
	}
	return b.finish()
}

// EncodeContexts returns the cct.db encoding of ctxs. ctxs[i] maps the
// metric ids of context id i to {profile index → value}.
func EncodeContexts(ctxs []Values, opts Options) []byte {
	b := newBuilder(format.KindContext, cctdb.SectionTable, opts)
	sec := b.record(cctdb.CtxInfos)
	base, st := b.array(cctdb.CtxInfo, len(ctxs))
	b.put(sec, cctdb.CtxInfos, "pCtxs", base)
	b.put(sec, cctdb.CtxInfos, "nCtxs", uint64(len(ctxs)))
	b.put(sec, cctdb.CtxInfos, "szCtx", st)
	b.section(cctdb.SectionTable, cctdb.SecCtxInfos, sec)

	for i, v := range ctxs {
		off := base + uint64(i)*st
		d := b.block(cctdb.Values, v)
		b.put(off, cctdb.CtxInfo, "nValues", d.NValues)
		b.put(off, cctdb.CtxInfo, "pValues", d.PValues)
		b.put(off, cctdb.CtxInfo, "nMetrics", d.NColumns)
		b.put(off, cctdb.CtxInfo, "pMetricIndices", d.PIndex)
	}
	return b.finish()
}

// Transpose derives the cct.db content of nCtxs contexts from the values of
// the non-summary profiles.
func Transpose(profiles []Profile, nCtxs int) []Values {
	out := make([]Values, nCtxs)
	for pi, p := range profiles {
		if p.Summary {
			continue
		}
		for ctx, metrics := range p.Values {
			if int(ctx) >= nCtxs {
				continue
			}
			if out[ctx] == nil {
				out[ctx] = make(Values)
			}
			for m, v := range metrics {
				if out[ctx][m] == nil {
					out[ctx][m] = make(map[uint32]float64)
				}
				out[ctx][m][uint32(pi)] = v
			}
		}
	}
	return out
}

// Trace is the trace.db content of one profile.
type Trace struct {
	ProfIndex uint32
	Samples   []sparse.Sample
}

// Traces is the trace.db content of a database.
type Traces struct {
	MinTimestamp uint64
	MaxTimestamp uint64
	Traces       []Trace
}

// EncodeTraces returns the trace.db encoding of t.
func EncodeTraces(t Traces, opts Options) []byte {
	b := newBuilder(format.KindTrace, tracedb.SectionTable, opts)
	sec := b.record(tracedb.CtxTraces)
	base, st := b.array(tracedb.TraceHeader, len(t.Traces))
	b.put(sec, tracedb.CtxTraces, "pTraces", base)
	b.put(sec, tracedb.CtxTraces, "nTraces", uint64(len(t.Traces)))
	b.put(sec, tracedb.CtxTraces, "szTrace", st)
	b.put(sec, tracedb.CtxTraces, "minTimestamp", t.MinTimestamp)
	b.put(sec, tracedb.CtxTraces, "maxTimestamp", t.MaxTimestamp)
	b.section(tracedb.SectionTable, tracedb.SecCtxTraces, sec)

	for i, tr := range t.Traces {
		off := base + uint64(i)*st
		start := b.reserve(0)
		for _, s := range tr.Samples {
			b.buf = binary.LittleEndian.AppendUint64(b.buf, s.Timestamp)
			b.buf = binary.LittleEndian.AppendUint32(b.buf, s.CtxID)
		}
		b.put(off, tracedb.TraceHeader, "profIndex", uint64(tr.ProfIndex))
		b.put(off, tracedb.TraceHeader, "pStart", start)
		b.put(off, tracedb.TraceHeader, "pEnd", b.len())
	}
	return b.finish()
}

// ProfilesFromModel returns the content of a decoded profile.db, reading
// every value block.
func ProfilesFromModel(db *model.ProfileDB) ([]Profile, error) {
	out := make([]Profile, len(db.Profiles))
	var errs []error
	for i, p := range db.Profiles {
		out[i].Summary = p.IsSummary()
		if p.IdTuple != nil {
			for _, id := range p.IdTuple.Ids {
				out[i].Tuple = append(out[i].Tuple, Identifier{
					Kind:        id.IdKind,
					Logical:     id.LogicalID,
					Physical:    id.PhysicalID,
					HasPhysical: id.Flags&model.IdentifierPhysical != 0,
				})
			}
		}
		v, err := blockValues(p.Values.Block)
		errs = append(errs, err)
		out[i].Values = v
	}
	return out, errors.Join(errs...)
}

// ContextsFromModel returns the content of a decoded cct.db.
func ContextsFromModel(db *model.ContextDB) ([]Values, error) {
	out := make([]Values, len(db.Contexts))
	var errs []error
	for i, c := range db.Contexts {
		v, err := blockValues(c.Block)
		errs = append(errs, err)
		out[i] = v
	}
	return out, errors.Join(errs...)
}

// TracesFromModel returns the content of a decoded trace.db.
func TracesFromModel(db *model.TraceDB) (Traces, error) {
	out := Traces{MinTimestamp: db.MinTimestamp, MaxTimestamp: db.MaxTimestamp}
	for _, t := range db.Traces {
		s, err := t.Timeline.Samples()
		if err != nil {
			return Traces{}, err
		}
		out.Traces = append(out.Traces, Trace{ProfIndex: t.ProfIndex, Samples: slices.Clone(s)})
	}
	return out, nil
}

func blockValues(b *sparse.Block) (Values, error) {
	all, err := b.All()
	if err != nil {
		return nil, err
	}
	out := make(Values, len(all))
	for c, col := range all {
		out[c] = make(map[uint32]float64, col.Len())
		for _, r := range col.Rows() {
			out[c][r], _ = col.Get(r)
		}
	}
	return out, nil
}
