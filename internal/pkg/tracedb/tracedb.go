// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracedb decodes trace.db: the per-profile context traces of a
// database.
package tracedb

import (
	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
	"github.com/hpctoolkit/hpcdb/internal/pkg/sparse"
	sf "github.com/hpctoolkit/hpcdb/internal/pkg/structfield"
)

// SecCtxTraces is the only section of trace.db.
const SecCtxTraces = "CtxTraces"

// SectionTable is the section table of trace.db.
var SectionTable = format.NewSectionLayout("trace.db",
	format.SectionSpec{Name: SecCtxTraces, Since: "4.0"},
)

// Record layouts of trace.db.
var (
	CtxTraces = sf.NewLayout("CtxTraces",
		sf.NewField("pTraces", "4.0", 0x00, sf.U64),
		sf.NewField("nTraces", "4.0", 0x08, sf.U32),
		sf.NewField("szTrace", "4.0", 0x0c, sf.U8),
		sf.NewField("minTimestamp", "4.0", 0x10, sf.U64),
		sf.NewField("maxTimestamp", "4.0", 0x18, sf.U64),
	)

	TraceHeader = sf.NewLayout("TraceHeader",
		sf.NewField("profIndex", "4.0", 0x00, sf.U32),
		sf.NewField("pStart", "4.0", 0x08, sf.U64),
		sf.NewField("pEnd", "4.0", 0x10, sf.U64),
	)
)

// Decode decodes the trace.db held by src. Samples are read on first access.
func Decode(src *format.Source) (*model.TraceDB, *format.Header, error) {
	h, err := format.ReadHeader(src, format.KindTrace, SectionTable)
	if err != nil {
		return nil, nil, err
	}
	rec, err := src.SectionRecord(h, SecCtxTraces, CtxTraces)
	if err != nil {
		return nil, nil, err
	}
	db := &model.TraceDB{
		MinTimestamp: rec.Uint("minTimestamp"),
		MaxTimestamp: rec.Uint("maxTimestamp"),
	}
	if db.MinTimestamp > db.MaxTimestamp && rec.Uint("nTraces") > 0 {
		return nil, nil, format.Errorf(src.Name(), h.Section(SecCtxTraces).Offset, "minimum timestamp %d after maximum %d", db.MinTimestamp, db.MaxTimestamp)
	}

	p, sz := rec.Uint("pTraces"), rec.Uint("szTrace")
	recs, err := src.Records(TraceHeader, p, rec.Uint("nTraces"), sz, h.Version)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[uint32]bool, len(recs))
	for i, r := range recs {
		off := p + uint64(i)*sz
		prof := uint32(r.Uint("profIndex")) // nolint: gosec  // Decoded as u32.
		if seen[prof] {
			return nil, nil, format.Errorf(src.Name(), off, "duplicate trace for profile %d", prof)
		}
		seen[prof] = true

		tl, err := sparse.LoadTimeline(src, r.Uint("pStart"), r.Uint("pEnd"))
		if err != nil {
			return nil, nil, err
		}
		db.Traces = append(db.Traces, &model.ContextTrace{ProfIndex: prof, Timeline: tl})
	}
	return db, h, nil
}
