// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package cctdb decodes cct.db: the per-context value blocks of a database.
package cctdb

import (
	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
	"github.com/hpctoolkit/hpcdb/internal/pkg/sparse"
	sf "github.com/hpctoolkit/hpcdb/internal/pkg/structfield"
)

// SecCtxInfos is the only section of cct.db.
const SecCtxInfos = "CtxInfos"

// SectionTable is the section table of cct.db.
var SectionTable = format.NewSectionLayout("cct.db",
	format.SectionSpec{Name: SecCtxInfos, Since: "4.0"},
)

// Record layouts of cct.db.
var (
	CtxInfos = sf.NewLayout("CtxInfos",
		sf.NewField("pCtxs", "4.0", 0x00, sf.U64),
		sf.NewField("nCtxs", "4.0", 0x08, sf.U32),
		sf.NewField("szCtx", "4.0", 0x0c, sf.U8),
	)

	CtxInfo = sf.NewLayout("CtxInfo",
		sf.NewField("nValues", "4.0", 0x00, sf.U64),
		sf.NewField("pValues", "4.0", 0x08, sf.U64),
		sf.NewField("nMetrics", "4.0", 0x10, sf.U16),
		sf.NewField("pMetricIndices", "4.0", 0x18, sf.U64),
	)
)

// Values is the layout of context value blocks: profile index rows keyed by
// metric id columns.
var Values = sparse.Layout{RowWidth: 4, ColWidth: 2}

// Decode decodes the cct.db held by src. The i-th record holds the values of
// context id i.
func Decode(src *format.Source) (*model.ContextDB, *format.Header, error) {
	h, err := format.ReadHeader(src, format.KindContext, SectionTable)
	if err != nil {
		return nil, nil, err
	}
	rec, err := src.SectionRecord(h, SecCtxInfos, CtxInfos)
	if err != nil {
		return nil, nil, err
	}
	recs, err := src.Records(CtxInfo, rec.Uint("pCtxs"), rec.Uint("nCtxs"), rec.Uint("szCtx"), h.Version)
	if err != nil {
		return nil, nil, err
	}

	db := &model.ContextDB{Contexts: make([]*model.ContextValues, len(recs))}
	for i, r := range recs {
		blk, err := sparse.Load(src, Values, sparse.Descriptor{
			NValues:  r.Uint("nValues"),
			PValues:  r.Uint("pValues"),
			NColumns: r.Uint("nMetrics"),
			PIndex:   r.Uint("pMetricIndices"),
		})
		if err != nil {
			return nil, nil, err
		}
		db.Contexts[i] = &model.ContextValues{CtxID: uint32(i), Block: blk} // nolint: gosec  // Bounded by nCtxs.
	}
	return db, h, nil
}
