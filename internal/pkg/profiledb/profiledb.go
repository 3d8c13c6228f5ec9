// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package profiledb decodes profile.db: the identifier tuples and the
// per-profile value blocks of a database.
package profiledb

import (
	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
	"github.com/hpctoolkit/hpcdb/internal/pkg/sparse"
	sf "github.com/hpctoolkit/hpcdb/internal/pkg/structfield"
)

// Section names in table order.
const (
	SecProfileInfos = "ProfileInfos"
	SecIdTuples     = "IdTuples"
)

// SectionTable is the section table of profile.db.
var SectionTable = format.NewSectionLayout("profile.db",
	format.SectionSpec{Name: SecProfileInfos, Since: "4.0"},
	format.SectionSpec{Name: SecIdTuples, Since: "4.0"},
)

// Record layouts of profile.db.
var (
	ProfileInfos = sf.NewLayout("ProfileInfos",
		sf.NewField("pProfiles", "4.0", 0x00, sf.U64),
		sf.NewField("nProfiles", "4.0", 0x08, sf.U32),
		sf.NewField("szProfile", "4.0", 0x0c, sf.U8),
	)

	ProfileInfo = sf.NewLayout("ProfileInfo",
		sf.NewField("nValues", "4.0", 0x00, sf.U64),
		sf.NewField("pValues", "4.0", 0x08, sf.U64),
		sf.NewField("nCtxs", "4.0", 0x10, sf.U32),
		sf.NewField("pCtxIndices", "4.0", 0x18, sf.U64),
		sf.NewField("pIdTuple", "4.0", 0x20, sf.U64),
		sf.NewField("flags", "4.0", 0x28, sf.U32),
	)

	IdTuple = sf.NewLayout("IdTuple",
		sf.NewField("nIds", "4.0", 0x00, sf.U16),
	)

	Identifier = sf.NewLayout("Identifier",
		sf.NewField("kind", "4.0", 0x00, sf.U8),
		sf.NewField("flags", "4.0", 0x01, sf.U8),
		sf.NewField("logicalId", "4.0", 0x04, sf.U32),
		sf.NewField("physicalId", "4.0", 0x08, sf.U64),
	)
)

const (
	// IdTupleHeaderSize is the size of an identifier tuple before its ids.
	IdTupleHeaderSize = 0x08
	// IdentifierSize is the stride of the ids of a tuple.
	IdentifierSize = 0x10
)

// Values is the layout of profile value blocks: metric id rows keyed by
// context id columns.
var Values = sparse.Layout{RowWidth: 2, ColWidth: 4}

// Decode decodes the profile.db held by src. Value blocks are indexed but
// their values are read on first access.
func Decode(src *format.Source) (*model.ProfileDB, *format.Header, error) {
	h, err := format.ReadHeader(src, format.KindProfile, SectionTable)
	if err != nil {
		return nil, nil, err
	}
	ver := h.Version

	rec, err := src.SectionRecord(h, SecProfileInfos, ProfileInfos)
	if err != nil {
		return nil, nil, err
	}
	p, sz := rec.Uint("pProfiles"), rec.Uint("szProfile")
	recs, err := src.Records(ProfileInfo, p, rec.Uint("nProfiles"), sz, ver)
	if err != nil {
		return nil, nil, err
	}

	tuples := h.Section(SecIdTuples)
	db := &model.ProfileDB{Profiles: make([]*model.Profile, len(recs))}
	for i, r := range recs {
		off := p + uint64(i)*sz
		prof := &model.Profile{
			Index: uint32(i),
			Flags: uint32(r.Uint("flags")),
		}
		pTuple := r.Uint("pIdTuple")
		switch {
		case prof.IsSummary() && pTuple != 0:
			return nil, nil, format.Errorf(src.Name(), off, "summary profile with an identifier tuple")
		case !prof.IsSummary() && pTuple == 0:
			return nil, nil, format.Errorf(src.Name(), off, "profile %d without an identifier tuple", i)
		case pTuple != 0:
			if pTuple < tuples.Offset || pTuple >= tuples.End() {
				return nil, nil, format.Errorf(src.Name(), off, "identifier tuple 0x%x outside of section %s", pTuple, SecIdTuples)
			}
			if prof.IdTuple, err = decodeTuple(src, pTuple, h); err != nil {
				return nil, nil, err
			}
		}

		blk, err := sparse.Load(src, Values, sparse.Descriptor{
			NValues:  r.Uint("nValues"),
			PValues:  r.Uint("pValues"),
			NColumns: r.Uint("nCtxs"),
			PIndex:   r.Uint("pCtxIndices"),
		})
		if err != nil {
			return nil, nil, err
		}
		prof.Values = &model.ProfileValues{Block: blk}
		db.Profiles[i] = prof
	}
	return db, h, nil
}

func decodeTuple(src *format.Source, off uint64, h *format.Header) (*model.IdentifierTuple, error) {
	rec, err := src.Record(IdTuple, off, h.Version)
	if err != nil {
		return nil, err
	}
	recs, err := src.Records(Identifier, off+IdTupleHeaderSize, rec.Uint("nIds"), IdentifierSize, h.Version)
	if err != nil {
		return nil, err
	}
	t := &model.IdentifierTuple{Ids: make([]*model.Identifier, len(recs))}
	for i, r := range recs {
		id := &model.Identifier{
			IdKind:    uint8(r.Uint("kind")),
			Flags:     uint8(r.Uint("flags")),
			LogicalID: uint32(r.Uint("logicalId")),
		}
		if id.Flags&model.IdentifierPhysical != 0 {
			id.PhysicalID = r.Uint("physicalId")
		}
		t.Ids[i] = id
	}
	return t, nil
}
