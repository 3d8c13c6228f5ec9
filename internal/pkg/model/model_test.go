// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	"github.com/hpctoolkit/hpcdb/internal/pkg/sparse"
)

// block returns a value block with one value in each of cols.
func block(t *testing.T, l sparse.Layout, cols ...uint32) *sparse.Block {
	t.Helper()
	b := make([]byte, 8)
	pValues := uint64(len(b))
	for range cols {
		b = append(b, make([]byte, l.PairSize())...)
	}
	pIndex := uint64(len(b))
	for i, c := range cols {
		if l.ColWidth == 2 {
			b = binary.LittleEndian.AppendUint16(b, uint16(c))
		} else {
			b = binary.LittleEndian.AppendUint32(b, c)
		}
		b = binary.LittleEndian.AppendUint64(b, uint64(i))
	}
	blk, err := sparse.Load(format.NewBytesSource("values", b), l, sparse.Descriptor{
		NValues:  uint64(len(cols)),
		PValues:  pValues,
		NColumns: uint64(len(cols)),
		PIndex:   pIndex,
	})
	require.NoError(t, err)
	return blk
}

var (
	profLayout = sparse.Layout{RowWidth: 2, ColWidth: 4}
	cctLayout  = sparse.Layout{RowWidth: 4, ColWidth: 2}
)

func testMeta() *MetaDB {
	scope := &PropagationScope{Name: "point", Type: ScopePoint}
	fn := &Function{Name: "main"}
	leaf := &Context{CtxID: 3, Relation: RelationCall, Function: fn}
	return &MetaDB{
		General:   &GeneralProperties{Title: "test"},
		IdNames:   &IdentifierNames{Names: []string{"NODE", "THREAD"}},
		Functions: []*Function{fn},
		Metrics: &PerformanceMetrics{
			Scopes: []*PropagationScope{scope},
			Metrics: []*Metric{{
				Name:       "time",
				ScopeInsts: []*PropagationScopeInstance{{Scope: scope, PropMetricID: 7}},
				Summaries:  []*SummaryStatistic{{Scope: scope, Formula: "$$", StatMetricID: 9}},
			}},
		},
		Tree: &ContextTree{EntryPoints: []*EntryPoint{{
			CtxID:      1,
			EntryPoint: EntryMainThread,
			Children: []*Context{
				{CtxID: 2, Children: []*Context{leaf}},
				{CtxID: 4},
			},
		}}},
	}
}

func TestContextTreeWalk(t *testing.T) {
	var ids []uint32
	err := testMeta().Tree.Walk(func(c CallingContext) error {
		ids = append(ids, c.ContextID())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2, 3, 4}, ids)
}

func TestNewDatabase(t *testing.T) {
	meta := testMeta()
	prof := &ProfileDB{Profiles: []*Profile{
		{Index: 0, Flags: ProfileSummary, Values: &ProfileValues{Block: block(t, profLayout, 0, 3)}},
		{Index: 1, IdTuple: &IdentifierTuple{Ids: []*Identifier{{IdKind: 1, LogicalID: 0}}}},
	}}
	cct := &ContextDB{Contexts: []*ContextValues{
		{CtxID: 0}, {CtxID: 1}, {CtxID: 2}, {CtxID: 3, Block: block(t, cctLayout, 7)}, {CtxID: 4},
	}}
	trace := &TraceDB{Traces: []*ContextTrace{{ProfIndex: 1}}}

	db, err := NewDatabase(meta, prof, cct, trace)
	require.NoError(t, err)

	c, ok := db.Context(3)
	require.True(t, ok)
	assert.Same(t, meta.Tree.EntryPoints[0].Children[0].Children[0], c)
	c, ok = db.Context(0)
	require.True(t, ok)
	assert.Same(t, meta.Tree, c)

	si, ok := db.ScopeInstance(7)
	require.True(t, ok)
	assert.Equal(t, "point", si.Scope.Name)
	_, ok = db.ScopeInstance(1 << 20)
	assert.False(t, ok)

	st, ok := db.Statistic(9)
	require.True(t, ok)
	assert.Equal(t, "$$", st.Formula)

	p, ok := db.Profile(1)
	require.True(t, ok)
	assert.False(t, p.IsSummary())
	_, ok = db.Profile(2)
	assert.False(t, ok)

	cv, ok := db.ContextValues(3)
	require.True(t, ok)
	assert.Equal(t, uint32(3), cv.CtxID)
}

func TestNewDatabaseUnresolved(t *testing.T) {
	prof := &ProfileDB{Profiles: []*Profile{
		{Flags: ProfileSummary, Values: &ProfileValues{Block: block(t, profLayout, 99)}},
	}}
	cct := &ContextDB{Contexts: []*ContextValues{{CtxID: 0, Block: block(t, cctLayout, 8)}}}
	trace := &TraceDB{Traces: []*ContextTrace{{ProfIndex: 5}}}

	_, err := NewDatabase(testMeta(), prof, cct, trace)
	require.Error(t, err)
	assert.ErrorIs(t, err, format.ErrFormat)
	assert.ErrorContains(t, err, "unknown context id 99")
	assert.ErrorContains(t, err, "unknown metric id 8")
	assert.ErrorContains(t, err, "unknown profile index 5")
}

// rowBlock returns a value block holding rows in the single column col.
func rowBlock(t *testing.T, l sparse.Layout, col uint32, rows ...uint32) *sparse.Block {
	t.Helper()
	b := make([]byte, 8)
	for _, r := range rows {
		if l.RowWidth == 2 {
			b = binary.LittleEndian.AppendUint16(b, uint16(r))
		} else {
			b = binary.LittleEndian.AppendUint32(b, r)
		}
		b = binary.LittleEndian.AppendUint64(b, 0)
	}
	pIndex := uint64(len(b))
	if l.ColWidth == 2 {
		b = binary.LittleEndian.AppendUint16(b, uint16(col))
	} else {
		b = binary.LittleEndian.AppendUint32(b, col)
	}
	b = binary.LittleEndian.AppendUint64(b, 0)
	blk, err := sparse.Load(format.NewBytesSource("values", b), l, sparse.Descriptor{
		NValues:  uint64(len(rows)),
		PValues:  8,
		NColumns: 1,
		PIndex:   pIndex,
	})
	require.NoError(t, err)
	return blk
}

func TestNewDatabaseUnresolvedRows(t *testing.T) {
	summary := rowBlock(t, profLayout, 3, 9, 7)
	thread := rowBlock(t, profLayout, 3, 7, 9)
	values := rowBlock(t, cctLayout, 7, 1, 2)
	prof := &ProfileDB{Profiles: []*Profile{
		{Index: 0, Flags: ProfileSummary, Values: &ProfileValues{Block: summary}},
		{Index: 1, Values: &ProfileValues{Block: thread}},
	}}
	cct := &ContextDB{Contexts: []*ContextValues{{CtxID: 0}, {CtxID: 1}, {CtxID: 2}, {CtxID: 3, Block: values}}}

	// Rows are checked when their column is read.
	_, err := NewDatabase(testMeta(), prof, cct, nil)
	require.NoError(t, err)

	_, err = summary.Column(3)
	assert.ErrorIs(t, err, format.ErrFormat)
	assert.ErrorContains(t, err, "unknown statistic metric id 7")

	_, err = thread.Column(3)
	assert.ErrorIs(t, err, format.ErrFormat)
	assert.ErrorContains(t, err, "unknown metric id 9")

	_, err = values.Column(7)
	assert.ErrorIs(t, err, format.ErrFormat)
	assert.ErrorContains(t, err, "unknown profile index 2")
}

func TestNewDatabaseDuplicateContext(t *testing.T) {
	meta := testMeta()
	meta.Tree.EntryPoints[0].Children[1].CtxID = 2
	_, err := NewDatabase(meta, &ProfileDB{}, &ContextDB{}, nil)
	assert.ErrorIs(t, err, format.ErrFormat)
}

func TestFieldIsRef(t *testing.T) {
	fn := &Function{Name: "f"}
	c := &Context{Function: fn}
	byName := make(map[string]Field)
	for _, f := range c.Fields() {
		byName[f.Name] = f
	}
	assert.True(t, byName["function"].IsRef())
	assert.Same(t, fn, byName["function"].Value)
	assert.True(t, byName["module"].IsRef(), "nil reference")
	assert.Nil(t, byName["module"].Value)
	assert.False(t, byName["line"].IsRef())
	assert.False(t, byName["children"].IsRef())
}

func TestPropagationIndexRole(t *testing.T) {
	roles := func(s *PropagationScope) Role {
		for _, f := range s.Fields() {
			if f.Name == "propagationIndex" {
				return f.Role
			}
		}
		return 0
	}
	assert.Equal(t, RoleInfo, roles(&PropagationScope{Type: ScopePoint}))
	assert.Equal(t, RoleAttr, roles(&PropagationScope{Type: ScopeFunction}))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "Context", KindContext.String())
	assert.Equal(t, "TraceSample", KindTraceSample.String())
	assert.Equal(t, "Kind(200)", Kind(200).String())
	assert.Equal(t, "inlined_call", RelationInlinedCall.String())
	assert.Equal(t, "THREAD", (&IdentifierNames{Names: []string{"NODE", "THREAD"}}).Name(1))
	assert.Equal(t, "[5]", (&IdentifierNames{}).Name(5))
}
