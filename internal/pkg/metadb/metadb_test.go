// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metadb_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpctoolkit/hpcdb/internal/pkg/dbtest"
	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	"github.com/hpctoolkit/hpcdb/internal/pkg/metadb"
	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
)

func decode(t *testing.T, raw []byte) (*model.MetaDB, *format.Header, error) {
	t.Helper()
	return metadb.Decode(format.NewBytesSource("meta.db", raw))
}

func TestDecode(t *testing.T) {
	m, h, err := decode(t, dbtest.EncodeMeta(dbtest.SampleMeta(), dbtest.Options{}))
	require.NoError(t, err)
	assert.Empty(t, h.Warnings)

	assert.Equal(t, "sample", m.General.Title)
	assert.Equal(t, "test fixture", m.General.Description)
	assert.Equal(t, []string{"SUMMARY", "NODE", "RANK", "THREAD", "CORE"}, m.IdNames.Names)

	require.Len(t, m.Modules, 2)
	require.Len(t, m.Files, 2)
	assert.Equal(t, "/bin/app", m.Modules[0].Path)
	assert.Equal(t, model.SourceFileCopied, m.Files[0].Flags)

	require.Len(t, m.Functions, 5)
	helper := m.Functions[3]
	assert.Equal(t, "helper", helper.Name)
	assert.Nil(t, helper.Module)
	assert.Zero(t, helper.Offset)
	assert.Same(t, m.Files[1], helper.File)
	assert.Equal(t, uint32(5), helper.Line)
	assert.Same(t, m.Modules[1], m.Functions[2].Module, "bar lives in libc")

	require.Len(t, m.Metrics.Scopes, 3)
	require.Len(t, m.Metrics.Metrics, 2)
	tm := m.Metrics.Metrics[0]
	assert.Equal(t, "time", tm.Name)
	require.Len(t, tm.ScopeInsts, 3)
	assert.Same(t, m.Metrics.Scopes[2], tm.ScopeInsts[2].Scope)
	assert.Equal(t, uint16(dbtest.TimeFunction), tm.ScopeInsts[2].PropMetricID)
	require.Len(t, tm.Summaries, 2)
	assert.Equal(t, model.CombineMax, tm.Summaries[1].Combine)
	assert.Equal(t, "$$", tm.Summaries[1].Formula)

	eps := m.Tree.EntryPoints
	require.Len(t, eps, 2)
	assert.Equal(t, model.EntryMainThread, eps[0].EntryPoint)
	assert.Equal(t, "main thread", eps[0].PrettyName)
	assert.Equal(t, uint32(1), eps[0].CtxID)

	main := eps[0].Children[0]
	assert.Equal(t, uint32(2), main.CtxID)
	assert.Same(t, m.Functions[0], main.Function)
	assert.Same(t, m.Modules[0], main.Module)
	assert.Equal(t, uint64(0x1000), main.Offset)
	assert.Nil(t, main.File)
	require.Len(t, main.Children, 3)

	loop := main.Children[0]
	assert.Equal(t, model.LexicalLoop, loop.LexicalType)
	assert.Nil(t, loop.Function)
	assert.Equal(t, uint32(12), loop.Line)
	require.Len(t, loop.Children, 2)
	assert.Equal(t, uint32(6), loop.Children[1].Children[0].CtxID)

	helperCtx := main.Children[2]
	assert.Equal(t, model.RelationInlinedCall, helperCtx.Relation)
	assert.Equal(t, uint16(1), helperCtx.Propagation)
	assert.Same(t, helper, helperCtx.Function)
	assert.Nil(t, helperCtx.Module)

	worker := eps[1].Children[0]
	assert.Equal(t, uint32(10), worker.CtxID)
	assert.NotNil(t, worker.Function)
	assert.NotNil(t, worker.File)
	assert.NotNil(t, worker.Module)
	assert.Equal(t, uint64(0x1400), worker.Offset)
}

func TestDecodeForwardCompatible(t *testing.T) {
	raw := dbtest.EncodeMeta(dbtest.SampleMeta(), dbtest.Options{Minor: 3, Pad: 16})
	m, h, err := decode(t, raw)
	require.NoError(t, err)
	require.Len(t, h.Warnings, 1)
	assert.Equal(t, "4.3.0", h.Warnings[0].Found.String())

	assert.Len(t, m.Functions, 5)
	assert.Equal(t, "worker", m.Tree.EntryPoints[1].Children[0].Function.Name)
}

// firstContext returns the offset of the first context record of the first
// entry point.
func firstContext(t *testing.T, raw []byte) uint64 {
	t.Helper()
	src := format.NewBytesSource("meta.db", raw)
	h, err := format.ReadHeader(src, format.KindMeta, metadb.SectionTable)
	require.NoError(t, err)
	sec, err := src.SectionRecord(h, metadb.SecContext, metadb.ContextSection)
	require.NoError(t, err)
	ep, err := src.Record(metadb.EntryPoint, sec.Uint("pEntryPoints"), h.Version)
	require.NoError(t, err)
	return ep.Uint("pChildren")
}

func field(t *testing.T, name string) uint64 {
	t.Helper()
	f, ok := metadb.Context.Lookup(name)
	require.True(t, ok)
	return f.Offset
}

func TestDecodeInvalidContext(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(raw []byte, ctx uint64)
		msg    string
	}{
		{
			name: "flex word count",
			mutate: func(raw []byte, ctx uint64) {
				raw[ctx+field(t, "nFlexWords")]++
			},
			msg: "flex words",
		},
		{
			name: "unknown flag",
			mutate: func(raw []byte, ctx uint64) {
				raw[ctx+field(t, "flags")] |= 0x80
			},
			msg: "unknown context flags",
		},
		{
			name: "null function",
			mutate: func(raw []byte, ctx uint64) {
				binary.LittleEndian.PutUint64(raw[ctx+metadb.ContextFixedSize:], 0)
			},
			msg: "null pointer",
		},
		{
			name: "unresolved function",
			mutate: func(raw []byte, ctx uint64) {
				binary.LittleEndian.PutUint64(raw[ctx+metadb.ContextFixedSize:], 8)
			},
			msg: "unresolved function",
		},
		{
			name: "cycle",
			mutate: func(raw []byte, ctx uint64) {
				binary.LittleEndian.PutUint64(raw[ctx+field(t, "pChildren"):], ctx)
				binary.LittleEndian.PutUint64(raw[ctx+field(t, "szChildren"):], metadb.ContextFixedSize+3*8)
			},
			msg: "visited twice",
		},
		{
			name: "children out of bounds",
			mutate: func(raw []byte, ctx uint64) {
				binary.LittleEndian.PutUint64(raw[ctx+field(t, "szChildren"):], 1<<40)
			},
			msg: "out of bounds",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := dbtest.EncodeMeta(dbtest.SampleMeta(), dbtest.Options{})
			tt.mutate(raw, firstContext(t, raw))
			_, _, err := decode(t, raw)
			assert.ErrorIs(t, err, format.ErrFormat)
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestDecodeDuplicateContextID(t *testing.T) {
	m := dbtest.SampleMeta()
	m.Tree.EntryPoints[1].Children[0].CtxID = 3
	_, _, err := decode(t, dbtest.EncodeMeta(m, dbtest.Options{}))
	assert.ErrorIs(t, err, format.ErrFormat)
	assert.ErrorContains(t, err, "duplicate context id 3")
}

func TestDecodeSmallStride(t *testing.T) {
	raw := dbtest.EncodeMeta(dbtest.SampleMeta(), dbtest.Options{})
	src := format.NewBytesSource("meta.db", raw)
	h, err := format.ReadHeader(src, format.KindMeta, metadb.SectionTable)
	require.NoError(t, err)
	f, ok := metadb.FunctionsSection.Lookup("szFunction")
	require.True(t, ok)
	binary.LittleEndian.PutUint16(raw[h.Section(metadb.SecFunctions).Offset+f.Offset:], 8)

	_, _, err = decode(t, raw)
	assert.ErrorIs(t, err, format.ErrFormat)
	assert.ErrorContains(t, err, "stride")
}

func TestDecodePartialFunction(t *testing.T) {
	tests := []struct {
		name  string
		index uint64
		field string
		msg   string
	}{
		// bar has a module but no file.
		{name: "line without file", index: 2, field: "line", msg: "function line 7 without a file"},
		// helper has a file but no module.
		{name: "offset without module", index: 3, field: "offset", msg: "function offset 0x7 without a module"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := dbtest.EncodeMeta(dbtest.SampleMeta(), dbtest.Options{})
			src := format.NewBytesSource("meta.db", raw)
			h, err := format.ReadHeader(src, format.KindMeta, metadb.SectionTable)
			require.NoError(t, err)
			sec, err := src.SectionRecord(h, metadb.SecFunctions, metadb.FunctionsSection)
			require.NoError(t, err)
			f, ok := metadb.Function.Lookup(tt.field)
			require.True(t, ok)
			off := sec.Uint("pFunctions") + tt.index*sec.Uint("szFunction") + f.Offset
			raw[off] = 7

			_, _, err = decode(t, raw)
			assert.ErrorIs(t, err, format.ErrFormat)
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestDecodeWrongKind(t *testing.T) {
	raw := dbtest.EncodeProfiles(dbtest.SampleProfiles(), dbtest.Options{})
	_, _, err := decode(t, raw)
	assert.ErrorIs(t, err, format.ErrFormat)
}

func TestDecodeTruncated(t *testing.T) {
	raw := dbtest.EncodeMeta(dbtest.SampleMeta(), dbtest.Options{})
	// Keep the header and the footer but drop everything in between.
	cut := append(raw[:format.HeaderSize:format.HeaderSize], raw[len(raw)-format.FooterSize:]...)
	_, _, err := decode(t, cut)
	assert.ErrorIs(t, err, format.ErrFormat)
}
