// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package dbtest

import (
	"os"
	"path/filepath"

	"github.com/hpctoolkit/hpcdb/internal/pkg/cctdb"
	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	"github.com/hpctoolkit/hpcdb/internal/pkg/metadb"
	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
	"github.com/hpctoolkit/hpcdb/internal/pkg/profiledb"
	"github.com/hpctoolkit/hpcdb/internal/pkg/sparse"
	"github.com/hpctoolkit/hpcdb/internal/pkg/tracedb"
)

// Fixture is the content of a whole database.
type Fixture struct {
	Meta     *model.MetaDB
	Profiles []Profile
	// Contexts is the cct.db content. It is derived from Profiles if nil.
	Contexts []Values
	// Traces is the trace.db content. No trace.db is written if nil.
	Traces  *Traces
	Options Options
}

// Files returns the encoding of every file of f keyed by kind.
func (f *Fixture) Files() map[format.Kind][]byte {
	ctxs := f.Contexts
	if ctxs == nil {
		ctxs = Transpose(f.Profiles, NumContexts(f.Meta))
	}
	out := map[format.Kind][]byte{
		format.KindMeta:    EncodeMeta(f.Meta, f.Options),
		format.KindProfile: EncodeProfiles(f.Profiles, f.Options),
		format.KindContext: EncodeContexts(ctxs, f.Options),
	}
	if f.Traces != nil {
		out[format.KindTrace] = EncodeTraces(*f.Traces, f.Options)
	}
	return out
}

// WriteDir writes the files of f into dir under their fixed names.
func (f *Fixture) WriteDir(dir string) error {
	for k, b := range f.Files() {
		if err := os.WriteFile(filepath.Join(dir, k.FileName()), b, 0o600); err != nil {
			return err
		}
	}
	return nil
}

// Database decodes the files of f into a new Database.
func (f *Fixture) Database() (*model.Database, error) {
	files := f.Files()
	src := func(k format.Kind) *format.Source {
		return format.NewBytesSource(k.FileName(), files[k])
	}
	meta, _, err := metadb.Decode(src(format.KindMeta))
	if err != nil {
		return nil, err
	}
	prof, _, err := profiledb.Decode(src(format.KindProfile))
	if err != nil {
		return nil, err
	}
	cct, _, err := cctdb.Decode(src(format.KindContext))
	if err != nil {
		return nil, err
	}
	var trace *model.TraceDB
	if _, ok := files[format.KindTrace]; ok {
		if trace, _, err = tracedb.Decode(src(format.KindTrace)); err != nil {
			return nil, err
		}
	}
	return model.NewDatabase(meta, prof, cct, trace)
}

// NumContexts returns one more than the largest context id of m.
func NumContexts(m *model.MetaDB) int {
	n := 1
	if m == nil || m.Tree == nil {
		return n
	}
	_ = m.Tree.Walk(func(c model.CallingContext) error {
		n = max(n, int(c.ContextID())+1)
		return nil
	})
	return n
}

// AssignIDs numbers the entry points and contexts of m from 1 in depth-first
// pre-order.
func AssignIDs(m *model.MetaDB) {
	var next uint32 = 1
	var walk func([]*model.Context)
	walk = func(ctxs []*model.Context) {
		for _, c := range ctxs {
			c.CtxID = next
			next++
			walk(c.Children)
		}
	}
	for _, e := range m.Tree.EntryPoints {
		e.CtxID = next
		next++
		walk(e.Children)
	}
}

// Propagation metric ids of the Sample fixture.
const (
	TimePoint     = 0
	TimeExecution = 1
	TimeFunction  = 2
	CyclesExec    = 3
)

// Statistic metric ids of the Sample fixture.
const (
	TimeSum   = 0
	TimeMax   = 1
	CyclesSum = 2
)

// SampleMeta returns a small meta.db covering every optional context field
// combination. Context ids are:
//
//	1 main thread
//	  2 call main (point)
//	    3 loop (srcloc)
//	      4 line (srcloc)
//	      5 call foo (function, point)
//	        6 line (srcloc)
//	    7 call bar (function, point)
//	    8 inlined call helper (function, srcloc)
//	9 application thread
//	  10 call worker (function, srcloc, point)
func SampleMeta() *model.MetaDB {
	app := &model.Module{Path: "/bin/app"}
	libc := &model.Module{Path: "/lib/libc.so.6"}
	appC := &model.SourceFile{Flags: model.SourceFileCopied, Path: "src/app.c"}
	utilC := &model.SourceFile{Path: "src/util.c"}

	fnMain := &model.Function{Name: "main", Module: app, Offset: 0x1100, File: appC, Line: 10}
	fnFoo := &model.Function{Name: "foo", Module: app, Offset: 0x1200, File: appC, Line: 20}
	fnBar := &model.Function{Name: "bar", Module: libc, Offset: 0x300}
	fnHelper := &model.Function{Name: "helper", File: utilC, Line: 5}
	fnWorker := &model.Function{Name: "worker", Module: app, Offset: 0x1400, File: utilC, Line: 40}

	point := &model.PropagationScope{Name: "point", Type: model.ScopePoint}
	execution := &model.PropagationScope{Name: "execution", Type: model.ScopeExecution}
	function := &model.PropagationScope{Name: "function", Type: model.ScopeFunction, PropagationIndex: 0}

	m := &model.MetaDB{
		General: &model.GeneralProperties{Title: "sample", Description: "test fixture"},
		IdNames: &model.IdentifierNames{Names: []string{"SUMMARY", "NODE", "RANK", "THREAD", "CORE"}},
		Metrics: &model.PerformanceMetrics{
			Scopes: []*model.PropagationScope{point, execution, function},
			Metrics: []*model.Metric{
				{
					Name: "time",
					ScopeInsts: []*model.PropagationScopeInstance{
						{Scope: point, PropMetricID: TimePoint},
						{Scope: execution, PropMetricID: TimeExecution},
						{Scope: function, PropMetricID: TimeFunction},
					},
					Summaries: []*model.SummaryStatistic{
						{Scope: execution, Formula: "$$", Combine: model.CombineSum, StatMetricID: TimeSum},
						{Scope: execution, Formula: "$$", Combine: model.CombineMax, StatMetricID: TimeMax},
					},
				},
				{
					Name: "cycles",
					ScopeInsts: []*model.PropagationScopeInstance{
						{Scope: execution, PropMetricID: CyclesExec},
					},
					Summaries: []*model.SummaryStatistic{
						{Scope: execution, Formula: "$$", Combine: model.CombineSum, StatMetricID: CyclesSum},
					},
				},
			},
		},
		Modules:   []*model.Module{app, libc},
		Files:     []*model.SourceFile{appC, utilC},
		Functions: []*model.Function{fnMain, fnFoo, fnBar, fnHelper, fnWorker},
		Tree: &model.ContextTree{EntryPoints: []*model.EntryPoint{
			{
				EntryPoint: model.EntryMainThread,
				PrettyName: "main thread",
				Children: []*model.Context{{
					Relation: model.RelationCall, LexicalType: model.LexicalFunction,
					Function: fnMain, Module: app, Offset: 0x1000,
					Children: []*model.Context{
						{
							Relation: model.RelationLexical, LexicalType: model.LexicalLoop,
							File: appC, Line: 12,
							Children: []*model.Context{
								{Relation: model.RelationLexical, LexicalType: model.LexicalLine, File: appC, Line: 13},
								{
									Relation: model.RelationCall, LexicalType: model.LexicalFunction,
									Function: fnFoo, Module: app, Offset: 0x1120,
									Children: []*model.Context{
										{Relation: model.RelationLexical, LexicalType: model.LexicalLine, File: appC, Line: 21},
									},
								},
							},
						},
						{
							Relation: model.RelationCall, LexicalType: model.LexicalFunction,
							Function: fnBar, Module: app, Offset: 0x1130,
						},
						{
							Relation: model.RelationInlinedCall, LexicalType: model.LexicalFunction,
							Function: fnHelper, File: appC, Line: 14,
							Propagation: 1,
						},
					},
				}},
			},
			{
				EntryPoint: model.EntryApplicationThread,
				PrettyName: "application thread",
				Children: []*model.Context{{
					Relation: model.RelationCall, LexicalType: model.LexicalFunction,
					Function: fnWorker, File: utilC, Line: 40, Module: app, Offset: 0x1400,
				}},
			},
		}},
	}
	AssignIDs(m)
	return m
}

// SampleProfiles returns the summary profile and two thread profiles
// matching SampleMeta.
func SampleProfiles() []Profile {
	return []Profile{
		{
			Summary: true,
			Values: Values{
				2:  {TimeSum: 7.5, TimeMax: 4.25, CyclesSum: 3000},
				4:  {TimeSum: 3, TimeMax: 2},
				10: {TimeSum: 1.125, TimeMax: 1.125},
			},
		},
		{
			Tuple: []Identifier{{Kind: 1, Logical: 0, Physical: 0xc0ffee, HasPhysical: true}, {Kind: 3, Logical: 0}},
			Values: Values{
				2: {TimeExecution: 4.25, TimeFunction: 0.5, CyclesExec: 1000},
				4: {TimePoint: 2, TimeExecution: 2},
				6: {TimePoint: 0.75, TimeExecution: 0.75},
			},
		},
		{
			Tuple: []Identifier{{Kind: 1, Logical: 0, Physical: 0xc0ffee, HasPhysical: true}, {Kind: 3, Logical: 1}},
			Values: Values{
				2:  {TimeExecution: 3.25, CyclesExec: 2000},
				4:  {TimePoint: 1, TimeExecution: 1},
				10: {TimePoint: 1.125, TimeExecution: 1.125},
			},
		},
	}
}

// SampleTraces returns traces of the thread profiles of SampleProfiles.
func SampleTraces() *Traces {
	return &Traces{
		MinTimestamp: 100,
		MaxTimestamp: 400,
		Traces: []Trace{
			{ProfIndex: 1, Samples: []sparse.Sample{{Timestamp: 100, CtxID: 4}, {Timestamp: 200, CtxID: 6}, {Timestamp: 200, CtxID: 4}, {Timestamp: 300, CtxID: 2}}},
			{ProfIndex: 2, Samples: []sparse.Sample{{Timestamp: 150, CtxID: 10}, {Timestamp: 400, CtxID: 4}}},
		},
	}
}

// TwinLoops appends two identical loops, each with a single line child, to
// the first context of the main thread and renumbers the contexts of m. The
// loops can only be told apart by their position.
func TwinLoops(m *model.MetaDB) (first, second *model.Context) {
	main := m.Tree.EntryPoints[0].Children[0]
	file := m.Files[0]
	loop := func() *model.Context {
		return &model.Context{
			Relation: model.RelationLexical, LexicalType: model.LexicalLoop,
			File: file, Line: 30,
			Children: []*model.Context{
				{Relation: model.RelationLexical, LexicalType: model.LexicalLine, File: file, Line: 31},
			},
		}
	}
	first, second = loop(), loop()
	main.Children = append(main.Children, first, second)
	AssignIDs(m)
	return first, second
}

// Sample returns a complete fixture database. Every call returns new
// objects.
func Sample() *Fixture {
	return &Fixture{
		Meta:     SampleMeta(),
		Profiles: SampleProfiles(),
		Traces:   SampleTraces(),
	}
}
