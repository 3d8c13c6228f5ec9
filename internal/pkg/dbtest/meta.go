// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package dbtest

import (
	"cmp"
	"slices"

	"github.com/hpctoolkit/hpcdb/internal/pkg/flexword"
	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	"github.com/hpctoolkit/hpcdb/internal/pkg/metadb"
	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
)

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

type metaEncoder struct {
	*builder
	strings   map[string]uint64
	modules   map[*model.Module]uint64
	files     map[*model.SourceFile]uint64
	functions map[*model.Function]uint64
	scopes    map[*model.PropagationScope]uint64
}

// EncodeMeta returns the meta.db encoding of m. Every object referenced by
// m must be owned by it.
func EncodeMeta(m *model.MetaDB, opts Options) []byte {
	e := &metaEncoder{
		builder:   newBuilder(format.KindMeta, metadb.SectionTable, opts),
		strings:   make(map[string]uint64),
		modules:   make(map[*model.Module]uint64),
		files:     make(map[*model.SourceFile]uint64),
		functions: make(map[*model.Function]uint64),
		scopes:    make(map[*model.PropagationScope]uint64),
	}
	e.stringsSection(m)
	e.modulesSection(m)
	e.filesSection(m)
	e.functionsSection(m)
	e.metricsSection(m)
	e.generalSection(m)
	e.idNamesSection(m)
	e.contextSection(m)
	return e.finish()
}

func (e *metaEncoder) stringsSection(m *model.MetaDB) {
	var all []string
	add := func(s ...string) { all = append(all, s...) }
	if m.General != nil {
		add(m.General.Title, m.General.Description)
	}
	if m.IdNames != nil {
		add(m.IdNames.Names...)
	}
	if m.Metrics != nil {
		for _, s := range m.Metrics.Scopes {
			add(s.Name)
		}
		for _, met := range m.Metrics.Metrics {
			add(met.Name)
			for _, st := range met.Summaries {
				add(st.Formula)
			}
		}
	}
	for _, mod := range m.Modules {
		add(mod.Path)
	}
	for _, f := range m.Files {
		add(f.Path)
	}
	for _, fn := range m.Functions {
		add(fn.Name)
	}
	if m.Tree != nil {
		for _, ep := range m.Tree.EntryPoints {
			add(ep.PrettyName)
		}
	}

	start := e.reserve(0)
	for _, s := range all {
		if _, ok := e.strings[s]; !ok {
			e.strings[s] = e.str(s)
		}
	}
	e.section(metadb.SectionTable, metadb.SecStrings, start)
}

// optStr returns the offset of s, or 0 if s is empty.
func (e *metaEncoder) optStr(s string) uint64 {
	if s == "" {
		return 0
	}
	return e.strings[s]
}

func (e *metaEncoder) modulesSection(m *model.MetaDB) {
	sec := e.record(metadb.ModulesSection)
	base, st := e.array(metadb.Module, len(m.Modules))
	e.put(sec, metadb.ModulesSection, "pModules", base)
	e.put(sec, metadb.ModulesSection, "nModules", uint64(len(m.Modules)))
	e.put(sec, metadb.ModulesSection, "szModule", st)
	for i, mod := range m.Modules {
		off := base + uint64(i)*st
		e.put(off, metadb.Module, "flags", uint64(mod.Flags))
		e.put(off, metadb.Module, "pPath", e.strings[mod.Path])
		e.modules[mod] = off
	}
	e.section(metadb.SectionTable, metadb.SecModules, sec)
}

func (e *metaEncoder) filesSection(m *model.MetaDB) {
	sec := e.record(metadb.FilesSection)
	base, st := e.array(metadb.File, len(m.Files))
	e.put(sec, metadb.FilesSection, "pFiles", base)
	e.put(sec, metadb.FilesSection, "nFiles", uint64(len(m.Files)))
	e.put(sec, metadb.FilesSection, "szFile", st)
	for i, f := range m.Files {
		off := base + uint64(i)*st
		e.put(off, metadb.File, "flags", uint64(f.Flags))
		e.put(off, metadb.File, "pPath", e.strings[f.Path])
		e.files[f] = off
	}
	e.section(metadb.SectionTable, metadb.SecFiles, sec)
}

func (e *metaEncoder) functionsSection(m *model.MetaDB) {
	sec := e.record(metadb.FunctionsSection)
	base, st := e.array(metadb.Function, len(m.Functions))
	e.put(sec, metadb.FunctionsSection, "pFunctions", base)
	e.put(sec, metadb.FunctionsSection, "nFunctions", uint64(len(m.Functions)))
	e.put(sec, metadb.FunctionsSection, "szFunction", st)
	for i, fn := range m.Functions {
		off := base + uint64(i)*st
		e.put(off, metadb.Function, "pName", e.optStr(fn.Name))
		if fn.Module != nil {
			e.put(off, metadb.Function, "pModule", e.modules[fn.Module])
			e.put(off, metadb.Function, "offset", fn.Offset)
		}
		if fn.File != nil {
			e.put(off, metadb.Function, "pFile", e.files[fn.File])
			e.put(off, metadb.Function, "line", uint64(fn.Line))
		}
		e.put(off, metadb.Function, "flags", uint64(fn.Flags))
		e.functions[fn] = off
	}
	e.section(metadb.SectionTable, metadb.SecFunctions, sec)
}

func (e *metaEncoder) metricsSection(m *model.MetaDB) {
	sec := e.record(metadb.Metrics)
	pm := m.Metrics
	if pm == nil {
		pm = &model.PerformanceMetrics{}
	}

	pScopes, szScope := e.array(metadb.Scope, len(pm.Scopes))
	for i, s := range pm.Scopes {
		off := pScopes + uint64(i)*szScope
		e.put(off, metadb.Scope, "pScopeName", e.strings[s.Name])
		e.put(off, metadb.Scope, "type", uint64(s.Type))
		e.put(off, metadb.Scope, "propagationIndex", uint64(s.PropagationIndex))
		e.scopes[s] = off
	}

	pMetrics, szMetric := e.array(metadb.Metric, len(pm.Metrics))
	szInst, szSummary := e.stride(metadb.ScopeInst), e.stride(metadb.Summary)
	for i, met := range pm.Metrics {
		off := pMetrics + uint64(i)*szMetric
		e.put(off, metadb.Metric, "pName", e.strings[met.Name])

		pInsts, _ := e.array(metadb.ScopeInst, len(met.ScopeInsts))
		for j, si := range met.ScopeInsts {
			iOff := pInsts + uint64(j)*szInst
			e.put(iOff, metadb.ScopeInst, "pScope", e.scopes[si.Scope])
			e.put(iOff, metadb.ScopeInst, "propMetricId", uint64(si.PropMetricID))
		}
		pSums, _ := e.array(metadb.Summary, len(met.Summaries))
		for j, st := range met.Summaries {
			sOff := pSums + uint64(j)*szSummary
			e.put(sOff, metadb.Summary, "pScope", e.scopes[st.Scope])
			e.put(sOff, metadb.Summary, "pFormula", e.strings[st.Formula])
			e.put(sOff, metadb.Summary, "combine", uint64(st.Combine))
			e.put(sOff, metadb.Summary, "statMetricId", uint64(st.StatMetricID))
		}
		e.put(off, metadb.Metric, "pScopeInsts", pInsts)
		e.put(off, metadb.Metric, "nScopeInsts", uint64(len(met.ScopeInsts)))
		e.put(off, metadb.Metric, "pSummaries", pSums)
		e.put(off, metadb.Metric, "nSummaries", uint64(len(met.Summaries)))
	}

	e.put(sec, metadb.Metrics, "pMetrics", pMetrics)
	e.put(sec, metadb.Metrics, "nMetrics", uint64(len(pm.Metrics)))
	e.put(sec, metadb.Metrics, "szMetric", szMetric)
	e.put(sec, metadb.Metrics, "szScopeInst", szInst)
	e.put(sec, metadb.Metrics, "szSummary", szSummary)
	e.put(sec, metadb.Metrics, "pScopes", pScopes)
	e.put(sec, metadb.Metrics, "nScopes", uint64(len(pm.Scopes)))
	e.put(sec, metadb.Metrics, "szScope", szScope)
	e.section(metadb.SectionTable, metadb.SecMetrics, sec)
}

func (e *metaEncoder) generalSection(m *model.MetaDB) {
	sec := e.record(metadb.General)
	if m.General != nil {
		e.put(sec, metadb.General, "pTitle", e.optStr(m.General.Title))
		e.put(sec, metadb.General, "pDescription", e.optStr(m.General.Description))
	}
	e.section(metadb.SectionTable, metadb.SecGeneral, sec)
}

func (e *metaEncoder) idNamesSection(m *model.MetaDB) {
	sec := e.record(metadb.IdNames)
	var names []string
	if m.IdNames != nil {
		names = m.IdNames.Names
	}
	pp := e.reserve(8 * uint64(len(names)))
	for i, n := range names {
		e.putUint64(pp+uint64(i)*8, e.strings[n])
	}
	e.put(sec, metadb.IdNames, "ppNames", pp)
	e.put(sec, metadb.IdNames, "nKinds", uint64(len(names)))
	e.section(metadb.SectionTable, metadb.SecIdNames, sec)
}

func (e *metaEncoder) contextSection(m *model.MetaDB) {
	sec := e.record(metadb.ContextSection)
	var eps []*model.EntryPoint
	if m.Tree != nil {
		eps = m.Tree.EntryPoints
	}
	base, st := e.array(metadb.EntryPoint, len(eps))
	e.put(sec, metadb.ContextSection, "pEntryPoints", base)
	e.put(sec, metadb.ContextSection, "nEntryPoints", uint64(len(eps)))
	e.put(sec, metadb.ContextSection, "szEntryPoint", st)
	for i, ep := range eps {
		off := base + uint64(i)*st
		e.put(off, metadb.EntryPoint, "ctxId", uint64(ep.CtxID))
		e.put(off, metadb.EntryPoint, "entryPoint", uint64(ep.EntryPoint))
		e.put(off, metadb.EntryPoint, "pPrettyName", e.optStr(ep.PrettyName))
		p, sz := e.children(ep.Children)
		e.put(off, metadb.EntryPoint, "pChildren", p)
		e.put(off, metadb.EntryPoint, "szChildren", sz)
	}
	e.section(metadb.SectionTable, metadb.SecContext, sec)
}

func contextLayout(c *model.Context) flexword.ContextLayout {
	var flags flexword.Flags
	if c.Function != nil {
		flags |= flexword.HasFunction
	}
	if c.File != nil {
		flags |= flexword.HasSrcLoc
	}
	if c.Module != nil {
		flags |= flexword.HasPoint
	}
	return flexword.NewContextLayout(flags)
}

// children writes the consecutive records of ctxs and then, depth first,
// their own children. It returns the offset and size of the records.
func (e *metaEncoder) children(ctxs []*model.Context) (uint64, uint64) {
	if len(ctxs) == 0 {
		return 0, 0
	}
	layouts := make([]flexword.ContextLayout, len(ctxs))
	var size uint64
	for i, c := range ctxs {
		layouts[i] = contextLayout(c)
		size += metadb.ContextFixedSize + uint64(layouts[i].Words)*flexword.Size
	}
	base := e.reserve(size)

	off := base
	offs := make([]uint64, len(ctxs))
	for i, c := range ctxs {
		l := layouts[i]
		offs[i] = off
		e.put(off, metadb.Context, "ctxId", uint64(c.CtxID))
		e.put(off, metadb.Context, "flags", uint64(l.Flags))
		e.put(off, metadb.Context, "relation", uint64(c.Relation))
		e.put(off, metadb.Context, "lexicalType", uint64(c.LexicalType))
		e.put(off, metadb.Context, "nFlexWords", uint64(l.Words))
		e.put(off, metadb.Context, "propagation", uint64(c.Propagation))

		var f flexword.ContextFields
		if c.Function != nil {
			f.Function = e.functions[c.Function]
		}
		if c.File != nil {
			f.File, f.Line = e.files[c.File], c.Line
		}
		if c.Module != nil {
			f.Module, f.Offset = e.modules[c.Module], c.Offset
		}
		copy(e.buf[off+metadb.ContextFixedSize:], l.Encode(f))
		off += metadb.ContextFixedSize + uint64(l.Words)*flexword.Size
	}
	for i, c := range ctxs {
		p, sz := e.children(c.Children)
		e.put(offs[i], metadb.Context, "pChildren", p)
		e.put(offs[i], metadb.Context, "szChildren", sz)
	}
	return base, size
}
