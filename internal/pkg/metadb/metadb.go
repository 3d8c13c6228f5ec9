// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package metadb decodes meta.db: the general properties, identifier names,
// performance metrics, load modules, source files, functions and the
// calling-context tree of a database.
package metadb

import (
	"github.com/hashicorp/go-version"

	"github.com/hpctoolkit/hpcdb/internal/pkg/flexword"
	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
	"github.com/hpctoolkit/hpcdb/internal/pkg/structfield"
)

// Decode decodes the meta.db held by src. The returned header carries any
// forward compatibility warnings.
func Decode(src *format.Source) (*model.MetaDB, *format.Header, error) {
	h, err := format.ReadHeader(src, format.KindMeta, SectionTable)
	if err != nil {
		return nil, nil, err
	}
	d := &decoder{
		src:       src,
		hdr:       h,
		ver:       h.Version,
		modules:   make(map[uint64]*model.Module),
		files:     make(map[uint64]*model.SourceFile),
		functions: make(map[uint64]*model.Function),
		scopes:    make(map[uint64]*model.PropagationScope),
		visited:   make(map[uint64]bool),
		ctxIDs:    map[uint32]bool{model.RootContextID: true},
	}

	m := &model.MetaDB{}
	steps := []func(*model.MetaDB) error{
		d.general,
		d.idNames,
		d.modulesSection,
		d.filesSection,
		d.functionsSection,
		d.metrics,
		d.tree,
	}
	for _, step := range steps {
		if err := step(m); err != nil {
			return nil, nil, err
		}
	}
	return m, h, nil
}

type decoder struct {
	src *format.Source
	hdr *format.Header
	ver *version.Version

	// Interned objects keyed by the offset they were decoded from.
	modules   map[uint64]*model.Module
	files     map[uint64]*model.SourceFile
	functions map[uint64]*model.Function
	scopes    map[uint64]*model.PropagationScope

	visited map[uint64]bool
	ctxIDs  map[uint32]bool
}

func (d *decoder) errorf(off uint64, msg string, args ...any) error {
	return format.Errorf(d.src.Name(), off, msg, args...)
}

// section decodes the header record of the section name.
func (d *decoder) section(name string, l *structfield.Layout) (structfield.Record, uint64, error) {
	rec, err := d.src.SectionRecord(d.hdr, name, l)
	return rec, d.hdr.Section(name).Offset, err
}

func (d *decoder) requiredString(ptrOff, p uint64) (string, error) {
	if p == 0 {
		return "", d.errorf(ptrOff, "null string pointer")
	}
	return d.src.StringAt(p)
}

func (d *decoder) general(m *model.MetaDB) error {
	rec, _, err := d.section(SecGeneral, General)
	if err != nil {
		return err
	}
	g := &model.GeneralProperties{}
	if g.Title, err = d.src.OptionalStringAt(rec.Uint("pTitle")); err != nil {
		return err
	}
	if g.Description, err = d.src.OptionalStringAt(rec.Uint("pDescription")); err != nil {
		return err
	}
	m.General = g
	return nil
}

func (d *decoder) idNames(m *model.MetaDB) error {
	rec, off, err := d.section(SecIdNames, IdNames)
	if err != nil {
		return err
	}
	n := rec.Uint("nKinds")
	pp := rec.Uint("ppNames")
	if n > 0xff || !d.src.Contains(pp, n*8) {
		return d.errorf(off, "%d identifier names out of bounds", n)
	}
	names := &model.IdentifierNames{Names: make([]string, n)}
	for i := range names.Names {
		ptrOff := pp + uint64(i)*8
		p, err := d.src.Uint64At(ptrOff)
		if err != nil {
			return format.Wrap(d.src.Name(), off, err)
		}
		if names.Names[i], err = d.requiredString(ptrOff, p); err != nil {
			return err
		}
	}
	m.IdNames = names
	return nil
}

// pathed decodes the Modules or Files section: both are arrays of
// (flags, path) records.
func (d *decoder) pathed(sec string, sl, l *structfield.Layout, field string, fn func(off uint64, flags uint32, path string)) error {
	rec, _, err := d.section(sec, sl)
	if err != nil {
		return err
	}
	p, n, sz := rec.Uint("p"+field+"s"), rec.Uint("n"+field+"s"), rec.Uint("sz"+field)
	recs, err := d.src.Records(l, p, n, sz, d.ver)
	if err != nil {
		return err
	}
	for i, r := range recs {
		off := p + uint64(i)*sz
		path, err := d.requiredString(off, r.Uint("pPath"))
		if err != nil {
			return err
		}
		fn(off, uint32(r.Uint("flags")), path) // nolint: gosec  // Decoded as u32.
	}
	return nil
}

func (d *decoder) modulesSection(m *model.MetaDB) error {
	return d.pathed(SecModules, ModulesSection, Module, "Module", func(off uint64, flags uint32, path string) {
		mod := &model.Module{Flags: flags, Path: path}
		d.modules[off] = mod
		m.Modules = append(m.Modules, mod)
	})
}

func (d *decoder) filesSection(m *model.MetaDB) error {
	return d.pathed(SecFiles, FilesSection, File, "File", func(off uint64, flags uint32, path string) {
		f := &model.SourceFile{Flags: flags, Path: path}
		d.files[off] = f
		m.Files = append(m.Files, f)
	})
}

func (d *decoder) module(ptrOff, p uint64) (*model.Module, error) {
	mod, ok := d.modules[p]
	if !ok {
		return nil, d.errorf(ptrOff, "unresolved module pointer 0x%x", p)
	}
	return mod, nil
}

func (d *decoder) file(ptrOff, p uint64) (*model.SourceFile, error) {
	f, ok := d.files[p]
	if !ok {
		return nil, d.errorf(ptrOff, "unresolved file pointer 0x%x", p)
	}
	return f, nil
}

func (d *decoder) function(ptrOff, p uint64) (*model.Function, error) {
	f, ok := d.functions[p]
	if !ok {
		return nil, d.errorf(ptrOff, "unresolved function pointer 0x%x", p)
	}
	return f, nil
}

func (d *decoder) functionsSection(m *model.MetaDB) error {
	rec, _, err := d.section(SecFunctions, FunctionsSection)
	if err != nil {
		return err
	}
	p, n, sz := rec.Uint("pFunctions"), rec.Uint("nFunctions"), rec.Uint("szFunction")
	recs, err := d.src.Records(Function, p, n, sz, d.ver)
	if err != nil {
		return err
	}
	for i, r := range recs {
		off := p + uint64(i)*sz
		fn := &model.Function{Flags: uint32(r.Uint("flags"))} // nolint: gosec  // Decoded as u32.
		if fn.Name, err = d.src.OptionalStringAt(r.Uint("pName")); err != nil {
			return err
		}
		// Module and offset, file and line are present together or not at all.
		if pm := r.Uint("pModule"); pm != 0 {
			if fn.Module, err = d.module(off, pm); err != nil {
				return err
			}
			fn.Offset = r.Uint("offset")
		} else if o := r.Uint("offset"); o != 0 {
			return d.errorf(off, "function offset 0x%x without a module", o)
		}
		if pf := r.Uint("pFile"); pf != 0 {
			if fn.File, err = d.file(off, pf); err != nil {
				return err
			}
			fn.Line = uint32(r.Uint("line")) // nolint: gosec  // Decoded as u32.
		} else if l := r.Uint("line"); l != 0 {
			return d.errorf(off, "function line %d without a file", l)
		}
		d.functions[off] = fn
		m.Functions = append(m.Functions, fn)
	}
	return nil
}

func (d *decoder) metrics(m *model.MetaDB) error {
	rec, _, err := d.section(SecMetrics, Metrics)
	if err != nil {
		return err
	}
	pm := &model.PerformanceMetrics{}

	pScopes, szScope := rec.Uint("pScopes"), rec.Uint("szScope")
	scopes, err := d.src.Records(Scope, pScopes, rec.Uint("nScopes"), szScope, d.ver)
	if err != nil {
		return err
	}
	for i, r := range scopes {
		off := pScopes + uint64(i)*szScope
		s := &model.PropagationScope{
			Type:             model.ScopeType(r.Uint("type")),
			PropagationIndex: uint8(r.Uint("propagationIndex")),
		}
		if s.Name, err = d.requiredString(off, r.Uint("pScopeName")); err != nil {
			return err
		}
		d.scopes[off] = s
		pm.Scopes = append(pm.Scopes, s)
	}

	pMetrics, szMetric := rec.Uint("pMetrics"), rec.Uint("szMetric")
	metrics, err := d.src.Records(Metric, pMetrics, rec.Uint("nMetrics"), szMetric, d.ver)
	if err != nil {
		return err
	}
	szInst, szSummary := rec.Uint("szScopeInst"), rec.Uint("szSummary")
	for i, r := range metrics {
		off := pMetrics + uint64(i)*szMetric
		met, err := d.metric(off, r, szInst, szSummary)
		if err != nil {
			return err
		}
		pm.Metrics = append(pm.Metrics, met)
	}
	m.Metrics = pm
	return nil
}

func (d *decoder) scope(ptrOff, p uint64) (*model.PropagationScope, error) {
	s, ok := d.scopes[p]
	if !ok {
		return nil, d.errorf(ptrOff, "unresolved propagation scope pointer 0x%x", p)
	}
	return s, nil
}

func (d *decoder) metric(off uint64, r structfield.Record, szInst, szSummary uint64) (*model.Metric, error) {
	name, err := d.requiredString(off, r.Uint("pName"))
	if err != nil {
		return nil, err
	}
	met := &model.Metric{Name: name}

	pInsts := r.Uint("pScopeInsts")
	insts, err := d.src.Records(ScopeInst, pInsts, r.Uint("nScopeInsts"), szInst, d.ver)
	if err != nil {
		return nil, err
	}
	for i, ir := range insts {
		iOff := pInsts + uint64(i)*szInst
		s, err := d.scope(iOff, ir.Uint("pScope"))
		if err != nil {
			return nil, err
		}
		met.ScopeInsts = append(met.ScopeInsts, &model.PropagationScopeInstance{
			Scope:        s,
			PropMetricID: uint16(ir.Uint("propMetricId")), // nolint: gosec  // Decoded as u16.
		})
	}

	pSummaries := r.Uint("pSummaries")
	sums, err := d.src.Records(Summary, pSummaries, r.Uint("nSummaries"), szSummary, d.ver)
	if err != nil {
		return nil, err
	}
	for i, sr := range sums {
		sOff := pSummaries + uint64(i)*szSummary
		s, err := d.scope(sOff, sr.Uint("pScope"))
		if err != nil {
			return nil, err
		}
		st := &model.SummaryStatistic{
			Scope:        s,
			Combine:      model.Combine(sr.Uint("combine")),
			StatMetricID: uint16(sr.Uint("statMetricId")),
		}
		if st.Formula, err = d.requiredString(sOff, sr.Uint("pFormula")); err != nil {
			return nil, err
		}
		met.Summaries = append(met.Summaries, st)
	}
	return met, nil
}

func (d *decoder) tree(m *model.MetaDB) error {
	rec, _, err := d.section(SecContext, ContextSection)
	if err != nil {
		return err
	}
	p, sz := rec.Uint("pEntryPoints"), rec.Uint("szEntryPoint")
	recs, err := d.src.Records(EntryPoint, p, rec.Uint("nEntryPoints"), sz, d.ver)
	if err != nil {
		return err
	}
	t := &model.ContextTree{}
	for i, r := range recs {
		off := p + uint64(i)*sz
		e := &model.EntryPoint{
			EntryPoint: model.EntryPointKind(r.Uint("entryPoint")), // nolint: gosec  // Decoded as u16.
		}
		if e.CtxID, err = d.ctxID(off, r); err != nil {
			return err
		}
		if e.PrettyName, err = d.src.OptionalStringAt(r.Uint("pPrettyName")); err != nil {
			return err
		}
		if e.Children, err = d.contexts(r.Uint("pChildren"), r.Uint("szChildren")); err != nil {
			return err
		}
		t.EntryPoints = append(t.EntryPoints, e)
	}
	m.Tree = t
	return nil
}

func (d *decoder) ctxID(off uint64, r structfield.Record) (uint32, error) {
	id := uint32(r.Uint("ctxId")) // nolint: gosec  // Decoded as u32.
	if d.ctxIDs[id] {
		return 0, d.errorf(off, "duplicate context id %d", id)
	}
	d.ctxIDs[id] = true
	return id, nil
}

// contexts decodes the sz bytes of consecutive context records at p.
func (d *decoder) contexts(p, sz uint64) ([]*model.Context, error) {
	if sz == 0 {
		return nil, nil
	}
	if !d.src.Contains(p, sz) {
		return nil, d.errorf(p, "children [0x%x, +0x%x) out of bounds", p, sz)
	}
	var out []*model.Context
	end := p + sz
	for off := p; off < end; {
		if end-off < ContextFixedSize {
			return nil, d.errorf(off, "truncated context record")
		}
		if d.visited[off] {
			return nil, d.errorf(off, "context record visited twice")
		}
		d.visited[off] = true

		c, next, err := d.context(off, end)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		off = next
	}
	return out, nil
}

// context decodes the context record at off that must end before end. It
// returns the offset of the following record.
func (d *decoder) context(off, end uint64) (*model.Context, uint64, error) {
	r, err := d.src.Record(Context, off, d.ver)
	if err != nil {
		return nil, 0, err
	}
	flags := flexword.Flags(r.Uint("flags")) // nolint: gosec  // Decoded as u8.
	if flags&^flexword.Known != 0 {
		return nil, 0, d.errorf(off, "unknown context flags 0b%b", flags)
	}
	layout := flexword.NewContextLayout(flags)
	nWords := r.Uint("nFlexWords")
	if nWords != uint64(layout.Words) { // nolint: gosec  // Non-negative.
		return nil, 0, d.errorf(off, "%d flex words, expected %d for flags 0b%03b", nWords, layout.Words, flags)
	}
	next := off + ContextFixedSize + nWords*flexword.Size
	if next > end {
		return nil, 0, d.errorf(off, "context record overruns its parent's children")
	}
	words, err := d.src.Read(off+ContextFixedSize, nWords*flexword.Size)
	if err != nil {
		return nil, 0, err
	}
	fields, err := layout.Decode(words)
	if err != nil {
		return nil, 0, format.Wrap(d.src.Name(), off, err)
	}

	c := &model.Context{
		Relation:    model.Relation(r.Uint("relation")),       // nolint: gosec  // Decoded as u8.
		LexicalType: model.LexicalType(r.Uint("lexicalType")), // nolint: gosec  // Decoded as u8.
		Propagation: uint16(r.Uint("propagation")),            // nolint: gosec  // Decoded as u16.
	}
	if c.CtxID, err = d.ctxID(off, r); err != nil {
		return nil, 0, err
	}
	if flags&flexword.HasFunction != 0 {
		if fields.Function == 0 {
			return nil, 0, d.errorf(off, "function flag set with a null pointer")
		}
		if c.Function, err = d.function(off, fields.Function); err != nil {
			return nil, 0, err
		}
	}
	if flags&flexword.HasSrcLoc != 0 {
		if fields.File == 0 {
			return nil, 0, d.errorf(off, "source location flag set with a null pointer")
		}
		if c.File, err = d.file(off, fields.File); err != nil {
			return nil, 0, err
		}
		c.Line = fields.Line
	}
	if flags&flexword.HasPoint != 0 {
		if fields.Module == 0 {
			return nil, 0, d.errorf(off, "point flag set with a null pointer")
		}
		if c.Module, err = d.module(off, fields.Module); err != nil {
			return nil, 0, err
		}
		c.Offset = fields.Offset
	}

	if c.Children, err = d.contexts(r.Uint("pChildren"), r.Uint("szChildren")); err != nil {
		return nil, 0, err
	}
	return c, next, nil
}
