// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package diff

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
)

type engine struct {
	maxAssignments int
	logger         *slog.Logger

	// dbA and dbB resolve the owners of value blocks and traces. They are
	// nil unless whole databases are compared.
	dbA, dbB *model.Database

	ctxs    []*Mapping
	removed []Change
	added   []Change
	altered []Alteration
	errs    []error

	// samples caches the resolved samples of every trace read so far.
	samples map[*model.ContextTrace][]model.Object
}

// snapshot is the engine state a trial can be rolled back to.
type snapshot struct {
	ctxs    []*Mapping
	lens    []int
	removed int
	added   int
	altered int
}

func (e *engine) snapshot() snapshot {
	s := snapshot{
		ctxs:    append([]*Mapping(nil), e.ctxs...),
		lens:    make([]int, len(e.ctxs)),
		removed: len(e.removed),
		added:   len(e.added),
		altered: len(e.altered),
	}
	for i, m := range e.ctxs {
		s.lens[i] = m.Len()
	}
	return s
}

// diffs returns the number of differences recorded since s.
func (e *engine) diffs(s snapshot) int {
	return len(e.removed) - s.removed + len(e.added) - s.added + len(e.altered) - s.altered
}

func (e *engine) rollback(s snapshot) {
	for i, m := range s.ctxs {
		m.truncate(s.lens[i])
	}
	e.ctxs = s.ctxs
	e.discardDiffs(s)
}

func (e *engine) discardDiffs(s snapshot) {
	e.removed = e.removed[:s.removed]
	e.added = e.added[:s.added]
	e.altered = e.altered[:s.altered]
}

// set records a↔b in every context. Contexts it makes inconsistent are
// discarded.
func (e *engine) set(a, b model.Object, path string) {
	live := make([]*Mapping, 0, len(e.ctxs))
	for _, m := range e.ctxs {
		if m.add(a, b, path) {
			live = append(live, m)
		}
	}
	e.ctxs = live
}

// presume reports if a context maps a to b and, if so, keeps only the
// contexts that do. Two nil objects presume each other.
func (e *engine) presume(a, b model.Object) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	var keep []*Mapping
	for _, m := range e.ctxs {
		if got, ok := m.fwd[a]; ok && got == b {
			keep = append(keep, m)
		}
	}
	if len(keep) == 0 {
		return false
	}
	e.ctxs = keep
	return true
}

func (e *engine) remove(path string, objs ...model.Object) {
	for _, o := range objs {
		e.removed = append(e.removed, Change{Path: path, Object: o})
	}
}

func (e *engine) add(path string, objs ...model.Object) {
	for _, o := range objs {
		e.added = append(e.added, Change{Path: path, Object: o})
	}
}

// match pairs a with b and compares them field by field.
func (e *engine) match(a, b model.Object, path string) {
	e.set(a, b, path)
	if fields := e.attrs(a, b); len(fields) > 0 {
		e.altered = append(e.altered, Alteration{Path: path, A: a, B: b, Fields: fields})
	}
	e.children(a, b, path)
}

// attrs returns the names of the differing key and attribute fields of a
// and b. References differ unless a context maps one to the other.
func (e *engine) attrs(a, b model.Object) []string {
	fa, fb := a.Fields(), b.Fields()
	var out []string
	for i, f := range fa {
		g := fb[i]
		if f.Role != g.Role {
			out = append(out, f.Name)
			continue
		}
		if f.Role != model.RoleKey && f.Role != model.RoleAttr {
			continue
		}
		if f.IsRef() || g.IsRef() {
			if !e.presume(asObject(f.Value), asObject(g.Value)) {
				out = append(out, f.Name)
			}
			continue
		}
		if !reflect.DeepEqual(f.Value, g.Value) {
			out = append(out, f.Name)
		}
	}
	// Samples of unresolved contexts are compared by id.
	if sa, ok := a.(*model.TraceSample); ok {
		sb := b.(*model.TraceSample)
		if sa.Context == nil && sb.Context == nil && sa.CtxID != sb.CtxID {
			out = append(out, "ctxId")
		}
	}
	return out
}

// children compares the owned fields of the matched pair a, b.
func (e *engine) children(a, b model.Object, path string) {
	switch a.Kind() {
	case model.KindDatabase:
		e.single(a, b, path, "meta", "profiles", "contexts", "traces")
	case model.KindMetaDB:
		e.single(a, b, path, "general", "idNames")
		e.isomorphic(a, b, path, "modules")
		e.isomorphic(a, b, path, "files")
		e.isomorphic(a, b, path, "functions")
		e.single(a, b, path, "metrics", "tree")
	case model.KindPerformanceMetrics:
		e.isomorphic(a, b, path, "scopes")
		e.isomorphic(a, b, path, "metrics")
	case model.KindMetric:
		e.isomorphic(a, b, path, "scopeInsts")
		e.isomorphic(a, b, path, "summaries")
	case model.KindContextTree:
		e.isomorphic(a, b, path, "entryPoints")
	case model.KindEntryPoint, model.KindContext:
		e.isomorphic(a, b, path, "children")
	case model.KindProfileDB:
		e.isomorphic(a, b, path, "profiles")
	case model.KindProfile:
		e.single(a, b, path, "idTuple", "values")
	case model.KindIdentifierTuple:
		e.sequential(owned(a, "ids"), owned(b, "ids"), path+"/ids")
	case model.KindContextDB:
		e.delegated(a, b, path, "contexts")
	case model.KindTraceDB:
		e.delegated(a, b, path, "traces")
	case model.KindContextTrace:
		e.timelines(a.(*model.ContextTrace), b.(*model.ContextTrace), path)
	case model.KindGeneralProperties,
		model.KindIdentifierNames,
		model.KindPropagationScope,
		model.KindPropagationScopeInstance,
		model.KindSummaryStatistic,
		model.KindModule,
		model.KindSourceFile,
		model.KindFunction,
		model.KindIdentifier,
		model.KindProfileValues,
		model.KindContextValues,
		model.KindTraceSample:
		// Leaves. Value blocks are compared by the accuracy engine.
	default:
		panic(fmt.Sprintf("diff: unhandled kind %s", a.Kind()))
	}
}

// single compares the single-object owned fields names of a and b.
func (e *engine) single(a, b model.Object, path string, names ...string) {
	for _, name := range names {
		oa, ob := asObject(field(a, name)), asObject(field(b, name))
		p := path + "/" + name
		switch {
		case oa == nil && ob == nil:
		case ob == nil:
			e.remove(p, oa)
		case oa == nil:
			e.add(p, ob)
		default:
			e.match(oa, ob, p)
		}
	}
}

// sequential pairs as and bs by position.
func (e *engine) sequential(as, bs []model.Object, path string) {
	n := min(len(as), len(bs))
	for i := 0; i < n; i++ {
		e.match(as[i], bs[i], elem(path, i))
	}
	e.remove(path, as[n:]...)
	e.add(path, bs[n:]...)
}

// isomorphic matches the owned collections name of a and b as unordered
// sets grouped by key.
func (e *engine) isomorphic(a, b model.Object, path, name string) {
	path += "/" + name
	as, bs := owned(a, name), owned(b, name)

	type group struct{ a, b []int }
	groups := make(map[string]*group)
	var order []string
	lookup := func(o model.Object) *group {
		k := key(o)
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
			order = append(order, k)
		}
		return g
	}
	for i, o := range as {
		g := lookup(o)
		g.a = append(g.a, i)
	}
	for j, o := range bs {
		g := lookup(o)
		g.b = append(g.b, j)
	}

	for _, k := range order {
		g := groups[k]
		switch {
		case len(g.b) == 0:
			for _, i := range g.a {
				e.remove(path, as[i])
			}
		case len(g.a) == 0:
			for _, j := range g.b {
				e.add(path, bs[j])
			}
		case len(g.a) == 1 && len(g.b) == 1:
			e.match(as[g.a[0]], bs[g.b[0]], elem(path, g.a[0]))
		default:
			e.ambiguous(as, bs, g.a, g.b, path)
		}
	}
}

// trial reports if matching a with b records no difference and leaves a
// consistent context. The engine state is left unchanged.
func (e *engine) trial(a, b model.Object, path string) bool {
	s := e.snapshot()
	e.match(a, b, path)
	ok := e.diffs(s) == 0 && len(e.ctxs) > 0
	e.rollback(s)
	return ok
}

// ambiguous matches the elements ia of as with the elements ib of bs that
// share a key.
func (e *engine) ambiguous(as, bs []model.Object, ia, ib []int, path string) {
	compat := make([][]bool, len(ia))
	for x, i := range ia {
		compat[x] = make([]bool, len(ib))
		for y, j := range ib {
			compat[x][y] = e.trial(as[i], bs[j], elem(path, i))
		}
	}

	usedA := make([]bool, len(ia))
	usedB := make([]bool, len(ib))
	candidates := func(x int, fromA bool) []int {
		var out []int
		if fromA {
			for y := range ib {
				if !usedB[y] && compat[x][y] {
					out = append(out, y)
				}
			}
			return out
		}
		for y := range ia {
			if !usedA[y] && compat[y][x] {
				out = append(out, y)
			}
		}
		return out
	}

	// Resolve forced pairs and unmatched elements until nothing changes.
	for changed := true; changed; {
		changed = false
		for x := range ia {
			if usedA[x] {
				continue
			}
			switch c := candidates(x, true); len(c) {
			case 0:
				usedA[x], changed = true, true
				e.remove(path, as[ia[x]])
			case 1:
				usedA[x], usedB[c[0]], changed = true, true, true
				e.match(as[ia[x]], bs[ib[c[0]]], elem(path, ia[x]))
			}
		}
		for y := range ib {
			if usedB[y] {
				continue
			}
			switch c := candidates(y, false); len(c) {
			case 0:
				usedB[y], changed = true, true
				e.add(path, bs[ib[y]])
			case 1:
				usedA[c[0]], usedB[y], changed = true, true, true
				e.match(as[ia[c[0]]], bs[ib[y]], elem(path, ia[c[0]]))
			}
		}
	}

	var ra, rb []int
	for x, used := range usedA {
		if !used {
			ra = append(ra, x)
		}
	}
	for y, used := range usedB {
		if !used {
			rb = append(rb, y)
		}
	}
	if len(ra) == 0 && len(rb) == 0 {
		return
	}

	fallback := func(reason string) {
		e.logger.Debug("ambiguous siblings reported as removed and added", "path", path, "left", len(ra), "right", len(rb), "reason", reason)
		for _, x := range ra {
			e.remove(path, as[ia[x]])
		}
		for _, y := range rb {
			e.add(path, bs[ib[y]])
		}
	}
	if len(ra) != len(rb) {
		fallback("unequal group sizes")
		return
	}

	assignments := enumerate(len(ra), func(x, y int) bool { return compat[ra[x]][rb[y]] }, e.maxAssignments+1)
	switch {
	case len(assignments) == 0:
		fallback("no consistent assignment")
		return
	case len(assignments) > e.maxAssignments:
		fallback("too many assignments")
		return
	}

	orig := e.ctxs
	var forks []*Mapping
	for _, asg := range assignments {
		e.ctxs = make([]*Mapping, len(orig))
		for i, m := range orig {
			e.ctxs[i] = m.clone()
		}
		s := e.snapshot()
		for x, y := range asg {
			i := ia[ra[x]]
			e.match(as[i], bs[ib[rb[y]]], elem(path, i))
		}
		if e.diffs(s) == 0 {
			forks = append(forks, e.ctxs...)
		}
		e.discardDiffs(s)
	}
	if len(forks) == 0 {
		e.ctxs = orig
		fallback("no consistent assignment")
		return
	}
	e.logger.Debug("ambiguous siblings forked", "path", path, "size", len(ra), "contexts", len(forks))
	e.ctxs = forks
}

// enumerate returns up to limit perfect matchings of an n×n bipartite graph
// with edges ok. Matching i of the result pairs x with result[i][x].
func enumerate(n int, ok func(x, y int) bool, limit int) [][]int {
	var out [][]int
	cur := make([]int, n)
	used := make([]bool, n)
	var walk func(x int)
	walk = func(x int) {
		if len(out) >= limit {
			return
		}
		if x == n {
			out = append(out, append([]int(nil), cur...))
			return
		}
		for y := 0; y < n; y++ {
			if used[y] || !ok(x, y) {
				continue
			}
			used[y] = true
			cur[x] = y
			walk(x + 1)
			used[y] = false
		}
	}
	walk(0)
	return out
}

// delegated matches the owned collections name of a and b through the
// mapping of the owner of each element. Mappings can disagree about owners,
// so every context is processed on its own. Only the contexts recording the
// fewest differences survive, and only the differences of the first of
// them are kept.
func (e *engine) delegated(a, b model.Object, path, name string) {
	path += "/" + name
	as, bs := owned(a, name), owned(b, name)
	if len(e.ctxs) <= 1 {
		var m *Mapping
		if len(e.ctxs) == 1 {
			m = e.ctxs[0]
		}
		e.delegate(m, as, bs, path)
		return
	}

	type outcome struct {
		removed []Change
		added   []Change
		altered []Alteration
	}
	orig := e.ctxs
	best, bestLive := -1, false
	var kept []*Mapping
	var first outcome
	for _, m := range orig {
		e.ctxs = []*Mapping{m}
		s := e.snapshot()
		e.delegate(m, as, bs, path)
		n, live := e.diffs(s), len(e.ctxs) > 0
		switch {
		case best < 0 || (live && !bestLive) || (live == bestLive && n < best):
			best, bestLive = n, live
			kept = append([]*Mapping(nil), e.ctxs...)
			first = outcome{
				removed: append([]Change(nil), e.removed[s.removed:]...),
				added:   append([]Change(nil), e.added[s.added:]...),
				altered: append([]Alteration(nil), e.altered[s.altered:]...),
			}
		case live == bestLive && n == best:
			kept = append(kept, e.ctxs...)
		}
		e.discardDiffs(s)
	}
	if len(kept) < len(orig) {
		e.logger.Debug("contexts pruned by owned values", "path", path, "contexts", len(kept), "differences", best)
	}
	e.ctxs = kept
	e.removed = append(e.removed, first.removed...)
	e.added = append(e.added, first.added...)
	e.altered = append(e.altered, first.altered...)
}

func (e *engine) delegate(m *Mapping, as, bs []model.Object, path string) {
	byOwner := make(map[model.Object]int, len(bs))
	byID := make(map[uint32]int, len(bs))
	for j, o := range bs {
		if ow := owner(e.dbB, o); ow != nil {
			byOwner[ow] = j
		}
		byID[ownerID(o)] = j
	}

	used := make([]bool, len(bs))
	for i, o := range as {
		var j int
		var ok bool
		if ow := owner(e.dbA, o); ow != nil && m != nil {
			if ob, found := m.fwd[ow]; found {
				j, ok = byOwner[ob]
			}
		} else {
			j, ok = byID[ownerID(o)]
		}
		if !ok || used[j] {
			e.remove(path, o)
			continue
		}
		used[j] = true
		e.match(o, bs[j], elem(path, i))
	}
	for j, o := range bs {
		if !used[j] {
			e.add(path, o)
		}
	}
}

// owner returns the object o holds the values of, or nil if db is nil or
// does not resolve it.
func owner(db *model.Database, o model.Object) model.Object {
	if db == nil {
		return nil
	}
	switch o := o.(type) {
	case *model.ContextValues:
		if c, ok := db.Context(o.CtxID); ok {
			return c
		}
	case *model.ContextTrace:
		if p, ok := db.Profile(o.ProfIndex); ok {
			return p
		}
	}
	return nil
}

func ownerID(o model.Object) uint32 {
	switch o := o.(type) {
	case *model.ContextValues:
		return o.CtxID
	case *model.ContextTrace:
		return o.ProfIndex
	}
	return 0
}

// timelines compares the samples of a and b by position.
func (e *engine) timelines(a, b *model.ContextTrace, path string) {
	sa, errA := e.traceSamples(a, e.dbA)
	sb, errB := e.traceSamples(b, e.dbB)
	if errA != nil || errB != nil {
		return
	}
	e.sequential(sa, sb, path+"/samples")
}

func (e *engine) traceSamples(t *model.ContextTrace, db *model.Database) ([]model.Object, error) {
	if s, ok := e.samples[t]; ok {
		return s, nil
	}
	raw, err := t.Samples(resolver(db))
	if err != nil {
		e.errs = append(e.errs, err)
		return nil, err
	}
	if e.samples == nil {
		e.samples = make(map[*model.ContextTrace][]model.Object)
	}
	s := objects(raw)
	e.samples[t] = s
	return s, nil
}

func resolver(db *model.Database) model.ContextResolver {
	if db == nil {
		return nil
	}
	return db
}

func field(o model.Object, name string) any {
	for _, f := range o.Fields() {
		if f.Name == name {
			return f.Value
		}
	}
	panic(fmt.Sprintf("diff: %s has no field %s", o.Kind(), name))
}

func owned(o model.Object, name string) []model.Object {
	objs, _ := field(o, name).([]model.Object)
	return objs
}

func objects[T model.Object](s []T) []model.Object {
	out := make([]model.Object, len(s))
	for i, o := range s {
		out[i] = o
	}
	return out
}

func elem(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}
