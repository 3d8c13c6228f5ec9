// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package diff_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpctoolkit/hpcdb/internal/pkg/cctdb"
	"github.com/hpctoolkit/hpcdb/internal/pkg/dbtest"
	"github.com/hpctoolkit/hpcdb/internal/pkg/diff"
	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
	"github.com/hpctoolkit/hpcdb/internal/pkg/sparse"
)

func database(t *testing.T, f *dbtest.Fixture) *model.Database {
	t.Helper()
	db, err := f.Database()
	require.NoError(t, err)
	return db
}

// assertIdentity asserts that m maps every object owned by a to the object
// at the same position in b.
func assertIdentity(t *testing.T, m *diff.Mapping, a, b model.Object) {
	t.Helper()
	got, ok := m.Forward(a)
	require.True(t, ok, "%s not mapped", a.Kind())
	require.Same(t, b, got, "%s mapped to another object", a.Kind())

	fb := b.Fields()
	for i, f := range a.Fields() {
		if f.Role != model.RoleOwned {
			continue
		}
		switch v := f.Value.(type) {
		case model.Object:
			assertIdentity(t, m, v, fb[i].Value.(model.Object))
		case []model.Object:
			w := fb[i].Value.([]model.Object)
			require.Len(t, w, len(v))
			for j := range v {
				assertIdentity(t, m, v[j], w[j])
			}
		}
	}
}

func TestDiffIdempotent(t *testing.T) {
	tests := []struct {
		name   string
		object func(*model.Database) model.Object
	}{
		{name: "database", object: func(db *model.Database) model.Object { return db }},
		{name: "meta", object: func(db *model.Database) model.Object { return db.Meta }},
		{name: "profiles", object: func(db *model.Database) model.Object { return db.Profiles }},
		{name: "contexts", object: func(db *model.Database) model.Object { return db.Contexts }},
		{name: "traces", object: func(db *model.Database) model.Object { return db.Traces }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.object(database(t, dbtest.Sample()))
			b := tt.object(database(t, dbtest.Sample()))

			res, err := diff.Diff(a, b, diff.Options{})
			require.NoError(t, err)
			assert.True(t, res.Equal())
			assert.Empty(t, res.Removed)
			assert.Empty(t, res.Added)
			assert.Empty(t, res.Altered)
			require.Len(t, res.Contexts, 1)
			assertIdentity(t, res.Contexts[0], a, b)
		})
	}
}

func TestDiffIdentifierNameAndScope(t *testing.T) {
	f := dbtest.Sample()
	f.Meta.IdNames.Names[4] = "FOO"
	f.Meta.Metrics.Scopes = append(f.Meta.Metrics.Scopes, &model.PropagationScope{Name: "custom", Type: model.ScopeCustom})

	a, b := database(t, dbtest.Sample()), database(t, f)
	res, err := diff.Diff(a, b, diff.Options{})
	require.NoError(t, err)

	assert.Empty(t, res.Removed)
	require.Len(t, res.Altered, 1)
	alt := res.Altered[0]
	assert.Same(t, a.Meta.IdNames, alt.A)
	assert.Same(t, b.Meta.IdNames, alt.B)
	assert.Equal(t, []string{"names"}, alt.Fields)
	assert.Equal(t, "/meta/idNames", alt.Path)

	require.Len(t, res.Added, 1)
	added := res.Added[0]
	assert.Same(t, b.Meta.Metrics.Scopes[3], added.Object)
	assert.Equal(t, "/meta/metrics/scopes", added.Path)
	assert.Len(t, res.Contexts, 1)

	groups := res.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "/meta/idNames", groups[0].Path)
	assert.Len(t, groups[0].Altered, 1)
	assert.Equal(t, "/meta/metrics/scopes", groups[1].Path)
	assert.Len(t, groups[1].Added, 1)

	var out bytes.Buffer
	require.NoError(t, res.Render(&out))
	assert.Contains(t, out.String(), "+ PropagationScope{name=custom type=custom}")
	assert.Contains(t, out.String(), "names: [SUMMARY NODE RANK THREAD CORE] -> [SUMMARY NODE RANK THREAD FOO]")
	assert.Contains(t, out.String(), "0 removed, 1 added, 1 altered, 1 contexts")
}

func TestDiffFunctionSwap(t *testing.T) {
	f := dbtest.Sample()
	foo := f.Meta.Tree.EntryPoints[0].Children[0].Children[0].Children[1]
	require.Equal(t, "foo", foo.Function.Name)
	foo.Function = f.Meta.Functions[0]

	a, b := database(t, dbtest.Sample()).Meta, database(t, f).Meta
	res, err := diff.Diff(a, b, diff.Options{})
	require.NoError(t, err)

	loopA := a.Tree.EntryPoints[0].Children[0].Children[0]
	loopB := b.Tree.EntryPoints[0].Children[0].Children[0]
	path := "/tree/entryPoints[0]/children[0]/children[0]/children"
	assert.Equal(t, []diff.Change{{Path: path, Object: loopA.Children[1]}}, res.Removed)
	assert.Equal(t, []diff.Change{{Path: path, Object: loopB.Children[1]}}, res.Added)
	assert.Empty(t, res.Altered)

	require.Len(t, res.Contexts, 1)
	m := res.Contexts[0]
	for _, pair := range [][2]*model.Context{
		{loopA, loopB},
		{loopA.Children[0], loopB.Children[0]},
		{a.Tree.EntryPoints[0].Children[0].Children[1], b.Tree.EntryPoints[0].Children[0].Children[1]},
		{a.Tree.EntryPoints[0].Children[0].Children[2], b.Tree.EntryPoints[0].Children[0].Children[2]},
	} {
		got, ok := m.Forward(pair[0])
		assert.True(t, ok)
		assert.Same(t, pair[1], got)
	}
	_, ok := m.Forward(loopA.Children[1].Children[0])
	assert.False(t, ok, "children of a removed context are not mapped")
}

func twinMeta(t *testing.T) (*model.MetaDB, *model.Context, *model.Context) {
	t.Helper()
	f := &dbtest.Fixture{Meta: dbtest.SampleMeta()}
	dbtest.TwinLoops(f.Meta)
	db := database(t, f)
	main := db.Meta.Tree.EntryPoints[0].Children[0]
	n := len(main.Children)
	return db.Meta, main.Children[n-2], main.Children[n-1]
}

func TestDiffAmbiguousFork(t *testing.T) {
	a, a1, a2 := twinMeta(t)
	b, b1, b2 := twinMeta(t)

	res, err := diff.Diff(a, b, diff.Options{})
	require.NoError(t, err)
	assert.True(t, res.Equal())
	require.Len(t, res.Contexts, 2)

	images := make(map[model.Object]bool)
	for _, m := range res.Contexts {
		got1, ok := m.Forward(a1)
		require.True(t, ok)
		got2, ok := m.Forward(a2)
		require.True(t, ok)
		assert.NotSame(t, got1, got2)
		images[got1] = true

		seen := make(map[model.Object]bool)
		for _, p := range m.Pairs() {
			assert.False(t, seen[p.B], "%s mapped twice", p.B.Kind())
			seen[p.B] = true
			back, ok := m.Reverse(p.B)
			assert.True(t, ok)
			assert.Same(t, p.A, back)
		}

		// The line children follow their loop.
		child, ok := m.Forward(a1.Children[0])
		require.True(t, ok)
		assert.Same(t, got1.(*model.Context).Children[0], child)
	}
	assert.Equal(t, map[model.Object]bool{b1: true, b2: true}, images)
}

func TestDiffMaxAssignments(t *testing.T) {
	a, a1, a2 := twinMeta(t)
	b, b1, b2 := twinMeta(t)

	res, err := diff.Diff(a, b, diff.Options{MaxAssignments: 1})
	require.NoError(t, err)
	require.Len(t, res.Contexts, 1)
	assert.ElementsMatch(t, []model.Object{a1, a2}, objects(res.Removed))
	assert.ElementsMatch(t, []model.Object{b1, b2}, objects(res.Added))
	assert.Empty(t, res.Altered)
}

func TestDiffUnequalAmbiguousGroup(t *testing.T) {
	a, a1, a2 := twinMeta(t)
	f := &dbtest.Fixture{Meta: dbtest.SampleMeta()}
	dbtest.TwinLoops(f.Meta)
	dbtest.TwinLoops(f.Meta)
	b := database(t, f).Meta

	res, err := diff.Diff(a, b, diff.Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Object{a1, a2}, objects(res.Removed))
	assert.Len(t, res.Added, 4)
	require.Len(t, res.Contexts, 1)
}

func objects(changes []diff.Change) []model.Object {
	out := make([]model.Object, len(changes))
	for i, c := range changes {
		out[i] = c.Object
	}
	return out
}

func TestDiffTraceSample(t *testing.T) {
	f := dbtest.Sample()
	f.Traces.Traces[0].Samples[1] = sparse.Sample{Timestamp: 200, CtxID: 4}

	a, b := database(t, dbtest.Sample()), database(t, f)
	res, err := diff.Diff(a, b, diff.Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.Added)
	require.Len(t, res.Altered, 1)
	alt := res.Altered[0]
	assert.Equal(t, model.KindTraceSample, alt.A.Kind())
	assert.Equal(t, []string{"context"}, alt.Fields)
	assert.Equal(t, "/traces/traces[0]/samples[1]", alt.Path)
}

func TestDiffTracePrunesForks(t *testing.T) {
	fixture := func() *dbtest.Fixture {
		f := &dbtest.Fixture{Meta: dbtest.SampleMeta()}
		first, second := dbtest.TwinLoops(f.Meta)
		f.Profiles = []dbtest.Profile{
			{Summary: true},
			{Tuple: []dbtest.Identifier{{Kind: 3, Logical: 0}}},
		}
		f.Traces = &dbtest.Traces{
			MinTimestamp: 1,
			MaxTimestamp: 2,
			Traces: []dbtest.Trace{
				{ProfIndex: 1, Samples: []sparse.Sample{{Timestamp: 1, CtxID: first.CtxID}, {Timestamp: 2, CtxID: second.CtxID}}},
			},
		}
		return f
	}

	a, b := database(t, fixture()), database(t, fixture())
	res, err := diff.Diff(a, b, diff.Options{})
	require.NoError(t, err)
	assert.True(t, res.Equal())
	assert.Empty(t, res.Altered)
	require.Len(t, res.Contexts, 1)
	assertIdentity(t, res.Contexts[0], a.Meta, b.Meta)
}

func TestDiffStandaloneTrace(t *testing.T) {
	f := dbtest.Sample()
	f.Traces.Traces[1].Samples[0].CtxID = 9

	a, b := database(t, dbtest.Sample()).Traces, database(t, f).Traces
	res, err := diff.Diff(a, b, diff.Options{})
	require.NoError(t, err)
	require.Len(t, res.Altered, 1)
	assert.Equal(t, []string{"ctxId"}, res.Altered[0].Fields)
}

func decodeContexts(t *testing.T, ctxs []dbtest.Values) *model.ContextDB {
	t.Helper()
	src := format.NewBytesSource("cct.db", dbtest.EncodeContexts(ctxs, dbtest.Options{}))
	db, _, err := cctdb.Decode(src)
	require.NoError(t, err)
	return db
}

func TestDiffContextValuesByID(t *testing.T) {
	profiles := dbtest.SampleProfiles()
	n := dbtest.NumContexts(dbtest.SampleMeta())
	a := decodeContexts(t, dbtest.Transpose(profiles, n))
	b := decodeContexts(t, append(dbtest.Transpose(profiles, n), dbtest.Values{dbtest.TimePoint: {1: 5}}))

	res, err := diff.Diff(a, b, diff.Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.Altered)
	require.Len(t, res.Added, 1)
	assert.Equal(t, "/contexts", res.Added[0].Path)
	assert.EqualValues(t, n, res.Added[0].Object.(*model.ContextValues).CtxID)
}

func TestDiffKindMismatch(t *testing.T) {
	db := database(t, dbtest.Sample())
	_, err := diff.Diff(db.Meta, db.Profiles, diff.Options{})
	assert.ErrorIs(t, err, diff.ErrKindMismatch)
}
