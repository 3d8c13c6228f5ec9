// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package accuracy evaluates the numeric agreement of the value blocks of two
// compared graphs.
package accuracy

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/hpctoolkit/hpcdb/internal/pkg/diff"
	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
	"github.com/hpctoolkit/hpcdb/internal/pkg/sparse"
)

// Defaults of Options.
const (
	DefaultPrecision = 53
	DefaultGrace     = 1
	DefaultWorst     = 10
)

// Options configure an evaluation. A zero Precision or Worst and a negative
// Grace take their default.
type Options struct {
	// Precision is the number of mantissa bits values are compared at.
	Precision int
	// Grace is the number of units in the last place two values may differ
	// by and still be considered equal. Zero tolerates no difference.
	Grace int
	// Worst is the number of failures reported. A negative value reports
	// all of them.
	Worst int
}

func (o Options) withDefaults() Options {
	if o.Precision <= 0 {
		o.Precision = DefaultPrecision
	}
	if o.Grace < 0 {
		o.Grace = DefaultGrace
	}
	if o.Worst == 0 {
		o.Worst = DefaultWorst
	}
	return o
}

// Failure is a pair of values that differ by more than the grace.
type Failure struct {
	// Path is the structural path of the left value block owner.
	Path string
	// Column and Row are the keys of the left value. Keys of values only
	// present on the right are mapped back to the left.
	Column, Row uint32
	A, B        float64
	Difference  Difference
	// ULPs is the difference in units in the last place.
	ULPs float64
}

// Report is the outcome of an evaluation.
type Report struct {
	// Inaccuracy is Failed/Total, or 1 if nothing was compared.
	Inaccuracy float64
	Failed     int
	Total      int
	// Context is the index of the evaluated diff context, -1 if there is
	// none.
	Context int
	// Failures holds the worst failures, largest first.
	Failures []Failure
}

// Evaluate compares every value of the left graph of r with the value of the
// right graph at the same, remapped, keys. Missing values compare as 0.
//
// Every context of r is evaluated. The one with the fewest failures that
// does not compare fewer values than the best so far is reported.
func Evaluate(r *diff.Result, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	ev := &evaluator{opts: opts}
	ev.dbA, _ = r.A.(*model.Database)
	ev.dbB, _ = r.B.(*model.Database)
	if ev.dbA == nil || ev.dbB == nil {
		ev.dbA, ev.dbB = nil, nil
	}

	var best *Report
	var bestFailures []Failure
	for i, m := range r.Contexts {
		failures, total, err := ev.context(m)
		if err != nil {
			return nil, err
		}
		if best != nil && !(len(failures) < best.Failed && total >= best.Total) {
			continue
		}
		best = &Report{Failed: len(failures), Total: total, Context: i}
		bestFailures = failures
		if best.Failed == 0 {
			break
		}
	}
	if best == nil {
		return &Report{Inaccuracy: 1, Context: -1}, nil
	}

	best.Inaccuracy = 1
	if best.Total > 0 {
		best.Inaccuracy = float64(best.Failed) / float64(best.Total)
	}
	slices.SortStableFunc(bestFailures, func(a, b Failure) int {
		if c := cmp.Compare(b.ULPs, a.ULPs); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	if opts.Worst >= 0 && len(bestFailures) > opts.Worst {
		bestFailures = bestFailures[:opts.Worst]
	}
	best.Failures = bestFailures
	return best, nil
}

// keyspace is what the keys of a value block dimension identify.
type keyspace uint8

const (
	contextIDs keyspace = iota
	propMetricIDs
	statMetricIDs
	profileIndices
)

type evaluator struct {
	opts Options
	// dbA and dbB remap keys. Keys map by identity if they are nil.
	dbA, dbB *model.Database
}

func (ev *evaluator) context(m *diff.Mapping) ([]Failure, int, error) {
	var failures []Failure
	total := 0
	for _, p := range m.Pairs() {
		var (
			a, b     *sparse.Block
			col, row keyspace
		)
		switch pa := p.A.(type) {
		case *model.Profile:
			pb := p.B.(*model.Profile)
			if pa.Values == nil || pb.Values == nil {
				continue
			}
			a, b = pa.Values.Block, pb.Values.Block
			col, row = contextIDs, propMetricIDs
			if pa.IsSummary() {
				row = statMetricIDs
			}
		case *model.ContextValues:
			a, b = pa.Block, p.B.(*model.ContextValues).Block
			col, row = propMetricIDs, profileIndices
		default:
			continue
		}
		if a == nil || b == nil {
			continue
		}
		bc := &blockComparison{ev: ev, m: m, path: p.Path, col: col, row: row}
		if err := bc.run(a, b); err != nil {
			return nil, 0, err
		}
		failures = append(failures, bc.failures...)
		total += bc.total
	}
	return failures, total, nil
}

// remap returns the key of the object identified by id on one side as seen
// on the other side. ok is false if the key does not map.
func (ev *evaluator) remap(m *diff.Mapping, ks keyspace, id uint32, forward bool) (uint32, bool) {
	from, to := ev.dbA, ev.dbB
	if !forward {
		from, to = to, from
	}
	if from == nil || to == nil {
		return id, true
	}
	o, ok := lookup(from, ks, id)
	if !ok {
		return 0, false
	}
	var t model.Object
	if forward {
		t, ok = m.Forward(o)
	} else {
		t, ok = m.Reverse(o)
	}
	if !ok {
		return 0, false
	}
	return keyOf(t)
}

func lookup(db *model.Database, ks keyspace, id uint32) (model.Object, bool) {
	switch ks {
	case contextIDs:
		if c, ok := db.Context(id); ok {
			return c, true
		}
	case propMetricIDs:
		if si, ok := db.ScopeInstance(id); ok {
			return si, true
		}
	case statMetricIDs:
		if st, ok := db.Statistic(id); ok {
			return st, true
		}
	case profileIndices:
		if p, ok := db.Profile(id); ok {
			return p, true
		}
	}
	return nil, false
}

func keyOf(o model.Object) (uint32, bool) {
	switch o := o.(type) {
	case model.CallingContext:
		return o.ContextID(), true
	case *model.PropagationScopeInstance:
		return uint32(o.PropMetricID), true
	case *model.SummaryStatistic:
		return uint32(o.StatMetricID), true
	case *model.Profile:
		return o.Index, true
	}
	return 0, false
}

type cell struct{ col, row uint32 }

type blockComparison struct {
	ev       *evaluator
	m        *diff.Mapping
	path     string
	col, row keyspace

	seen     map[cell]bool
	total    int
	failures []Failure
}

func (bc *blockComparison) run(a, b *sparse.Block) error {
	bc.seen = make(map[cell]bool)
	for _, c := range a.Columns() {
		cb, ok := bc.ev.remap(bc.m, bc.col, c, true)
		if !ok {
			continue
		}
		colA, err := a.Column(c)
		if err != nil {
			return err
		}
		colB, err := column(b, cb)
		if err != nil {
			return err
		}
		for _, r := range colA.Rows() {
			rb, ok := bc.ev.remap(bc.m, bc.row, r, true)
			if !ok {
				continue
			}
			va, _ := colA.Get(r)
			vb, _ := colB.Get(rb)
			bc.seen[cell{cb, rb}] = true
			bc.compare(c, r, va, vb)
		}
	}

	// Values only present on the right.
	for _, cb := range b.Columns() {
		c, ok := bc.ev.remap(bc.m, bc.col, cb, false)
		if !ok {
			continue
		}
		colB, err := b.Column(cb)
		if err != nil {
			return err
		}
		for _, rb := range colB.Rows() {
			if bc.seen[cell{cb, rb}] {
				continue
			}
			r, ok := bc.ev.remap(bc.m, bc.row, rb, false)
			if !ok {
				continue
			}
			vb, _ := colB.Get(rb)
			bc.compare(c, r, 0, vb)
		}
	}
	return nil
}

func (bc *blockComparison) compare(c, r uint32, a, b float64) {
	bc.total++
	d := Compare(a, b)
	if !d.Fails(bc.ev.opts.Precision, bc.ev.opts.Grace) {
		return
	}
	bc.failures = append(bc.failures, Failure{
		Path:       bc.path,
		Column:     c,
		Row:        r,
		A:          a,
		B:          b,
		Difference: d,
		ULPs:       d.ULPs(bc.ev.opts.Precision),
	})
}

// column returns column c of b, or an empty column if b has no values
// recorded for c.
func column(b *sparse.Block, c uint32) (sparse.Column, error) {
	col, err := b.Column(c)
	if errors.Is(err, sparse.ErrNotFound) {
		return sparse.Column{}, nil
	}
	return col, err
}

func (f Failure) String() string {
	ulps := "inf"
	if !math.IsInf(f.ULPs, 0) {
		ulps = fmt.Sprintf("%g", f.ULPs)
	}
	return fmt.Sprintf("%s [%d, %d]: %g vs %g (%s, %s ulps)", f.Path, f.Column, f.Row, f.A, f.B, f.Difference.Kind, ulps)
}
