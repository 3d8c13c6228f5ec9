// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package diff compares two decoded database graphs.
//
// Objects are matched by their key fields. When keys do not tell siblings
// apart, every candidate pair is tried and the comparison forks into one
// context per consistent assignment. Ambiguity never fails a comparison:
// objects that cannot be matched are reported as removed and added.
package diff

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
)

// DefaultMaxAssignments is the default of Options.MaxAssignments.
const DefaultMaxAssignments = 64

// ErrKindMismatch is returned when comparing objects of different kinds.
var ErrKindMismatch = errors.New("cannot compare objects of different kinds")

// Options configure a comparison.
type Options struct {
	// MaxAssignments bounds the number of assignments enumerated for a
	// single group of ambiguous siblings. Larger groups are reported as
	// removed and added. DefaultMaxAssignments is used if it is not
	// positive.
	MaxAssignments int
	// Logger receives debug messages about ambiguous groups. slog.Default
	// is used if nil.
	Logger *slog.Logger
}

// Diff compares a with b.
//
// When a and b are *model.Database, value blocks and traces are associated
// through their owning contexts and profiles. Otherwise ids are associated
// by equality.
//
// An error is only returned if a and b are of different kinds or lazily
// read content, such as trace samples, fails to decode.
func Diff(a, b model.Object, opts Options) (*Result, error) {
	if a == nil || b == nil {
		return nil, errors.New("cannot compare a nil object")
	}
	if a.Kind() != b.Kind() {
		return nil, fmt.Errorf("%w: %s and %s", ErrKindMismatch, a.Kind(), b.Kind())
	}
	if opts.MaxAssignments <= 0 {
		opts.MaxAssignments = DefaultMaxAssignments
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	e := &engine{
		maxAssignments: opts.MaxAssignments,
		logger:         opts.Logger,
		ctxs:           []*Mapping{newMapping()},
	}
	e.dbA, _ = a.(*model.Database)
	e.dbB, _ = b.(*model.Database)

	e.match(a, b, "")
	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	return &Result{
		A:        a,
		B:        b,
		Removed:  dedupChanges(e.removed),
		Added:    dedupChanges(e.added),
		Altered:  dedupAlterations(e.altered),
		Contexts: e.ctxs,
	}, nil
}

func dedupChanges(in []Change) []Change {
	seen := make(map[model.Object]bool, len(in))
	var out []Change
	for _, c := range in {
		if seen[c.Object] {
			continue
		}
		seen[c.Object] = true
		out = append(out, c)
	}
	return out
}

func dedupAlterations(in []Alteration) []Alteration {
	type pair struct{ a, b model.Object }
	seen := make(map[pair]bool, len(in))
	var out []Alteration
	for _, a := range in {
		p := pair{a.A, a.B}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, a)
	}
	return out
}
