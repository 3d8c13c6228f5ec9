// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package diff

import "github.com/hpctoolkit/hpcdb/internal/pkg/model"

// Pair is a single left to right correspondence of a Mapping.
type Pair struct {
	A, B model.Object
	// Path is the structural path of A.
	Path string
}

// Mapping is one candidate one-to-one correspondence between the objects of
// the left and the right graph.
//
// Pairs are kept in an append-only log in the order they were decided.
// Truncating the log to an earlier length undoes every later decision.
type Mapping struct {
	log []Pair
	fwd map[model.Object]model.Object
	rev map[model.Object]model.Object
}

func newMapping() *Mapping {
	return &Mapping{
		fwd: make(map[model.Object]model.Object),
		rev: make(map[model.Object]model.Object),
	}
}

// Forward returns the right object a maps to.
func (m *Mapping) Forward(a model.Object) (model.Object, bool) {
	b, ok := m.fwd[a]
	return b, ok
}

// Reverse returns the left object mapping to b.
func (m *Mapping) Reverse(b model.Object) (model.Object, bool) {
	a, ok := m.rev[b]
	return a, ok
}

// Len returns the number of pairs of m.
func (m *Mapping) Len() int { return len(m.log) }

// Pairs returns the pairs of m in the order they were decided. The returned
// slice must not be modified.
func (m *Mapping) Pairs() []Pair { return m.log }

// add records a↔b. It returns false, leaving m unchanged, if either side is
// already paired with another object.
func (m *Mapping) add(a, b model.Object, path string) bool {
	if got, ok := m.fwd[a]; ok {
		return got == b
	}
	if _, ok := m.rev[b]; ok {
		return false
	}
	m.fwd[a] = b
	m.rev[b] = a
	m.log = append(m.log, Pair{A: a, B: b, Path: path})
	return true
}

// truncate undoes every pair recorded after the first n.
func (m *Mapping) truncate(n int) {
	for i := len(m.log) - 1; i >= n; i-- {
		delete(m.fwd, m.log[i].A)
		delete(m.rev, m.log[i].B)
	}
	clear(m.log[n:])
	m.log = m.log[:n]
}

func (m *Mapping) clone() *Mapping {
	c := &Mapping{
		log: make([]Pair, len(m.log), cap(m.log)),
		fwd: make(map[model.Object]model.Object, len(m.fwd)),
		rev: make(map[model.Object]model.Object, len(m.rev)),
	}
	copy(c.log, m.log)
	for k, v := range m.fwd {
		c.fwd[k] = v
	}
	for k, v := range m.rev {
		c.rev[k] = v
	}
	return c
}
