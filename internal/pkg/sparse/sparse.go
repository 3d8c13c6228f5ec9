// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package sparse provides lazily materialized sparse value blocks.
//
// A block is stored as a flat array of (row, value) pairs and an index of
// (column, start) entries sorted by column. The values of a column are the
// pairs from its start up to the start of the next column.
package sparse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
)

// ErrNotFound is returned when a block has no values recorded for a column.
var ErrNotFound = errors.New("no values recorded")

const valueWidth = 8

// Layout is the width of the row and column keys of a block.
type Layout struct {
	// RowWidth is the width of the row key of each pair, 2 or 4.
	RowWidth int
	// ColWidth is the width of the column key of each index entry, 2 or 4.
	ColWidth int
}

// PairSize returns the size of a single (row, value) pair.
func (l Layout) PairSize() uint64 { return uint64(l.RowWidth + valueWidth) }

// IndexSize returns the size of a single (column, start) index entry.
func (l Layout) IndexSize() uint64 { return uint64(l.ColWidth + valueWidth) }

// Descriptor locates a block within a source.
type Descriptor struct {
	NValues  uint64
	PValues  uint64
	NColumns uint64
	PIndex   uint64
}

// Block is a sparse mapping from column to {row → value}. Columns are
// materialized on first access and immutable afterwards. A Block is safe for
// concurrent use.
type Block struct {
	src    *format.Source
	layout Layout
	desc   Descriptor

	cols   []uint32
	starts []uint64

	mu      sync.Mutex
	pending map[uint32]int
	cache   map[uint32]Column

	// rowName and validRow reject unknown row keys on materialization.
	rowName  string
	validRow func(uint32) bool
}

// Load reads the index of the block described by d from src. The values
// themselves are read when a column is first accessed.
func Load(src *format.Source, l Layout, d Descriptor) (*Block, error) {
	b := &Block{
		src:     src,
		layout:  l,
		desc:    d,
		pending: make(map[uint32]int, d.NColumns),
		cache:   make(map[uint32]Column),
	}
	if d.NValues > math.MaxUint64/l.PairSize() || !src.Contains(d.PValues, d.NValues*l.PairSize()) {
		return nil, format.Errorf(src.Name(), d.PValues, "%d values out of bounds", d.NValues)
	}
	if d.NColumns == 0 {
		if d.NValues != 0 {
			return nil, format.Errorf(src.Name(), d.PIndex, "%d values without an index", d.NValues)
		}
		return b, nil
	}
	if d.NColumns > math.MaxUint64/l.IndexSize() {
		return nil, format.Errorf(src.Name(), d.PIndex, "%d index entries out of bounds", d.NColumns)
	}
	raw, err := src.Read(d.PIndex, d.NColumns*l.IndexSize())
	if err != nil {
		return nil, err
	}

	b.cols = make([]uint32, d.NColumns)
	b.starts = make([]uint64, d.NColumns)
	for i := range b.cols {
		e := raw[uint64(i)*l.IndexSize():]
		b.cols[i] = readKey(e, l.ColWidth)
		b.starts[i] = binary.LittleEndian.Uint64(e[l.ColWidth:])

		off := d.PIndex + uint64(i)*l.IndexSize()
		if i > 0 && b.cols[i] <= b.cols[i-1] {
			return nil, format.Errorf(src.Name(), off, "index not sorted: column %d after %d", b.cols[i], b.cols[i-1])
		}
		if i > 0 && b.starts[i] < b.starts[i-1] {
			return nil, format.Errorf(src.Name(), off, "index start %d before %d", b.starts[i], b.starts[i-1])
		}
		if b.starts[i] > d.NValues {
			return nil, format.Errorf(src.Name(), off, "index start %d past %d values", b.starts[i], d.NValues)
		}
		b.pending[b.cols[i]] = i
	}
	return b, nil
}

func readKey(b []byte, width int) uint32 {
	if width == 2 {
		return uint32(binary.LittleEndian.Uint16(b))
	}
	return binary.LittleEndian.Uint32(b)
}

// Columns returns the sorted column keys with recorded values.
func (b *Block) Columns() []uint32 {
	return slices.Clone(b.cols)
}

// CheckRows makes the materialization of a column fail with a format error
// if it holds a row key valid rejects. name describes the row keys.
func (b *Block) CheckRows(name string, valid func(row uint32) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rowName, b.validRow = name, valid
}

// Len returns the total number of values in b.
func (b *Block) Len() uint64 { return b.desc.NValues }

// Pending returns the number of columns not materialized yet.
func (b *Block) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Column returns the values of column c. ErrNotFound is returned if b holds
// no entry for c; a column with an entry but no values is returned empty.
func (b *Block) Column(c uint32) (Column, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if col, ok := b.cache[c]; ok {
		return col, nil
	}
	i, ok := b.pending[c]
	if !ok {
		return Column{}, fmt.Errorf("%w: column %d", ErrNotFound, c)
	}

	start, end := b.starts[i], b.desc.NValues
	if i+1 < len(b.starts) {
		end = b.starts[i+1]
	}
	col, err := b.materialize(start, end)
	if err != nil {
		return Column{}, err
	}
	delete(b.pending, c)
	b.cache[c] = col
	return col, nil
}

func (b *Block) materialize(start, end uint64) (Column, error) {
	ps := b.layout.PairSize()
	off := b.desc.PValues + start*ps
	raw, err := b.src.Read(off, (end-start)*ps)
	if err != nil {
		return Column{}, err
	}
	values := make(map[uint32]float64, end-start)
	for i := uint64(0); i < end-start; i++ {
		p := raw[i*ps:]
		row := readKey(p, b.layout.RowWidth)
		if _, dup := values[row]; dup {
			return Column{}, format.Errorf(b.src.Name(), off+i*ps, "duplicate row %d", row)
		}
		if b.validRow != nil && !b.validRow(row) {
			return Column{}, format.Errorf(b.src.Name(), off+i*ps, "unknown %s %d", b.rowName, row)
		}
		values[row] = math.Float64frombits(binary.LittleEndian.Uint64(p[b.layout.RowWidth:]))
	}
	return Column{values: values}, nil
}

// All materializes every column of b.
func (b *Block) All() (map[uint32]Column, error) {
	out := make(map[uint32]Column, len(b.cols))
	var err error
	for _, c := range b.cols {
		col, e := b.Column(c)
		if e != nil {
			err = errors.Join(err, e)
			continue
		}
		out[c] = col
	}
	return out, err
}

// Column is an immutable mapping from row to value.
type Column struct {
	values map[uint32]float64
}

// Get returns the value recorded for row and true, or zero and false.
func (c Column) Get(row uint32) (float64, bool) {
	v, ok := c.values[row]
	return v, ok
}

// Rows returns the sorted row keys of c.
func (c Column) Rows() []uint32 {
	out := make([]uint32, 0, len(c.values))
	for r := range c.values {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of values in c.
func (c Column) Len() int { return len(c.values) }
