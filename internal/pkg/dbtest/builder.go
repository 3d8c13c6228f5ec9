// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package dbtest encodes database files for tests.
//
// Records are written through the same structfield layouts the decoders
// read, so a layout change is picked up by both sides.
package dbtest

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hashicorp/go-version"

	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	"github.com/hpctoolkit/hpcdb/internal/pkg/sparse"
	"github.com/hpctoolkit/hpcdb/internal/pkg/structfield"
)

// Options tune the encoding of a file.
type Options struct {
	// Minor is the minor version written in the header.
	Minor uint8
	// Pad is appended to the stride of every record array, as a newer minor
	// version with additional fields would.
	Pad uint64
}

type builder struct {
	kind format.Kind
	opts Options
	ver  *version.Version
	buf  []byte
}

func newBuilder(kind format.Kind, table *structfield.Layout, opts Options) *builder {
	major := kind.Supported().Segments()[0]
	ver := version.Must(version.NewVersion(fmt.Sprintf("%d.%d", major, opts.Minor)))
	b := &builder{kind: kind, opts: opts, ver: ver}
	b.buf = append(b.buf, format.Magic...)
	b.buf = append(b.buf, kind.Code()...)
	b.buf = append(b.buf, byte(major), opts.Minor)
	b.buf = append(b.buf, make([]byte, table.Size(ver)-format.HeaderSize)...)
	return b
}

func (b *builder) len() uint64 { return uint64(len(b.buf)) }

func (b *builder) align() {
	for len(b.buf)%8 != 0 {
		b.buf = append(b.buf, 0)
	}
}

// reserve appends n zero bytes aligned to 8 and returns their offset.
func (b *builder) reserve(n uint64) uint64 {
	b.align()
	off := b.len()
	b.buf = append(b.buf, make([]byte, n)...)
	return off
}

// stride returns the on-disk stride of records of l.
func (b *builder) stride(l *structfield.Layout) uint64 {
	return l.Size(b.ver) + b.opts.Pad
}

// array reserves n records of l and returns their base and stride.
func (b *builder) array(l *structfield.Layout, n int) (uint64, uint64) {
	st := b.stride(l)
	if n == 0 {
		return 0, st
	}
	return b.reserve(st * uint64(n)), st
}

// record reserves a single record of l.
func (b *builder) record(l *structfield.Layout) uint64 {
	return b.reserve(l.Size(b.ver))
}

func (b *builder) put(off uint64, l *structfield.Layout, name string, v uint64) {
	f, ok := l.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("dbtest: unknown field %s.%s", l.Name(), name))
	}
	p := b.buf[off+f.Offset:]
	switch f.Type.Width() {
	case 1:
		p[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(p, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(p, uint32(v))
	default:
		binary.LittleEndian.PutUint64(p, v)
	}
}

func (b *builder) putUint64(off, v uint64) {
	binary.LittleEndian.PutUint64(b.buf[off:], v)
}

// str appends s NUL-terminated and returns its offset.
func (b *builder) str(s string) uint64 {
	off := b.len()
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	return off
}

// section records [start, end of buffer) as the section name.
func (b *builder) section(table *structfield.Layout, name string, start uint64) {
	b.align()
	size, ok := table.Lookup(name + ".size")
	if !ok {
		panic(fmt.Sprintf("dbtest: unknown section %s", name))
	}
	b.putUint64(size.Offset, b.len()-start)
	b.putUint64(size.Offset+8, start)
}

func (b *builder) finish() []byte {
	b.align()
	return append(b.buf, b.kind.Footer()...)
}

// block writes a sparse value block and returns its descriptor. Column keys
// are written in ascending order, rows ascending within a column.
func (b *builder) block(l sparse.Layout, values map[uint32]map[uint32]float64) sparse.Descriptor {
	cols := sortedKeys(values)
	var d sparse.Descriptor
	for _, c := range cols {
		d.NValues += uint64(len(values[c]))
	}
	d.NColumns = uint64(len(cols))
	if d.NColumns == 0 {
		return d
	}

	d.PValues = b.reserve(d.NValues * l.PairSize())
	d.PIndex = b.reserve(d.NColumns * l.IndexSize())
	var n uint64
	for i, c := range cols {
		e := d.PIndex + uint64(i)*l.IndexSize()
		putKey(b.buf[e:], l.ColWidth, c)
		binary.LittleEndian.PutUint64(b.buf[e+uint64(l.ColWidth):], n)
		for _, r := range sortedKeys(values[c]) {
			p := d.PValues + n*l.PairSize()
			putKey(b.buf[p:], l.RowWidth, r)
			binary.LittleEndian.PutUint64(b.buf[p+uint64(l.RowWidth):], math.Float64bits(values[c][r]))
			n++
		}
	}
	return d
}

func putKey(p []byte, width int, k uint32) {
	if width == 2 {
		binary.LittleEndian.PutUint16(p, uint16(k))
		return
	}
	binary.LittleEndian.PutUint32(p, k)
}
