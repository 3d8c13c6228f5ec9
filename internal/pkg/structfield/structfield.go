// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package structfield provides types to describe fixed-shape binary records
// whose set of fields grows across minor format versions.
package structfield

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hashicorp/go-version"
)

// Type is the on-disk encoding of a single record field. All types have a
// fixed width, variable width data is stored out-of-line and referenced by an
// 8-byte offset.
type Type struct {
	code  typeCode
	width uint64
}

type typeCode uint8

const (
	codeUint typeCode = iota + 1
	codeFloat
	codeBytes
)

var (
	// U8 is an unsigned 8-bit integer.
	U8 = Type{code: codeUint, width: 1}
	// U16 is a little-endian unsigned 16-bit integer.
	U16 = Type{code: codeUint, width: 2}
	// U32 is a little-endian unsigned 32-bit integer.
	U32 = Type{code: codeUint, width: 4}
	// U64 is a little-endian unsigned 64-bit integer.
	U64 = Type{code: codeUint, width: 8}
	// F64 is a little-endian IEEE-754 double.
	F64 = Type{code: codeFloat, width: 8}
)

// Bytes returns a raw byte string Type of width n.
func Bytes(n uint64) Type {
	return Type{code: codeBytes, width: n}
}

// Width returns the number of bytes t occupies.
func (t Type) Width() uint64 { return t.width }

func (t Type) String() string {
	switch t.code {
	case codeUint:
		return fmt.Sprintf("u%d", t.width*8)
	case codeFloat:
		return fmt.Sprintf("f%d", t.width*8)
	case codeBytes:
		return fmt.Sprintf("bytes[%d]", t.width)
	default:
		return "invalid"
	}
}

// Field is a single named field of a record.
type Field struct {
	// Name of the field, unique within a Layout.
	Name string
	// Since is the first version the field is present in. Fields are only
	// present in versions sharing the same major version.
	Since *version.Version
	// Offset is the byte offset of the field from the start of the record.
	Offset uint64
	// Type is the encoding of the field.
	Type Type
}

// NewField returns a Field introduced in version since. It panics if since
// is not a valid version.
func NewField(name, since string, offset uint64, typ Type) Field {
	return Field{
		Name:   name,
		Since:  version.Must(version.NewVersion(since)),
		Offset: offset,
		Type:   typ,
	}
}

// present reports if f is part of the record at version ver.
func (f Field) present(ver *version.Version) bool {
	return major(f.Since) == major(ver) && f.Since.LessThanOrEqual(ver)
}

func (f Field) end() uint64 { return f.Offset + f.Type.width }

func major(v *version.Version) int {
	segs := v.Segments()
	if len(segs) == 0 {
		return 0
	}
	return segs[0]
}

// Layout is the set of fields of a record across all known versions.
type Layout struct {
	name   string
	fields []Field
	byName map[string]int
}

// NewLayout returns a new Layout named name containing fields. It panics if
// two fields share a name.
func NewLayout(name string, fields ...Field) *Layout {
	l := &Layout{
		name:   name,
		fields: fields,
		byName: make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if _, dup := l.byName[f.Name]; dup {
			panic(fmt.Sprintf("structfield: duplicate field %s.%s", name, f.Name))
		}
		l.byName[f.Name] = i
	}
	return l
}

// Name returns the name of the record l describes.
func (l *Layout) Name() string { return l.name }

// Fields returns the fields of l present at version ver, in declaration
// order.
func (l *Layout) Fields(ver *version.Version) []Field {
	var out []Field
	for _, f := range l.fields {
		if f.present(ver) {
			out = append(out, f)
		}
	}
	return out
}

// Lookup returns the field named name.
func (l *Layout) Lookup(name string) (Field, bool) {
	i, ok := l.byName[name]
	if !ok {
		return Field{}, false
	}
	return l.fields[i], true
}

// Present reports if the field name is part of the record at version ver.
func (l *Layout) Present(name string, ver *version.Version) bool {
	i, ok := l.byName[name]
	return ok && l.fields[i].present(ver)
}

// Size returns the size of the record at version ver: the end of the
// furthest field present at that version. It is zero if no fields are
// present.
func (l *Layout) Size(ver *version.Version) uint64 {
	var size uint64
	for _, f := range l.fields {
		if f.present(ver) {
			size = max(size, f.end())
		}
	}
	return size
}

// ErrShortRecord is returned when fewer bytes are available than a record
// requires.
var ErrShortRecord = errors.New("short record")

// ReadError is returned when a record cannot be read from its source.
type ReadError struct {
	Layout string
	Offset uint64
	Want   uint64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s (%d bytes) at 0x%x: %v", e.Layout, e.Want, e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Decode reads the record at absolute offset off of r at version ver. Only
// the bytes of fields present at ver are read.
func (l *Layout) Decode(r io.ReaderAt, off uint64, ver *version.Version) (Record, error) {
	size := l.Size(ver)
	buf := make([]byte, size)
	if size > 0 {
		if off > math.MaxInt64 {
			return Record{}, &ReadError{Layout: l.name, Offset: off, Want: size, Err: ErrShortRecord}
		}
		n, err := r.ReadAt(buf, int64(off)) // nolint: gosec  // Bounded.
		if uint64(n) < size {
			if err == nil || errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: got %d bytes: %w", ErrShortRecord, n, io.ErrUnexpectedEOF)
			}
			return Record{}, &ReadError{Layout: l.name, Offset: off, Want: size, Err: err}
		}
	}
	return Record{layout: l, ver: ver, raw: buf}, nil
}

// DecodeBytes decodes the record at version ver held at the start of b.
func (l *Layout) DecodeBytes(b []byte, ver *version.Version) (Record, error) {
	size := l.Size(ver)
	if uint64(len(b)) < size {
		return Record{}, &ReadError{
			Layout: l.name,
			Want:   size,
			Err:    fmt.Errorf("%w: got %d bytes", ErrShortRecord, len(b)),
		}
	}
	return Record{layout: l, ver: ver, raw: b[:size]}, nil
}

// Record is a decoded record.
//
// Accessors panic if name is not a field of the record's Layout. Fields that
// are part of the Layout but not present at the decoded version read as zero.
type Record struct {
	layout *Layout
	ver    *version.Version
	raw    []byte
}

// Version returns the version the record was decoded at.
func (r Record) Version() *version.Version { return r.ver }

// Has reports if the field name was present in the decoded record.
func (r Record) Has(name string) bool {
	return r.layout.Present(name, r.ver)
}

func (r Record) field(name string) (Field, bool) {
	i, ok := r.layout.byName[name]
	if !ok {
		panic(fmt.Sprintf("structfield: unknown field %s.%s", r.layout.name, name))
	}
	f := r.layout.fields[i]
	return f, f.present(r.ver)
}

// Uint returns the unsigned integer field name.
func (r Record) Uint(name string) uint64 {
	f, ok := r.field(name)
	if !ok {
		return 0
	}
	if f.Type.code != codeUint {
		panic(fmt.Sprintf("structfield: %s.%s is %s, not an integer", r.layout.name, name, f.Type))
	}
	b := r.raw[f.Offset:f.end()]
	switch f.Type.width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

// Float returns the floating point field name.
func (r Record) Float(name string) float64 {
	f, ok := r.field(name)
	if !ok {
		return 0
	}
	if f.Type.code != codeFloat {
		panic(fmt.Sprintf("structfield: %s.%s is %s, not a float", r.layout.name, name, f.Type))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(r.raw[f.Offset:f.end()]))
}

// Bytes returns a copy of the raw byte string field name.
func (r Record) Bytes(name string) []byte {
	f, ok := r.field(name)
	if !ok {
		return nil
	}
	out := make([]byte, f.Type.width)
	copy(out, r.raw[f.Offset:f.end()])
	return out
}
