// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
)

// stringChunk is the number of bytes read at a time when looking for the end
// of a NUL-terminated string.
const stringChunk = 64

// Source is a read-only random access byte source. It is safe for concurrent
// use if the underlying io.ReaderAt is.
type Source struct {
	name   string
	r      io.ReaderAt
	size   uint64
	closer io.Closer
}

// NewSource returns a Source named name reading size bytes from r.
func NewSource(name string, r io.ReaderAt, size int64) *Source {
	return &Source{name: name, r: r, size: uint64(max(size, 0))} // nolint: gosec  // Bounded.
}

// NewBytesSource returns a Source reading from b.
func NewBytesSource(name string, b []byte) *Source {
	return NewSource(name, bytes.NewReader(b), int64(len(b)))
}

// OpenFile returns a Source reading the file at path. The returned Source
// needs to be closed.
func OpenFile(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s := NewSource(path, f, info.Size())
	s.closer = f
	return s, nil
}

// Close releases the resources held by s.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Name returns the name of s used in errors.
func (s *Source) Name() string { return s.name }

// Size returns the number of bytes in s.
func (s *Source) Size() uint64 { return s.size }

// ReadAt implements io.ReaderAt.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	return s.r.ReadAt(p, off)
}

// Contains reports if the n bytes at off are within s.
func (s *Source) Contains(off, n uint64) bool {
	return off <= s.size && n <= s.size-off
}

// Read returns the n bytes at absolute offset off. A *FormatError is
// returned if s holds fewer bytes.
func (s *Source) Read(off, n uint64) ([]byte, error) {
	if !s.Contains(off, n) || off > math.MaxInt64 {
		return nil, Errorf(s.name, off, "read of %d bytes past end of file (size %d)", n, s.size)
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	got, err := s.r.ReadAt(buf, int64(off)) // nolint: gosec  // Bounded.
	if uint64(got) < n {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, Wrap(s.name, off, err)
	}
	return buf, nil
}

// Uint64At returns the little-endian unsigned 64-bit integer at off.
func (s *Source) Uint64At(off uint64) (uint64, error) {
	b, err := s.Read(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// StringAt returns the NUL-terminated string at off. Bytes are read in small
// chunks so the string may be anywhere in an arbitrarily large source.
func (s *Source) StringAt(off uint64) (string, error) {
	var buf []byte
	pos := off
	for {
		if pos >= s.size {
			return "", Errorf(s.name, off, "unterminated string")
		}
		n := min(uint64(stringChunk), s.size-pos)
		chunk, err := s.Read(pos, n)
		if err != nil {
			return "", err
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			buf = append(buf, chunk[:i]...)
			return string(buf), nil
		}
		buf = append(buf, chunk...)
		pos += n
	}
}

// OptionalStringAt returns the string at off, or the empty string if off is
// the null pointer.
func (s *Source) OptionalStringAt(off uint64) (string, error) {
	if off == 0 {
		return "", nil
	}
	return s.StringAt(off)
}
