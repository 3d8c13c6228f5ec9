// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"math"

	"github.com/hashicorp/go-version"

	"github.com/hpctoolkit/hpcdb/internal/pkg/structfield"
)

// Record decodes the record of layout l at absolute offset off at version
// ver. Read failures are returned as a *FormatError.
func (s *Source) Record(l *structfield.Layout, off uint64, ver *version.Version) (structfield.Record, error) {
	rec, err := l.Decode(s, off, ver)
	if err != nil {
		return structfield.Record{}, Wrap(s.name, off, err)
	}
	return rec, nil
}

// Records decodes the n records of layout l stored every stride bytes from
// off. Strides larger than the record size at ver are records of a newer
// minor version; smaller ones are a *FormatError.
func (s *Source) Records(l *structfield.Layout, off, n, stride uint64, ver *version.Version) ([]structfield.Record, error) {
	if n == 0 {
		return nil, nil
	}
	if size := l.Size(ver); stride < size {
		return nil, Errorf(s.name, off, "%s stride %d smaller than record size %d", l.Name(), stride, size)
	}
	if (stride > 0 && n > math.MaxUint64/stride) || !s.Contains(off, n*stride) {
		return nil, Errorf(s.name, off, "%d %s records out of bounds", n, l.Name())
	}
	raw, err := s.Read(off, n*stride)
	if err != nil {
		return nil, err
	}
	out := make([]structfield.Record, n)
	for i := range out {
		rec, err := l.DecodeBytes(raw[uint64(i)*stride:], ver)
		if err != nil {
			return nil, Wrap(s.name, off+uint64(i)*stride, err)
		}
		out[i] = rec
	}
	return out, nil
}

// SectionRecord decodes the record of layout l at the start of the section
// name of h. The section must be large enough to hold it.
func (s *Source) SectionRecord(h *Header, name string, l *structfield.Layout) (structfield.Record, error) {
	sec := h.Section(name)
	if size := l.Size(h.Version); sec.Size < size {
		return structfield.Record{}, Errorf(s.name, sec.Offset, "section %s too small: %d < %d bytes", name, sec.Size, size)
	}
	return s.Record(l, sec.Offset, h.Version)
}
