// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package format provides the container format shared by all database
// files: the versioned header, the section table, the trailing footer and
// the byte sources they are read from.
package format

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/hpctoolkit/hpcdb/internal/pkg/structfield"
)

const (
	// Magic is the literal every database file starts with.
	Magic = "HPCTOOLKIT"
	// HeaderSize is the size of the fixed header prefix.
	HeaderSize = 16
	// FooterSize is the size of the literal at the end of every file.
	FooterSize = 8
	// SectionEntrySize is the size of a single section table entry.
	SectionEntrySize = 16
)

const (
	offMagic  = 0
	offCode   = 10
	offMajor  = 14
	offMinor  = 15
	codeWidth = 4
)

// SectionSpec declares a section of a file and the version it was
// introduced in.
type SectionSpec struct {
	Name  string
	Since string
}

// NewSectionLayout returns the layout of a section table holding specs in
// order. Each entry is a (size, offset) pair of little-endian u64 following
// the header.
func NewSectionLayout(name string, specs ...SectionSpec) *structfield.Layout {
	fields := make([]structfield.Field, 0, 2*len(specs))
	for i, s := range specs {
		base := uint64(HeaderSize + SectionEntrySize*i)
		fields = append(fields,
			structfield.NewField(s.Name+".size", s.Since, base, structfield.U64),
			structfield.NewField(s.Name+".offset", s.Since, base+8, structfield.U64),
		)
	}
	return structfield.NewLayout(name, fields...)
}

// Section is a single entry of the section table.
type Section struct {
	Name   string
	Size   uint64
	Offset uint64
	// Present is false if the section was introduced after the version of
	// the file.
	Present bool
}

// End returns the offset of the first byte after s.
func (s Section) End() uint64 { return s.Offset + s.Size }

// Header is the validated header of a file.
type Header struct {
	Kind    Kind
	Major   uint8
	Minor   uint8
	Version *version.Version
	// Sections holds an entry for every section of the table layout, keyed
	// by name.
	Sections map[string]Section
	// Order is the section names in table order.
	Order []string
	// Warnings holds non-fatal findings. Decoding proceeds when it is not
	// empty.
	Warnings []ForwardCompatibilityWarning
}

// Section returns the section named name.
func (h *Header) Section(name string) Section {
	return h.Sections[name]
}

// TableSize returns the size of the header plus the section table at the
// version of h.
func (h *Header) TableSize() uint64 {
	return HeaderSize + uint64(len(h.presentSections()))*SectionEntrySize
}

func (h *Header) presentSections() []string {
	var out []string
	for _, n := range h.Order {
		if h.Sections[n].Present {
			out = append(out, n)
		}
	}
	return out
}

// Sniff returns the kind of src from the format code of its header. Only the
// magic and the format code are checked.
func Sniff(src *Source) (Kind, error) {
	name := src.Name()
	if src.Size() < HeaderSize {
		return 0, Errorf(name, 0, "file too small (%d bytes)", src.Size())
	}
	prefix, err := src.Read(0, HeaderSize)
	if err != nil {
		return 0, err
	}
	if got := string(prefix[offMagic:offCode]); got != Magic {
		return 0, Errorf(name, offMagic, "invalid magic %q", got)
	}
	code := string(prefix[offCode : offCode+codeWidth])
	k, ok := KindOf(code)
	if !ok {
		return 0, Errorf(name, offCode, "unknown format code %q", code)
	}
	return k, nil
}

// ReadHeader validates the header and footer of src as a file of kind and
// decodes its section table described by table.
func ReadHeader(src *Source, kind Kind, table *structfield.Layout) (*Header, error) {
	name := src.Name()
	if src.Size() < HeaderSize+FooterSize {
		return nil, Errorf(name, 0, "file too small (%d bytes)", src.Size())
	}

	prefix, err := src.Read(0, HeaderSize)
	if err != nil {
		return nil, err
	}
	if got := string(prefix[offMagic:offCode]); got != Magic {
		return nil, Errorf(name, offMagic, "invalid magic %q", got)
	}
	if got := string(prefix[offCode : offCode+codeWidth]); got != kind.Code() {
		return nil, Errorf(name, offCode, "invalid format code %q, expected %q", got, kind.Code())
	}
	footerOff := src.Size() - FooterSize
	footer, err := src.Read(footerOff, FooterSize)
	if err != nil {
		return nil, err
	}
	if got := string(footer); got != kind.Footer() {
		return nil, Errorf(name, footerOff, "invalid footer %q, expected %q", got, kind.Footer())
	}

	h := &Header{
		Kind:     kind,
		Major:    prefix[offMajor],
		Minor:    prefix[offMinor],
		Sections: make(map[string]Section),
	}
	h.Version, err = version.NewVersion(fmt.Sprintf("%d.%d", h.Major, h.Minor))
	if err != nil {
		return nil, Wrap(name, offMajor, err)
	}

	supported := kind.Supported()
	if h.Version.Segments()[0] != supported.Segments()[0] {
		return nil, &IncompatibleVersionError{File: name, Found: h.Version, Supported: supported}
	}
	if h.Version.GreaterThan(supported) {
		h.Warnings = append(h.Warnings, ForwardCompatibilityWarning{
			File:      name,
			Found:     h.Version,
			Supported: supported,
		})
	}

	rec, err := table.Decode(src, 0, h.Version)
	if err != nil {
		return nil, Wrap(name, HeaderSize, err)
	}
	for _, f := range table.Fields(supported) {
		secName, ok := strings.CutSuffix(f.Name, ".size")
		if !ok {
			continue
		}
		if _, seen := h.Sections[secName]; seen {
			continue
		}
		h.Order = append(h.Order, secName)
		sec := Section{Name: secName}
		if rec.Has(f.Name) {
			sec.Present = true
			sec.Size = rec.Uint(secName + ".size")
			sec.Offset = rec.Uint(secName + ".offset")
			if !src.Contains(sec.Offset, sec.Size) {
				return nil, Errorf(name, f.Offset, "section %s [0x%x, +0x%x) out of bounds", secName, sec.Offset, sec.Size)
			}
		}
		h.Sections[secName] = sec
	}
	return h, nil
}
