// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package flexword packs a variable subset of optional record fields into
// consecutive 8-byte flex words.
//
// Fields are placed first-fit: a field of width w goes into the first
// existing word with w unused bytes aligned to w, otherwise a new word is
// appended. The encoder and the decoder must place the same fields in the
// same order to agree on the layout.
package flexword

import (
	"encoding/binary"
	"fmt"
)

// Size is the number of bytes in a flex word.
const Size = 8

// Slot is the location of a field within a run of flex words.
type Slot struct {
	Word   int
	Offset int
	Width  int
}

// Start returns the byte offset of s from the first flex word.
func (s Slot) Start() int { return s.Word*Size + s.Offset }

// Allocator places fields into flex words first-fit.
type Allocator struct {
	// used holds a bitmask of the occupied bytes of each word.
	used []uint8
}

// Place allocates width bytes aligned to width and returns their location.
// It panics unless width is 1, 2, 4 or 8.
func (a *Allocator) Place(width int) Slot {
	switch width {
	case 1, 2, 4, 8:
	default:
		panic(fmt.Sprintf("flexword: invalid width %d", width))
	}
	mask := uint8(1<<width - 1)
	if width == Size {
		mask = 0xff
	}
	for w, used := range a.used {
		for off := 0; off+width <= Size; off += width {
			m := mask << off
			if used&m == 0 {
				a.used[w] |= m
				return Slot{Word: w, Offset: off, Width: width}
			}
		}
	}
	a.used = append(a.used, mask)
	return Slot{Word: len(a.used) - 1, Offset: 0, Width: width}
}

// Words returns the number of flex words allocated.
func (a *Allocator) Words() int { return len(a.used) }

// Flags selects the optional fields of a calling context.
type Flags uint8

const (
	// HasFunction marks the presence of the function pointer.
	HasFunction Flags = 1 << iota
	// HasSrcLoc marks the presence of the source file pointer and line.
	HasSrcLoc
	// HasPoint marks the presence of the module pointer and offset.
	HasPoint

	// Known is the set of all known flags.
	Known = HasFunction | HasSrcLoc | HasPoint
)

// ContextLayout is the placement of the optional fields of a calling
// context. Slots of absent fields have a zero Width.
type ContextLayout struct {
	Flags    Flags
	Function Slot
	File     Slot
	Line     Slot
	Module   Slot
	Offset   Slot
	Words    int
}

// NewContextLayout places the fields selected by flags in the fixed order
// function, file, line, module, offset.
func NewContextLayout(flags Flags) ContextLayout {
	var a Allocator
	l := ContextLayout{Flags: flags}
	if flags&HasFunction != 0 {
		l.Function = a.Place(8)
	}
	if flags&HasSrcLoc != 0 {
		l.File = a.Place(8)
		l.Line = a.Place(4)
	}
	if flags&HasPoint != 0 {
		l.Module = a.Place(8)
		l.Offset = a.Place(8)
	}
	l.Words = a.Words()
	return l
}

// ContextFields are the values of the optional fields of a calling context.
type ContextFields struct {
	Function uint64
	File     uint64
	Line     uint32
	Module   uint64
	Offset   uint64
}

// Decode reads the fields of l from words. It returns an error if words is
// not exactly l.Words flex words long.
func (l ContextLayout) Decode(words []byte) (ContextFields, error) {
	if len(words) != l.Words*Size {
		return ContextFields{}, fmt.Errorf("flexword: %d bytes for %d words", len(words), l.Words)
	}
	var f ContextFields
	if l.Flags&HasFunction != 0 {
		f.Function = get64(words, l.Function)
	}
	if l.Flags&HasSrcLoc != 0 {
		f.File = get64(words, l.File)
		f.Line = binary.LittleEndian.Uint32(words[l.Line.Start():])
	}
	if l.Flags&HasPoint != 0 {
		f.Module = get64(words, l.Module)
		f.Offset = get64(words, l.Offset)
	}
	return f, nil
}

// Encode returns the flex words holding f placed according to l.
func (l ContextLayout) Encode(f ContextFields) []byte {
	words := make([]byte, l.Words*Size)
	if l.Flags&HasFunction != 0 {
		put64(words, l.Function, f.Function)
	}
	if l.Flags&HasSrcLoc != 0 {
		put64(words, l.File, f.File)
		binary.LittleEndian.PutUint32(words[l.Line.Start():], f.Line)
	}
	if l.Flags&HasPoint != 0 {
		put64(words, l.Module, f.Module)
		put64(words, l.Offset, f.Offset)
	}
	return words
}

func get64(words []byte, s Slot) uint64 {
	return binary.LittleEndian.Uint64(words[s.Start():])
}

func put64(words []byte, s Slot, v uint64) {
	binary.LittleEndian.PutUint64(words[s.Start():], v)
}
