// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package flexword

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorFirstFit(t *testing.T) {
	var a Allocator

	assert.Equal(t, Slot{Word: 0, Offset: 0, Width: 4}, a.Place(4))
	assert.Equal(t, Slot{Word: 1, Offset: 0, Width: 8}, a.Place(8))
	assert.Equal(t, Slot{Word: 0, Offset: 4, Width: 2}, a.Place(2))
	assert.Equal(t, Slot{Word: 0, Offset: 6, Width: 1}, a.Place(1))
	assert.Equal(t, Slot{Word: 0, Offset: 7, Width: 1}, a.Place(1))
	assert.Equal(t, Slot{Word: 2, Offset: 0, Width: 4}, a.Place(4))
	assert.Equal(t, 3, a.Words())

	assert.Panics(t, func() { a.Place(3) })
}

func TestAllocatorAlignment(t *testing.T) {
	var a Allocator
	a.Place(1)
	// 2 bytes are free at offset 1 but not aligned.
	assert.Equal(t, Slot{Word: 0, Offset: 2, Width: 2}, a.Place(2))
	assert.Equal(t, Slot{Word: 0, Offset: 4, Width: 4}, a.Place(4))
}

func TestContextLayoutWords(t *testing.T) {
	tests := []struct {
		flags Flags
		bytes int
		words int
	}{
		{0, 0, 0},
		{HasFunction, 8, 1},
		{HasSrcLoc, 12, 2},
		{HasPoint, 16, 2},
		{HasFunction | HasSrcLoc, 20, 3},
		{HasFunction | HasPoint, 24, 3},
		{HasSrcLoc | HasPoint, 28, 4},
		{Known, 36, 5},
	}
	for _, tt := range tests {
		l := NewContextLayout(tt.flags)
		assert.Equal(t, tt.words, l.Words, "flags %03b", tt.flags)
		assert.Equal(t, (tt.bytes+Size-1)/Size, l.Words, "flags %03b", tt.flags)
	}
}

func TestContextLayoutOrder(t *testing.T) {
	l := NewContextLayout(Known)
	assert.Equal(t, Slot{Word: 0, Width: 8}, l.Function)
	assert.Equal(t, Slot{Word: 1, Width: 8}, l.File)
	assert.Equal(t, Slot{Word: 2, Width: 4}, l.Line)
	assert.Equal(t, Slot{Word: 3, Width: 8}, l.Module)
	assert.Equal(t, Slot{Word: 4, Width: 8}, l.Offset)
}

func TestContextRoundTrip(t *testing.T) {
	full := ContextFields{
		Function: 0x1000,
		File:     0x2000,
		Line:     77,
		Module:   0x3000,
		Offset:   0xabcdef,
	}
	for flags := Flags(0); flags <= Known; flags++ {
		want := ContextFields{}
		if flags&HasFunction != 0 {
			want.Function = full.Function
		}
		if flags&HasSrcLoc != 0 {
			want.File, want.Line = full.File, full.Line
		}
		if flags&HasPoint != 0 {
			want.Module, want.Offset = full.Module, full.Offset
		}

		l := NewContextLayout(flags)
		words := l.Encode(want)
		require.Len(t, words, l.Words*Size)

		got, err := l.Decode(words)
		require.NoError(t, err)
		assert.Equal(t, want, got, "flags %03b", flags)
	}
}

func TestContextDecodeWordMismatch(t *testing.T) {
	l := NewContextLayout(HasSrcLoc)
	_, err := l.Decode(make([]byte, Size))
	assert.Error(t, err)
}
