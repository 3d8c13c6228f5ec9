// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceStringAt(t *testing.T) {
	long := strings.Repeat("x", 3*stringChunk+5)
	raw := append([]byte("\x00\x00hello\x00"), long...)
	raw = append(raw, 0)
	src := NewBytesSource("meta.db", raw)

	s, err := src.StringAt(2)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	s, err = src.StringAt(8)
	require.NoError(t, err)
	assert.Equal(t, long, s)

	s, err = src.OptionalStringAt(0)
	require.NoError(t, err)
	assert.Equal(t, "", s)
}

func TestSourceStringAtUnterminated(t *testing.T) {
	src := NewBytesSource("meta.db", []byte("abc"))
	_, err := src.StringAt(0)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = src.StringAt(10)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestSourceRead(t *testing.T) {
	src := NewBytesSource("cct.db", []byte{1, 0, 0, 0, 0, 0, 0, 0, 9})

	v, err := src.Uint64At(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	_, err = src.Uint64At(2)
	assert.ErrorIs(t, err, ErrFormat)

	b, err := src.Read(9, 0)
	require.NoError(t, err)
	assert.Empty(t, b)

	assert.True(t, src.Contains(0, 9))
	assert.False(t, src.Contains(1, 9))
	assert.False(t, src.Contains(10, 0))
}

type shortReader struct{}

func (shortReader) ReadAt(p []byte, _ int64) (int, error) {
	return len(p) / 2, io.EOF
}

func TestSourceReadShort(t *testing.T) {
	src := NewSource("trace.db", shortReader{}, 64)
	_, err := src.Read(0, 8)
	assert.ErrorIs(t, err, ErrFormat)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("a", 0, nil))

	inner := Errorf("a", 4, "bad")
	assert.Same(t, inner, Wrap("b", 8, inner))

	base := errors.New("boom")
	err := Wrap("b", 8, base)
	assert.ErrorIs(t, err, ErrFormat)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "b: 0x8: boom", err.Error())
}
