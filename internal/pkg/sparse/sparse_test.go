// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package sparse

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
)

// profileLayout is the layout of profile.db value blocks: u16 metric rows
// keyed by u32 context columns.
var profileLayout = Layout{RowWidth: 2, ColWidth: 4}

type pair struct {
	row   uint16
	value float64
}

type entry struct {
	col   uint32
	start uint64
}

func encode(pairs []pair, index []entry) ([]byte, Descriptor) {
	var b []byte
	d := Descriptor{NValues: uint64(len(pairs)), NColumns: uint64(len(index))}

	d.PValues = 8 // Leave the null pointer unused.
	b = make([]byte, 8)
	for _, p := range pairs {
		b = binary.LittleEndian.AppendUint16(b, p.row)
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.value))
	}
	d.PIndex = uint64(len(b))
	for _, e := range index {
		b = binary.LittleEndian.AppendUint32(b, e.col)
		b = binary.LittleEndian.AppendUint64(b, e.start)
	}
	return b, d
}

func testBlock(t *testing.T) *Block {
	t.Helper()
	raw, d := encode(
		[]pair{{1, 1.5}, {2, 2.5}, {1, 10}, {3, -4}},
		[]entry{{col: 5, start: 0}, {col: 7, start: 2}, {col: 9, start: 2}},
	)
	b, err := Load(format.NewBytesSource("profile.db", raw), profileLayout, d)
	require.NoError(t, err)
	return b
}

func TestBlockColumn(t *testing.T) {
	b := testBlock(t)
	assert.Equal(t, []uint32{5, 7, 9}, b.Columns())
	assert.Equal(t, uint64(4), b.Len())
	assert.Equal(t, 3, b.Pending())

	col, err := b.Column(5)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, col.Rows())
	v, ok := col.Get(2)
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)
	assert.Equal(t, 2, b.Pending())

	// Last column ends at the total count.
	col, err = b.Column(9)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 3}, col.Rows())
	v, _ = col.Get(3)
	assert.Equal(t, -4.0, v)
	assert.Equal(t, 1, b.Pending())
}

func TestBlockEmptyVersusNotFound(t *testing.T) {
	b := testBlock(t)

	col, err := b.Column(7)
	require.NoError(t, err, "materialized but empty")
	assert.Equal(t, 0, col.Len())

	_, err = b.Column(6)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlockCached(t *testing.T) {
	b := testBlock(t)
	first, err := b.Column(5)
	require.NoError(t, err)
	second, err := b.Column(5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, b.Pending())
}

func TestBlockConcurrentAccess(t *testing.T) {
	b := testBlock(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, c := range b.Columns() {
				_, err := b.Column(c)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Pending())
}

func TestBlockAll(t *testing.T) {
	b := testBlock(t)
	all, err := b.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 0, b.Pending())
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name  string
		pairs []pair
		index []entry
	}{
		{"unsorted", []pair{{1, 1}}, []entry{{col: 2}, {col: 1}}},
		{"decreasing start", []pair{{1, 1}, {2, 2}}, []entry{{col: 1, start: 1}, {col: 2, start: 0}}},
		{"start past end", []pair{{1, 1}}, []entry{{col: 1, start: 2}}},
		{"no index", []pair{{1, 1}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, d := encode(tt.pairs, tt.index)
			_, err := Load(format.NewBytesSource("profile.db", raw), profileLayout, d)
			assert.ErrorIs(t, err, format.ErrFormat)
		})
	}
}

func TestLoadOutOfBounds(t *testing.T) {
	raw, d := encode([]pair{{1, 1}}, []entry{{col: 1}})
	d.NValues = 100
	_, err := Load(format.NewBytesSource("profile.db", raw), profileLayout, d)
	assert.ErrorIs(t, err, format.ErrFormat)
}

func TestBlockCheckRows(t *testing.T) {
	b := testBlock(t)
	b.CheckRows("metric id", func(row uint32) bool { return row != 3 })

	col, err := b.Column(5)
	require.NoError(t, err)
	assert.Equal(t, 2, col.Len())

	_, err = b.Column(9)
	assert.ErrorIs(t, err, format.ErrFormat)
	assert.ErrorContains(t, err, "unknown metric id 3")
	assert.Equal(t, 2, b.Pending())
}

func TestColumnDuplicateRow(t *testing.T) {
	raw, d := encode([]pair{{1, 1}, {1, 2}}, []entry{{col: 1}})
	b, err := Load(format.NewBytesSource("profile.db", raw), profileLayout, d)
	require.NoError(t, err)

	_, err = b.Column(1)
	assert.ErrorIs(t, err, format.ErrFormat)
	assert.Equal(t, 1, b.Pending(), "failed column stays pending")
}
