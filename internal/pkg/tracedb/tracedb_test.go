// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package tracedb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpctoolkit/hpcdb/internal/pkg/dbtest"
	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	"github.com/hpctoolkit/hpcdb/internal/pkg/sparse"
	"github.com/hpctoolkit/hpcdb/internal/pkg/tracedb"
)

func decode(raw []byte) error {
	_, _, err := tracedb.Decode(format.NewBytesSource("trace.db", raw))
	return err
}

func TestDecode(t *testing.T) {
	raw := dbtest.EncodeTraces(*dbtest.SampleTraces(), dbtest.Options{})
	db, h, err := tracedb.Decode(format.NewBytesSource("trace.db", raw))
	require.NoError(t, err)
	assert.Empty(t, h.Warnings)
	assert.Equal(t, uint64(100), db.MinTimestamp)
	assert.Equal(t, uint64(400), db.MaxTimestamp)

	require.Len(t, db.Traces, 2)
	assert.Equal(t, uint32(1), db.Traces[0].ProfIndex)
	assert.Equal(t, 4, db.Traces[0].Timeline.Len())
	s, err := db.Traces[1].Timeline.Samples()
	require.NoError(t, err)
	assert.Equal(t, []sparse.Sample{{Timestamp: 150, CtxID: 10}, {Timestamp: 400, CtxID: 4}}, s)
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name   string
		traces dbtest.Traces
		msg    string
	}{
		{
			name: "min after max",
			traces: dbtest.Traces{MinTimestamp: 5, MaxTimestamp: 1, Traces: []dbtest.Trace{
				{ProfIndex: 1},
			}},
			msg: "minimum timestamp 5 after maximum 1",
		},
		{
			name: "duplicate profile",
			traces: dbtest.Traces{MaxTimestamp: 1, Traces: []dbtest.Trace{
				{ProfIndex: 1, Samples: []sparse.Sample{{Timestamp: 1, CtxID: 2}}},
				{ProfIndex: 1},
			}},
			msg: "duplicate trace for profile 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decode(dbtest.EncodeTraces(tt.traces, dbtest.Options{}))
			assert.ErrorIs(t, err, format.ErrFormat)
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestDecodeEmptyIgnoresTimestamps(t *testing.T) {
	assert.NoError(t, decode(dbtest.EncodeTraces(dbtest.Traces{MinTimestamp: 5, MaxTimestamp: 1}, dbtest.Options{})))
}

func TestDecodeDecreasingTimestamps(t *testing.T) {
	raw := dbtest.EncodeTraces(dbtest.Traces{MaxTimestamp: 10, Traces: []dbtest.Trace{
		{ProfIndex: 1, Samples: []sparse.Sample{{Timestamp: 10, CtxID: 2}, {Timestamp: 9, CtxID: 3}}},
	}}, dbtest.Options{})
	db, _, err := tracedb.Decode(format.NewBytesSource("trace.db", raw))
	require.NoError(t, err, "samples are read lazily")

	_, err = db.Traces[0].Timeline.Samples()
	assert.ErrorIs(t, err, format.ErrFormat)
	assert.ErrorContains(t, err, "trace timestamp 9 before 10")
}
