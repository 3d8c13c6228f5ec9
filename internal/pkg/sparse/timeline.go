// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package sparse

import (
	"encoding/binary"
	"sync"

	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
)

// SampleSize is the on-disk size of a single trace sample.
const SampleSize = 12

// Sample is a single (timestamp, context) element of a trace.
type Sample struct {
	Timestamp uint64
	CtxID     uint32
}

// Timeline is a lazily read sequence of trace samples.
type Timeline struct {
	src   *format.Source
	start uint64
	n     uint64

	once    sync.Once
	samples []Sample
	err     error
}

// LoadTimeline returns the Timeline stored in [start, end) of src.
func LoadTimeline(src *format.Source, start, end uint64) (*Timeline, error) {
	if end < start || (end-start)%SampleSize != 0 {
		return nil, format.Errorf(src.Name(), start, "invalid trace range [0x%x, 0x%x)", start, end)
	}
	if !src.Contains(start, end-start) {
		return nil, format.Errorf(src.Name(), start, "trace [0x%x, 0x%x) out of bounds", start, end)
	}
	return &Timeline{src: src, start: start, n: (end - start) / SampleSize}, nil
}

// Len returns the number of samples in t.
func (t *Timeline) Len() int { return int(t.n) } // nolint: gosec  // Bounded by file size.

// Samples returns the samples of t, reading them on first use. Timestamps
// are non-decreasing, a *format.FormatError is returned otherwise.
func (t *Timeline) Samples() ([]Sample, error) {
	t.once.Do(func() {
		t.samples, t.err = t.read()
	})
	return t.samples, t.err
}

func (t *Timeline) read() ([]Sample, error) {
	raw, err := t.src.Read(t.start, t.n*SampleSize)
	if err != nil {
		return nil, err
	}
	out := make([]Sample, t.n)
	for i := range out {
		p := raw[i*SampleSize:]
		out[i] = Sample{
			Timestamp: binary.LittleEndian.Uint64(p),
			CtxID:     binary.LittleEndian.Uint32(p[8:]),
		}
		if i > 0 && out[i].Timestamp < out[i-1].Timestamp {
			off := t.start + uint64(i)*SampleSize // nolint: gosec  // Non-negative.
			return nil, format.Errorf(t.src.Name(), off, "trace timestamp %d before %d", out[i].Timestamp, out[i-1].Timestamp)
		}
	}
	return out, nil
}
