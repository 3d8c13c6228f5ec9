// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package accuracy

import (
	"fmt"
	"math"
)

// Kind classifies the difference of two values.
type Kind uint8

const (
	// Equal values are identical.
	Equal Kind = iota
	// Mantissa values differ by Difference.Mantissa in mantissa units.
	Mantissa
	// BadSign values have opposite signs.
	BadSign
	// ExpDiff values have exponents more than one apart, or one of them is
	// not finite.
	ExpDiff
)

func (k Kind) String() string {
	switch k {
	case Equal:
		return "equal"
	case Mantissa:
		return "mantissa"
	case BadSign:
		return "bad_sign"
	case ExpDiff:
		return "exp_diff"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Difference is the outcome of comparing two values.
type Difference struct {
	Kind Kind
	// Mantissa is the distance of the values in units of the normalized
	// mantissa, which is in [0.5, 1). It is only set for Kind Mantissa.
	Mantissa float64
}

// Compare returns the difference of a and b.
//
// Both values are decomposed into a mantissa in [0.5, 1) and an exponent.
// With equal exponents the difference is the distance of the mantissas.
// With exponents one apart it is the sum of the distances of each mantissa
// to the power of two between the values.
func Compare(a, b float64) Difference {
	if a == b || math.Float64bits(a) == math.Float64bits(b) {
		return Difference{Kind: Equal}
	}
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return Difference{Kind: ExpDiff}
	}
	if math.Signbit(a) != math.Signbit(b) {
		return Difference{Kind: BadSign}
	}

	ma, ea := math.Frexp(math.Abs(a))
	mb, eb := math.Frexp(math.Abs(b))
	if a == 0 {
		ea = eb
	}
	if b == 0 {
		eb = ea
	}
	if ea > eb {
		ma, ea, mb, eb = mb, eb, ma, ea
	}
	var d float64
	switch eb - ea {
	case 0:
		d = math.Abs(ma - mb)
	case 1:
		d = (1 - ma) + (mb - 0.5)
	default:
		return Difference{Kind: ExpDiff}
	}
	if d == 0 {
		return Difference{Kind: Equal}
	}
	return Difference{Kind: Mantissa, Mantissa: d}
}

// ULPs returns d in units in the last place of a mantissa of precision
// bits. BadSign and ExpDiff are infinitely large.
func (d Difference) ULPs(precision int) float64 {
	switch d.Kind {
	case Equal:
		return 0
	case Mantissa:
		return math.Ldexp(d.Mantissa, precision)
	default:
		return math.Inf(1)
	}
}

// Fails reports if d exceeds grace units in the last place of a mantissa of
// precision bits.
func (d Difference) Fails(precision, grace int) bool {
	switch d.Kind {
	case Equal:
		return false
	case Mantissa:
		return d.Mantissa > math.Ldexp(float64(grace), -precision)
	default:
		return true
	}
}
