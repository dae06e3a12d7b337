// Package vecmath provides float32 vector helpers for unit-length embeddings.
package vecmath

import (
	"errors"

	"github.com/chewxy/math32"
	"github.com/viterin/vek/vek32"
)

// ErrDegenerateVector is returned when a vector has zero length and so no direction.
var ErrDegenerateVector = errors.New("degenerate vector: zero norm")

// ErrNonFinite is returned when a vector contains NaN or infinite components.
var ErrNonFinite = errors.New("vector contains non-finite values")

// UnitTolerance is how far a norm may drift from 1 and still count as unit length.
const UnitTolerance = 1e-6

// Norm returns the Euclidean length of v.
func Norm(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return vek32.Norm(v)
}

// Dot returns the dot product of a and b. The slices must have equal length.
func Dot(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.Dot(a, b)
}

// CheckFinite reports ErrNonFinite if any component is NaN or ±Inf.
func CheckFinite(v []float32) error {
	for _, x := range v {
		if math32.IsNaN(x) || math32.IsInf(x, 0) {
			return ErrNonFinite
		}
	}
	return nil
}

// IsUnit reports whether v has length 1 within UnitTolerance.
func IsUnit(v []float32) bool {
	return math32.Abs(Norm(v)-1) <= UnitTolerance
}

// NormalizeInPlace divides v by its own norm.
// A zero-norm vector is left untouched and ErrDegenerateVector is returned.
func NormalizeInPlace(v []float32) error {
	if err := CheckFinite(v); err != nil {
		return err
	}
	n := Norm(v)
	if n == 0 {
		return ErrDegenerateVector
	}
	if n != 1 {
		vek32.DivNumber_Inplace(v, n)
	}
	return nil
}

// Normalize returns a unit-length copy of v. The input is not modified.
func Normalize(v []float32) ([]float32, error) {
	out := make([]float32, len(v))
	copy(out, v)
	if err := NormalizeInPlace(out); err != nil {
		return nil, err
	}
	return out, nil
}
