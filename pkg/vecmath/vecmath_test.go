package vecmath

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want []float32
	}{
		{"already unit", []float32{1, 0}, []float32{1, 0}},
		{"3-4-5", []float32{3, 4}, []float32{0.6, 0.8}},
		{"negative", []float32{0, -2, 0}, []float32{0, -1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-6)
			}
			assert.True(t, IsUnit(got))
		})
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := []float32{3, 4}
	_, err := Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, in)
}

func TestNormalizeZeroVector(t *testing.T) {
	_, err := Normalize([]float32{0, 0, 0})
	assert.True(t, errors.Is(err, ErrDegenerateVector))

	v := []float32{0, 0}
	err = NormalizeInPlace(v)
	assert.ErrorIs(t, err, ErrDegenerateVector)
	assert.Equal(t, []float32{0, 0}, v, "zero vector must not become NaN")
}

func TestNormalizeEmpty(t *testing.T) {
	_, err := Normalize(nil)
	assert.ErrorIs(t, err, ErrDegenerateVector)
}

func TestNormalizeNonFinite(t *testing.T) {
	_, err := Normalize([]float32{1, math32.NaN()})
	assert.ErrorIs(t, err, ErrNonFinite)

	_, err = Normalize([]float32{math32.Inf(1), 0})
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 11.0, Dot([]float32{1, 2}, []float32{3, 4}), 1e-6)
	assert.Equal(t, float32(0), Dot(nil, nil))
}
