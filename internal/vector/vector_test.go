package vector_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vectral/vectral/internal/vector"
)

func TestDot(t *testing.T) {
	t.Parallel()

	got, err := vector.Dot([]float32{1, 2, 3}, []float32{4, 5, 6})
	require.NoError(t, err)
	require.InDelta(t, 32.0, got, 1e-3)
}

func TestL2Distance(t *testing.T) {
	t.Parallel()

	got, err := vector.L2Distance([]float32{0, 0}, []float32{3, 4})
	require.NoError(t, err)
	require.InDelta(t, 5.0, got, 1e-3)
}

func TestL2DistanceIsSqrtOfL2Squared(t *testing.T) {
	t.Parallel()

	left := make([]float32, 17)
	right := make([]float32, 17)
	for i := range left {
		left[i] = float32(i)
		right[i] = float32(i*2 + 1)
	}

	squared, err := vector.L2Squared(left, right)
	require.NoError(t, err)

	distance, err := vector.L2Distance(left, right)
	require.NoError(t, err)

	require.InDelta(t, math.Sqrt(float64(squared)), float64(distance), 1e-3)
}

func TestCosine(t *testing.T) {
	t.Parallel()

	got, err := vector.Cosine([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	require.InDelta(t, 1.0, got, 1e-4)

	got, err = vector.Cosine([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	require.InDelta(t, 0.0, got, 1e-4)
}

func TestCosineZeroNorm(t *testing.T) {
	t.Parallel()

	_, err := vector.Cosine([]float32{0, 0}, []float32{1, 0})
	var zeroNorm *vector.ZeroNormError
	require.True(t, errors.As(err, &zeroNorm))
}

func TestEmptyVector(t *testing.T) {
	t.Parallel()

	_, err := vector.Dot(nil, []float32{1})
	require.ErrorIs(t, err, vector.ErrEmptyVector)
}

func TestDimensionMismatch(t *testing.T) {
	t.Parallel()

	_, err := vector.Dot([]float32{1, 2}, []float32{1, 2, 3})
	var mismatch *vector.DimensionMismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, 2, mismatch.Left)
	require.Equal(t, 3, mismatch.Right)
}

func TestNonFiniteStrict(t *testing.T) {
	t.Parallel()

	_, err := vector.Dot([]float32{1, float32(math.NaN())}, []float32{1, 2})
	var nonFinite *vector.NonFiniteError
	require.True(t, errors.As(err, &nonFinite))
	require.Equal(t, 1, nonFinite.Index)
	require.Equal(t, vector.SideLeft, nonFinite.Side)
}

func TestNonFinitePermissive(t *testing.T) {
	t.Parallel()

	_, err := vector.DotWithOptions(
		[]float32{1, float32(math.NaN())},
		[]float32{1, 2},
		vector.Permissive(),
	)
	require.NoError(t, err)
}

func TestKernelsAgreeAcrossLaneBoundary(t *testing.T) {
	t.Parallel()

	// 17 = 2 full 8-lanes plus a 1-element scalar tail.
	left := make([]float32, 17)
	right := make([]float32, 17)
	var wantDot float32
	for i := range left {
		left[i] = float32(i + 1)
		right[i] = float32(17 - i)
		wantDot += left[i] * right[i]
	}

	got, err := vector.Dot(left, right)
	require.NoError(t, err)
	require.InDelta(t, wantDot, got, 1e-3)
}
