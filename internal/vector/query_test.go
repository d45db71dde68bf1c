package vector_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vectral/vectral/internal/vector"
)

func TestL2QueryCachesSquaredNorm(t *testing.T) {
	t.Parallel()

	q, err := vector.NewL2Query([]float32{3, 4}, vector.Strict())
	require.NoError(t, err)
	require.InDelta(t, 25.0, q.SqNorm(), 1e-4)

	got := q.ScoreSquaredUnchecked([]float32{0, 0})
	require.InDelta(t, 25.0, got, 1e-4)
}

func TestDotQueryScoreUnchecked(t *testing.T) {
	t.Parallel()

	q, err := vector.NewDotQuery([]float32{1, 2, 3}, vector.Strict())
	require.NoError(t, err)
	require.InDelta(t, 32.0, q.ScoreUnchecked([]float32{4, 5, 6}), 1e-3)
}

func TestCosineQueryRejectsZeroNormQuery(t *testing.T) {
	t.Parallel()

	_, err := vector.NewCosineQuery([]float32{0, 0}, vector.Strict())
	require.Error(t, err)
}

func TestCosineQueryScoreUnchecked(t *testing.T) {
	t.Parallel()

	q, err := vector.NewCosineQuery([]float32{1, 0}, vector.Strict())
	require.NoError(t, err)

	got, ok := q.ScoreUnchecked([]float32{1, 0}, 0)
	require.True(t, ok)
	require.InDelta(t, 1.0, got, 1e-4)

	_, ok = q.ScoreUnchecked([]float32{0, 0}, 0)
	require.False(t, ok)
}
