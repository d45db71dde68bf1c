package ivf_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vectral/vectral/internal/collection"
	"github.com/vectral/vectral/internal/ivf"
)

func snapshotCollection(t *testing.T, dim int) *collection.Collection {
	t.Helper()
	cfg, err := collection.NewConfig(dim, true)
	require.NoError(t, err)
	c, err := collection.New("demo", cfg)
	require.NoError(t, err)
	return c
}

func TestBuildRejectsBelowMinIndexedPoints(t *testing.T) {
	t.Parallel()
	c := snapshotCollection(t, 2)
	for i := uint64(0); i < ivf.MinIndexedPoints-1; i++ {
		_, err := c.Upsert(i, []float32{float32(i), 0}, nil)
		require.NoError(t, err)
	}

	_, ok := ivf.Build(c.Dimension(), c.Points(), c.MutationVersion())
	require.False(t, ok)
}

func TestIndexBecomesIncompatibleForSameLenUpdate(t *testing.T) {
	t.Parallel()
	c := snapshotCollection(t, 2)
	for i := uint64(0); i < ivf.MinIndexedPoints; i++ {
		_, err := c.Upsert(i, []float32{float32(i), 0}, nil)
		require.NoError(t, err)
	}

	idx, ok := ivf.Build(c.Dimension(), c.Points(), c.MutationVersion())
	require.True(t, ok)
	require.True(t, idx.IsCompatible(c.Dimension(), c.Len(), c.MutationVersion()))

	_, err := c.Upsert(1, []float32{1234, 0}, nil)
	require.NoError(t, err)
	require.False(t, idx.IsCompatible(c.Dimension(), c.Len(), c.MutationVersion()))
}

func TestIndexBecomesIncompatibleWhenLenChanges(t *testing.T) {
	t.Parallel()
	c := snapshotCollection(t, 2)
	for i := uint64(0); i < ivf.MinIndexedPoints; i++ {
		_, err := c.Upsert(i, []float32{float32(i), 0}, nil)
		require.NoError(t, err)
	}

	idx, ok := ivf.Build(c.Dimension(), c.Points(), c.MutationVersion())
	require.True(t, ok)

	_, err := c.Upsert(ivf.MinIndexedPoints+1, []float32{0, 0}, nil)
	require.NoError(t, err)
	require.False(t, idx.IsCompatible(c.Dimension(), c.Len(), c.MutationVersion()))
}

func TestCandidateIDsReduceSearchSpace(t *testing.T) {
	t.Parallel()
	c := snapshotCollection(t, 2)
	for i := uint64(0); i < ivf.MinIndexedPoints; i++ {
		shift := float32(0)
		if i >= ivf.MinIndexedPoints/2 {
			shift = 1000
		}
		_, err := c.Upsert(i, []float32{shift + float32(i%10), 0}, nil)
		require.NoError(t, err)
	}

	idx, ok := ivf.Build(c.Dimension(), c.Points(), c.MutationVersion())
	require.True(t, ok)

	candidateIDs := idx.CandidateIDs([]float32{1005, 0}, 10)
	require.NotEmpty(t, candidateIDs)
	require.Less(t, len(candidateIDs), c.Len())
}

func TestBuildIsDeterministicForAFixedSnapshot(t *testing.T) {
	t.Parallel()
	c := snapshotCollection(t, 3)
	for i := uint64(0); i < ivf.MinIndexedPoints; i++ {
		_, err := c.Upsert(i, []float32{float32(i % 17), float32(i % 5), float32(i % 3)}, nil)
		require.NoError(t, err)
	}
	points := c.Points()

	first, ok := ivf.Build(c.Dimension(), points, c.MutationVersion())
	require.True(t, ok)
	second, ok := ivf.Build(c.Dimension(), points, c.MutationVersion())
	require.True(t, ok)

	query := []float32{4, 1, 2}
	require.Equal(t, first.CandidateIDs(query, 10), second.CandidateIDs(query, 10))
}

func TestCandidateIDsTargetRecallOneProbesEveryList(t *testing.T) {
	t.Parallel()
	c := snapshotCollection(t, 2)
	for i := uint64(0); i < ivf.MinIndexedPoints; i++ {
		shift := float32(0)
		if i >= ivf.MinIndexedPoints/2 {
			shift = 1000
		}
		_, err := c.Upsert(i, []float32{shift + float32(i%10), 0}, nil)
		require.NoError(t, err)
	}

	idx, ok := ivf.Build(c.Dimension(), c.Points(), c.MutationVersion())
	require.True(t, ok)

	full := 1.0
	candidateIDs := idx.CandidateIDsWithTargetRecall([]float32{1005, 0}, 10, &full)
	require.Len(t, candidateIDs, c.Len())

	half := 0.5
	partial := idx.CandidateIDsWithTargetRecall([]float32{1005, 0}, 10, &half)
	require.NotEmpty(t, partial)
	require.LessOrEqual(t, len(partial), len(candidateIDs))
}
