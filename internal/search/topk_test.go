package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSmallTopKKeepsBestKAscendingRank(t *testing.T) {
	t.Parallel()
	b := newSmallTopK(3)
	for _, v := range []struct {
		id   uint64
		rank float32
	}{
		{1, 5}, {2, 1}, {3, 3}, {4, 2}, {5, 9},
	} {
		b.push(v.id, v.rank, v.rank)
	}
	got := b.finalize()
	require.Len(t, got, 3)
	require.Equal(t, []uint64{2, 4, 3}, []uint64{got[0].id, got[1].id, got[2].id})
}

func TestSmallTopKTieBreaksByIDAscending(t *testing.T) {
	t.Parallel()
	b := newSmallTopK(2)
	b.push(2, 1, 1)
	b.push(1, 1, 1)
	got := b.finalize()
	require.Equal(t, uint64(1), got[0].id)
	require.Equal(t, uint64(2), got[1].id)
}

func TestBoundedHeapKeepsBestKAscendingRank(t *testing.T) {
	t.Parallel()
	h := newBoundedHeap(3)
	for _, v := range []struct {
		id   uint64
		rank float32
	}{
		{1, 5}, {2, 1}, {3, 3}, {4, 2}, {5, 9}, {6, 0},
	} {
		h.push(v.id, v.rank, v.rank)
	}
	got := h.finalize()
	require.Len(t, got, 3)
	require.Equal(t, []uint64{6, 2, 4}, []uint64{got[0].id, got[1].id, got[2].id})
}

func TestBoundedHeapTieBreaksByIDAscending(t *testing.T) {
	t.Parallel()
	h := newBoundedHeap(2)
	h.push(2, 1, 1)
	h.push(1, 1, 1)
	h.push(3, 1, 1)
	got := h.finalize()
	require.Equal(t, uint64(1), got[0].id)
	require.Equal(t, uint64(2), got[1].id)
}

func TestMergeIntoIsCommutative(t *testing.T) {
	t.Parallel()
	left := []scored{{id: 1, rank: 1, score: 1}, {id: 2, rank: 2, score: 2}}
	right := []scored{{id: 3, rank: 0, score: 0}}

	a := newBoundedHeap(2)
	mergeInto(a, left)
	mergeInto(a, right)

	b := newBoundedHeap(2)
	mergeInto(b, right)
	mergeInto(b, left)

	require.Equal(t, a.finalize(), b.finalize())
}

func TestRankForNegatesNonL2Metrics(t *testing.T) {
	t.Parallel()
	require.Equal(t, float32(3), rankFor(MetricL2, 3))
	require.Equal(t, float32(-3), rankFor(MetricDot, 3))
	require.Equal(t, float32(-3), rankFor(MetricCosine, 3))
}
