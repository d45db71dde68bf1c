package collection_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vectral/vectral/internal/collection"
)

func newCollection(t *testing.T, strictFinite bool) *collection.Collection {
	t.Helper()
	cfg, err := collection.NewConfig(3, strictFinite)
	require.NoError(t, err)
	c, err := collection.New("demo", cfg)
	require.NoError(t, err)
	return c
}

func TestRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	_, err := collection.NewConfig(0, true)
	require.ErrorIs(t, err, collection.ErrInvalidConfig)
}

func TestRejectsBlankName(t *testing.T) {
	t.Parallel()
	cfg, err := collection.NewConfig(3, true)
	require.NoError(t, err)
	_, err = collection.New("   ", cfg)
	require.ErrorIs(t, err, collection.ErrInvalidName)
}

func TestRejectsPathLikeName(t *testing.T) {
	t.Parallel()
	cfg, err := collection.NewConfig(3, true)
	require.NoError(t, err)
	_, err = collection.New("../escape", cfg)
	require.ErrorIs(t, err, collection.ErrInvalidName)
}

// E1 from the concrete end-to-end scenarios: upsert/update/remove round trip.
func TestInsertUpdateAndRemovePoint(t *testing.T) {
	t.Parallel()
	c := newCollection(t, true)

	created, err := c.Upsert(10, []float32{1, 2, 3}, nil)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 1, c.Len())

	values, ok := c.GetVector(10)
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, values)

	created, err = c.Upsert(10, []float32{9, 8, 7}, nil)
	require.NoError(t, err)
	require.False(t, created)

	removedValues, _, ok := c.RemoveRecord(10)
	require.True(t, ok)
	require.Equal(t, []float32{9, 8, 7}, removedValues)
	require.True(t, c.IsEmpty())

	_, ok = c.GetVector(10)
	require.False(t, ok)
}

func TestRejectsDimensionMismatch(t *testing.T) {
	t.Parallel()
	c := newCollection(t, true)
	_, err := c.Upsert(1, []float32{1, 2}, nil)
	require.ErrorIs(t, err, collection.ErrInvalidDimension)
}

func TestStrictModeRejectsNonFinite(t *testing.T) {
	t.Parallel()
	c := newCollection(t, true)
	_, err := c.Upsert(1, []float32{1, float32(math.NaN()), 3}, nil)
	require.ErrorIs(t, err, collection.ErrNonFiniteValue)
}

func TestPermissiveModeAcceptsNonFinite(t *testing.T) {
	t.Parallel()
	c := newCollection(t, false)
	_, err := c.Upsert(1, []float32{1, float32(math.NaN()), 3}, nil)
	require.NoError(t, err)

	values, ok := c.GetVector(1)
	require.True(t, ok)
	require.True(t, math.IsNaN(float64(values[1])))
}

func TestRejectsBlankPayloadKey(t *testing.T) {
	t.Parallel()
	c := newCollection(t, true)
	_, err := c.Upsert(1, []float32{1, 2, 3}, collection.Payload{" ": collection.StringValue("x")})
	require.ErrorIs(t, err, collection.ErrInvalidPayloadKey)
}

// E2 from the concrete end-to-end scenarios.
func TestIDsPageAndPageAfter(t *testing.T) {
	t.Parallel()
	c := newCollection(t, true)

	for _, id := range []uint64{50, 10, 30} {
		_, err := c.Upsert(id, []float32{1, 2, 3}, nil)
		require.NoError(t, err)
	}

	require.Equal(t, []uint64{10, 30}, c.IDsPage(0, 2))

	ids, next := c.IDsPageAfter(nil, 2)
	require.Equal(t, []uint64{10, 30}, ids)
	require.NotNil(t, next)
	require.Equal(t, uint64(30), *next)

	ids, next = c.IDsPageAfter(next, 2)
	require.Equal(t, []uint64{50}, ids)
	require.Nil(t, next)
}

func TestIDsPageRespectsOffsetAndLimit(t *testing.T) {
	t.Parallel()
	c := newCollection(t, true)
	for _, id := range []uint64{10, 30, 50, 70} {
		_, err := c.Upsert(id, []float32{1, 2, 3}, nil)
		require.NoError(t, err)
	}

	require.Equal(t, []uint64{10, 30}, c.IDsPage(0, 2))
	require.Equal(t, []uint64{30, 50}, c.IDsPage(1, 2))
	require.Equal(t, []uint64{70}, c.IDsPage(3, 10))
	require.Empty(t, c.IDsPage(10, 2))
	require.Empty(t, c.IDsPage(0, 0))
}

func TestIDsPageAfterZeroLimitReturnsEmptyNoCursor(t *testing.T) {
	t.Parallel()
	c := newCollection(t, true)
	_, err := c.Upsert(1, []float32{1, 2, 3}, nil)
	require.NoError(t, err)

	ids, next := c.IDsPageAfter(nil, 0)
	require.Empty(t, ids)
	require.Nil(t, next)
}

func TestIDsPageAfterPartitioningHasNoGapsOrDuplicates(t *testing.T) {
	t.Parallel()
	c := newCollection(t, true)
	const n = 500
	for i := uint64(0); i < n; i++ {
		_, err := c.Upsert(i, []float32{float32(i), 0, 0}, nil)
		require.NoError(t, err)
	}

	var all []uint64
	var cursor *uint64
	for {
		ids, next := c.IDsPageAfter(cursor, 7)
		if len(ids) == 0 {
			break
		}
		all = append(all, ids...)
		cursor = next
		if next == nil {
			break
		}
	}

	require.Len(t, all, n)
	for i, id := range all {
		require.Equal(t, uint64(i), id)
	}
}

// Slot invariant: every occupied slot maps back to exactly
// the live id pointing at it.
func TestSlotInvariantAfterMixedMutations(t *testing.T) {
	t.Parallel()
	c := newCollection(t, true)

	for i := uint64(0); i < 10; i++ {
		_, err := c.Upsert(i, []float32{float32(i), 0, 0}, nil)
		require.NoError(t, err)
	}
	for i := uint64(0); i < 10; i += 2 {
		require.True(t, c.Remove(i))
	}

	c.RLock()
	defer c.RUnlock()

	for slot := 0; slot < c.SlotCountUnsafe(); slot++ {
		id, _, _, occupied := c.SlotAtUnsafe(slot)
		if !occupied {
			continue
		}
		gotSlot, ok := c.SlotForIDUnsafe(id)
		require.True(t, ok)
		require.Equal(t, slot, gotSlot)
	}
}

// Compaction stability: live ids, vectors and payloads
// survive compaction unchanged; only slot indices may move.
func TestCompactionPreservesLiveData(t *testing.T) {
	t.Parallel()
	c := newCollection(t, true)

	const total = 600
	for i := uint64(0); i < total; i++ {
		_, err := c.Upsert(i, []float32{float32(i), 1, 2}, collection.Payload{"k": collection.IntValue(int64(i))})
		require.NoError(t, err)
	}

	// Delete enough odd ids to cross the max(256, slot_count/2) threshold.
	for i := uint64(1); i < total; i += 2 {
		require.True(t, c.Remove(i))
	}

	for i := uint64(0); i < total; i += 2 {
		values, payload, ok := c.GetRecord(i)
		require.True(t, ok, "id %d should survive compaction", i)
		require.Equal(t, []float32{float32(i), 1, 2}, values)
		v, _ := payload["k"].Int()
		require.Equal(t, int64(i), v)
	}

	for i := uint64(1); i < total; i += 2 {
		_, ok := c.GetVector(i)
		require.False(t, ok)
	}
}

func TestMutationVersionBumpsOnEveryMutation(t *testing.T) {
	t.Parallel()
	c := newCollection(t, true)
	require.Equal(t, uint64(0), c.MutationVersion())

	_, err := c.Upsert(1, []float32{1, 2, 3}, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), c.MutationVersion())

	_, err = c.Upsert(1, []float32{4, 5, 6}, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(2), c.MutationVersion())

	require.True(t, c.Remove(1))
	require.Equal(t, uint64(3), c.MutationVersion())
}
