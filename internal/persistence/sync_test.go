package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// A batch starting at s of size b fsyncs iff some multiple of N lies in
// [s, s+b-1].
func TestAnyMultipleInRange(t *testing.T) {
	t.Parallel()

	require.True(t, anyMultipleInRange(4, 1, 4))   // [1,4] contains 4
	require.False(t, anyMultipleInRange(4, 5, 3))  // [5,7] contains no multiple of 4
	require.True(t, anyMultipleInRange(4, 5, 4))   // [5,8] contains 8
	require.True(t, anyMultipleInRange(1, 5, 1))   // every number is a multiple of 1
	require.False(t, anyMultipleInRange(0, 1, 10)) // n=0 never fires
	require.False(t, anyMultipleInRange(4, 1, 0))  // empty batch never fires
}

func TestSyncPolicyDisjunction(t *testing.T) {
	t.Parallel()

	t.Run("on write always fires", func(t *testing.T) {
		p := SyncPolicy{OnWrite: true}
		require.True(t, p.shouldSync(newSyncState(nil), 1, 1))
	})

	t.Run("every n writes fires on a covering multiple", func(t *testing.T) {
		p := SyncPolicy{EveryNWrites: 4}
		require.True(t, p.shouldSync(newSyncState(nil), 1, 4))
		require.False(t, p.shouldSync(newSyncState(nil), 5, 3))
	})

	t.Run("interval fires once elapsed exceeds the threshold", func(t *testing.T) {
		now := time.Unix(1000, 0)
		state := newSyncState(func() time.Time { return now })
		p := SyncPolicy{IntervalSeconds: 10}

		require.False(t, p.shouldSync(state, 1, 1))

		now = now.Add(11 * time.Second)
		require.True(t, p.shouldSync(state, 2, 1))
	})

	t.Run("all disabled never fires", func(t *testing.T) {
		p := SyncPolicy{}
		require.False(t, p.shouldSync(newSyncState(nil), 1, 1))
	})
}

func TestSyncStateReserveAllocatesContiguousSequences(t *testing.T) {
	t.Parallel()

	s := newSyncState(nil)
	require.Equal(t, uint64(1), s.reserve(3))
	require.Equal(t, uint64(4), s.reserve(1))
	require.Equal(t, uint64(5), s.reserve(2))
}
