package persistence

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGroupCommitterCoalescesFullBatch(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var batches [][]Record

	g := newGroupCommitter(GroupCommitPolicy{MaxBatch: 3, FlushDelay: time.Minute}, func(records []Record) error {
		mu.Lock()
		batches = append(batches, records)
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			err := g.submit(NewDeletePoint("demo", id))
			require.NoError(t, err)
		}(uint64(i))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 3)
}

func TestGroupCommitterFlushesOnDelayWithoutAFullBatch(t *testing.T) {
	t.Parallel()

	g := newGroupCommitter(GroupCommitPolicy{MaxBatch: 10, FlushDelay: time.Millisecond}, func(records []Record) error {
		return nil
	})

	err := g.submit(NewDeletePoint("demo", 1))
	require.NoError(t, err)
}

func TestGroupCommitterMaxBatchOneFlushesEverySubmitAlone(t *testing.T) {
	t.Parallel()

	var calls int
	g := newGroupCommitter(GroupCommitPolicy{MaxBatch: 1}, func(records []Record) error {
		calls++
		require.Len(t, records, 1)
		return nil
	})

	require.NoError(t, g.submit(NewDeletePoint("demo", 1)))
	require.NoError(t, g.submit(NewDeletePoint("demo", 2)))
	require.Equal(t, 2, calls)
}

func TestGroupCommitterPropagatesFlushError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	g := newGroupCommitter(GroupCommitPolicy{MaxBatch: 1}, func(records []Record) error {
		return boom
	})

	err := g.submit(NewDeletePoint("demo", 1))
	require.ErrorIs(t, err, boom)
}
