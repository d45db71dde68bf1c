package persistence_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/vectral/vectral/internal/persistence"
	"github.com/vectral/vectral/pkg/fs"
)

func newStoreConfig(dir string) persistence.Config {
	return persistence.Config{
		SnapshotPath: filepath.Join(dir, "snapshot.json"),
		WALPath:      filepath.Join(dir, "wal.jsonl"),
		Sync:         persistence.SyncPolicy{OnWrite: true},
	}
}

// Applying the WAL emitted by a sequence of API calls to an
// empty store yields a store equal to the final in-memory state; replaying
// the same durable state twice yields the same result.
func TestStoreAppendAndRecoverRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := fs.NewReal()

	store, err := persistence.NewStore(fsys, newStoreConfig(dir))
	require.NoError(t, err)

	records := []persistence.Record{
		persistence.NewCreateCollection("demo", 3, true),
		persistence.NewUpsertPoint("demo", 1, []float32{1, 2, 3}, nil),
		persistence.NewUpsertPoint("demo", 2, []float32{4, 5, 6}, nil),
	}
	for _, rec := range records {
		require.NoError(t, store.Append(rec))
	}
	require.NoError(t, store.Close())

	for attempt := 0; attempt < 2; attempt++ {
		store, err = persistence.NewStore(fsys, newStoreConfig(dir))
		require.NoError(t, err)

		var applied []persistence.Record
		_, err = store.Recover(func(r persistence.Record) error {
			applied = append(applied, r)
			return nil
		})
		require.NoError(t, err)

		if diff := cmp.Diff(records, applied, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("replayed records differ from appended records (-want +got):\n%s", diff)
		}

		require.NoError(t, store.Close())
	}
}

// A checkpoint rotates the WAL into a numbered segment under
// <snapshot>.incrementals once the write interval is reached.
func TestStoreCheckpointRotatesSegmentOnInterval(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := fs.NewReal()

	cfg := newStoreConfig(dir)
	cfg.CheckpointInterval = 2
	cfg.CheckpointCompactAfter = 1000 // keep this test from also compacting

	store, err := persistence.NewStore(fsys, cfg)
	require.NoError(t, err)

	require.NoError(t, store.Append(persistence.NewCreateCollection("demo", 3, true)))
	require.NoError(t, store.Append(persistence.NewUpsertPoint("demo", 1, []float32{1, 2, 3}, nil)))

	entries, err := fsys.ReadDir(cfg.SnapshotPath + ".incrementals")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, store.StorageAvailable())
}

// A segment rotation failure downgrades storage to WAL-only mode.
func TestStoreRotateFailureMarksStorageUnavailable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	injected := errors.New("injected rotate failure")
	faulty := fs.NewFaulty(fs.NewReal(), func(op, _ string) error {
		if op == "rename" {
			return injected
		}
		return nil
	})

	cfg := newStoreConfig(dir)
	cfg.CheckpointInterval = 1

	store, err := persistence.NewStore(faulty, cfg)
	require.NoError(t, err)

	err = store.Append(persistence.NewCreateCollection("demo", 3, true))
	require.NoError(t, err) // the WAL append itself succeeded; only the checkpoint failed
	require.False(t, store.StorageAvailable())
}

// The service facade supplies live state for a synchronous checkpoint's
// compaction step; once enough segments accumulate, compaction writes a
// fresh snapshot and clears them.
func TestStoreCheckpointCompactsAfterThreshold(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := fs.NewReal()

	cfg := newStoreConfig(dir)
	cfg.CheckpointInterval = 1
	cfg.CheckpointCompactAfter = 2

	store, err := persistence.NewStore(fsys, cfg)
	require.NoError(t, err)
	store.SetStateProvider(func() persistence.Snapshot {
		return persistence.Snapshot{Collections: []persistence.SnapshotCollection{
			{Name: "demo", Dimension: 3, StrictFinite: true, Points: []persistence.SnapshotPoint{
				{ID: 1, Values: []float32{1, 2, 3}},
			}},
		}}
	})

	require.NoError(t, store.Append(persistence.NewCreateCollection("demo", 3, true)))
	require.NoError(t, store.Append(persistence.NewUpsertPoint("demo", 1, []float32{1, 2, 3}, nil)))

	entries, err := fsys.ReadDir(cfg.SnapshotPath + ".incrementals")
	require.NoError(t, err)
	require.Empty(t, entries)

	snap, err := persistence.LoadSnapshot(fsys, cfg.SnapshotPath)
	require.NoError(t, err)
	require.Len(t, snap.Collections, 1)
	require.Equal(t, "demo", snap.Collections[0].Name)
}
