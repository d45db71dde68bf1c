package persistence_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vectral/vectral/internal/persistence"
	"github.com/vectral/vectral/pkg/fs"
)

// E6: a crash mid-append leaves the last line unterminated; replay accepts
// every earlier valid record and discards the partial tail.
func TestWALReplayTailTruncationTolerance(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "wal.jsonl")
	fsys := fs.NewReal()

	wal, err := persistence.OpenWAL(fsys, path)
	require.NoError(t, err)

	require.NoError(t, wal.Write(mustEncode(t, persistence.NewCreateCollection("demo", 3, true))))
	require.NoError(t, wal.Write(mustEncode(t, persistence.NewUpsertPoint("demo", 1, []float32{1, 2, 3}, nil))))
	require.NoError(t, wal.Write(mustEncode(t, persistence.NewUpsertPoint("demo", 2, []float32{4, 5, 6}, nil))))
	require.NoError(t, wal.Sync())

	// The literal E6 bytes: no newline, no closing bracket/brace.
	raw, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o640)
	require.NoError(t, err)
	_, err = raw.WriteString(`{"type":"upsert_point","collection":"demo","id":99,"values":[1.0`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	var applied []persistence.Record
	err = wal.Replay(func(r persistence.Record) error {
		applied = append(applied, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, applied, 3)
	for _, r := range applied {
		require.NotEqual(t, uint64(99), r.ID)
	}
}

// A syntactically invalid line that is not the WAL's last line is hard
// corruption, not a tolerated partial tail write.
func TestWALReplayHardErrorOnNonLastCorruptLine(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "wal.jsonl")
	fsys := fs.NewReal()

	wal, err := persistence.OpenWAL(fsys, path)
	require.NoError(t, err)

	raw, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o640)
	require.NoError(t, err)
	_, err = raw.WriteString("not valid json\n")
	require.NoError(t, err)
	_, err = raw.Write(mustEncode(t, persistence.NewDeletePoint("demo", 1)))
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	err = wal.Replay(func(persistence.Record) error { return nil })
	require.ErrorIs(t, err, persistence.ErrWALReplay)
}

func mustEncode(t *testing.T, r persistence.Record) []byte {
	t.Helper()
	data, err := r.Encode()
	require.NoError(t, err)
	return data
}
