// Package persistence implements the durable write path behind a
// collection registry: an append-only WAL with three independently
// configurable fsync cadences, group-commit batching, periodic checkpoints
// that rotate the WAL into incremental segments, and snapshot compaction —
// plus the matching restart choreography that replays all three layers back
// into an empty registry.
package persistence

import "errors"

var (
	// ErrInvalidRecord reports a structurally invalid WAL record, caught at
	// Append time or during replay of a non-final line.
	ErrInvalidRecord = errors.New("persistence: invalid record")
	// ErrWALReplay reports a WAL or segment line that fails to decode and is
	// not the file's last line — true corruption, not a tolerated partial
	// tail write.
	ErrWALReplay = errors.New("persistence: wal replay")
	// ErrSnapshotLoad reports a snapshot file that exists but fails to
	// decode.
	ErrSnapshotLoad = errors.New("persistence: snapshot load")
	// ErrUnavailable reports an operation rejected because storage has
	// degraded to WAL-only mode (a prior snapshot or segment-rotation write
	// failed) and the caller requires a durable guarantee it cannot give.
	ErrUnavailable = errors.New("persistence: storage unavailable")
)
